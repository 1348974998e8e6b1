package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leftmike/linkbag/repl"
)

var (
	replCmd = &cobra.Command{
		Use:   "repl [file ...]",
		Short: "Run commands from files or an interactive console session",
		RunE:  replRun,
	}
)

func init() {
	linkbagCmd.AddCommand(replCmd)
}

func cmdError(format string, args ...interface{}) error {
	return fmt.Errorf("linkbag: "+format, args...)
}

func replRun(cmd *cobra.Command, args []string) error {
	opts, err := txnOptions()
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	ses := &repl.Session{
		Store:   st,
		Options: opts,
	}
	if len(args) == 0 {
		repl.Interact(ctx, ses)
		return nil
	}

	for _, arg := range args {
		f, err := os.Open(arg)
		if err != nil {
			return cmdError("%s", err)
		}
		repl.Repl(ctx, ses, repl.NewReader(f), cmd.OutOrStdout())
		f.Close()
	}
	return nil
}
