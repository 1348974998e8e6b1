package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/leftmike/linkbag/repl"
	"github.com/leftmike/linkbag/rid"
	"github.com/leftmike/linkbag/txn"
)

var (
	listCmd = &cobra.Command{
		Use:   "list <record> <field>",
		Short: "List the members of a bag field of a record",
		Args:  cobra.ExactArgs(2),
		RunE:  listRun,
	}
)

func init() {
	linkbagCmd.AddCommand(listCmd)
}

func listRun(cmd *cobra.Command, args []string) error {
	id, err := rid.Parse(args[0])
	if err != nil {
		return err
	}
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
	tx := txn.Begin(st, opts)
	defer tx.Rollback()

	rec, err := tx.Load(ctx, id)
	if err != nil {
		return err
	}
	b, ok := rec.Bag(args[1])
	if !ok {
		return cmdError("record %s: field %s not found", rec, args[1])
	}
	pairs, err := b.Members(ctx)
	if err != nil {
		return err
	}
	repl.WriteMembers(cmd.OutOrStdout(), pairs)
	return nil
}
