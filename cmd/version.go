package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const (
	version = "linkbag 0.1.0"
)

func init() {
	linkbagCmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number of linkbag",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		})
}
