package cmd

import (
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func init() {
	linkbagCmd.AddCommand(
		&cobra.Command{
			Use:   "config",
			Short: "List the config variables and how each was set",
			Run: func(cmd *cobra.Command, args []string) {
				tw := tablewriter.NewWriter(cmd.OutOrStdout())
				tw.SetAutoFormatHeaders(false)
				tw.SetHeader([]string{"name", "by", "value"})
				for _, s := range cfg.Settings() {
					tw.Append([]string{s.Name, s.By.String(), s.Value})
				}
				tw.Render()
			},
		})
}
