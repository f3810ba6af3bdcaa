package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand assembles the datamart command line.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datamart [flags] [options]",
		Short: "datamart uploads datasets to a Datamart server and reports its status.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(NewCmdUpload())
	cmd.AddCommand(NewCmdStatus())
	return cmd
}
