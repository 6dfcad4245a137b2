package commands

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(reportCmd)
}

var reportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Prints the dataset report of an earlier run.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newStack(cmd.Context(), "", false)
		if err != nil {
			return err
		}
		defer s.Close()

		report, err := s.runner.Report(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		s.runner.Reporter().Print(report)
		return nil
	},
}
