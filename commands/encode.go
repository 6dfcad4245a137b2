package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(encodeCmd)
}

var encodeCmd = &cobra.Command{
	Use:   "encode <features.json>",
	Short: "Re-encodes and balances the dataset from a derived snapshot.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newStack(cmd.Context(), "", false)
		if err != nil {
			return err
		}
		defer s.Close()

		res, err := s.runner.EncodeSnapshot(args[0])
		if err != nil {
			return err
		}
		s.runner.Reporter().Print(res.Report)
		fmt.Printf("  Done. XTrain -> %s | yTrain -> %s\n\n", res.XPath, res.YPath)
		return nil
	},
}
