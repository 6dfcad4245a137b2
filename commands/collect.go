package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"yelp-dataset/storage"
)

func init() {
	rootCmd.AddCommand(collectCmd)
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collects businesses from the search API and writes a raw snapshot for a later build --resume.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.YelpAPIKey == "" {
			return fmt.Errorf("YELP_API_KEY is not set")
		}

		s, err := newStack(cmd.Context(), "", false)
		if err != nil {
			return err
		}
		defer s.Close()

		snap, err := s.runner.Collect(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("  Collected %d businesses. Snapshot -> %s\n\n", len(snap.Businesses),
			filepath.Join(cfg.OutputDir, snap.RunID, storage.RawSnapshotFile))
		return nil
	},
}
