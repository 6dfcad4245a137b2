package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var buildResume string

func init() {
	buildCmd.Flags().StringVar(&buildResume, "resume", "", "Raw snapshot (businesses.json) to build from instead of calling the search API.")
	rootCmd.AddCommand(buildCmd)
}

var buildCmd = &cobra.Command{
	Use:   "build [--resume <businesses.json>]",
	Short: "Runs the full pipeline: collect, enrich, derive features, balance and write the dataset.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if buildResume == "" && cfg.YelpAPIKey == "" {
			return fmt.Errorf("YELP_API_KEY is not set")
		}

		logger.Info("=== Restaurant dataset build starting ===")
		logger.Info("Config: location %q | max pages: %d | concurrency: %d | rate: %dms | rules: %s",
			cfg.YelpLocation, cfg.MaxPages, cfg.MaxConcurrency, cfg.RateLimitMs, cfg.FeatureRules)

		s, err := newStack(cmd.Context(), buildResume, true)
		if err != nil {
			return err
		}
		defer s.Close()

		res, err := s.runner.Run(cmd.Context())
		if err != nil {
			return err
		}

		s.runner.Reporter().Print(res.Report)
		fmt.Printf("  Done. Run %s | XTrain -> %s | yTrain -> %s\n\n", res.RunID, res.XPath, res.YPath)
		return nil
	},
}
