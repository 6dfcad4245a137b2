package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"yelp-dataset/config"
	"yelp-dataset/utils"
)

var (
	cfg    *config.Config
	logger *utils.Logger

	flagLocation string
	flagOutput   string
	flagRules    string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "yelp-dataset",
	Short: "yelp-dataset builds a balanced restaurant feature dataset from Yelp listings.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		if flagLocation != "" {
			cfg.YelpLocation = flagLocation
		}
		if flagOutput != "" {
			cfg.OutputDir = flagOutput
		}
		if flagRules != "" {
			cfg.FeatureRules = flagRules
		}
		if flagLogLevel != "" {
			cfg.LogLevel = flagLogLevel
		}
		logger = utils.NewLogger(utils.ParseLevel(cfg.LogLevel))
	},
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&flagLocation, "location", "l", "", "Location to search (overrides YELP_LOCATION).")
	flags.StringVarP(&flagOutput, "output", "o", "", "Output directory (overrides OUTPUT_DIR).")
	flags.StringVar(&flagRules, "rules", "", "Feature rule set: corrected or legacy (overrides FEATURE_RULES).")
	flags.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL).")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
