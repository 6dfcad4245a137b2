package commands

import (
	"context"
	"fmt"
	"time"

	"yelp-dataset/pipeline"
	"yelp-dataset/scraper/yelp"
	"yelp-dataset/services"
	"yelp-dataset/storage"
	"yelp-dataset/utils"
)

// stack is the set of long-lived components a command works with.
type stack struct {
	runner  *pipeline.Runner
	closers []func() error
}

func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warn("[setup] Close failed: %v", err)
		}
	}
}

// newStack wires the collector, enricher and optional database from the
// loaded config. resume is passed through to the runner. Commands that
// never fetch pages pass scrape=false so no browser is started.
func newStack(ctx context.Context, resume string, scrape bool) (*stack, error) {
	s := &stack{}

	collector := yelp.NewCollector(yelp.CollectorOptions{
		BaseURL:    cfg.YelpAPIBase,
		APIKey:     cfg.YelpAPIKey,
		Categories: cfg.YelpCategories,
		MaxPages:   cfg.MaxPages,
	}, logger)

	retry := &utils.RetryConfig{
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   2 * time.Second,
		Logger:      logger,
	}

	var enricher pipeline.Enricher
	if scrape {
		fetcher, err := newFetcher(ctx, s, retry)
		if err != nil {
			return nil, err
		}
		pool := utils.NewWorkerPool(cfg.MaxConcurrency, cfg.RateLimitMs)
		enricher = yelp.NewEnricher(yelp.SchemaV1, fetcher, pool, logger)
	}

	var store storage.RecordStore
	if driver, source := cfg.DataSource(); driver != "" {
		sqlStore, err := storage.NewSQLStore(ctx, driver, source, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, sqlStore.Close)
		store = sqlStore
		logger.Info("[setup] Persisting records to %s", driver)
	}

	s.runner = pipeline.NewRunner(pipeline.Options{
		Location:   cfg.YelpLocation,
		OutputDir:  cfg.OutputDir,
		Rules:      services.RuleSetByName(cfg.FeatureRules),
		ResumeFrom: resume,
	}, collector, enricher, store, logger)
	return s, nil
}

func newFetcher(ctx context.Context, s *stack, retry *utils.RetryConfig) (yelp.PageFetcher, error) {
	switch cfg.FetchMode {
	case "chrome":
		cf, err := yelp.NewChromeFetcher(ctx, cfg.ChromeBin, retry, logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, cf.Close)
		return cf, nil
	case "http", "":
		return yelp.NewHTTPFetcher(30*time.Second, retry, logger), nil
	default:
		return nil, fmt.Errorf("unknown FETCH_MODE %q (want http or chrome)", cfg.FetchMode)
	}
}
