package yelp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"yelp-dataset/models"
	"yelp-dataset/utils"
)

const (
	// PageSize is the number of businesses requested per search call.
	PageSize = 20

	searchPath = "/v3/businesses/search"

	// the search API refuses offset+limit beyond this window
	defaultResultWindow = 1000

	maxEmptyPages = 3
)

// CollectionError reports a failed search request. Collection stops at the
// first one.
type CollectionError struct {
	Query      string
	Offset     int
	StatusCode int
	Err        error
}

func (e *CollectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("collect %q at offset %d: status %d: %v", e.Query, e.Offset, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("collect %q at offset %d: %v", e.Query, e.Offset, e.Err)
}

func (e *CollectionError) Unwrap() error { return e.Err }

// CollectorOptions configures the search endpoint and the pagination
// guards. MaxPages bounds the number of requests (0 means no bound) and
// ResultWindow is the largest offset+limit the endpoint accepts (0 uses
// 1000).
type CollectorOptions struct {
	BaseURL      string
	APIKey       string
	Categories   string
	MaxPages     int
	ResultWindow int
	Timeout      time.Duration
}

// Collector pages through the business search endpoint.
type Collector struct {
	opts   CollectorOptions
	http   *resty.Client
	logger *utils.Logger
}

// NewCollector creates a Collector talking to opts.BaseURL.
func NewCollector(opts CollectorOptions, logger *utils.Logger) *Collector {
	if opts.ResultWindow <= 0 {
		opts.ResultWindow = defaultResultWindow
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	client := newHTTPClient(opts.Timeout, logger)
	client.SetBaseURL(opts.BaseURL)
	client.SetHeader("accept", "application/json")
	if opts.APIKey != "" {
		client.SetAuthToken(opts.APIKey)
	}

	return &Collector{opts: opts, http: client, logger: logger}
}

type searchResponse struct {
	Total      int            `json:"total"`
	Businesses *[]apiBusiness `json:"businesses"`
}

type apiBusiness struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Transactions []string `json:"transactions"`
	Categories   []struct {
		Alias string `json:"alias"`
		Title string `json:"title"`
	} `json:"categories"`
	Price  string  `json:"price"`
	Rating float64 `json:"rating"`
	URL    string  `json:"url"`
}

func (b *apiBusiness) toRaw() *models.RawBusiness {
	raw := &models.RawBusiness{
		ID:           b.ID,
		Name:         b.Name,
		Transactions: b.Transactions,
		Categories:   make([]string, 0, len(b.Categories)),
		Rating:       b.Rating,
		URL:          b.URL,
	}
	if raw.Transactions == nil {
		raw.Transactions = []string{}
	}
	for _, c := range b.Categories {
		raw.Categories = append(raw.Categories, c.Alias)
	}
	// price comes as a run of currency symbols, one per tier
	if n := utf8.RuneCountInString(b.Price); n > 0 {
		raw.Price = &n
	}
	return raw
}

// Collect retrieves every business matching query (a location). It keeps
// requesting pages while fewer businesses than the first response's total
// have been gathered, and stops early when the endpoint stops making
// progress.
func (c *Collector) Collect(ctx context.Context, query string) ([]*models.RawBusiness, error) {
	c.logger.Info("[collector] Collecting %q (categories: %q, page size %d)",
		query, c.opts.Categories, PageSize)

	seen := utils.NewKeySet()
	businesses := make([]*models.RawBusiness, 0)
	total := -1
	emptyPages := 0

	for page := 0; ; page++ {
		offset := page * PageSize

		if c.opts.MaxPages > 0 && page >= c.opts.MaxPages {
			c.logger.Warn("[collector] Page limit %d reached with %d/%d businesses", c.opts.MaxPages, len(businesses), total)
			break
		}
		if page > 0 && offset+PageSize > c.opts.ResultWindow {
			c.logger.Warn("[collector] Offset %d is past the result window (%d), stopping at %d/%d",
				offset, c.opts.ResultWindow, len(businesses), total)
			break
		}

		res, err := c.fetchPage(ctx, query, offset)
		if err != nil {
			return nil, err
		}
		if total < 0 {
			total = res.Total
			c.logger.Info("[collector] Endpoint reports %d businesses", total)
		}

		if res.Businesses == nil {
			emptyPages++
			c.logger.Warn("[collector] Page at offset %d has no businesses field (%d/%d)", offset, emptyPages, maxEmptyPages)
			if emptyPages >= maxEmptyPages {
				c.logger.Warn("[collector] Giving up after %d pages without businesses", emptyPages)
				break
			}
			if len(businesses) >= total {
				break
			}
			continue
		}
		emptyPages = 0

		items := *res.Businesses
		added := 0
		for i := range items {
			raw := items[i].toRaw()
			if key := businessKey(raw); key != "" && !seen.Add(key) {
				c.logger.Debug("[collector] Duplicate business skipped: %s", key)
				continue
			}
			businesses = append(businesses, raw)
			added++
		}
		c.logger.Debug("[collector] Offset %d: %d items, %d new, %d/%d total", offset, len(items), added, len(businesses), total)

		if len(businesses) >= total {
			break
		}
		if len(items) < PageSize {
			c.logger.Warn("[collector] Short page at offset %d (%d < %d), stopping at %d/%d",
				offset, len(items), PageSize, len(businesses), total)
			break
		}
		if added == 0 {
			c.logger.Warn("[collector] Page at offset %d returned no new businesses, stopping at %d/%d",
				offset, len(businesses), total)
			break
		}
	}

	c.logger.Info("[collector] Collection complete: %d businesses", len(businesses))
	return businesses, nil
}

func (c *Collector) fetchPage(ctx context.Context, query string, offset int) (*searchResponse, error) {
	ctx, span := tracer.Start(ctx, "collector:fetchPage", trace.WithAttributes(
		attribute.String("query", query),
		attribute.Int("offset", offset),
	))
	defer span.End()

	fail := func(status int, err error) (*searchResponse, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &CollectionError{Query: query, Offset: offset, StatusCode: status, Err: err}
	}

	params := map[string]string{
		"location": query,
		"limit":    strconv.Itoa(PageSize),
		"offset":   strconv.Itoa(offset),
	}
	if c.opts.Categories != "" {
		params["categories"] = c.opts.Categories
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(searchPath)
	if err != nil {
		return fail(0, err)
	}
	if res.IsError() {
		return fail(res.StatusCode(), fmt.Errorf("search request rejected: %s", truncate(res.String(), 200)))
	}

	var page searchResponse
	if err := json.Unmarshal(res.Body(), &page); err != nil {
		return fail(res.StatusCode(), fmt.Errorf("decode search response: %w", err))
	}
	return &page, nil
}

func businessKey(b *models.RawBusiness) string {
	if b.ID != "" {
		return b.ID
	}
	return b.URL
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
