package yelp

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html/charset"

	"yelp-dataset/utils"
)

// PageFetcher retrieves and parses a business page.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (*goquery.Document, error)
}

// HTTPFetcher downloads pages with a plain GET request. Yelp serves the
// hours and amenity markup server-side, so this is enough for most pages.
type HTTPFetcher struct {
	http  *resty.Client
	retry *utils.RetryConfig
}

// NewHTTPFetcher creates a fetcher that retries failed downloads.
func NewHTTPFetcher(timeout time.Duration, retry *utils.RetryConfig, logger *utils.Logger) *HTTPFetcher {
	client := newHTTPClient(timeout, logger)
	client.SetHeader("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	return &HTTPFetcher{http: client, retry: retry}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	ctx, span := tracer.Start(ctx, "fetcher:Fetch", trace.WithAttributes(
		attribute.String("url", pageURL),
	))
	defer span.End()

	var doc *goquery.Document
	err := f.retry.Do(ctx, "fetch-page", func() error {
		res, err := f.http.R().
			SetContext(ctx).
			Get(pageURL)
		if err != nil {
			return err
		}
		if res.IsError() {
			err := fmt.Errorf("http status %d", res.StatusCode())
			if isPermanentStatus(res.StatusCode()) {
				return utils.Permanent(err)
			}
			return err
		}

		doc, err = parseHTML(res.Body(), res.Header().Get("Content-Type"))
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch page")
		return nil, err
	}
	return doc, nil
}

// isPermanentStatus reports whether a status means the page will not appear
// on a later attempt. 429 is a rate limit and worth retrying.
func isPermanentStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}

// parseHTML decodes body to UTF-8 according to its declared or sniffed
// charset and parses it.
func parseHTML(body []byte, contentType string) (*goquery.Document, error) {
	enc, _, _ := charset.DetermineEncoding(body, contentType)
	data, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		if !utf8.Valid(body) {
			return nil, fmt.Errorf("decode page: %w", err)
		}
		data = body
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}
