package yelp

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"

	"yelp-dataset/models"
	"yelp-dataset/utils"
)

// Schema locates the enrichment signals in a business page. Selectors are
// tied to the page's generated class names and change with the markup.
// The weekend row (WeekendIndex) is only trusted once at least
// MinHoursEntries hours rows are rendered.
type Schema struct {
	Version         string
	HoursSelector   string
	AmenitySelector string
	MinHoursEntries int
	WeekendIndex    int
}

// SchemaV1 matches the business page markup the dataset was first built
// against.
var SchemaV1 = Schema{
	Version:         "v1",
	HoursSelector:   "p.no-wrap__373c0__2vNX7.css-1h1j0y3",
	AmenitySelector: "span.css-1h1j0y3",
	MinHoursEntries: 7,
	WeekendIndex:    5,
}

// Period is the half of the day a business opens in.
type Period int

const (
	PeriodUnknown Period = iota
	PeriodAM
	PeriodPM
)

func (p Period) String() string {
	switch p {
	case PeriodAM:
		return "AM"
	case PeriodPM:
		return "PM"
	default:
		return "unknown"
	}
}

// ParseWeekendOpeningPeriod reads the opening period from an hours row such
// as "11:00 AM - 9:00 PM". Only the first "M" is looked at: the character
// before it decides between AM and PM.
func ParseWeekendOpeningPeriod(text string) Period {
	i := strings.IndexByte(text, 'M')
	if i <= 0 {
		return PeriodUnknown
	}
	switch text[i-1] {
	case 'A':
		return PeriodAM
	case 'P':
		return PeriodPM
	default:
		return PeriodUnknown
	}
}

// Enricher scrapes business pages for weekend opening period and amenities.
type Enricher struct {
	schema  Schema
	fetcher PageFetcher
	pool    *utils.WorkerPool
	logger  *utils.Logger
}

// NewEnricher creates an Enricher. pool bounds how many pages are fetched at
// once; a pool of one worker gives a fully sequential pass.
func NewEnricher(schema Schema, fetcher PageFetcher, pool *utils.WorkerPool, logger *utils.Logger) *Enricher {
	return &Enricher{
		schema:  schema,
		fetcher: fetcher,
		pool:    pool,
		logger:  logger,
	}
}

// Enrich extracts the signals from a parsed page. A page where neither
// selector matches anything is treated as a schema mismatch and reported
// as unavailable.
func (e *Enricher) Enrich(doc *goquery.Document) models.Enrichment {
	if doc == nil {
		return models.Unavailable("no document")
	}

	hours := doc.Find(e.schema.HoursSelector)
	badges := doc.Find(e.schema.AmenitySelector)
	if hours.Length() == 0 && badges.Length() == 0 {
		return models.Unavailable("page does not match schema " + e.schema.Version)
	}

	opensInAM := false
	if hours.Length() >= e.schema.MinHoursEntries {
		weekend := hours.Eq(e.schema.WeekendIndex).Text()
		opensInAM = ParseWeekendOpeningPeriod(weekend) == PeriodAM
	}

	amenities := make([]string, 0, badges.Length())
	badges.Each(func(_ int, s *goquery.Selection) {
		amenities = append(amenities, s.Text())
	})

	return models.Available(opensInAM, amenities)
}

// EnrichAll fetches and enriches the page of every business. Element i of
// the result belongs to businesses[i]. Failures never abort the pass: the
// affected business gets an unavailable enrichment.
func (e *Enricher) EnrichAll(ctx context.Context, businesses []*models.RawBusiness) []models.Enrichment {
	e.logger.Info("[enricher] Enriching %d businesses (schema %s)", len(businesses), e.schema.Version)

	results := make([]models.Enrichment, len(businesses))
	for i := range results {
		results[i] = models.Unavailable("not attempted")
	}

	var done int64
	for i, b := range businesses {
		i, b := i, b
		if b.URL == "" {
			results[i] = models.Unavailable("missing page url")
			continue
		}

		e.pool.Submit(ctx, func(ctx context.Context) {
			doc, err := e.fetcher.Fetch(ctx, b.URL)
			if err != nil {
				e.logger.Warn("[enricher] Page failed for %s: %v", b.Name, err)
				results[i] = models.Unavailable(err.Error())
				return
			}

			results[i] = e.Enrich(doc)
			if results[i].Status != models.EnrichmentAvailable {
				e.logger.Warn("[enricher] %s: %s", b.Name, results[i].Reason)
			}

			n := atomic.AddInt64(&done, 1)
			e.logger.Debug("[enricher] (%d/%d) %s: opens_in_am=%t amenities=%d",
				n, len(businesses), b.Name, results[i].OpensInAM, len(results[i].Amenities))
		})
	}
	e.pool.Wait()

	available := countAvailable(results)
	e.logger.Info("[enricher] Enrichment complete: %d available, %d unavailable",
		available, len(results)-available)
	return results
}

func countAvailable(results []models.Enrichment) int {
	n := 0
	for _, r := range results {
		if r.Status == models.EnrichmentAvailable {
			n++
		}
	}
	return n
}
