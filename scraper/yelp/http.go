package yelp

import (
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"

	"yelp-dataset/utils"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var tracer = otel.Tracer("scraper/yelp")

// newHTTPClient builds the resty client shared by the search collector and
// the page fetcher. Every response is logged at debug level.
func newHTTPClient(timeout time.Duration, logger *utils.Logger) *resty.Client {
	client := resty.New()
	client.SetHeader("user-agent", userAgent)
	client.SetTimeout(timeout)

	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		logger.Debug("[http] %s %s -> %d (%v)",
			res.Request.Method, res.Request.URL, res.StatusCode(), res.Time())
		return nil
	})
	client.OnError(func(req *resty.Request, err error) {
		logger.Debug("[http] %s %s failed: %v", req.Method, req.URL, err)
	})

	return client
}
