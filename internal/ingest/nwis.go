package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/flowstats/internal/httputil"
	"github.com/lox/flowstats/internal/metrics"
)

const nwisDailyValuesURL = "https://waterservices.usgs.gov/nwis/dv/"

// NWISURL returns the USGS daily-value service URL for mean daily discharge
// (parameter 00060, statistic 00003) at site, as tab-delimited RDB.
func NWISURL(site string, start, end time.Time) string {
	q := url.Values{}
	q.Set("format", "rdb")
	q.Set("sites", site)
	q.Set("parameterCd", "00060")
	q.Set("statCd", "00003")
	q.Set("siteStatus", "all")
	if !start.IsZero() {
		q.Set("startDT", start.Format("2006-01-02"))
	}
	if !end.IsZero() {
		q.Set("endDT", end.Format("2006-01-02"))
	}
	return nwisDailyValuesURL + "?" + q.Encode()
}

// HTTPSource downloads sources over HTTP, retrying rate limiting and server
// errors with exponential backoff.
type HTTPSource struct {
	client     *http.Client
	maxElapsed time.Duration
}

func NewHTTPSource() *HTTPSource {
	return &HTTPSource{
		client:     httputil.NewClient(),
		maxElapsed: 2 * time.Minute,
	}
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusForbidden, http.StatusUnauthorized,
		http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (h *HTTPSource) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	start := time.Now()
	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		resp, err := h.client.Do(req)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("fetch source: %w", err))
		}
		defer resp.Body.Close()

		if retryable(resp.StatusCode) {
			return fmt.Errorf("fetch source: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("fetch source: status %d: %s", resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = h.maxElapsed
	err := backoff.Retry(operation, backoff.WithContext(bo, ctx))
	metrics.SourceFetchLatency.WithLabelValues("http").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SourceFetchesTotal.WithLabelValues("http", "error").Inc()
		return nil, err
	}
	metrics.SourceFetchesTotal.WithLabelValues("http", "ok").Inc()
	return body, nil
}
