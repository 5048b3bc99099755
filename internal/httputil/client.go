package httputil

import (
	"net/http"
	"time"
)

const (
	// DefaultTimeout allows for full period-of-record downloads, which run
	// to several megabytes.
	DefaultTimeout = 2 * time.Minute
	UserAgent      = "flowstats/1.0 (+https://github.com/lox/flowstats)"
)

// userAgentTransport identifies the client to data services that throttle
// anonymous traffic.
type userAgentTransport struct {
	base http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", UserAgent)
	}
	return t.base.RoundTrip(req)
}

// NewClient returns an HTTP client with the standard timeout and user agent.
func NewClient() *http.Client {
	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: userAgentTransport{base: http.DefaultTransport},
	}
}
