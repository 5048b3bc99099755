package ingest

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Fetcher reads a station source by location: a local path or file:// URL,
// an http(s):// URL, or an ftp:// URL.
type Fetcher struct {
	http *HTTPSource
	ftp  *FTPSource
}

func NewFetcher() *Fetcher {
	return &Fetcher{http: NewHTTPSource(), ftp: NewFTPSource()}
}

func (f *Fetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain paths, including Windows drive letters.
		return readFile(source)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return readFile(u.Path)
	case "http", "https":
		return f.http.Fetch(ctx, source)
	case "ftp":
		return f.ftp.Fetch(ctx, u)
	default:
		return nil, fmt.Errorf("unsupported source scheme %q", u.Scheme)
	}
}

func readFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	return b, nil
}
