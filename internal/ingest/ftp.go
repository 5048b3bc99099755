package ingest

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/lox/flowstats/internal/metrics"
)

// FTPSource retrieves a file from an FTP server, logging in anonymously
// unless the URL carries credentials.
type FTPSource struct {
	timeout time.Duration
}

func NewFTPSource() *FTPSource {
	return &FTPSource{timeout: 30 * time.Second}
}

func (f *FTPSource) Fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	start := time.Now()
	body, err := f.fetch(ctx, u)
	metrics.SourceFetchLatency.WithLabelValues("ftp").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SourceFetchesTotal.WithLabelValues("ftp", "error").Inc()
		return nil, err
	}
	metrics.SourceFetchesTotal.WithLabelValues("ftp", "ok").Inc()
	return body, nil
}

func (f *FTPSource) fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "21")
	}

	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(f.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return nil, fmt.Errorf("ftp retr: %w", err)
	}
	defer resp.Close()

	body, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
