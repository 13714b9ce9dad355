// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package source downloads raw guide payloads from http(s) URLs or local files.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	xglog "github.com/ManuGH/tvguide/internal/log"
	"github.com/ManuGH/tvguide/internal/metrics"
)

const (
	DefaultAttempts = 3
	DefaultDelay    = 500 * time.Millisecond
	DefaultTimeout  = 5 * time.Minute
	// DefaultMaxBytes caps a single payload.
	DefaultMaxBytes = 512 << 20
)

var (
	ErrNoSource = errors.New("source: no guide source configured")
	ErrTooLarge = errors.New("source: payload exceeds size limit")
)

// StatusError is returned for non-200 HTTP responses.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("source: GET %s: unexpected status %d", e.URL, e.Code)
}

// Fetcher downloads guide payloads. The zero value uses the defaults above.
type Fetcher struct {
	Client    *http.Client
	Attempts  uint
	Delay     time.Duration
	MaxBytes  int64
	UserAgent string
}

// Fetch reads the payload named by src: an http(s) URL, a file:// URL or a
// plain filesystem path. The bytes are returned as received; decompression is
// left to the decoder.
func Fetch(ctx context.Context, src string) ([]byte, error) {
	return (&Fetcher{}).Fetch(ctx, src)
}

// Fetch reads the payload named by src.
func (f *Fetcher) Fetch(ctx context.Context, src string) ([]byte, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, ErrNoSource
	}

	u, err := url.Parse(src)
	if err == nil {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return f.fetchHTTP(ctx, strings.ToLower(u.Scheme), src)
		case "file":
			path := u.Path
			if path == "" {
				path = u.Opaque
			}
			return f.readFile(path)
		}
	}
	return f.readFile(src)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, scheme, src string) ([]byte, error) {
	logger := xglog.WithComponentFromContext(ctx, "source")

	body, err := retry.DoWithData(
		func() ([]byte, error) { return f.get(ctx, src) },
		retry.Context(ctx),
		retry.Attempts(f.attempts()),
		retry.Delay(f.delay()),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			metrics.RecordSourceFetch(scheme, "retry")
			logger.Warn().Err(err).
				Str("event", "source.retry").
				Str(xglog.FieldURL, redact(src)).
				Uint("attempt", n+1).
				Msg("guide download failed, retrying")
		}),
	)
	if err != nil {
		metrics.RecordSourceFetch(scheme, "error")
		return nil, err
	}
	metrics.RecordSourceFetch(scheme, "success")
	logger.Info().
		Str("event", "source.downloaded").
		Str(xglog.FieldURL, redact(src)).
		Int("bytes", len(body)).
		Msg("guide downloaded")
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("build request: %w", err))
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	resp, err := f.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{Code: resp.StatusCode, URL: redact(src)}
	}
	return f.readLimited(resp.Body)
}

func (f *Fetcher) readFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		metrics.RecordSourceFetch("file", "error")
		return nil, fmt.Errorf("open guide file: %w", err)
	}
	defer func() { _ = file.Close() }()

	data, err := f.readLimited(file)
	if err != nil {
		metrics.RecordSourceFetch("file", "error")
		return nil, err
	}
	metrics.RecordSourceFetch("file", "success")
	return data, nil
}

func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	limit := f.maxBytes()
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, limit)
	}
	metrics.AddSourceBytes(int64(len(data)))
	return data, nil
}

// retryable reports whether a failed attempt is worth repeating: transport
// errors, 5xx, 408 and 429 are; other statuses and size violations are not.
func retryable(err error) bool {
	if errors.Is(err, ErrTooLarge) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests || se.Code == http.StatusRequestTimeout
	}
	return true
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return &http.Client{Timeout: DefaultTimeout}
}

func (f *Fetcher) attempts() uint {
	if f.Attempts == 0 {
		return DefaultAttempts
	}
	return f.Attempts
}

func (f *Fetcher) delay() time.Duration {
	if f.Delay <= 0 {
		return DefaultDelay
	}
	return f.Delay
}

func (f *Fetcher) maxBytes() int64 {
	if f.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return f.MaxBytes
}

// redact drops credentials and query strings from a URL before logging.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	return u.String()
}
