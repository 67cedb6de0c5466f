package fetcher

import (
	"context"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrTooLarge is returned when a download exceeds the configured size cap.
var ErrTooLarge = eris.New("fetcher: document exceeds size limit")

// Fetcher downloads a remote document.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// Options configures the download fetchers.
type Options struct {
	Timeout           time.Duration
	MaxRetries        int
	MaxBytes          int64
	RequestsPerSecond float64
	UserAgent         string
}

// Document is a downloaded file held in memory.
type Document struct {
	Name string
	URL  string
	Data []byte
}

// Router dispatches downloads by URL scheme.
type Router struct {
	schemes  map[string]Fetcher
	maxBytes int64
}

// New creates a Router serving http, https and ftp URLs.
func New(opts Options) *Router {
	h := NewHTTPFetcher(opts)
	return &Router{
		schemes: map[string]Fetcher{
			"http":  h,
			"https": h,
			"ftp":   NewFTPFetcher(opts),
		},
		maxBytes: opts.MaxBytes,
	}
}

// IsRemote reports whether s is a URL the Router can download.
func IsRemote(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ftp":
		return true
	}
	return false
}

// Fetch downloads rawURL into memory. Bodies larger than the configured cap
// fail with ErrTooLarge.
func (r *Router) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse %s", rawURL)
	}
	f, ok := r.schemes[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}

	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	data, err := readLimited(body, r.maxBytes)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read %s", rawURL)
	}

	zap.L().Debug("fetcher: downloaded document",
		zap.String("url", rawURL),
		zap.Int("bytes", len(data)),
	)
	return &Document{Name: DocumentName(u), URL: rawURL, Data: data}, nil
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// DocumentName is the last path segment of u, or "download" when the path
// names no file.
func DocumentName(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "download"
	}
	return name
}
