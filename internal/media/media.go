// Package media fetches provider-hosted message attachments so clients
// can download them through us instead of hitting provider CDN URLs
// directly.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

var (
	ErrInvalidURL  = errors.New("invalid media url")
	ErrUnavailable = errors.New("media is not available")
	ErrTooLarge    = errors.New("media exceeds the download size limit")
)

// MaxDownloadBytes caps a single attachment download.
const MaxDownloadBytes int64 = 64 * 1024 * 1024

// Asset is one fetched attachment, streamed from the provider. The
// caller owns Body and must close it.
type Asset struct {
	Body        io.ReadCloser
	ContentType string
	Filename    string
	Size        int64
}

// Fetcher downloads attachments with a bounded timeout.
type Fetcher struct {
	http   *http.Client
	logger *slog.Logger
}

func NewFetcher(log *slog.Logger, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Fetcher{
		http:   &http.Client{Timeout: timeout},
		logger: log.With(slog.String("service", "media")),
	}
}

// Fetch streams the attachment at rawURL. The filename falls back to a
// derivation from the URL path or the response MIME type.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, preferredName string) (Asset, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Asset{}, ErrInvalidURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return Asset{}, err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		f.logger.Warn("media fetch rejected",
			slog.String("url", parsed.String()), slog.Int("status", resp.StatusCode))
		return Asset{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.ContentLength > MaxDownloadBytes {
		resp.Body.Close()
		return Asset{}, ErrTooLarge
	}

	contentType := resp.Header.Get("Content-Type")
	return Asset{
		Body:        newLimitedCloser(resp.Body, MaxDownloadBytes),
		ContentType: contentType,
		Filename:    deriveFilename(preferredName, parsed.Path, contentType),
		Size:        resp.ContentLength,
	}, nil
}

// deriveFilename picks, in order: the caller's preference, the URL path
// basename, or a MIME-derived fallback.
func deriveFilename(preferred, urlPath, contentType string) string {
	if name := strings.TrimSpace(preferred); name != "" {
		return name
	}
	if base := path.Base(urlPath); base != "" && base != "." && base != "/" {
		return base
	}
	ext := ".bin"
	if contentType != "" {
		if i := strings.IndexByte(contentType, ';'); i >= 0 {
			contentType = contentType[:i]
		}
		if exts, err := mime.ExtensionsByType(strings.TrimSpace(contentType)); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return "attachment" + ext
}

// ReadAllWithLimit reads r fully, failing with ErrTooLarge when the
// source exceeds max bytes.
func ReadAllWithLimit(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, ErrTooLarge
	}
	return data, nil
}

// limitedCloser streams at most max bytes, failing with ErrTooLarge if
// the source keeps going past the cap.
type limitedCloser struct {
	r   io.Reader
	c   io.Closer
	n   int64
	max int64
}

func newLimitedCloser(rc io.ReadCloser, max int64) io.ReadCloser {
	return &limitedCloser{r: io.LimitReader(rc, max+1), c: rc, max: max}
}

func (l *limitedCloser) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.n > l.max {
		return n, ErrTooLarge
	}
	return n, err
}

func (l *limitedCloser) Close() error { return l.c.Close() }
