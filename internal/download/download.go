package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"media-forge/internal/apperrors"
	"media-forge/internal/logging"
	"media-forge/internal/mediatype"
	"media-forge/internal/metrics"
	"media-forge/internal/tempfile"
)

// DefaultTimeout bounds a single download.
const DefaultTimeout = 2 * time.Minute

// Fetcher downloads request inputs into session-owned files.
type Fetcher struct {
	client  *http.Client
	maxSize int64
}

// New creates a Fetcher. maxSize <= 0 disables the size check; a nil
// client gets DefaultTimeout.
func New(client *http.Client, maxSize int64) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Fetcher{client: client, maxSize: maxSize}
}

// MaxSize returns the largest accepted download in bytes.
func (f *Fetcher) MaxSize() int64 {
	return f.maxSize
}

// Fetch downloads rawURL into a file reserved in the session carried by
// ctx. The extension comes from the URL path, or the Content-Type when the
// path has none the pipeline knows.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*tempfile.File, error) {
	out, err := f.fetch(ctx, rawURL)
	switch {
	case err == nil:
		metrics.DownloadsTotal.WithLabelValues("success").Inc()
	case errors.Is(err, errTooLarge):
		metrics.DownloadsTotal.WithLabelValues("too_large").Inc()
	default:
		metrics.DownloadsTotal.WithLabelValues("error").Inc()
	}
	return out, err
}

var errTooLarge = errors.New("download exceeds size limit")

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (*tempfile.File, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperrors.Userf("%q is not a valid http(s) URL.", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.WrapUser(err, "Failed to download %s.", u.Redacted())
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, apperrors.Userf("Failed to download %s: server returned %s.", u.Redacted(), resp.Status)
	}
	if f.maxSize > 0 && resp.ContentLength > f.maxSize {
		return nil, f.tooLarge(resp.ContentLength)
	}

	out, err := tempfile.Reserve(ctx, extension(u, resp.Header.Get("Content-Type")))
	if err != nil {
		return nil, err
	}

	n, err := f.save(out.Path, resp.Body)
	if err != nil {
		return nil, err
	}
	metrics.DownloadBytes.Add(float64(n))
	logging.Debug("Downloaded %s (%s) in %v", u.Redacted(), humanize.Bytes(uint64(n)), time.Since(start))
	return out, nil
}

func (f *Fetcher) save(dst string, body io.Reader) (int64, error) {
	file, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dst, err)
	}

	r := body
	if f.maxSize > 0 {
		r = io.LimitReader(body, f.maxSize+1)
	}
	n, copyErr := io.Copy(file, r)
	if err := file.Close(); err != nil && copyErr == nil {
		copyErr = err
	}
	if copyErr != nil {
		return n, fmt.Errorf("write %s: %w", dst, copyErr)
	}
	if f.maxSize > 0 && n > f.maxSize {
		return n, f.tooLarge(n)
	}
	return n, nil
}

func (f *Fetcher) tooLarge(size int64) error {
	return apperrors.WrapUser(errTooLarge, "File is too large to download (%s, the limit is %s).",
		humanize.Bytes(uint64(size)), humanize.Bytes(uint64(f.maxSize)))
}

// extension picks the file extension for a download.
func extension(u *url.URL, contentType string) string {
	ext := strings.ToLower(path.Ext(u.Path))
	if len(ext) > 1 && mediatype.KnownExtension(ext) {
		return ext[1:]
	}
	if ext := mediatype.ExtensionFor(contentType); ext != "" {
		return ext
	}
	if len(ext) > 1 {
		return ext[1:]
	}
	return "bin"
}
