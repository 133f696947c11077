package icons

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"tools.zach/dev/editorcord/internal/atomicfile"
	"tools.zach/dev/editorcord/internal/paths"
	"tools.zach/dev/editorcord/internal/remote"
)

// maxResponseBytes caps a remote icon table download.
const maxResponseBytes = 1 << 20

// Source kinds.
const (
	SourceEmbedded = "embedded"
	SourceURL      = "url"
	SourceFile     = "file"
)

// Source describes where the icon table is loaded from.
type Source struct {
	Kind string // "embedded", "url", "file"
	URL  string // overrides the project's raw data URL
	File string
}

var (
	httpClient     *retryablehttp.Client
	httpClientOnce sync.Once
)

func getHTTPClient() *retryablehttp.Client {
	httpClientOnce.Do(func() {
		httpClient = retryablehttp.NewClient()
		httpClient.RetryMax = 2
		httpClient.HTTPClient.Timeout = 10 * time.Second
		httpClient.Logger = nil
	})
	return httpClient
}

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// Fetch loads the icon table described by src: primary -> cache -> embedded.
// The returned table is never nil. The error is non-nil when a fallback was
// used, and describes why the primary source failed.
func Fetch(ctx context.Context, src Source, cachePath string) (*Table, error) {
	var primary func() ([]byte, error)
	switch src.Kind {
	case SourceEmbedded, "":
		return Embedded(), nil
	case SourceFile:
		primary = func() ([]byte, error) { return readFile(src.File) }
	case SourceURL:
		url := src.URL
		if url == "" {
			url = remote.RawURL(paths.LanguagesDataPath)
		}
		if url == "" {
			slog.Debug("skipping remote icon fetch: no remote URL configured")
			return fallback(cachePath, fmt.Errorf("no icon table URL configured"))
		}
		primary = func() ([]byte, error) { return fetchURL(ctx, url) }
	default:
		return Embedded(), fmt.Errorf("unknown icon source %q", src.Kind)
	}

	body, err := primary()
	if err == nil {
		t, perr := Parse(body)
		if perr == nil {
			if cacheErr := atomicfile.Write(cachePath, body, 0o644); cacheErr != nil {
				slog.Warn("failed to write icon cache", "error", cacheErr)
			}
			return t, nil
		}
		err = perr
	}
	slog.Warn("failed to load icon table, trying cache", "source", src.Kind, "error", err)
	return fallback(cachePath, err)
}

// fallback tries the cache, then the embedded table.
func fallback(cachePath string, primaryErr error) (*Table, error) {
	body, err := os.ReadFile(cachePath)
	if err == nil {
		t, perr := Parse(body)
		if perr == nil {
			return t, fmt.Errorf("using cached icon table: %w", primaryErr)
		}
		err = perr
	}
	slog.Debug("no usable icon cache", "path", cachePath, "error", err)
	return Embedded(), fmt.Errorf("using embedded icon table: %w", primaryErr)
}

func readFile(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("icons.file is not set")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read icon file %s: %w", path, err)
	}
	return b, nil
}

func fetchURL(ctx context.Context, url string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := getHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", url, maxResponseBytes)
	}
	return body, nil
}

// ///////////////////////////////////////////////
// Store
// ///////////////////////////////////////////////

// Store holds the active table. It is safe for concurrent use; Refresh
// swaps the table without blocking readers.
type Store struct {
	cur atomic.Pointer[Table]
}

// NewStore returns a store holding t, or the embedded table when t is nil.
func NewStore(t *Table) *Store {
	if t == nil {
		t = Embedded()
	}
	s := &Store{}
	s.cur.Store(t)
	return s
}

// Table returns the active table.
func (s *Store) Table() *Table {
	return s.cur.Load()
}

// Resolve resolves against the active table.
func (s *Store) Resolve(fileName, languageID string) string {
	return s.cur.Load().Resolve(fileName, languageID)
}

// Refresh fetches src and swaps in the result. On a fallback the previously
// active table is kept unless it is the embedded one.
func (s *Store) Refresh(ctx context.Context, src Source, cachePath string) error {
	t, err := Fetch(ctx, src, cachePath)
	if err != nil && t == Embedded() && s.cur.Load() != Embedded() {
		return err
	}
	s.cur.Store(t)
	return err
}
