// Package update compares the running build against the latest published
// release.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"tools.zach/dev/editorcord/internal/paths"
	"tools.zach/dev/editorcord/internal/remote"
)

// maxManifestSize caps how much of the manifest response is read.
const maxManifestSize = 64 << 10

var (
	manifestURL     string
	manifestURLOnce sync.Once

	httpClient     *retryablehttp.Client
	httpClientOnce sync.Once
)

func getManifestURL() string {
	manifestURLOnce.Do(func() { manifestURL = remote.RawURL(paths.ReleaseManifest) })
	return manifestURL
}

func getHTTPClient() *retryablehttp.Client {
	httpClientOnce.Do(func() {
		httpClient = retryablehttp.NewClient()
		httpClient.RetryMax = 2
		httpClient.HTTPClient.Timeout = 5 * time.Second
		httpClient.Logger = nil
	})
	return httpClient
}

// ///////////////////////////////////////////////
// Check
// ///////////////////////////////////////////////

// Result is the outcome of a version check.
type Result struct {
	// Latest is the newest published version, empty when unknown.
	Latest string
	// Newer reports whether Latest supersedes the running version.
	Newer bool
	// Download is the release asset for this platform when Newer is set.
	Download string
}

// Check fetches the release manifest and logs when a newer version exists.
// Network and parse failures are logged at debug level and yield an empty
// Result; a version check never blocks the daemon.
func Check(ctx context.Context, current string) Result {
	if getManifestURL() == "" {
		slog.Debug("skipping version check: no remote URL configured")
		return Result{}
	}
	latest, err := fetchLatest(ctx)
	if err != nil {
		slog.Debug("version check failed", "error", err)
		return Result{}
	}

	res := Result{Latest: latest}
	cur, okCur := parseVersion(current)
	lat, okLat := parseVersion(latest)
	if !okCur || !okLat || !cur.less(lat) {
		return res
	}
	res.Newer = true
	res.Download = remote.ReleaseURL(assetName(runtime.GOOS, runtime.GOARCH))
	slog.Info("new version available", "current", current, "latest", latest, "download", res.Download)
	return res
}

// assetName is the release binary published for a platform.
func assetName(goos, goarch string) string {
	name := "editorcord-" + goos + "-" + goarch
	if goos == "windows" {
		name += ".exe"
	}
	return name
}

// fetchLatest returns the "." entry of the release manifest, which names the
// latest stable release.
func fetchLatest(ctx context.Context) (string, error) {
	url := getManifestURL()
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	resp, err := getHTTPClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	var manifest map[string]string
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxManifestSize)).Decode(&manifest); err != nil {
		return "", fmt.Errorf("parsing manifest: %w", err)
	}
	return manifest["."], nil
}

// ///////////////////////////////////////////////
// Versions
// ///////////////////////////////////////////////

// version is a parsed MAJOR.MINOR.PATCH with an optional pre-release tag.
// Build metadata after "+" is ignored.
type version struct {
	core [3]int
	pre  bool
}

// parseVersion accepts "1.2.3", "v1.2.3", "1.2.3-dev" and "1.2.3+meta".
func parseVersion(s string) (version, bool) {
	s = strings.TrimPrefix(s, "v")
	s, _, _ = strings.Cut(s, "+")
	core, pre, hasPre := strings.Cut(s, "-")

	fields := strings.Split(core, ".")
	if len(fields) != 3 {
		return version{}, false
	}
	var v version
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return version{}, false
		}
		v.core[i] = n
	}
	v.pre = hasPre && pre != ""
	return v, true
}

// less orders by numeric core, then places a pre-release before the release
// it precedes. Two pre-releases of the same core compare equal.
func (v version) less(o version) bool {
	for i := range v.core {
		if v.core[i] != o.core[i] {
			return v.core[i] < o.core[i]
		}
	}
	return v.pre && !o.pre
}
