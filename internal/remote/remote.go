// Package remote centralizes GitHub raw content URLs for the project.
//
// Owner and repo are determined lazily on first access. Values set at build
// time via ldflags take precedence; otherwise the package derives them from
// the origin remote of the repository enclosing the working directory.
package remote

import (
	"log/slog"
	"regexp"
	"sync"

	"tools.zach/dev/editorcord/internal/git"
)

// Set at build time via:
//
//	-X tools.zach/dev/editorcord/internal/remote.ldOwner=...
//	-X tools.zach/dev/editorcord/internal/remote.ldRepo=...
var (
	ldOwner string
	ldRepo  string
)

var (
	initOnce sync.Once
	owner    string
	repo     string
)

// githubRemoteRe extracts owner and repo from GitHub remote URLs.
// Matches both HTTPS (github.com/) and SSH (github.com:) formats.
var githubRemoteRe = regexp.MustCompile(`github\.com[:/]([^/]+)/([^/.]+)`)

// ensureInit lazily resolves owner and repo on first call.
func ensureInit() {
	initOnce.Do(func() {
		if ldOwner != "" && ldRepo != "" {
			owner = ldOwner
			repo = ldRepo
			return
		}
		owner, repo = detect(".")
	})
}

// detect reads the GitHub owner and repo from the origin remote of the
// repository enclosing dir. Returns empty strings when there is none.
func detect(dir string) (string, string) {
	r, err := git.Open(dir)
	if err != nil {
		slog.Debug("remote: ldflags not set and no local repository", "error", err)
		return "", ""
	}
	for _, rm := range r.Remotes {
		if rm.Name != "origin" {
			continue
		}
		return parseGitHub(rm.FetchURL)
	}
	slog.Debug("remote: repository has no origin remote", "root", r.Root)
	return "", ""
}

// parseGitHub splits a GitHub remote URL into owner and repo.
func parseGitHub(url string) (string, string) {
	m := githubRemoteRe.FindStringSubmatch(url)
	if len(m) != 3 {
		return "", ""
	}
	return m[1], m[2]
}

// Owner returns the GitHub repository owner.
func Owner() string {
	ensureInit()
	return owner
}

// Repo returns the GitHub repository name.
func Repo() string {
	ensureInit()
	return repo
}

// RawURL returns the raw GitHub URL for a file on the main branch.
// Returns empty string if owner/repo could not be determined.
func RawURL(path string) string {
	ensureInit()
	if owner == "" || repo == "" {
		return ""
	}
	return "https://raw.githubusercontent.com/" + owner + "/" + repo + "/main/" + path
}

// ReleaseURL returns the download URL of a release asset of the latest
// release. Returns empty string if owner/repo could not be determined.
func ReleaseURL(asset string) string {
	ensureInit()
	if owner == "" || repo == "" {
		return ""
	}
	return "https://github.com/" + owner + "/" + repo + "/releases/latest/download/" + asset
}
