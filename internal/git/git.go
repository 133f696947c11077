// Package git provides the repository view used for branch and repository
// placeholders and the "View Repository" button.
//
// Repositories are discovered with go-git from the editor's workspace
// folders and the active document, so no git binary is required.
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"tools.zach/dev/editorcord/internal/editor"
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Remote is a configured remote and the URL it fetches from.
type Remote struct {
	Name     string
	FetchURL string
}

// Repository is one repository open in the editor.
type Repository struct {
	// Root is the worktree root directory.
	Root string
	// Selected marks the repository the user is working in.
	Selected bool
	// Head is the checked-out branch name; empty when HEAD is detached or unborn.
	Head string
	// Remotes lists configured remotes, "origin" first.
	Remotes []Remote
}

// Integration lists the repositories relevant to an editor state.
type Integration interface {
	Repositories(ctx context.Context, s *editor.State) ([]Repository, error)
}

// Selected returns the selected repository from repos.
func Selected(repos []Repository) (Repository, bool) {
	for _, r := range repos {
		if r.Selected {
			return r, true
		}
	}
	return Repository{}, false
}

// FetchURL returns the fetch URL of the repository's first remote.
func (r Repository) FetchURL() string {
	if len(r.Remotes) == 0 {
		return ""
	}
	return r.Remotes[0].FetchURL
}

// ///////////////////////////////////////////////
// Local Integration
// ///////////////////////////////////////////////

// Local discovers repositories on the local filesystem.
type Local struct{}

// Repositories opens the repository enclosing each workspace folder and the
// active document. The one containing the document is selected; without a
// document the first discovered repository is.
func (Local) Repositories(ctx context.Context, s *editor.State) ([]Repository, error) {
	if s == nil {
		return nil, nil
	}

	var candidates []string
	var docDir string
	if s.Document != nil && s.Document.FileName != "" {
		docDir = filepath.Dir(s.Document.FileName)
		candidates = append(candidates, docDir)
	}
	for _, f := range s.Workspace.Folders {
		candidates = append(candidates, f.Path)
	}

	var repos []Repository
	seen := make(map[string]bool)
	for _, dir := range candidates {
		if err := ctx.Err(); err != nil {
			return repos, err
		}
		if dir == "" {
			continue
		}
		repo, err := Open(dir)
		if err != nil {
			if !errors.Is(err, gogit.ErrRepositoryNotExists) {
				slog.Debug("git: open failed", "path", dir, "error", err)
			}
			continue
		}
		if seen[repo.Root] {
			continue
		}
		seen[repo.Root] = true
		repos = append(repos, repo)
	}

	selectRepository(repos, docDir)
	return repos, nil
}

// selectRepository marks the deepest repository containing docDir, or the
// first repository when there is no document.
func selectRepository(repos []Repository, docDir string) {
	if len(repos) == 0 {
		return
	}
	if docDir == "" {
		repos[0].Selected = true
		return
	}
	best := -1
	for i, r := range repos {
		ws := editor.Workspace{Folders: []editor.Folder{{Path: r.Root}}}
		if _, ok := ws.FolderFor(docDir); !ok {
			continue
		}
		if best < 0 || len(r.Root) > len(repos[best].Root) {
			best = i
		}
	}
	if best >= 0 {
		repos[best].Selected = true
	}
}

// Open reads the repository enclosing path.
func Open(path string) (Repository, error) {
	r, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return Repository{}, err
	}

	repo := Repository{Root: path}
	if wt, err := r.Worktree(); err == nil {
		repo.Root = wt.Filesystem.Root()
	}

	head, err := r.Head()
	switch {
	case err == nil:
		if head.Name().IsBranch() {
			repo.Head = head.Name().Short()
		}
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		// Unborn branch: no commits yet.
	default:
		return Repository{}, fmt.Errorf("read HEAD: %w", err)
	}

	remotes, err := r.Remotes()
	if err != nil {
		return Repository{}, fmt.Errorf("list remotes: %w", err)
	}
	for _, rm := range remotes {
		cfg := rm.Config()
		if len(cfg.URLs) == 0 {
			continue
		}
		repo.Remotes = append(repo.Remotes, Remote{Name: cfg.Name, FetchURL: cfg.URLs[0]})
	}
	sortRemotes(repo.Remotes)
	return repo, nil
}

// sortRemotes orders remotes by name with "origin" first.
func sortRemotes(rs []Remote) {
	sort.SliceStable(rs, func(i, j int) bool {
		if (rs[i].Name == "origin") != (rs[j].Name == "origin") {
			return rs[i].Name == "origin"
		}
		return rs[i].Name < rs[j].Name
	})
}

// ///////////////////////////////////////////////
// Remote URL Helpers
// ///////////////////////////////////////////////

// credentialsRe matches the user[:password]@ part of an https URL.
var credentialsRe = regexp.MustCompile(`^(https?://)[^@/]*@`)

// scpLikeRe matches scp-style remotes such as git@github.com:owner/repo.git.
var scpLikeRe = regexp.MustCompile(`^[\w.-]+@([^:/]+):(.+)$`)

// WebURL converts a fetch URL into a browsable https URL. SSH and scp-style
// remotes are rewritten to https, credentials and the ".git" suffix are
// removed. Local paths yield "".
func WebURL(fetchURL string) string {
	u := strings.TrimSpace(fetchURL)
	switch {
	case u == "":
		return ""
	case strings.HasPrefix(u, "ssh://"):
		u = strings.TrimPrefix(u, "ssh://")
		if i := strings.Index(u, "@"); i >= 0 {
			u = u[i+1:]
		}
		host, path, _ := strings.Cut(u, "/")
		// Drop an explicit port: ssh://git@host:22/owner/repo.
		host, _, _ = strings.Cut(host, ":")
		u = "https://" + host + "/" + path
	case scpLikeRe.MatchString(u):
		m := scpLikeRe.FindStringSubmatch(u)
		u = "https://" + m[1] + "/" + m[2]
	case strings.HasPrefix(u, "http://"), strings.HasPrefix(u, "https://"):
		u = credentialsRe.ReplaceAllString(u, "$1")
	default:
		return ""
	}
	u = strings.TrimSuffix(u, "/")
	return strings.TrimSuffix(u, ".git")
}

// RepoName returns the repository name from a fetch URL: the last path
// segment without its ".git" suffix.
func RepoName(fetchURL string) string {
	u := strings.TrimSuffix(strings.TrimSpace(fetchURL), "/")
	if u == "" {
		return ""
	}
	if i := strings.LastIndexAny(u, "/:"); i >= 0 {
		u = u[i+1:]
	}
	return strings.TrimSuffix(u, ".git")
}
