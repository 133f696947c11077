// Package main prints a SemVer-style build version string for use in ldflags.
// It reads the repository with go-git, so builds need no git binary.
//
// Output format depends on repository state:
//
//	No tags, clean:     0.0.0-dev+05ffee5
//	No tags, dirty:     0.0.0-dev+05ffee5.dirty
//	On tag v0.1.0:      0.1.0
//	Dirty tag:          0.1.0-dirty
//	3 past v0.1.0:      0.1.0-dev.3+g1234567
//	Same but dirty:     0.1.0-dev.3+g1234567.dirty
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"tools.zach/dev/editorcord/internal/paths"
)

func main() {
	fmt.Print(buildVersion("."))
}

// description is the go-git equivalent of git describe --tags --match v*.
type description struct {
	// Tag is the nearest v-prefixed tag reachable from HEAD, or empty.
	Tag string
	// Ahead is the number of commits between the tag and HEAD.
	Ahead int
	// Hash is the abbreviated HEAD commit hash.
	Hash string
	// Dirty reports uncommitted changes to tracked files.
	Dirty bool
}

// buildVersion returns the version for the repository at dir, using the
// release manifest's root version when no tag is reachable.
func buildVersion(dir string) string {
	base := baseVersion(dir)
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return base + "-dev"
	}
	d, err := describe(repo)
	if err != nil {
		return base + "-dev"
	}
	return formatVersion(d, base)
}

// formatVersion renders d as SemVer. The "v" tag prefix is dropped and
// commits past a tag become a dev prerelease with the hash as build metadata.
func formatVersion(d description, base string) string {
	if d.Tag == "" {
		v := fmt.Sprintf("%s-dev+%s", base, d.Hash)
		if d.Dirty {
			v += ".dirty"
		}
		return v
	}
	tag := strings.TrimPrefix(d.Tag, "v")
	if d.Ahead == 0 {
		if d.Dirty {
			return tag + "-dirty"
		}
		return tag
	}
	meta := "g" + d.Hash
	if d.Dirty {
		meta += ".dirty"
	}
	return fmt.Sprintf("%s-dev.%d+%s", tag, d.Ahead, meta)
}

// errStopWalk ends the history walk once a tagged commit is reached.
var errStopWalk = errors.New("stop")

// describe finds the nearest v-prefixed tag by walking HEAD's history.
func describe(repo *gogit.Repository) (description, error) {
	head, err := repo.Head()
	if err != nil {
		return description{}, fmt.Errorf("resolving HEAD: %w", err)
	}
	d := description{Hash: head.Hash().String()[:7]}

	tags, err := versionTags(repo)
	if err != nil {
		return description{}, err
	}

	if len(tags) > 0 {
		commits, err := repo.Log(&gogit.LogOptions{From: head.Hash()})
		if err != nil {
			return description{}, fmt.Errorf("reading history: %w", err)
		}
		ahead := 0
		err = commits.ForEach(func(c *object.Commit) error {
			if tag, ok := tags[c.Hash]; ok {
				d.Tag = tag
				d.Ahead = ahead
				return errStopWalk
			}
			ahead++
			return nil
		})
		if err != nil && !errors.Is(err, errStopWalk) {
			return description{}, fmt.Errorf("reading history: %w", err)
		}
	}

	d.Dirty = isDirty(repo)
	return d, nil
}

// versionTags maps commit hashes to the v-prefixed tags pointing at them,
// peeling annotated tags. When several tags share a commit the greatest name
// wins.
func versionTags(repo *gogit.Repository) (map[plumbing.Hash]string, error) {
	iter, err := repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	tags := map[plumbing.Hash]string{}
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		if !strings.HasPrefix(name, "v") {
			return nil
		}
		target := ref.Hash()
		if obj, err := repo.TagObject(target); err == nil {
			c, err := obj.Commit()
			if err != nil {
				return nil
			}
			target = c.Hash
		}
		if cur, ok := tags[target]; !ok || name > cur {
			tags[target] = name
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	return tags, nil
}

// isDirty reports whether tracked files differ from HEAD. Untracked files
// are ignored, matching git describe --dirty.
func isDirty(repo *gogit.Repository) bool {
	wt, err := repo.Worktree()
	if err != nil {
		return false
	}
	status, err := wt.Status()
	if err != nil {
		return false
	}
	for _, s := range status {
		if s.Worktree == gogit.Untracked && s.Staging == gogit.Untracked {
			continue
		}
		if s.Worktree != gogit.Unmodified || s.Staging != gogit.Unmodified {
			return true
		}
	}
	return false
}

// baseVersion reads the root version from the release manifest (key ".").
// It returns "0.0.0" if the file is missing, malformed, or lacks a root entry.
func baseVersion(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, paths.ReleaseManifest))
	if err != nil {
		return "0.0.0"
	}
	var manifest map[string]string
	if err := json.Unmarshal(data, &manifest); err != nil {
		return "0.0.0"
	}
	if v, ok := manifest["."]; ok && v != "" {
		return v
	}
	return "0.0.0"
}
