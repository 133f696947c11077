// Package migrate upgrades versioned on-disk documents (config.toml and the
// editor state files) one schema version at a time.
package migrate

import (
	"fmt"
	"log/slog"
	"sort"
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Migration upgrades a document from the previous version to Version.
type Migration struct {
	// Version is the schema version this migration produces.
	Version int
	// Description is a short human-readable label for log output.
	Description string
	// Upgrade transforms the raw document.
	Upgrade func(data []byte) ([]byte, error)
}

// Registry holds the current version and migrations for one document kind.
// Each kind versions independently.
type Registry struct {
	// Name labels log lines, e.g. "config".
	Name string
	// CurrentVersion is the version documents are upgraded to.
	CurrentVersion int
	// Migrations are the registered upgrades in any order.
	Migrations []Migration
}

// Config is the registry for config.toml.
var Config = &Registry{Name: "config", CurrentVersion: 1}

// State is the registry for state.<editor>.json files.
var State = &Registry{Name: "editor state", CurrentVersion: 1}

// ///////////////////////////////////////////////
// Registry
// ///////////////////////////////////////////////

// Register adds m. It panics when a migration for the same version exists.
func (r *Registry) Register(m Migration) {
	for _, existing := range r.Migrations {
		if existing.Version == m.Version {
			panic(fmt.Sprintf("migrate: duplicate %s migration version %d (description: %q)", r.Name, m.Version, m.Description))
		}
	}
	r.Migrations = append(r.Migrations, m)
}

// NeedsMigration reports whether a document at fileVersion should be
// rewritten: its version differs from the current one, a migration above
// it exists, or force is set and any migration is registered.
func (r *Registry) NeedsMigration(fileVersion int, force bool) bool {
	if fileVersion != r.CurrentVersion {
		return true
	}
	if force && len(r.Migrations) > 0 {
		return true
	}
	for _, m := range r.Migrations {
		if fileVersion < m.Version {
			return true
		}
	}
	return false
}

// Run applies, in version order, every migration newer than fromVersion.
// It returns the transformed data and the version reached; on failure the
// version is the last one successfully applied.
func (r *Registry) Run(data []byte, fromVersion int) ([]byte, int, error) {
	sorted := make([]Migration, len(r.Migrations))
	copy(sorted, r.Migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	version := fromVersion
	for _, m := range sorted {
		if version >= m.Version {
			continue
		}
		slog.Info("applying migration", "target", r.Name, "version", m.Version, "description", m.Description)
		out, err := m.Upgrade(data)
		if err != nil {
			return nil, version, fmt.Errorf("%s migration to v%d failed: %w", r.Name, m.Version, err)
		}
		data, version = out, m.Version
	}
	return data, version, nil
}
