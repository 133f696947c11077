package icons

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smallTable = `{
  "default_icon": "plain",
  "extensions": [
    {"match": "/^dockerfile/i", "image": "docker"},
    {"match": "_test.go", "image": "gotest"},
    {"match": ".go", "image": "go"}
  ],
  "languages": [
    {"language": "rust", "image": "rust"}
  ]
}`

// ///////////////////////////////////////////////
// Parse / Resolve
// ///////////////////////////////////////////////

func TestResolve(t *testing.T) {
	table, err := Parse([]byte(smallTable))
	require.NoError(t, err)

	tests := []struct {
		file string
		lang string
		want string
	}{
		{"/src/main.go", "go", "go"},
		{"/src/main_test.go", "go", "gotest"},
		{"/src/Dockerfile.dev", "dockerfile", "docker"},
		{"/src/DOCKERFILE", "", "docker"},
		{"/src/lib.rs", "rust", "rust"},
		{"/src/notes.txt", "plaintext", "plain"},
		{"", "rust", "rust"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, table.Resolve(tt.file, tt.lang), "Resolve(%q, %q)", tt.file, tt.lang)
	}
}

func TestResolve_NilTable(t *testing.T) {
	var table *Table
	assert.Equal(t, DefaultIcon, table.Resolve("a.go", "go"))
}

func TestParse_DefaultIcon(t *testing.T) {
	table, err := Parse([]byte(`{"languages": [{"language": "go", "image": "go"}]}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultIcon, table.DefaultIcon)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"no rules", `{"default_icon": "x"}`},
		{"missing image", `{"extensions": [{"match": ".go"}]}`},
		{"bad regex", `{"extensions": [{"match": "/([a/", "image": "x"}]}`},
		{"bad flag", `{"extensions": [{"match": "/a/q", "image": "x"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestEmbedded(t *testing.T) {
	table := Embedded()
	require.NotNil(t, table)
	assert.Equal(t, "text", table.DefaultIcon)
	assert.Equal(t, "typescript-def", table.Resolve("/x/index.d.ts", "typescript"))
	assert.Equal(t, "typescript", table.Resolve("/x/index.ts", "typescript"))
	assert.Equal(t, "react", table.Resolve("/x/App.tsx", "typescriptreact"))
	assert.Equal(t, "go", table.Resolve("/x/go.mod", "go.mod"))
	assert.Equal(t, "text", table.Resolve("/x/unknown.zzz", "zzz"))
}

// ///////////////////////////////////////////////
// Fetch
// ///////////////////////////////////////////////

func TestFetch_Embedded(t *testing.T) {
	table, err := Fetch(context.Background(), Source{Kind: SourceEmbedded}, filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, err)
	assert.Same(t, Embedded(), table)
}

func TestFetch_URLWritesCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(smallTable))
	}))
	defer server.Close()

	cache := filepath.Join(t.TempDir(), "cache.json")
	table, err := Fetch(context.Background(), Source{Kind: SourceURL, URL: server.URL}, cache)
	require.NoError(t, err)
	assert.Equal(t, "plain", table.DefaultIcon)

	b, err := os.ReadFile(cache)
	require.NoError(t, err)
	assert.JSONEq(t, smallTable, string(b))
}

func TestFetch_URLFailureUsesCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cache := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(cache, []byte(smallTable), 0o644))

	table, err := Fetch(context.Background(), Source{Kind: SourceURL, URL: server.URL}, cache)
	assert.ErrorContains(t, err, "cached")
	assert.Equal(t, "plain", table.DefaultIcon)
}

func TestFetch_FileFailureUsesEmbedded(t *testing.T) {
	dir := t.TempDir()
	table, err := Fetch(context.Background(), Source{Kind: SourceFile, File: filepath.Join(dir, "missing.json")}, filepath.Join(dir, "cache.json"))
	assert.ErrorContains(t, err, "embedded")
	assert.Same(t, Embedded(), table)
}

func TestFetch_FileInvalidUsesEmbedded(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "icons.json")
	require.NoError(t, os.WriteFile(file, []byte(`not json`), 0o644))

	table, err := Fetch(context.Background(), Source{Kind: SourceFile, File: file}, filepath.Join(dir, "cache.json"))
	assert.Error(t, err)
	assert.Same(t, Embedded(), table)
	assert.NoFileExists(t, filepath.Join(dir, "cache.json"))
}

func TestFetch_UnknownKind(t *testing.T) {
	table, err := Fetch(context.Background(), Source{Kind: "ftp"}, filepath.Join(t.TempDir(), "cache.json"))
	assert.Error(t, err)
	assert.Same(t, Embedded(), table)
}

// ///////////////////////////////////////////////
// Store
// ///////////////////////////////////////////////

func TestStore_Refresh(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "icons.json")
	require.NoError(t, os.WriteFile(file, []byte(smallTable), 0o644))

	s := NewStore(nil)
	assert.Equal(t, "go", s.Resolve("/a/main_test.go", "go"))

	require.NoError(t, s.Refresh(context.Background(), Source{Kind: SourceFile, File: file}, filepath.Join(dir, "cache.json")))
	assert.Equal(t, "gotest", s.Resolve("/a/main_test.go", "go"))
}

func TestStore_RefreshKeepsTableOnFailure(t *testing.T) {
	dir := t.TempDir()
	custom, err := Parse([]byte(smallTable))
	require.NoError(t, err)

	s := NewStore(custom)
	err = s.Refresh(context.Background(), Source{Kind: SourceFile, File: filepath.Join(dir, "gone.json")}, filepath.Join(dir, "cache.json"))
	assert.Error(t, err)
	assert.Same(t, custom, s.Table())
}
