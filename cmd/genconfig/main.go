// Package main implements the genconfig tool that writes config.default.toml
// from config.ExampleConfig().
//
// It is invoked by go generate via the directive in internal/config/config.go.
package main

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/editorcord/internal/config"
)

func main() {
	result, err := render(config.ExampleConfig(), config.ConfigDocs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal: %v\n", err)
		os.Exit(1)
	}

	// go generate runs from internal/config/; the root package embeds the file.
	outPath := "../../config.default.toml"
	if err := os.WriteFile(outPath, []byte(result), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Printf("wrote config.default.toml\n")
}

// render encodes cfg as TOML and annotates it with docs. Documented keys the
// encoder omitted are written as comments so every option is discoverable.
func render(cfg *config.Config, docs map[string]config.FieldDoc) (string, error) {
	var raw bytes.Buffer
	if err := toml.NewEncoder(&raw).Encode(cfg); err != nil {
		return "", err
	}

	out := []string{
		"# ///////////////////////////////////////////////",
		"# Editorcord Configuration",
		"# ///////////////////////////////////////////////",
		"",
	}

	var sectionStack []string
	emitted := map[string]bool{}

	for _, line := range strings.Split(raw.String(), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "[") && !strings.HasPrefix(trimmed, "[[") {
			injectOmitted(&out, docs, sectionStack, emitted)

			section := strings.Trim(trimmed, "[] ")
			sectionStack = parseSectionPath(section)
			emitted[section] = true

			out = append(out, "", fmt.Sprintf("# ///// %s /////", sectionName(section)), "")
			out = appendComment(out, docs[section].Comment)
			out = append(out, trimmed)
			continue
		}

		if !strings.Contains(trimmed, "=") || strings.HasPrefix(trimmed, "#") {
			out = append(out, trimmed)
			continue
		}

		key := strings.TrimSpace(strings.SplitN(trimmed, "=", 2)[0])
		fullPath := key
		if len(sectionStack) > 0 {
			fullPath = strings.Join(sectionStack, ".") + "." + key
		}
		emitted[fullPath] = true

		doc := docs[fullPath]
		out = appendComment(out, doc.Comment)
		out = append(out, trimmed)
		for _, alt := range doc.Alternatives {
			out = appendComment(out, alt)
		}
	}
	injectOmitted(&out, docs, sectionStack, emitted)
	injectOmittedTables(&out, docs, emitted)

	return strings.TrimRight(strings.Join(out, "\n"), "\n") + "\n", nil
}

// appendComment appends each line of comment as a TOML comment. Lines that
// are already comments pass through.
func appendComment(out []string, comment string) []string {
	if comment == "" {
		return out
	}
	for _, cl := range strings.Split(comment, "\n") {
		if strings.HasPrefix(cl, "#") {
			out = append(out, cl)
			continue
		}
		out = append(out, "# "+cl)
	}
	return out
}

// injectOmitted appends commented-out entries for documented keys of the
// current section that the encoder left out, usually omitempty fields at
// their zero value. Keys are sorted for deterministic output.
func injectOmitted(out *[]string, docs map[string]config.FieldDoc, sectionStack []string, emitted map[string]bool) {
	if len(sectionStack) == 0 {
		return
	}
	prefix := strings.Join(sectionStack, ".") + "."

	var omitted []string
	for path := range docs {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || strings.Contains(rest, ".") || emitted[path] {
			continue
		}
		omitted = append(omitted, path)
	}
	sort.Strings(omitted)

	for _, path := range omitted {
		doc := docs[path]
		*out = append(*out, "")
		*out = appendComment(*out, doc.Comment)
		for _, alt := range doc.Alternatives {
			*out = appendComment(*out, alt)
		}
		emitted[path] = true
	}
}

// injectOmittedTables appends a commented section for each documented
// top-level table the encoder left out, such as an empty editors map.
func injectOmittedTables(out *[]string, docs map[string]config.FieldDoc, emitted map[string]bool) {
	var tables []string
	for path, doc := range docs {
		if strings.Contains(path, ".") || emitted[path] || doc.Comment == "" {
			continue
		}
		// Plain root keys like version are always encoded; only tables remain.
		tables = append(tables, path)
	}
	sort.Strings(tables)

	for _, path := range tables {
		*out = append(*out, "", fmt.Sprintf("# ///// %s /////", sectionName(path)), "")
		*out = appendComment(*out, docs[path].Comment)
		emitted[path] = true
	}
}

// parseSectionPath splits a dotted TOML section header (e.g. "display.assets")
// into its component path segments (["display", "assets"]).
func parseSectionPath(section string) []string {
	return strings.Split(section, ".")
}

// sectionName returns the capitalized last segment of a section header.
// For example, "display.assets" yields "Assets".
func sectionName(section string) string {
	parts := strings.Split(section, ".")
	last := parts[len(parts)-1]
	if len(last) == 0 {
		return ""
	}
	return strings.ToUpper(last[:1]) + last[1:]
}
