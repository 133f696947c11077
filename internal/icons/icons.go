// Package icons maps documents to Discord image keys.
//
// The mapping is a table of ordered extension rules followed by editor
// language-id rules. An extension rule is either a plain file name suffix
// (".go", "_test.go") or a JavaScript-style regular expression literal
// ("/^dockerfile/i") matched against the document's base name. The first
// matching rule wins; when nothing matches the table's default icon is used.
//
// Tables come from one of three sources: the copy embedded in the binary, a
// remote URL, or a local file. Remote and file tables fall back to the
// on-disk cache and then to the embedded table, so a Table is always
// available.
//
// # HOW TO ADD A LANGUAGE ICON
//
//  1. Add a rule to data/languages.json (and internal/icons/languages.json)
//  2. Upload the image under the same key in the Discord Developer Portal
//  3. Push to main; running daemons pick it up on the next scheduled refresh
package icons

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// DefaultIcon is used when a table does not name its own default.
const DefaultIcon = "text"

//go:embed languages.json
var embeddedJSON []byte

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// ExtensionRule matches a document file name.
type ExtensionRule struct {
	// Match is a file name suffix or a "/pattern/flags" regular expression.
	Match string `json:"match"`
	// Image is the Discord asset key.
	Image string `json:"image"`

	re *regexp.Regexp
}

// LanguageRule matches an editor language identifier.
type LanguageRule struct {
	Language string `json:"language"`
	Image    string `json:"image"`
}

// Table is a parsed icon table.
type Table struct {
	DefaultIcon string          `json:"default_icon"`
	Extensions  []ExtensionRule `json:"extensions"`
	Languages   []LanguageRule  `json:"languages"`
}

// Resolver resolves a document to an image key.
type Resolver interface {
	Resolve(fileName, languageID string) string
}

// ///////////////////////////////////////////////
// Parsing
// ///////////////////////////////////////////////

// regexLiteralRe splits "/pattern/flags" into pattern and flags.
var regexLiteralRe = regexp.MustCompile(`^/(.+)/([a-z]*)$`)

// Parse decodes and validates a JSON icon table, compiling regex rules.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing icon table: %w", err)
	}
	if len(t.Extensions) == 0 && len(t.Languages) == 0 {
		return nil, fmt.Errorf("icon table has no rules")
	}
	if t.DefaultIcon == "" {
		t.DefaultIcon = DefaultIcon
	}
	for i := range t.Extensions {
		r := &t.Extensions[i]
		if r.Match == "" || r.Image == "" {
			return nil, fmt.Errorf("extension rule %d: match and image are required", i)
		}
		re, err := compileLiteral(r.Match)
		if err != nil {
			return nil, fmt.Errorf("extension rule %q: %w", r.Match, err)
		}
		r.re = re
	}
	return &t, nil
}

// compileLiteral compiles a "/pattern/flags" rule. Plain suffix rules return
// a nil regexp. The i, m and s flags map onto Go's inline flags; g, u and y
// do not affect a single match and are ignored.
func compileLiteral(match string) (*regexp.Regexp, error) {
	m := regexLiteralRe.FindStringSubmatch(match)
	if m == nil {
		return nil, nil
	}
	var inline string
	for _, f := range m[2] {
		switch f {
		case 'i', 'm', 's':
			if !strings.ContainsRune(inline, f) {
				inline += string(f)
			}
		case 'g', 'u', 'y':
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", f)
		}
	}
	pattern := m[1]
	if inline != "" {
		pattern = "(?" + inline + ")" + pattern
	}
	return regexp.Compile(pattern)
}

// Embedded returns the table compiled into the binary.
var Embedded = sync.OnceValue(func() *Table {
	t, err := Parse(embeddedJSON)
	if err != nil {
		panic("icons: embedded table: " + err.Error())
	}
	return t
})

// ///////////////////////////////////////////////
// Resolution
// ///////////////////////////////////////////////

// Resolve returns the image key for a document. Extension rules are tried
// against the base name in order, then language rules; otherwise the
// default icon is returned.
func (t *Table) Resolve(fileName, languageID string) string {
	if t == nil {
		return DefaultIcon
	}
	base := filepath.Base(fileName)
	if fileName != "" {
		for _, r := range t.Extensions {
			if r.matches(base) {
				return r.Image
			}
		}
	}
	for _, l := range t.Languages {
		if l.Language == languageID {
			return l.Image
		}
	}
	return t.DefaultIcon
}

func (r ExtensionRule) matches(base string) bool {
	if r.re != nil {
		return r.re.MatchString(base)
	}
	return strings.HasSuffix(base, r.Match)
}
