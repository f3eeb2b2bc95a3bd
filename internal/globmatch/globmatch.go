// Package globmatch matches paths against ignore/exclude glob lists with
// minimatch semantics: "**" crosses directories, dot files match, a pattern
// without "/" is matched against the base name, and a leading "!" negates.
package globmatch

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Match reports whether name matches pattern. Separators in name may be
// either "/" or "\".
func Match(pattern, name string) bool {
	name = strings.ReplaceAll(name, `\`, "/")
	pattern = strings.ReplaceAll(pattern, `\`, "/")
	if !strings.Contains(pattern, "/") {
		name = path.Base(name)
	}
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}

// MatchAll evaluates patterns in order. Once a path matched, only "!" patterns
// are re-tested (and may unmatch it); while unmatched, only plain patterns are.
func MatchAll(name string, patterns []string) bool {
	matched := false
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		exclusion := strings.HasPrefix(pattern, "!")
		if matched != exclusion {
			continue
		}
		if exclusion {
			matched = !Match(pattern[1:], name)
		} else {
			matched = Match(pattern, name)
		}
	}
	return matched
}

// Matcher is a validated pattern list.
type Matcher struct {
	patterns []string
}

// New validates patterns and returns a Matcher.
func New(patterns []string) (*Matcher, error) {
	kept := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(strings.TrimPrefix(p, "!")) {
			return nil, fmt.Errorf("invalid glob pattern %q", p)
		}
		kept = append(kept, p)
	}
	return &Matcher{patterns: kept}, nil
}

// Match reports whether name matches the list. A nil Matcher matches nothing.
func (m *Matcher) Match(name string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	return MatchAll(name, m.patterns)
}

// Empty reports whether the list has no patterns.
func (m *Matcher) Empty() bool {
	return m == nil || len(m.patterns) == 0
}

// Patterns returns a copy of the pattern list.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.patterns...)
}
