package globmatch

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{name: "base name match", pattern: "*.log", path: "build/out/app.log", want: true},
		{name: "base name no match", pattern: "*.log", path: "build/out/app.txt", want: false},
		{name: "double star dir", pattern: "**/node_modules", path: "web/app/node_modules", want: true},
		{name: "double star top level", pattern: "**/node_modules", path: "node_modules", want: true},
		{name: "dot file", pattern: "*.swp", path: "src/.main.go.swp", want: true},
		{name: "anchored path", pattern: "docs/*.md", path: "docs/readme.md", want: true},
		{name: "anchored path nested", pattern: "docs/*.md", path: "src/docs/readme.md", want: false},
		{name: "windows separators", pattern: "**/.git", path: `C:\ws\repo\.git`, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Match(tt.pattern, tt.path); got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
		})
	}
}

func TestMatchAll(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		path     string
		want     bool
	}{
		{name: "empty list", patterns: nil, path: "a.txt", want: false},
		{name: "first matches", patterns: []string{"*.txt", "*.md"}, path: "a.txt", want: true},
		{name: "second matches", patterns: []string{"*.go", "*.md"}, path: "a.md", want: true},
		{name: "negation after match", patterns: []string{"*.txt", "!keep.txt"}, path: "keep.txt", want: false},
		{name: "negation keeps other", patterns: []string{"*.txt", "!keep.txt"}, path: "drop.txt", want: true},
		{name: "negation without match is ignored", patterns: []string{"!keep.txt"}, path: "other.txt", want: false},
		{name: "rematch after negation", patterns: []string{"*.txt", "!keep.txt", "keep*"}, path: "keep.txt", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchAll(tt.path, tt.patterns); got != tt.want {
				t.Errorf("MatchAll(%q, %v) = %v, want %v", tt.path, tt.patterns, got, tt.want)
			}
		})
	}
}

func TestNewRejectsInvalidPattern(t *testing.T) {
	if _, err := New([]string{"[unclosed"}); err == nil {
		t.Fatal("New() error = nil, want invalid pattern error")
	}
	m, err := New([]string{"", "  ", "*.tmp"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := m.Patterns(); len(got) != 1 || got[0] != "*.tmp" {
		t.Fatalf("Patterns() = %v, want [*.tmp]", got)
	}
	if !m.Match("x/y.tmp") {
		t.Fatal("Match(x/y.tmp) = false, want true")
	}
	var nilMatcher *Matcher
	if nilMatcher.Match("anything") || !nilMatcher.Empty() {
		t.Fatal("nil Matcher should be empty and match nothing")
	}
}
