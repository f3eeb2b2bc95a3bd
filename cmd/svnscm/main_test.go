package main

import (
	"bytes"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/fatih/color"

	"svnscm/internal/repository"
	"svnscm/internal/svn"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		wantWorkspaces []string
		wantStatus     bool
		wantListen     string
		wantErr        bool
	}{
		{
			name:           "repeatable workspace",
			args:           []string{"-config", "/tmp/c.yaml", "-workspace", "/a", "-workspace", "/b"},
			wantWorkspaces: []string{"/a", "/b"},
		},
		{
			name:           "positional folders",
			args:           []string{"-status", "/a", "/b"},
			wantWorkspaces: []string{"/a", "/b"},
			wantStatus:     true,
		},
		{
			name:           "listen override",
			args:           []string{"-config", "/tmp/c.yaml", "-listen", "127.0.0.1:9000", "/a"},
			wantWorkspaces: []string{"/a"},
			wantListen:     "127.0.0.1:9000",
		},
		{name: "empty workspace rejected", args: []string{"-workspace", " "}, wantErr: true},
		{name: "unknown flag", args: []string{"-bogus"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseFlags(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !slices.Equal(opts.workspaces, tt.wantWorkspaces) {
				t.Errorf("workspaces = %v, want %v", opts.workspaces, tt.wantWorkspaces)
			}
			if opts.statusOnly != tt.wantStatus {
				t.Errorf("statusOnly = %v, want %v", opts.statusOnly, tt.wantStatus)
			}
			if opts.listen != tt.wantListen {
				t.Errorf("listen = %q, want %q", opts.listen, tt.wantListen)
			}
			if opts.configPath == "" {
				t.Error("configPath is empty")
			}
		})
	}
}

func TestParseFlagsDefaultsToWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	opts, err := parseFlags(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(opts.workspaces) != 1 {
		t.Fatalf("workspaces = %v", opts.workspaces)
	}
	got, _ := filepath.EvalSymlinks(opts.workspaces[0])
	want, _ := filepath.EvalSymlinks(dir)
	if got != want {
		t.Fatalf("workspace = %q, want %q", got, want)
	}
}

func TestResolveLogLevel(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		env     string
		want    log.Level
		wantErr bool
	}{
		{name: "default", want: log.InfoLevel},
		{name: "flag", flag: "debug", want: log.DebugLevel},
		{name: "env", env: "error", want: log.ErrorLevel},
		{name: "flag wins over env", flag: "warn", env: "debug", want: log.WarnLevel},
		{name: "warning alias", flag: "WARNING", want: log.WarnLevel},
		{name: "invalid", flag: "loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(envLogLevel, tt.env)
			got, err := resolveLogLevel(tt.flag)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveLogLevel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("resolveLogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseYes(t *testing.T) {
	for answer, want := range map[string]bool{"y": true, " YES ": true, "": false, "n": false, "maybe": false} {
		if got := parseYes(answer); got != want {
			t.Errorf("parseYes(%q) = %v, want %v", answer, got, want)
		}
	}
}

func TestPrintStatus(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	root := filepath.FromSlash("/wc")
	models := []repository.Model{{
		Root:          root,
		WorkspaceRoot: root,
		Branch:        "trunk",
		Count:         2,
		Changes: repository.Group{Label: "Changes", Resources: []repository.Resource{
			{Path: filepath.Join(root, "a.c"), Type: svn.StatusModified},
			{Path: filepath.Join(root, "b.c"), Type: svn.StatusAdded, RenamePath: filepath.Join(root, "old.c")},
		}},
		Unversioned: repository.Group{Label: "Unversioned", Resources: []repository.Resource{
			{Path: filepath.Join(root, "new.txt"), Type: svn.StatusUnversioned},
		}},
	}}

	var buf bytes.Buffer
	printStatus(&buf, models)
	out := buf.String()
	for _, want := range []string{
		root + " (trunk)  2 change(s)",
		"  Changes (2)",
		"    M a.c",
		"    A b.c (from old.c)",
		"  Unversioned (1)",
		"    ? new.txt",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Conflicts") {
		t.Errorf("empty group printed:\n%s", out)
	}
}

func TestPrintStatusNoRepositories(t *testing.T) {
	var buf bytes.Buffer
	printStatus(&buf, nil)
	if !strings.Contains(buf.String(), "no svn working copies") {
		t.Fatalf("output = %q", buf.String())
	}
}
