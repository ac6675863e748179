package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), `
[pipeline]
runtime = "single"
jobs = 4

[fbip]
default_mode = "required"
`)
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := Config{
		Pipeline: Pipeline{Runtime: "single", Jobs: 4, Cache: "on"},
		FBIP:     FBIP{DefaultMode: "required"},
		Trace:    Trace{Level: "off"},
		Path:     path,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"runtime", "[pipeline]\nruntime = \"gc\"\n", "[pipeline].runtime"},
		{"jobs", "[pipeline]\njobs = -1\n", "[pipeline].jobs"},
		{"fbip", "[fbip]\ndefault_mode = \"always\"\n", "[fbip].default_mode"},
		{"trace", "[trace]\nlevel = \"loud\"\n", "[trace].level"},
		{"unknown key", "[pipeline]\nthreads = 2\n", "unknown keys: pipeline.threads"},
		{"syntax", "[pipeline\n", "failed to parse TOML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tt.body)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestDiscoverWalksUp(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "[trace]\nlevel = \"phase\"\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg, err := Discover(nested)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Trace.Level != "phase" {
		t.Errorf("expected level from parent project file, got %q", cfg.Trace.Level)
	}
}

func TestCacheDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg")
	tests := []struct {
		cache string
		path  string
		want  string
	}{
		{"", "", "/tmp/xdg/arcc"},
		{"on", "", "/tmp/xdg/arcc"},
		{"off", "", ""},
		{"/var/cache/arcc", "/p/arcc.toml", "/var/cache/arcc"},
		{".cache", "/p/arcc.toml", "/p/.cache"},
	}
	for _, tt := range tests {
		cfg := Config{Pipeline: Pipeline{Cache: tt.cache}, Path: tt.path}
		if got := cfg.CacheDir(); got != tt.want {
			t.Errorf("CacheDir(%q) = %q, want %q", tt.cache, got, tt.want)
		}
	}
}
