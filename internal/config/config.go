// Package config reads the arcc.toml project file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"arcc/internal/arc"
	"arcc/internal/rt"
	"arcc/internal/trace"
)

// FileName is the project file looked up from the working directory upwards.
const FileName = "arcc.toml"

// Config is the decoded project file. Zero values mean "use the default".
type Config struct {
	Pipeline Pipeline `toml:"pipeline"`
	FBIP     FBIP     `toml:"fbip"`
	Trace    Trace    `toml:"trace"`

	// Path of the file the config came from; empty for Default.
	Path string `toml:"-"`
}

type Pipeline struct {
	Runtime string `toml:"runtime"`
	Jobs    int    `toml:"jobs"`
	// Cache is "on", "off" or a directory.
	Cache string `toml:"cache"`
}

type FBIP struct {
	DefaultMode string `toml:"default_mode"`
}

type Trace struct {
	Level string `toml:"level"`
}

// Default returns the settings used without a project file.
func Default() Config {
	return Config{
		Pipeline: Pipeline{Runtime: rt.ModeAtomic.String(), Cache: "on"},
		FBIP:     FBIP{DefaultMode: arc.FBIPDiagnostic.String()},
		Trace:    Trace{Level: trace.LevelOff.String()},
	}
}

// Find walks from startDir to the filesystem root looking for arcc.toml.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load decodes path over Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undec := meta.Undecoded(); len(undec) > 0 {
		keys := make([]string, len(undec))
		for i, k := range undec {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Discover loads the nearest project file above startDir, or returns
// Default when there is none.
func Discover(startDir string) (Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks every enumerated value.
func (c Config) Validate() error {
	var errs []error
	if _, err := rt.ParseMode(c.Pipeline.Runtime); err != nil {
		errs = append(errs, fmt.Errorf("[pipeline].runtime: %w", err))
	}
	if c.Pipeline.Jobs < 0 {
		errs = append(errs, fmt.Errorf("[pipeline].jobs must not be negative, got %d", c.Pipeline.Jobs))
	}
	if _, err := arc.ParseFBIPMode(c.FBIP.DefaultMode); err != nil {
		errs = append(errs, fmt.Errorf("[fbip].default_mode: %w", err))
	}
	if _, err := trace.ParseLevel(c.Trace.Level); err != nil {
		errs = append(errs, fmt.Errorf("[trace].level: %w", err))
	}
	return errors.Join(errs...)
}

// CacheDir resolves [pipeline].cache: "" when caching is off, the default
// location for "on", otherwise the configured directory relative to the
// project file.
func (c Config) CacheDir() string {
	switch strings.ToLower(strings.TrimSpace(c.Pipeline.Cache)) {
	case "off", "false", "no":
		return ""
	case "", "on", "true", "yes":
		return DefaultCacheDir()
	}
	dir := c.Pipeline.Cache
	if !filepath.IsAbs(dir) && c.Path != "" {
		dir = filepath.Join(filepath.Dir(c.Path), dir)
	}
	return dir
}

// DefaultCacheDir is $XDG_CACHE_HOME/arcc or ~/.cache/arcc; "" when neither
// can be determined.
func DefaultCacheDir() string {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "arcc")
}
