package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"arcc/internal/arc"
	"arcc/internal/config"
	"arcc/internal/driver"
	"arcc/internal/rt"
	"arcc/internal/trace"
	"arcc/internal/ui"
)

// settings is the project file with flags applied on top.
type settings struct {
	cfg        config.Config
	runtime    rt.Mode
	fbip       arc.FBIPMode
	traceLevel trace.Level
	jobs       int
	cacheDir   string
	statsPath  string
	color      bool
	progress   bool
	format     string
	timings    bool
	maxDiags   int

	cleanup func()
}

type settingsKey struct{}

func settingsFrom(ctx context.Context) *settings {
	if s, ok := ctx.Value(settingsKey{}).(*settings); ok {
		return s
	}
	return &settings{cfg: config.Default(), format: "pretty", maxDiags: 100, cleanup: func() {}}
}

func setupCommand(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd.Root().PersistentFlags())
	if err != nil {
		return err
	}
	if s.cleanup, err = setupTracing(cmd, s); err != nil {
		return err
	}
	cmd.SetContext(context.WithValue(cmd.Context(), settingsKey{}, s))
	return nil
}

func teardownCommand(cmd *cobra.Command, _ []string) {
	settingsFrom(cmd.Context()).cleanup()
}

func loadSettings(flags *pflag.FlagSet) (*settings, error) {
	path, _ := flags.GetString("config")
	var (
		cfg config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.Discover(".")
	}
	if err != nil {
		return nil, err
	}

	override := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	override("runtime", &cfg.Pipeline.Runtime)
	override("fbip", &cfg.FBIP.DefaultMode)
	override("cache", &cfg.Pipeline.Cache)
	override("trace-level", &cfg.Trace.Level)
	if flags.Changed("trace") && !flags.Changed("trace-level") && cfg.Trace.Level == trace.LevelOff.String() {
		cfg.Trace.Level = trace.LevelPhase.String()
	}
	if flags.Changed("jobs") {
		cfg.Pipeline.Jobs, _ = flags.GetInt("jobs")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &settings{cfg: cfg, jobs: cfg.Pipeline.Jobs, cacheDir: cfg.CacheDir()}
	s.runtime, _ = rt.ParseMode(cfg.Pipeline.Runtime)
	s.fbip, _ = arc.ParseFBIPMode(cfg.FBIP.DefaultMode)
	s.traceLevel, _ = trace.ParseLevel(cfg.Trace.Level)

	s.statsPath, _ = flags.GetString("stats")
	s.timings, _ = flags.GetBool("timings")
	s.maxDiags, _ = flags.GetInt("max-diagnostics")
	s.format, _ = flags.GetString("format")
	s.format = strings.ToLower(s.format)
	switch s.format {
	case "pretty", "short", "json", "sarif":
	default:
		return nil, fmt.Errorf("unsupported format %q (must be pretty, short, json or sarif)", s.format)
	}

	colorFlag, _ := flags.GetString("color")
	colorMode, err := parseSwitch("color", colorFlag)
	if err != nil {
		return nil, err
	}
	s.color = colorMode.resolve(func() bool {
		return ui.IsTerminal(os.Stdout) && os.Getenv("NO_COLOR") == ""
	})

	uiFlag, _ := flags.GetString("ui")
	uiMode, err := parseSwitch("ui", uiFlag)
	if err != nil {
		return nil, err
	}
	s.progress = uiMode.resolve(func() bool { return ui.IsTerminal(os.Stderr) })
	return s, nil
}

func (s *settings) driverOptions() (driver.Options, error) {
	opts := driver.Options{
		Jobs:           s.jobs,
		MaxDiagnostics: s.maxDiags,
		DefaultFBIP:    s.fbip,
		Timings:        s.timings,
	}
	if s.cacheDir != "" {
		dc, err := driver.OpenDiskCache(s.cacheDir)
		if err != nil {
			return opts, fmt.Errorf("open cache: %w", err)
		}
		opts.Cache = dc
	}
	return opts, nil
}
