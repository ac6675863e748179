package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"arcc/internal/diagfmt"
	"arcc/internal/driver"
	"arcc/internal/ui"
	"arcc/internal/version"
)

type compileOutcome struct {
	res *driver.Result
	err error
}

// compileFile runs the pipeline, with the progress view when enabled.
func compileFile(cmd *cobra.Command, path string, conservative bool) (*driver.Result, error) {
	ctx := cmd.Context()
	defer dumpTraceOnPanic(ctx)

	s := settingsFrom(ctx)
	opts, err := s.driverOptions()
	if err != nil {
		return nil, err
	}
	opts.Conservative = conservative
	if !s.progress {
		return driver.Compile(ctx, path, opts)
	}

	events := make(chan driver.Event, 256)
	outcomeCh := make(chan compileOutcome, 1)
	go func() {
		o := opts
		o.Progress = driver.ChannelSink{Ch: events}
		res, err := driver.Compile(ctx, path, o)
		close(events)
		outcomeCh <- compileOutcome{res: res, err: err}
	}()

	uiErr := ui.RunProgress("arcc "+filepath.Base(path), events, cmd.ErrOrStderr())
	// the view may quit early; keep the workers from blocking
	for range events {
	}
	outcome := <-outcomeCh
	if uiErr != nil && outcome.err == nil {
		return outcome.res, uiErr
	}
	return outcome.res, outcome.err
}

// printDiagnostics renders the bag in the selected format.
func printDiagnostics(w io.Writer, res *driver.Result, s *settings, args []string) error {
	if res == nil || res.Bag.Len() == 0 && s.format != "json" && s.format != "sarif" {
		return nil
	}
	switch s.format {
	case "json":
		return diagfmt.JSON(w, res.Bag, res.Files, diagfmt.JSONOpts{
			IncludePositions: true,
			PathMode:         diagfmt.PathModeAuto,
			IncludeNotes:     true,
			IncludeFixes:     true,
		})
	case "sarif":
		return diagfmt.Sarif(w, res.Bag, res.Files, diagfmt.SarifRunMeta{
			ToolName:       "arcc",
			ToolVersion:    version.Version,
			InvocationArgs: args,
		})
	case "short":
		return diagfmt.Short(w, res.Bag, res.Files, diagfmt.PathModeAuto)
	}
	return diagfmt.Pretty(w, res.Bag, res.Files, diagfmt.PrettyOpts{
		Color:     s.color,
		Context:   1,
		PathMode:  diagfmt.PathModeAuto,
		ShowNotes: true,
		ShowFixes: true,
	})
}

// writeStats honors --stats.
func writeStats(cmd *cobra.Command, res *driver.Result, s *settings) error {
	if s.statsPath == "" || res == nil || res.Module == nil {
		return nil
	}
	rep := res.Stats()
	if s.statsPath == "-" {
		return driver.WriteStats(cmd.ErrOrStderr(), rep)
	}
	f, err := os.Create(s.statsPath)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	if err := driver.WriteStats(f, rep); err != nil {
		_ = f.Close()
		return fmt.Errorf("stats: %w", err)
	}
	return f.Close()
}

// finish prints diagnostics and stats and turns errors into a failing exit.
func finish(cmd *cobra.Command, res *driver.Result, diagOut io.Writer, args []string) error {
	s := settingsFrom(cmd.Context())
	if err := printDiagnostics(diagOut, res, s, args); err != nil {
		return err
	}
	if err := writeStats(cmd, res, s); err != nil {
		return err
	}
	if res.Failed() {
		return errReported
	}
	return nil
}
