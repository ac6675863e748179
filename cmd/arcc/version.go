package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"arcc/internal/driver"
	"arcc/internal/rt"
	"arcc/internal/version"
)

type versionOptions struct {
	format   string
	showHash bool
	showDate bool
	showFull bool
}

type versionPayload struct {
	Tool      string   `json:"tool"`
	Version   string   `json:"version"`
	GitCommit string   `json:"git_commit,omitempty"`
	BuildDate string   `json:"build_date,omitempty"`
	Runtimes  []string `json:"runtimes,omitempty"`
	Passes    []string `json:"passes,omitempty"`
}

var (
	versionFormat   string
	versionShowHash bool
	versionShowDate bool
	versionShowFull bool
)

func init() {
	versionCmd.Flags().BoolVar(&versionShowHash, "hash", false, "include git commit hash")
	versionCmd.Flags().BoolVar(&versionShowDate, "date", false, "include build timestamp")
	versionCmd.Flags().BoolVar(&versionShowFull, "full", false, "show every recorded bit of build metadata")
	versionCmd.Flags().StringVar(&versionFormat, "format", "pretty", "output format (pretty|json)")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show arcc build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := versionOptions{
			format:   strings.ToLower(versionFormat),
			showHash: versionShowHash || versionShowFull,
			showDate: versionShowDate || versionShowFull,
			showFull: versionShowFull,
		}
		switch opts.format {
		case "pretty", "json":
			// supported
		default:
			return fmt.Errorf("unsupported format %q (must be pretty or json)", versionFormat)
		}

		info := version.Current()
		if opts.format == "json" {
			return renderVersionJSON(cmd.OutOrStdout(), info, opts)
		}
		renderVersionPretty(cmd.OutOrStdout(), info, opts, settingsFrom(cmd.Context()).color)
		return nil
	},
}

func renderVersionPretty(out io.Writer, info version.Info, opts versionOptions, color bool) {
	if color {
		fmt.Fprintf(out, "arcc %s\n", version.Colored())
	} else {
		fmt.Fprintln(out, info.String())
	}
	if opts.showHash {
		fmt.Fprintf(out, "commit: %s\n", valueOrUnknown(info.GitCommit))
	}
	if opts.showDate {
		fmt.Fprintf(out, "built:  %s\n", valueOrUnknown(info.BuildDate))
	}
	if opts.showFull {
		fmt.Fprintf(out, "runtimes: %s\n", strings.Join(runtimeNames(), ", "))
		fmt.Fprintf(out, "passes:   %s\n", strings.Join(passNames(), ", "))
	}
}

func runtimeNames() []string {
	return []string{rt.ModeAtomic.String(), rt.ModeSingle.String()}
}

func passNames() []string {
	stages := []driver.Stage{
		driver.StageInsert, driver.StageElim, driver.StageReuse,
		driver.StageDrop, driver.StageFBIP,
	}
	names := make([]string, len(stages))
	for i, st := range stages {
		names[i] = string(st)
	}
	return names
}

func renderVersionJSON(out io.Writer, info version.Info, opts versionOptions) error {
	payload := versionPayload{Tool: "arcc", Version: info.Version}
	if opts.showHash {
		payload.GitCommit = valueOrUnknown(info.GitCommit)
	}
	if opts.showDate {
		payload.BuildDate = valueOrUnknown(info.BuildDate)
	}
	if opts.showFull {
		payload.Runtimes = runtimeNames()
		payload.Passes = passNames()
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func valueOrUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
