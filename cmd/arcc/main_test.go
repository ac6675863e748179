package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"

	"arcc/internal/arc"
	"arcc/internal/rt"
)

const listDoc = `types:
  - enum: List
    variants:
      - {name: Nil}
      - {name: Cons, fields: [{name: head, type: int}, {name: tail, type: List}]}
functions:
  - name: inc_all
    params: [{name: l, type: List}]
    result: List
    blocks:
      - name: entry
        instrs:
          - {op: let, dst: t, type: int, prim: tag, args: [l]}
        term: {switch: t, cases: {1: cons, 0: done}}
      - name: done
        term: {return: l}
      - name: cons
        instrs:
          - {op: project, dst: h, value: l, variant: Cons, field: head}
          - {op: project, dst: rest, value: l, variant: Cons, field: tail}
          - {op: let, dst: one, type: int, lit: 1}
          - {op: let, dst: h2, type: int, prim: add, args: [h, one]}
          - {op: apply, dst: rest2, type: List, func: inc_all, args: [rest]}
          - {op: construct, dst: r, type: List, variant: Cons, args: [h2, rest2]}
        term: {return: r}
  - name: main
    fbip: off
    result: List
    blocks:
      - instrs:
          - {op: construct, dst: empty, type: List, variant: Nil}
          - {op: let, dst: two, type: int, lit: 2}
          - {op: construct, dst: a, type: List, variant: Cons, args: [two, empty]}
          - {op: let, dst: one, type: int, lit: 1}
          - {op: construct, dst: b, type: List, variant: Cons, args: [one, a]}
          - {op: apply, dst: c, type: List, func: inc_all, args: [b]}
        term: {return: c}
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func parseFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("arcc", pflag.ContinueOnError)
	registerFlags(flags)
	if err := flags.Parse(args); err != nil {
		t.Fatal(err)
	}
	return flags
}

func TestLoadSettingsFlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "arcc.toml", "[pipeline]\nruntime = \"single\"\njobs = 3\ncache = \"off\"\n\n[fbip]\ndefault_mode = \"required\"\n")
	s, err := loadSettings(parseFlags(t, "--config", cfg, "--jobs", "5", "--color", "off", "--ui", "off"))
	if err != nil {
		t.Fatal(err)
	}
	if s.runtime != rt.ModeSingle || s.jobs != 5 || s.fbip != arc.FBIPRequired {
		t.Errorf("runtime=%v jobs=%d fbip=%v", s.runtime, s.jobs, s.fbip)
	}
	if s.cacheDir != "" || s.color || s.progress {
		t.Errorf("cache=%q color=%v progress=%v", s.cacheDir, s.color, s.progress)
	}
}

func TestLoadSettingsRejects(t *testing.T) {
	cfg := writeFile(t, t.TempDir(), "arcc.toml", "")
	tests := [][]string{
		{"--format", "xml"},
		{"--color", "sometimes"},
		{"--ui", "maybe"},
		{"--runtime", "gc"},
		{"--fbip", "always"},
	}
	for _, args := range tests {
		args = append(args, "--config", cfg)
		if _, err := loadSettings(parseFlags(t, args...)); err == nil {
			t.Errorf("%v: expected an error", args)
		}
	}
}

func TestTraceFlagImpliesPhaseLevel(t *testing.T) {
	cfg := writeFile(t, t.TempDir(), "arcc.toml", "")
	s, err := loadSettings(parseFlags(t, "--config", cfg, "--trace", "-"))
	if err != nil {
		t.Fatal(err)
	}
	if s.traceLevel.String() != "phase" {
		t.Errorf("trace level = %v", s.traceLevel)
	}
}

func TestParseSwitch(t *testing.T) {
	tests := []struct {
		in   string
		want switchMode
	}{
		{"", modeAuto},
		{"AUTO", modeAuto},
		{" on ", modeOn},
		{"off", modeOff},
	}
	for _, tt := range tests {
		got, err := parseSwitch("ui", tt.in)
		if err != nil || got != tt.want {
			t.Errorf("parseSwitch(%q) = %v, %v", tt.in, got, err)
		}
	}
	_, err := parseSwitch("color", "loud")
	if err == nil || !strings.Contains(err.Error(), "--color") {
		t.Errorf("expected a --color error for an unknown mode, got %v", err)
	}
}

func TestSwitchResolve(t *testing.T) {
	calls := 0
	detect := func() bool { calls++; return true }
	got := []bool{modeOn.resolve(detect), modeOff.resolve(detect), modeAuto.resolve(detect)}
	if diff := cmp.Diff([]bool{true, false, true}, got); diff != "" {
		t.Errorf("resolve mismatch (-want +got):\n%s", diff)
	}
	if calls != 1 {
		t.Errorf("detect called %d times, want 1", calls)
	}
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "arcc.toml", "[pipeline]\ncache = \"off\"\n")
	doc := writeFile(t, dir, "list.tir.yaml", listDoc)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs([]string{"run", "--config", cfg, "--ui", "off", "--color", "off", doc})
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("run failed: %v\n%s", err, errOut.String())
	}
	if got, want := strings.TrimSpace(out.String()), "List.Cons(2, List.Cons(3, List.Nil))"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
