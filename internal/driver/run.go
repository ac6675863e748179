package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"arcc/internal/interp"
	"arcc/internal/rt"
	"arcc/internal/trace"
)

// RunOptions configures Run.
type RunOptions struct {
	Entry    string // defaults to "main"
	Mode     rt.Mode
	Stdout   io.Writer
	MaxSteps int64
}

// Run executes the compiled module on the reference runtime.
func Run(ctx context.Context, res *Result, opts RunOptions) (interp.Result, error) {
	if res == nil || res.Module == nil {
		return interp.Result{}, errors.New("nothing to run: the input did not compile")
	}
	for _, fr := range res.Funcs {
		if fr.Err != nil {
			return interp.Result{}, fmt.Errorf("cannot run: `%s` failed to compile: %w", fr.Func.Name, fr.Err)
		}
	}
	entry := opts.Entry
	if entry == "" {
		entry = "main"
	}
	if res.Module.Func(entry) == nil {
		return interp.Result{}, fmt.Errorf("entry function %q not found", entry)
	}
	out := opts.Stdout
	if out == nil {
		out = io.Discard
	}

	span := trace.Begin(trace.FromContext(ctx), trace.ScopeDriver, string(StageRun), trace.ParentID(ctx)).
		WithExtra("entry", entry).
		WithExtra("runtime", opts.Mode.String())
	r, err := interp.Run(ctx, res.Module, res.Classifier, entry, interp.Options{
		Mode:     opts.Mode,
		Externs:  interp.StdExterns(out),
		Drops:    res.Drops,
		MaxSteps: opts.MaxSteps,
	})
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	span.End(detail)
	return r, err
}

// Verification compares a run of the conservative IR with a run of the
// optimized IR of the same document.
type Verification struct {
	Conservative       interp.Result
	Optimized          interp.Result
	ConservativeOutput string
	OptimizedOutput    string
	Problems           []string
}

// OK reports whether both runs agreed and neither leaked.
func (v *Verification) OK() bool {
	return len(v.Problems) == 0
}

// Verify compiles path twice, with and without optimization, and runs both.
// The optimized program must print the same output, return the same value,
// free everything and allocate no more than the conservative one.
func Verify(ctx context.Context, path string, copts Options, ropts RunOptions) (*Verification, *Result, error) {
	v := &Verification{}

	base := copts
	base.Conservative = true
	base.Timings = false
	base.Progress = nil
	cons, err := Compile(ctx, path, base)
	if err != nil {
		return nil, cons, err
	}
	if cons.Failed() {
		return nil, cons, errors.New("conservative compile failed")
	}
	var consOut bytes.Buffer
	ro := ropts
	ro.Stdout = &consOut
	if v.Conservative, err = Run(ctx, cons, ro); err != nil {
		return nil, cons, fmt.Errorf("conservative run: %w", err)
	}

	opt, err := Compile(ctx, path, copts)
	if err != nil {
		return nil, opt, err
	}
	var optOut bytes.Buffer
	ro.Stdout = &optOut
	if v.Optimized, err = Run(ctx, opt, ro); err != nil {
		return nil, opt, fmt.Errorf("optimized run: %w", err)
	}
	v.ConservativeOutput, v.OptimizedOutput = consOut.String(), optOut.String()

	if v.Conservative.Value != v.Optimized.Value {
		v.Problems = append(v.Problems, fmt.Sprintf("result differs: %s vs %s", v.Conservative.Value, v.Optimized.Value))
	}
	if v.ConservativeOutput != v.OptimizedOutput {
		v.Problems = append(v.Problems, "printed output differs")
	}
	if n := len(v.Conservative.Leaks); n > 0 {
		v.Problems = append(v.Problems, fmt.Sprintf("conservative run leaked %d objects", n))
	}
	if n := len(v.Optimized.Leaks); n > 0 {
		v.Problems = append(v.Problems, fmt.Sprintf("optimized run leaked %d objects", n))
	}
	if a, b := v.Conservative.Stats.Allocs, v.Optimized.Stats.Allocs; b > a {
		v.Problems = append(v.Problems, fmt.Sprintf("optimized run allocated more: %d vs %d", b, a))
	}
	return v, opt, nil
}
