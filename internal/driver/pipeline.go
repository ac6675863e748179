// Package driver runs the ARC pipeline over a typed-IR document: borrow
// inference for the module, then insertion, elimination, reuse, drop
// descriptors and FBIP checking for every function in parallel.
package driver

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"arcc/internal/arc"
	"arcc/internal/diag"
	"arcc/internal/drop"
	"arcc/internal/fbip"
	"arcc/internal/observ"
	"arcc/internal/ownership"
	"arcc/internal/rcelim"
	"arcc/internal/rcinsert"
	"arcc/internal/reuse"
	"arcc/internal/source"
	"arcc/internal/tir"
	"arcc/internal/trace"
	"arcc/internal/types"
)

// DefaultMaxDiagnostics bounds each bag when Options leaves it zero.
const DefaultMaxDiagnostics = 1000

// Options configures Compile.
type Options struct {
	Jobs           int // 0 means GOMAXPROCS
	MaxDiagnostics int
	// DefaultFBIP applies to functions without an explicit marker.
	DefaultFBIP arc.FBIPMode
	// Conservative stops after RC insertion.
	Conservative bool
	// Timings appends an OBS6001 diagnostic with the stage durations.
	Timings  bool
	Cache    *DiskCache
	Progress ProgressSink
}

// FuncResult is the outcome for one function.
type FuncResult struct {
	Func     *arc.Func
	Stats    FuncStats
	Drops    []drop.Info
	Closures []drop.Closure
	FBIP     fbip.Report
	Bag      *diag.Bag
	Err      error
}

// Result is everything Compile produced. Module is nil when the input did
// not read cleanly; Bag then holds the reasons.
type Result struct {
	Path       string
	Files      *source.FileSet
	Module     *arc.Module
	Classifier *types.Classifier
	Signatures arc.SignatureMap
	Funcs      []FuncResult
	Drops      *drop.Cache
	Bag        *diag.Bag
	Timing     observ.Report

	SigHits     int
	SigMisses   int
	DropsCached bool
}

// Failed reports whether any error diagnostic was produced.
func (r *Result) Failed() bool {
	return r == nil || r.Bag.HasErrors()
}

// Compile reads path and runs the pipeline. The returned error covers
// problems outside the document itself, such as an unreadable file or a
// canceled context; everything else ends up in Result.Bag.
func Compile(ctx context.Context, path string, opts Options) (*Result, error) {
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeDriver, "compile", trace.ParentID(ctx)).WithExtra("path", path)
	ctx = trace.WithSpan(ctx, span)
	timer := observ.NewTimer()
	if opts.MaxDiagnostics <= 0 {
		opts.MaxDiagnostics = DefaultMaxDiagnostics
	}

	res := &Result{
		Path:  path,
		Files: source.NewFileSet(),
		Bag:   diag.NewBag(opts.MaxDiagnostics),
	}
	defer func() {
		if opts.Timings {
			recordTimings(res.Bag, path, res.Timing)
		}
		span.End("")
	}()

	idx := timer.Begin(string(StageRead))
	emitModule(opts.Progress, StageRead, StatusWorking, nil)
	mod, err := tir.ReadFile(res.Files, path, diag.BagReporter{Bag: res.Bag})
	timer.End(idx, "")
	if err != nil {
		res.Timing = timer.Report()
		if errors.Is(err, tir.ErrInvalid) {
			emitModule(opts.Progress, StageRead, StatusError, err)
			return res, nil
		}
		return res, fmt.Errorf("read %s: %w", path, err)
	}
	res.Module = mod
	res.Classifier = types.NewClassifier(mod.Types)
	for _, f := range mod.Funcs {
		if !f.FBIPDeclared {
			f.FBIP = opts.DefaultFBIP
		}
	}

	idx = timer.Begin(string(StageInfer))
	emitModule(opts.Progress, StageInfer, StatusWorking, nil)
	res.Signatures = inferSignatures(ctx, res, opts.Cache)
	timer.End(idx, fmt.Sprintf("%d cached", res.SigHits))

	res.Drops = drop.NewCache(res.Classifier)
	content := Digest(res.Files.Get(0).Hash)
	if opts.Cache != nil {
		if infos, ok, err := opts.Cache.Drops(content); err != nil {
			trace.Point(tracer, trace.ScopePass, "drop cache unreadable", err.Error(), span.ID())
		} else if ok {
			res.Drops.Seed(infos)
			res.DropsCached = true
		}
	}

	if err := runFuncs(ctx, res, opts, timer); err != nil {
		res.Timing = timer.Report()
		return res, err
	}
	for i := range res.Funcs {
		res.Bag.Merge(res.Funcs[i].Bag)
	}
	res.Bag.Sort()

	if opts.Cache != nil && !res.DropsCached && !opts.Conservative {
		if err := opts.Cache.PutDrops(content, res.Drops.Snapshot()); err != nil {
			trace.Point(tracer, trace.ScopePass, "drop cache not written", err.Error(), span.ID())
		}
	}
	res.Timing = timer.Report()
	emitModule(opts.Progress, StageFBIP, StatusDone, nil)
	return res, nil
}

func inferSignatures(ctx context.Context, res *Result, dc *DiskCache) arc.SignatureMap {
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopePass, string(StageInfer), trace.ParentID(ctx))
	defer span.End("")

	var sc *ownership.SignatureCache
	if dc != nil {
		var err error
		if sc, err = dc.Signatures(res.Path); err != nil {
			trace.Point(tracer, trace.ScopePass, "signature cache unreadable", err.Error(), span.ID())
		}
	}
	sigs := ownership.InferSignatures(res.Module, res.Classifier, sc)
	ownership.Apply(res.Module, sigs)
	if sc != nil {
		res.SigHits, res.SigMisses = sc.Hits(), sc.Misses()
		span.WithExtra("hits", fmt.Sprint(sc.Hits()))
		if err := dc.PutSignatures(res.Path, sc); err != nil {
			trace.Point(tracer, trace.ScopePass, "signature cache not written", err.Error(), span.ID())
		}
	} else {
		res.SigMisses = len(res.Module.Funcs)
	}
	return sigs
}

func runFuncs(ctx context.Context, res *Result, opts Options, timer *observ.Timer) error {
	funcs := res.Module.Funcs
	res.Funcs = make([]FuncResult, len(funcs))
	if len(funcs) == 0 {
		return nil
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	for _, f := range funcs {
		emit(opts.Progress, f.Name, StageInsert, StatusQueued, nil, 0)
	}

	// Результаты: индекс i уникален для каждой горутины, мьютекс не нужен
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(funcs)))
	for i, f := range funcs {
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			w := &worker{
				ctx:    gctx,
				res:    res,
				opts:   opts,
				timer:  timer,
				tracer: trace.FromContext(gctx),
				parent: trace.ParentID(gctx),
			}
			res.Funcs[i] = w.run(f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

type worker struct {
	ctx    context.Context
	res    *Result
	opts   Options
	timer  *observ.Timer
	tracer trace.Tracer
	parent uint64

	f   *arc.Func
	out *FuncResult
}

// internalError is a compiler defect that halts the current function.
type internalError struct {
	code diag.Code
	err  error
}

func (e *internalError) Error() string { return e.err.Error() }
func (e *internalError) Unwrap() error { return e.err }

func defect(code diag.Code, err error) error {
	return &internalError{code: code, err: err}
}

func (w *worker) run(f *arc.Func) (out FuncResult) {
	w.f = f
	out = FuncResult{Func: f, Bag: diag.NewBag(w.opts.MaxDiagnostics)}
	w.out = &out
	out.Stats.Name = f.Name

	span := trace.Begin(w.tracer, trace.ScopeFunc, f.Name, w.parent)
	w.parent = span.ID()
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			w.fail(defect(diag.ArcInternal, fmt.Errorf("panic: %v", r)))
		}
		status := StatusDone
		if out.Err != nil {
			status = StatusError
		}
		emit(w.opts.Progress, f.Name, StageFBIP, status, out.Err, time.Since(started))
		span.End(string(status))
	}()

	if err := w.pipeline(); err != nil {
		w.fail(err)
		return out
	}
	out.Stats.Incs, out.Stats.Decs = f.CountRC()
	return out
}

func (w *worker) pipeline() error {
	f, res := w.f, w.res
	st := &w.out.Stats

	err := w.stage(StageInsert, func() error {
		st.Insert = rcinsert.Insert(f, res.Signatures, res.Classifier)
		return validate(f, "rc insertion")
	})
	if err != nil || w.opts.Conservative {
		return err
	}

	err = w.stage(StageElim, func() error {
		elim, err := rcelim.Optimize(f, res.Signatures)
		if err != nil {
			if errors.Is(err, ownership.ErrOwnershipCycle) {
				return defect(diag.ArcOwnershipCycle, err)
			}
			return defect(diag.ArcEliminationFailed, err)
		}
		st.Elim = elim
		st.Pairs = elim.Pairs()
		return validate(f, "rc elimination")
	})
	if err != nil {
		return err
	}

	var det reuse.Detection
	err = w.stage(StageReuse, func() error {
		var err error
		if det, err = reuse.Detect(f, res.Classifier, res.Signatures); err != nil {
			return defect(diag.ArcReuseFailed, err)
		}
		if err := reuse.Expand(f, det, res.Classifier, res.Signatures); err != nil {
			return defect(diag.ArcReuseFailed, err)
		}
		return validate(f, "reset/reuse")
	})
	if err != nil {
		return err
	}

	err = w.stage(StageDrop, func() error {
		w.out.Drops = drop.Collect(f, res.Drops)
		w.out.Closures = drop.Closures(f, res.Classifier)
		st.Drops = len(w.out.Drops)
		return nil
	})
	if err != nil {
		return err
	}

	return w.stage(StageFBIP, func() error {
		rep := fbip.Check(f, det)
		rep.Emit(diag.BagReporter{Bag: w.out.Bag}, f.FBIP)
		w.out.FBIP = rep
		st.ReuseAchieved = len(rep.Achieved)
		st.ReuseMissed = len(rep.Missed)
		st.FBIP = rep.IsFBIP
		return nil
	})
}

// stage times fn, traces it and reports progress.
func (w *worker) stage(name Stage, fn func() error) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	emit(w.opts.Progress, w.f.Name, name, StatusWorking, nil, 0)
	span := trace.Begin(w.tracer, trace.ScopeFunc, string(name), w.parent)
	start := time.Now()
	err := fn()
	w.timer.Add(string(name), time.Since(start))
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	span.End(detail)
	return err
}

func validate(f *arc.Func, after string) error {
	if err := arc.ValidateFunc(f); err != nil {
		return defect(diag.ArcInvalidIR, fmt.Errorf("after %s: %w", after, err))
	}
	return nil
}

// fail records err on the current function. Context errors are kept off
// the diagnostic bag.
func (w *worker) fail(err error) {
	w.out.Err = err
	w.out.Stats.Failed = true
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	code := diag.ArcInternal
	var ie *internalError
	if errors.As(err, &ie) {
		code = ie.code
	}
	diag.ReportError(diag.BagReporter{Bag: w.out.Bag}, code, w.f.Span,
		fmt.Sprintf("internal error in `%s`: %v", w.f.Name, err)).
		WithNote(w.f.Span, "the function was left partially transformed").
		Emit()
}

func emit(sink ProgressSink, fn string, stage Stage, status Status, err error, elapsed time.Duration) {
	if sink == nil {
		return
	}
	sink.OnEvent(Event{Func: fn, Stage: stage, Status: status, Err: err, Elapsed: elapsed})
}

func emitModule(sink ProgressSink, stage Stage, status Status, err error) {
	emit(sink, "", stage, status, err, 0)
}
