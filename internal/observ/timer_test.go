package observ_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"arcc/internal/observ"
)

func TestBeginEnd(t *testing.T) {
	tm := observ.NewTimer()
	idx := tm.Begin("read")
	tm.End(idx, "2 funcs")
	tm.End(99, "ignored")

	rep := tm.Report()
	if len(rep.Phases) != 1 || rep.Phases[0].Name != "read" || rep.Phases[0].Note != "2 funcs" {
		t.Fatalf("report = %+v", rep)
	}
	if !strings.Contains(tm.Summary(), "// 2 funcs") {
		t.Errorf("summary = %q", tm.Summary())
	}
}

func TestAddFoldsConcurrentReports(t *testing.T) {
	tm := observ.NewTimer()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tm.Add("rcelim", time.Millisecond)
		}()
	}
	wg.Wait()

	rep := tm.Report()
	if len(rep.Phases) != 1 {
		t.Fatalf("phases = %+v", rep.Phases)
	}
	if p := rep.Phases[0]; p.Calls != 16 || p.DurationMS != 16 {
		t.Errorf("phase = %+v", p)
	}
	if rep.TotalMS != 16 {
		t.Errorf("total = %v", rep.TotalMS)
	}
}

func TestEmptyReport(t *testing.T) {
	if rep := observ.NewTimer().Report(); rep.Phases != nil || rep.TotalMS != 0 {
		t.Errorf("report = %+v", rep)
	}
}
