package driver

import (
	"encoding/json"
	"io"

	"arcc/internal/observ"
	"arcc/internal/rcelim"
	"arcc/internal/rcinsert"
)

// FuncStats is the --stats record of one function. Incs and Decs count
// what is left after optimization.
type FuncStats struct {
	Name          string         `json:"name"`
	Insert        rcinsert.Stats `json:"insert"`
	Elim          rcelim.Stats   `json:"elim"`
	Pairs         int            `json:"eliminated_pairs"`
	Incs          int            `json:"incs"`
	Decs          int            `json:"decs"`
	ReuseAchieved int            `json:"reuse_achieved"`
	ReuseMissed   int            `json:"reuse_missed"`
	Drops         int            `json:"drops"`
	FBIP          bool           `json:"fbip"`
	Failed        bool           `json:"failed,omitempty"`
}

func (s *FuncStats) add(o FuncStats) {
	s.Insert.Incs += o.Insert.Incs
	s.Insert.Decs += o.Insert.Decs
	s.Insert.Trampolines += o.Insert.Trampolines
	s.Elim.Add(o.Elim)
	s.Pairs += o.Pairs
	s.Incs += o.Incs
	s.Decs += o.Decs
	s.ReuseAchieved += o.ReuseAchieved
	s.ReuseMissed += o.ReuseMissed
	s.Drops += o.Drops
}

// CacheStats reports how much the disk cache saved.
type CacheStats struct {
	SignatureHits   int  `json:"signature_hits"`
	SignatureMisses int  `json:"signature_misses"`
	DropsCached     bool `json:"drops_cached"`
}

// StatsReport is the --stats document.
type StatsReport struct {
	File        string        `json:"file"`
	Funcs       []FuncStats   `json:"funcs"`
	Totals      FuncStats     `json:"totals"`
	Descriptors int           `json:"descriptors"`
	Cache       CacheStats    `json:"cache"`
	Timing      observ.Report `json:"timing"`
}

// Stats summarizes the result in function order.
func (r *Result) Stats() StatsReport {
	rep := StatsReport{
		File:   r.Path,
		Funcs:  make([]FuncStats, 0, len(r.Funcs)),
		Totals: FuncStats{Name: "total", FBIP: len(r.Funcs) > 0},
		Cache:  CacheStats{SignatureHits: r.SigHits, SignatureMisses: r.SigMisses, DropsCached: r.DropsCached},
		Timing: r.Timing,
	}
	for _, fr := range r.Funcs {
		rep.Funcs = append(rep.Funcs, fr.Stats)
		rep.Totals.add(fr.Stats)
		rep.Totals.FBIP = rep.Totals.FBIP && fr.Stats.FBIP
		rep.Totals.Failed = rep.Totals.Failed || fr.Stats.Failed
	}
	if r.Drops != nil {
		rep.Descriptors = r.Drops.Len()
	}
	return rep
}

// WriteStats encodes the stats document as indented JSON.
func WriteStats(w io.Writer, rep StatsReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
