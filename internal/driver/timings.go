package driver

import (
	"encoding/json"
	"fmt"

	"arcc/internal/diag"
	"arcc/internal/observ"
)

// timingPayload is the JSON note attached to an OBS6001 diagnostic.
type timingPayload struct {
	Path    string               `json:"path,omitempty"`
	TotalMS float64              `json:"total_ms"`
	Phases  []observ.PhaseReport `json:"phases"`
}

// recordTimings adds the stage report of one compile to bag. It reports
// false when the bag is already full, in which case the diagnostic is
// counted in bag.Dropped like any other.
func recordTimings(bag *diag.Bag, path string, rep observ.Report) bool {
	if bag == nil {
		return false
	}
	data, err := json.Marshal(timingPayload{Path: path, TotalMS: rep.TotalMS, Phases: rep.Phases})
	if err != nil {
		return false
	}
	msg := fmt.Sprintf("compiled in %.2f ms over %d stages", rep.TotalMS, len(rep.Phases))
	if path != "" {
		msg += ": " + path
	}
	return bag.Add(diag.Diagnostic{
		Severity: diag.SevInfo,
		Code:     diag.ObsTimings,
		Message:  msg,
		Notes:    []diag.Note{{Msg: string(data)}},
	})
}
