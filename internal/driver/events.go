package driver

import "time"

// Stage is one step of the per-function pipeline.
type Stage string

const (
	StageRead   Stage = "read"
	StageInfer  Stage = "infer"
	StageInsert Stage = "insert"
	StageElim   Stage = "elim"
	StageReuse  Stage = "reuse"
	StageDrop   Stage = "drop"
	StageFBIP   Stage = "fbip"
	StageRun    Stage = "run"
)

// Status captures progress state within a stage.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusWorking Status = "working"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Event reports progress for a function, or for the whole module when Func
// is empty.
type Event struct {
	Func    string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. It is called from worker
// goroutines.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}
