package pathway

import "context"

// Stage names as recorded in logs, spans and the run ledger.
const (
	StageRasterize = "rasterize"
	StageExtract   = "extract"
	StageComplete  = "complete"
	StageMatch     = "match"
	StageRender    = "render"
)

type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeSkipped         Outcome = "skipped"
	OutcomeFailed          Outcome = "failed"
	OutcomeNeedsTruncation Outcome = "needs_truncation"
)

// Event is the outcome of one stage for one document.
type Event struct {
	Stage    string
	Document string
	Outcome  Outcome
	Detail   string
	Artifact string
}

// Recorder persists stage outcomes. Stages treat recording failures as
// warnings.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Event) error { return nil }

// NopRecorder discards every event.
var NopRecorder Recorder = nopRecorder{}
