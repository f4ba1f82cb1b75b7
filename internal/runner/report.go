package runner

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/kuitang/checkers-replay/internal/checkers"
	"github.com/kuitang/checkers-replay/internal/fixture"
)

// Phase is a step of the per-move state machine.
type Phase string

const (
	PhasePrecheck       Phase = "precheck"
	PhaseAct            Phase = "act"
	PhasePostcheck      Phase = "postcheck"
	PhaseCaptureCheck   Phase = "capture_check"
	PhasePromotionCheck Phase = "promotion_check"
	PhasePromptCheck    Phase = "prompt_check"
)

// Status is the outcome of a run.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Step records one replayed move.
type Step struct {
	Move int            `json:"move"`
	From fixture.Square `json:"from"`
	To   fixture.Square `json:"to"`

	// Source is the source piece observed before the move, Destination the
	// destination piece observed after it.
	Source      checkers.PieceState `json:"source"`
	Destination checkers.PieceState `json:"destination"`

	Capture  *checkers.CaptureResult `json:"capture,omitempty"`
	King     *bool                   `json:"king,omitempty"`
	Invalid  bool                    `json:"invalid,omitempty"`
	Phases   []Phase                 `json:"phases"`
	FailedAt Phase                   `json:"failedAt,omitempty"`
	Error    string                  `json:"error,omitempty"`
	Duration time.Duration           `json:"durationNs"`
}

// Passed reports whether every phase of the step succeeded.
func (s Step) Passed() bool {
	return s.FailedAt == ""
}

// Report is the record of one scenario replay.
type Report struct {
	RunID      string    `json:"runId"`
	ScenarioID string    `json:"scenarioId"`
	HostURL    string    `json:"hostUrl"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	Status     Status `json:"status"`
	SkipReason string `json:"skipReason,omitempty"`
	Error      string `json:"error,omitempty"`

	Steps           []Step `json:"steps"`
	CaptureDetected bool   `json:"captureDetected"`
	Restarted       bool   `json:"restarted"`
}

// Failed reports whether the run failed.
func (r *Report) Failed() bool {
	return r.Status == StatusFailed
}

// JSON renders the report.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func transcriptLine(move int, from, to fixture.Square, source, dest checkers.PieceState) string {
	return fmt.Sprintf("move %d %s -> %s: source %s, destination %s", move, from, to, source, dest)
}

func probeLine(sq fixture.Square, before, after checkers.PieceState) string {
	return fmt.Sprintf("  monitored %s: %s -> %s", sq, before, after)
}

// Transcript renders the observed before/after sequence, one line per
// observation.
func (r *Report) Transcript() string {
	var b strings.Builder
	for _, s := range r.Steps {
		b.WriteString(transcriptLine(s.Move, s.From, s.To, s.Source, s.Destination))
		b.WriteByte('\n')
		if s.Capture != nil {
			b.WriteString(probeLine(s.Capture.Square, s.Capture.Before, s.Capture.After))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// ExpectedTranscript renders the sequence the fixture expects, in the
// format of Report.Transcript.
func ExpectedTranscript(sc *fixture.Scenario) string {
	var b strings.Builder
	for i, m := range sc.Moves {
		source := checkers.PieceState{Name: m.FromName, Src: m.FromSrc}
		dest := checkers.PieceState{Name: m.ToName, Src: m.ToSrcAfter}
		b.WriteString(transcriptLine(i+1, m.From(), m.To(), source, dest))
		b.WriteByte('\n')
		if m.ChecksCapture() {
			b.WriteString(probeLine(m.CheckBlueBefore.Square(), checkers.ProbeState(*m.CheckBlueBefore), checkers.ProbeState(*m.CheckBlueAfter)))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Diff returns a unified diff of the fixture's expected transcript against
// the observed one, or "" when they match.
func (r *Report) Diff(sc *fixture.Scenario) (string, error) {
	want := ExpectedTranscript(sc)
	got := r.Transcript()
	if want == got {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(got),
		FromFile: "expected/" + sc.ScenarioID,
		ToFile:   "observed/" + sc.ScenarioID,
		Context:  2,
	})
}
