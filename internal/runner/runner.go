// Package runner replays fixture scenarios against the checkers page.
//
// Every move goes through the same phases: precheck (source piece and, when
// present, the monitored blue piece), act, postcheck (destination piece),
// then the optional capture, promotion and prompt checks. The first failed
// phase aborts the move and the run; nothing is retried.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/checkers-replay/internal/checkers"
	"github.com/kuitang/checkers-replay/internal/errs"
	"github.com/kuitang/checkers-replay/internal/fixture"
	"github.com/kuitang/checkers-replay/internal/obs"
)

// Runner drives one page through scenarios.
type Runner struct {
	page    *checkers.Page
	hostURL string
	now     func() time.Time
}

// New returns a runner for page. hostURL is recorded in reports.
func New(page *checkers.Page, hostURL string) *Runner {
	return &Runner{page: page, hostURL: hostURL, now: time.Now}
}

// Page returns the page the runner drives.
func (r *Runner) Page() *checkers.Page {
	return r.page
}

// VerifyLayout checks that the game page is up: header, wrappers, start
// banner, footnote links, board and its 8 lines.
func (r *Runner) VerifyLayout(ctx context.Context) error {
	p := r.page
	checks := []func(context.Context) error{
		func(ctx context.Context) error { return p.ExpectText(ctx, p.Header, checkers.HeaderText) },
		func(ctx context.Context) error { return p.ExpectVisible(ctx, p.GameWrapper) },
		func(ctx context.Context) error { return p.ExpectVisible(ctx, p.BoardWrapper) },
		func(ctx context.Context) error { return p.ExpectText(ctx, p.Message, checkers.PromptStart) },
		func(ctx context.Context) error { return p.ExpectText(ctx, p.RestartLink, checkers.RestartText) },
		func(ctx context.Context) error { return p.ExpectText(ctx, p.RulesLink, checkers.RulesText) },
		func(ctx context.Context) error { return p.ExpectVisible(ctx, p.Board) },
		func(ctx context.Context) error { return p.ExpectCount(ctx, p.Lines, checkers.LineCount) },
	}
	for _, check := range checks {
		if err := check(ctx); err != nil {
			return fmt.Errorf("layout: %w", err)
		}
	}
	obs.From(ctx).Info("layout verified")
	return nil
}

// RunMove replays move n (1-based) and returns its step record. On error
// the step names the phase that failed.
func (r *Runner) RunMove(ctx context.Context, n int, m fixture.Move) (Step, error) {
	ctx = obs.WithMove(ctx, n)
	log := obs.From(ctx)
	p := r.page
	start := r.now()
	step := Step{Move: n, From: m.From(), To: m.To(), Invalid: m.IsInvalid}

	fail := func(phase Phase, err error) (Step, error) {
		step.FailedAt = phase
		step.Error = err.Error()
		step.Duration = r.now().Sub(start)
		log.Warn("move failed", "phase", string(phase), "error", err.Error())
		return step, fmt.Errorf("move %d %s: %w", n, phase, err)
	}
	enter := func(phase Phase) {
		step.Phases = append(step.Phases, phase)
	}

	log.Info("move", "from", m.From().String(), "to", m.To().String())

	enter(PhasePrecheck)
	if err := p.ExpectPiece(ctx, m.From(), checkers.PieceState{Name: m.FromName, Src: m.FromSrc}); err != nil {
		return fail(PhasePrecheck, err)
	}
	source, err := p.GetBoardState(ctx, m.From())
	if err != nil {
		return fail(PhasePrecheck, err)
	}
	step.Source = source
	if m.CheckBlueBefore != nil {
		if err := p.ExpectPiece(ctx, m.CheckBlueBefore.Square(), checkers.ProbeState(*m.CheckBlueBefore)); err != nil {
			return fail(PhasePrecheck, err)
		}
	}

	// A move with capture probes is performed by the capture check itself,
	// so the game sees it exactly once.
	enter(PhaseAct)
	if m.ChecksCapture() {
		res, err := p.Capture(ctx, m.From(), m.To(), *m.CheckBlueBefore, *m.CheckBlueAfter, m.Wait.Duration(), m.WaitAfter.Duration())
		if err != nil {
			return fail(PhaseAct, err)
		}
		step.Capture = &res
	} else if err := p.MakeMove(ctx, m.From(), m.To(), m.Wait.Duration(), m.WaitAfter.Duration(), m.IsInvalid); err != nil {
		return fail(PhaseAct, err)
	}

	enter(PhasePostcheck)
	if err := p.ExpectPiece(ctx, m.To(), checkers.PieceState{Name: m.ToName, Src: m.ToSrcAfter}); err != nil {
		return fail(PhasePostcheck, err)
	}
	dest, err := p.GetBoardState(ctx, m.To())
	if err != nil {
		return fail(PhasePostcheck, err)
	}
	step.Destination = dest

	if step.Capture != nil {
		enter(PhaseCaptureCheck)
		log.Info("capture observed", "captured", step.Capture.Captured)
	}

	if m.IsKing {
		enter(PhasePromotionCheck)
		king, err := p.CheckKingPromotion(ctx, m.To(), m.ToSrcAfter)
		if err != nil {
			return fail(PhasePromotionCheck, err)
		}
		step.King = &king
		if king {
			log.Info("king promotion verified")
		}
	}

	if !m.IsInvalid {
		enter(PhasePromptCheck)
		if err := p.WaitForMovePrompt(ctx); err != nil {
			return fail(PhasePromptCheck, err)
		}
	}

	step.Duration = r.now().Sub(start)
	return step, nil
}

// VerifyRestart restarts the game and checks the starting piece signature.
func (r *Runner) VerifyRestart(ctx context.Context) error {
	if err := r.page.RestartGame(ctx); err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	obs.From(ctx).Info("restart verified")
	return nil
}

// Run replays every move of sc in order and then restarts the game. The
// report is always returned; the error is the first failure. Capture
// observations are aggregated for the log only.
func (r *Runner) Run(ctx context.Context, sc *fixture.Scenario) (*Report, error) {
	ctx = obs.WithScenario(ctx, sc.ScenarioID)
	log := obs.From(ctx)
	corr := obs.CorrelationFromContext(ctx)
	report := &Report{
		RunID:      corr.RunID,
		ScenarioID: sc.ScenarioID,
		HostURL:    r.hostURL,
		StartedAt:  r.now().UTC(),
		Steps:      []Step{},
	}
	if report.RunID == "" {
		report.RunID = uuid.NewString()
	}

	finish := func(err error) (*Report, error) {
		report.FinishedAt = r.now().UTC()
		switch {
		case err == nil:
			report.Status = StatusPassed
		case errs.IsSkip(err):
			report.Status = StatusSkipped
			report.SkipReason = errs.MessageOf(err)
		default:
			report.Status = StatusFailed
			report.Error = err.Error()
		}
		log.Info("scenario finished", "status", string(report.Status), "moves", len(report.Steps))
		return report, err
	}

	if err := r.page.ExpectText(ctx, r.page.Message, checkers.PromptStart); err != nil {
		return finish(fmt.Errorf("start banner: %w", err))
	}

	for i, m := range sc.Moves {
		step, err := r.RunMove(ctx, i+1, m)
		report.Steps = append(report.Steps, step)
		if err != nil {
			return finish(err)
		}
		if step.Capture != nil && step.Capture.Captured {
			report.CaptureDetected = true
		}
	}

	if report.CaptureDetected {
		log.Info("orange took a blue piece", "moves", len(sc.Moves))
	} else {
		log.Info("no blue piece was taken", "moves", len(sc.Moves))
	}

	if err := r.VerifyRestart(ctx); err != nil {
		return finish(err)
	}
	report.Restarted = true
	return finish(nil)
}

// SkippedReport records a run that could not start.
func SkippedReport(ctx context.Context, scenarioID, hostURL string, cause error) *Report {
	now := time.Now().UTC()
	runID := obs.CorrelationFromContext(ctx).RunID
	report := &Report{
		RunID:      runID,
		ScenarioID: scenarioID,
		HostURL:    hostURL,
		StartedAt:  now,
		FinishedAt: now,
		Status:     StatusSkipped,
		Steps:      []Step{},
	}
	if cause != nil {
		report.SkipReason = errs.MessageOf(cause)
	}
	return report
}

// FailedReport records a run that failed before the first move, for
// example because the browser could not be started.
func FailedReport(ctx context.Context, scenarioID, hostURL string, cause error) *Report {
	report := SkippedReport(ctx, scenarioID, hostURL, nil)
	report.Status = StatusFailed
	if cause != nil {
		report.Error = cause.Error()
	}
	return report
}

// IsAssertion reports whether err is an observed-state mismatch rather than
// a driver or environment failure.
func IsAssertion(err error) bool {
	return err != nil && errs.CodeOf(err) == errs.FailedPrecondition
}
