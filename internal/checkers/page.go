// Package checkers is the page object for the Games for the Brain checkers
// board. It names the DOM regions the harness depends on and turns board
// operations (move, restart, capture and promotion checks) into driver
// queries and clicks.
//
// No board model is kept: every observation is re-read from the page.
package checkers

import (
	"context"
	"fmt"
	"time"

	"github.com/kuitang/checkers-replay/internal/browser"
	"github.com/kuitang/checkers-replay/internal/fixture"
	"github.com/kuitang/checkers-replay/internal/obs"
)

// DOM contract of the game page.
const (
	PageTitle   = "Checkers - Games for the Brain"
	HeaderText  = "Checkers"
	PromptIdle  = "Make a move."
	PromptStart = "Select an orange piece to move."
	RestartText = "Restart..."
	RulesText   = "Rules"
	LineCount   = 8

	// KingSrc is the image of a promoted orange piece.
	KingSrc = "you2.gif"

	// StartName and StartSrc identify piece (1, 1) on a fresh board.
	StartName = "space77"
	StartSrc  = "me1.gif"
)

// Options bound the page's waits.
type Options struct {
	// Timeout bounds every expectation.
	Timeout time.Duration
	// Interval is the polling period of expectations.
	Interval time.Duration
	// PromptSettle is slept before polling for the move prompt.
	PromptSettle time.Duration
}

const (
	defaultTimeout  = 5 * time.Second
	defaultInterval = 100 * time.Millisecond
)

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return defaultTimeout
	}
	return o.Timeout
}

func (o Options) interval() time.Duration {
	if o.Interval <= 0 {
		return defaultInterval
	}
	return o.Interval
}

// PieceState is the observed identity of a piece image.
type PieceState struct {
	Name string `json:"name"`
	Src  string `json:"src"`
}

func (s PieceState) String() string {
	return fmt.Sprintf("name=%q src=%q", s.Name, s.Src)
}

// Page wraps a driver with the checkers board locators.
type Page struct {
	d    browser.Driver
	opts Options

	Header       browser.Selector
	GameWrapper  browser.Selector
	BoardWrapper browser.Selector
	Message      browser.Selector
	RestartLink  browser.Selector
	RulesLink    browser.Selector
	Board        browser.Selector
	Lines        browser.Selector
}

// New returns a page object over d.
func New(d browser.Driver, opts Options) *Page {
	footnote := browser.CSS("p.footnote a")
	return &Page{
		d:            d,
		opts:         opts,
		Header:       browser.CSS("div.page h1"),
		GameWrapper:  browser.CSS(".gameWrapper"),
		BoardWrapper: browser.CSS(".boardWrapper"),
		Message:      browser.CSS("#message"),
		RestartLink:  footnote,
		RulesLink:    footnote.Last(),
		Board:        browser.CSS("#board"),
		Lines:        browser.CSS("div.line"),
	}
}

// Driver returns the underlying driver.
func (p *Page) Driver() browser.Driver {
	return p.d
}

// Open navigates to url.
func (p *Page) Open(ctx context.Context, url string) error {
	return p.d.Navigate(ctx, url)
}

// Piece returns the selector of the image at sq. Indexes are not bounds
// checked; a bad square surfaces as browser.ErrElementNotFound.
func Piece(sq fixture.Square) browser.Selector {
	return browser.CSS(fmt.Sprintf("div.line:nth-child(%d) img:nth-child(%d)", sq.Line, sq.Img))
}

// GetPiece returns the selector of the image at (line, img).
func (p *Page) GetPiece(line, img int) browser.Selector {
	return Piece(fixture.Square{Line: line, Img: img})
}

// GetBoardState reads the name and src attributes of the piece at sq.
func (p *Page) GetBoardState(ctx context.Context, sq fixture.Square) (PieceState, error) {
	sel := Piece(sq)
	name, err := p.d.Attribute(ctx, sel, "name")
	if err != nil {
		return PieceState{}, fmt.Errorf("read name of %s: %w", sq, err)
	}
	src, err := p.d.Attribute(ctx, sel, "src")
	if err != nil {
		return PieceState{}, fmt.Errorf("read src of %s: %w", sq, err)
	}
	return PieceState{Name: name, Src: src}, nil
}

// WaitForMovePrompt waits until the banner reads PromptIdle.
func (p *Page) WaitForMovePrompt(ctx context.Context) error {
	if err := p.settle(ctx); err != nil {
		return err
	}
	return p.ExpectText(ctx, p.Message, PromptIdle)
}

// waitForTurn accepts the start prompt as well as the idle prompt, so the
// first move of a fresh game does not wait for a banner it never shows.
func (p *Page) waitForTurn(ctx context.Context) error {
	if err := p.settle(ctx); err != nil {
		return err
	}
	return p.ExpectTextIn(ctx, p.Message, PromptIdle, PromptStart)
}

func (p *Page) settle(ctx context.Context) error {
	return sleep(ctx, p.opts.PromptSettle)
}

// MakeMove clicks from, pauses wait, clicks to and pauses waitAfter. Unless
// isInvalid, it first waits for the game to accept input.
func (p *Page) MakeMove(ctx context.Context, from, to fixture.Square, wait, waitAfter time.Duration, isInvalid bool) error {
	if !isInvalid {
		if err := p.waitForTurn(ctx); err != nil {
			return err
		}
	}
	log := obs.From(ctx)
	log.Debug("click source", "square", from.String())
	if err := p.d.Click(ctx, Piece(from)); err != nil {
		return fmt.Errorf("click source %s: %w", from, err)
	}
	if err := sleep(ctx, wait); err != nil {
		return err
	}
	log.Debug("click destination", "square", to.String())
	if err := p.d.Click(ctx, Piece(to)); err != nil {
		return fmt.Errorf("click destination %s: %w", to, err)
	}
	return sleep(ctx, waitAfter)
}

// RestartGame clicks the restart link and waits for the starting board.
func (p *Page) RestartGame(ctx context.Context) error {
	if err := p.d.Click(ctx, p.RestartLink); err != nil {
		return fmt.Errorf("click restart: %w", err)
	}
	if err := p.ExpectText(ctx, p.Message, PromptStart); err != nil {
		return err
	}
	return p.ExpectPiece(ctx, fixture.Square{Line: 1, Img: 1}, PieceState{Name: StartName, Src: StartSrc})
}

// CaptureResult holds the monitored square observed around a move.
type CaptureResult struct {
	Square   fixture.Square `json:"square"`
	Before   PieceState `json:"before"`
	After    PieceState `json:"after"`
	Captured bool       `json:"captured"`
}

// Capture reads the monitored square, performs the move and reads the
// square again. Captured is set when both observations equal the expected
// before and after name/src pairs. The comparison is a heuristic on
// attributes, not a rule check.
func (p *Page) Capture(ctx context.Context, from, to fixture.Square, before, after fixture.Probe, wait, waitAfter time.Duration) (CaptureResult, error) {
	res := CaptureResult{Square: before.Square()}
	var err error
	if res.Before, err = p.GetBoardState(ctx, before.Square()); err != nil {
		return res, err
	}
	if err := p.MakeMove(ctx, from, to, wait, waitAfter, false); err != nil {
		return res, err
	}
	if res.After, err = p.GetBoardState(ctx, after.Square()); err != nil {
		return res, err
	}
	res.Captured = CaptureObserved(res.Before, res.After, before, after)
	obs.From(ctx).Info("capture check",
		"square", before.Square().String(),
		"before", res.Before.Src,
		"after", res.After.Src,
		"captured", res.Captured,
	)
	return res, nil
}

// CheckCapture is Capture reduced to its verdict.
func (p *Page) CheckCapture(ctx context.Context, from, to fixture.Square, before, after fixture.Probe, wait, waitAfter time.Duration) (bool, error) {
	res, err := p.Capture(ctx, from, to, before, after, wait, waitAfter)
	return res.Captured, err
}

// CaptureObserved is the capture heuristic: both observed name/src pairs
// equal the expected ones.
func CaptureObserved(before, after PieceState, wantBefore, wantAfter fixture.Probe) bool {
	return before == ProbeState(wantBefore) && after == ProbeState(wantAfter)
}

// ProbeState is the piece state a probe expects.
func ProbeState(p fixture.Probe) PieceState {
	return PieceState{Name: p.Name, Src: p.Src}
}

// CheckKingPromotion reports whether the piece at sq shows expectedSrc and
// expectedSrc is the king image.
func (p *Page) CheckKingPromotion(ctx context.Context, sq fixture.Square, expectedSrc string) (bool, error) {
	state, err := p.GetBoardState(ctx, sq)
	if err != nil {
		return false, err
	}
	return KingObserved(state.Src, expectedSrc), nil
}

// KingObserved is the promotion heuristic.
func KingObserved(observedSrc, expectedSrc string) bool {
	return observedSrc == expectedSrc && expectedSrc == KingSrc
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
