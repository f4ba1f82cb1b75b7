// Package browser abstracts the browser automation handle behind a small
// Driver interface so page objects can run on Playwright, chromedp or rod.
//
// Drivers never wait for elements to appear: a query against a missing
// element fails immediately with ErrElementNotFound. Waiting is the caller's
// job (see checkers.Page expectations), which keeps every wait bounded and
// visible in one place.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrElementNotFound is returned when a selector matches no element at the
// requested index.
var ErrElementNotFound = errors.New("browser: element not found")

// Engine names a driver implementation.
type Engine string

const (
	EnginePlaywright Engine = "playwright"
	EngineChromedp   Engine = "chromedp"
	EngineRod        Engine = "rod"
)

// Engines lists the supported engines.
func Engines() []Engine {
	return []Engine{EnginePlaywright, EngineChromedp, EngineRod}
}

// Valid reports whether e is a supported engine.
func (e Engine) Valid() bool {
	for _, known := range Engines() {
		if e == known {
			return true
		}
	}
	return false
}

// Selector addresses one element among the matches of a CSS selector.
// Index 0 is the first match; negative indexes count from the end, so -1 is
// the last match.
type Selector struct {
	CSS   string
	Index int
}

// CSS returns a selector for the first match of css.
func CSS(css string) Selector {
	return Selector{CSS: css}
}

// Last returns the selector for the last match.
func (s Selector) Last() Selector {
	return Selector{CSS: s.CSS, Index: -1}
}

// Nth returns the selector for the i-th (0-based) match.
func (s Selector) Nth(i int) Selector {
	return Selector{CSS: s.CSS, Index: i}
}

func (s Selector) String() string {
	switch {
	case s.Index == 0:
		return s.CSS
	case s.Index == -1:
		return s.CSS + " >> last"
	default:
		return fmt.Sprintf("%s >> nth=%d", s.CSS, s.Index)
	}
}

// resolveIndex maps a selector index onto a match count.
func resolveIndex(index, count int) (int, bool) {
	if index < 0 {
		index = count + index
	}
	if index < 0 || index >= count {
		return 0, false
	}
	return index, true
}

func notFound(sel Selector) error {
	return fmt.Errorf("%w: %s", ErrElementNotFound, sel)
}

// Driver is a live browser page.
type Driver interface {
	// Navigate loads url and waits for the DOM to be ready.
	Navigate(ctx context.Context, url string) error
	// Title returns the document title.
	Title(ctx context.Context) (string, error)
	// Text returns the element's text content.
	Text(ctx context.Context, sel Selector) (string, error)
	// Attribute returns the attribute value, or "" when it is absent.
	Attribute(ctx context.Context, sel Selector, name string) (string, error)
	// Click clicks the element.
	Click(ctx context.Context, sel Selector) error
	// Count returns the number of elements matching sel.CSS; Index is ignored.
	Count(ctx context.Context, sel Selector) (int, error)
	// Visible reports whether the element is rendered with a non-empty box.
	Visible(ctx context.Context, sel Selector) (bool, error)
	// StorageState captures cookies and local storage of the current page.
	StorageState(ctx context.Context) (*StorageState, error)
	// Screenshot captures the viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	// Close releases the page and any browser the driver launched.
	Close() error
}

// Options configures Open.
type Options struct {
	Engine   Engine
	Headless bool
	// CDPURL connects to an already running browser instead of launching one.
	CDPURL string
	// Timeout bounds single driver operations such as navigation.
	Timeout time.Duration
	Logger  *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return 30 * time.Second
}

// Open starts a browser page with the configured engine.
func Open(ctx context.Context, opts Options) (Driver, error) {
	switch opts.Engine {
	case EnginePlaywright, "":
		return NewPlaywright(ctx, opts)
	case EngineChromedp:
		return NewChromedp(ctx, opts)
	case EngineRod:
		return NewRod(ctx, opts)
	}
	return nil, fmt.Errorf("browser: unknown engine %q", opts.Engine)
}
