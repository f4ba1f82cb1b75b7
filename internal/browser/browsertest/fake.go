// Package browsertest provides an in-memory browser.Driver for unit tests.
package browsertest

import (
	"context"
	"sync"

	"github.com/kuitang/checkers-replay/internal/browser"
)

// Element is a fake DOM element.
type Element struct {
	Text    string
	Attrs   map[string]string
	Visible bool
}

// Fake is a scriptable browser.Driver. Elements are registered per CSS
// selector string; queries resolve Selector.Index against that list.
type Fake struct {
	mu       sync.Mutex
	title    string
	url      string
	elements map[string][]*Element
	state    browser.StorageState

	// OnClick runs after a click is recorded, with the fake unlocked.
	OnClick func(f *Fake, sel browser.Selector) error
	// OnNavigate runs after a navigation is recorded, with the fake unlocked.
	OnNavigate func(f *Fake, url string) error

	clicks      []browser.Selector
	navigations []string
	closed      bool
}

var _ browser.Driver = (*Fake)(nil)

// New returns an empty fake page.
func New() *Fake {
	return &Fake{elements: make(map[string][]*Element)}
}

// SetTitle sets the document title.
func (f *Fake) SetTitle(title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.title = title
}

// Set replaces the elements matching css.
func (f *Fake) Set(css string, els ...*Element) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.elements[css] = els
}

// SetText sets the text of the first element matching css, creating a
// visible element when none exists.
func (f *Fake) SetText(css, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.first(css).Text = text
}

// SetAttr sets an attribute on the first element matching css, creating a
// visible element when none exists.
func (f *Fake) SetAttr(css, name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	el := f.first(css)
	if el.Attrs == nil {
		el.Attrs = make(map[string]string)
	}
	el.Attrs[name] = value
}

// SetStorageState sets what StorageState returns.
func (f *Fake) SetStorageState(state browser.StorageState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
}

func (f *Fake) first(css string) *Element {
	els := f.elements[css]
	if len(els) == 0 {
		el := &Element{Visible: true}
		f.elements[css] = []*Element{el}
		return el
	}
	return els[0]
}

// Clicks returns the clicked selectors in order.
func (f *Fake) Clicks() []browser.Selector {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]browser.Selector(nil), f.clicks...)
}

// Navigations returns the navigated URLs in order.
func (f *Fake) Navigations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.navigations...)
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) lookup(sel browser.Selector) (*Element, error) {
	els := f.elements[sel.CSS]
	i := sel.Index
	if i < 0 {
		i = len(els) + i
	}
	if i < 0 || i >= len(els) {
		return nil, &notFoundError{sel: sel}
	}
	return els[i], nil
}

type notFoundError struct{ sel browser.Selector }

func (e *notFoundError) Error() string { return browser.ErrElementNotFound.Error() + ": " + e.sel.String() }
func (e *notFoundError) Unwrap() error { return browser.ErrElementNotFound }

func (f *Fake) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.url = url
	f.navigations = append(f.navigations, url)
	hook := f.OnNavigate
	f.mu.Unlock()
	if hook != nil {
		return hook(f, url)
	}
	return nil
}

func (f *Fake) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title, nil
}

func (f *Fake) Text(ctx context.Context, sel browser.Selector) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	el, err := f.lookup(sel)
	if err != nil {
		return "", err
	}
	return el.Text, nil
}

func (f *Fake) Attribute(ctx context.Context, sel browser.Selector, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	el, err := f.lookup(sel)
	if err != nil {
		return "", err
	}
	return el.Attrs[name], nil
}

func (f *Fake) Click(ctx context.Context, sel browser.Selector) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	if _, err := f.lookup(sel); err != nil {
		f.mu.Unlock()
		return err
	}
	f.clicks = append(f.clicks, sel)
	hook := f.OnClick
	f.mu.Unlock()
	if hook != nil {
		return hook(f, sel)
	}
	return nil
}

func (f *Fake) Count(ctx context.Context, sel browser.Selector) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.elements[sel.CSS]), nil
}

func (f *Fake) Visible(ctx context.Context, sel browser.Selector) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	el, err := f.lookup(sel)
	if err != nil {
		return false, err
	}
	return el.Visible, nil
}

func (f *Fake) StorageState(ctx context.Context) (*browser.StorageState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.state
	return &state, nil
}

// Screenshot returns a fixed placeholder.
func (f *Fake) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []byte("\x89PNG fake"), nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
