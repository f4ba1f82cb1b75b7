package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Rod drives a page with go-rod.
type Rod struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher // nil when attached to a remote browser
}

var _ Driver = (*Rod)(nil)

// NewRod launches Chromium via the rod launcher (or attaches to
// opts.CDPURL) and opens a blank page.
func NewRod(ctx context.Context, opts Options) (*Rod, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	controlURL := opts.CDPURL
	var l *launcher.Launcher
	if controlURL == "" {
		l = launcher.New().Headless(opts.Headless)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chromium: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("connect to %s: %w", controlURL, err)
	}
	// Detach from the constructor's context for the rest of the session.
	b = b.Context(context.Background())

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("create page: %w", err)
	}

	opts.logger().Debug("rod page opened", "cdp", opts.CDPURL != "", "headless", opts.Headless)
	return &Rod{browser: b, page: page, launcher: l}, nil
}

func (d *Rod) on(ctx context.Context) *rod.Page {
	return d.page.Context(ctx)
}

func (d *Rod) element(ctx context.Context, sel Selector) (*rod.Element, error) {
	els, err := d.on(ctx).Elements(sel.CSS)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", sel.CSS, err)
	}
	idx, ok := resolveIndex(sel.Index, len(els))
	if !ok {
		return nil, notFound(sel)
	}
	return els[idx], nil
}

func (d *Rod) Navigate(ctx context.Context, url string) error {
	p := d.on(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait for load of %s: %w", url, err)
	}
	return nil
}

func (d *Rod) Title(ctx context.Context) (string, error) {
	info, err := d.on(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (d *Rod) Text(ctx context.Context, sel Selector) (string, error) {
	el, err := d.element(ctx, sel)
	if err != nil {
		return "", err
	}
	return el.Text()
}

func (d *Rod) Attribute(ctx context.Context, sel Selector, name string) (string, error) {
	el, err := d.element(ctx, sel)
	if err != nil {
		return "", err
	}
	v, err := el.Attribute(name)
	if err != nil || v == nil {
		return "", err
	}
	return *v, nil
}

func (d *Rod) Click(ctx context.Context, sel Selector) error {
	el, err := d.element(ctx, sel)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	return nil
}

func (d *Rod) Count(ctx context.Context, sel Selector) (int, error) {
	els, err := d.on(ctx).Elements(sel.CSS)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", sel.CSS, err)
	}
	return len(els), nil
}

func (d *Rod) Visible(ctx context.Context, sel Selector) (bool, error) {
	el, err := d.element(ctx, sel)
	if err != nil {
		return false, err
	}
	return el.Visible()
}

func (d *Rod) StorageState(ctx context.Context) (*StorageState, error) {
	p := d.on(ctx)
	cookies, err := p.Cookies(nil)
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	res, err := p.Eval(`() => ` + localStorageJS)
	if err != nil {
		return nil, fmt.Errorf("read local storage: %w", err)
	}
	snap, err := parseLocalStorage(res.Value.Str())
	if err != nil {
		return nil, err
	}

	state := &StorageState{Cookies: []Cookie{}, Origins: snap.origins()}
	for _, c := range cookies {
		state.Cookies = append(state.Cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HttpOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return state, nil
}

func (d *Rod) Screenshot(ctx context.Context) ([]byte, error) {
	return d.on(ctx).Screenshot(false, nil)
}

func (d *Rod) Close() error {
	err := d.page.Close()
	if cerr := d.browser.Close(); err == nil {
		err = cerr
	}
	if d.launcher != nil {
		d.launcher.Kill()
	}
	return err
}
