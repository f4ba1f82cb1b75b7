package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Chromedp drives a tab over the Chrome DevTools Protocol with chromedp.
type Chromedp struct {
	ctx         context.Context // tab context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

var _ Driver = (*Chromedp)(nil)

// NewChromedp launches Chrome (or attaches to opts.CDPURL) and opens a tab.
func NewChromedp(ctx context.Context, opts Options) (*Chromedp, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := opts.logger()

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if opts.CDPURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), opts.CDPURL)
	} else {
		allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
		)
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), allocOpts...)
	}

	tabCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...), "engine", EngineChromedp)
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Warn(fmt.Sprintf(format, args...), "engine", EngineChromedp)
		}),
	)

	// The first Run allocates the browser and binds its lifetime to tabCtx,
	// so it must not run on a derived context.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	logger.Debug("chromedp tab opened", "cdp", opts.CDPURL != "", "headless", opts.Headless)
	return &Chromedp{ctx: tabCtx, cancel: cancel, allocCancel: allocCancel}, nil
}

// run executes actions on the tab, aborting when ctx is done.
func (d *Chromedp) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// elementJS wraps body in a function that resolves sel to one element and
// returns {found:false} when it does not exist. body sees the element as el.
func elementJS(sel Selector, body string) string {
	css, _ := json.Marshal(sel.CSS)
	return fmt.Sprintf(`(() => {
	const all = document.querySelectorAll(%s);
	let i = %d;
	if (i < 0) i = all.length + i;
	const el = (i >= 0 && i < all.length) ? all[i] : null;
	if (!el) return {found: false};
	%s
})()`, css, sel.Index, body)
}

type elementResult struct {
	Found   bool   `json:"found"`
	Value   string `json:"value"`
	Visible bool   `json:"visible"`
}

func (d *Chromedp) evalElement(ctx context.Context, sel Selector, body string) (elementResult, error) {
	var res elementResult
	if err := d.run(ctx, chromedp.Evaluate(elementJS(sel, body), &res)); err != nil {
		return res, fmt.Errorf("evaluate on %s: %w", sel, err)
	}
	if !res.Found {
		return res, notFound(sel)
	}
	return res, nil
}

func (d *Chromedp) Navigate(ctx context.Context, url string) error {
	if err := d.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (d *Chromedp) Title(ctx context.Context) (string, error) {
	var title string
	if err := d.run(ctx, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

func (d *Chromedp) Text(ctx context.Context, sel Selector) (string, error) {
	res, err := d.evalElement(ctx, sel, `return {found: true, value: el.textContent || ""};`)
	return res.Value, err
}

func (d *Chromedp) Attribute(ctx context.Context, sel Selector, name string) (string, error) {
	quoted, _ := json.Marshal(name)
	res, err := d.evalElement(ctx, sel, fmt.Sprintf(
		`const v = el.getAttribute(%s); return {found: true, value: v === null ? "" : v};`, quoted))
	return res.Value, err
}

func (d *Chromedp) Click(ctx context.Context, sel Selector) error {
	var nodes []*cdp.Node
	if err := d.run(ctx, chromedp.Nodes(sel.CSS, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return fmt.Errorf("query %s: %w", sel.CSS, err)
	}
	idx, ok := resolveIndex(sel.Index, len(nodes))
	if !ok {
		return notFound(sel)
	}
	if err := d.run(ctx, chromedp.MouseClickNode(nodes[idx])); err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	return nil
}

func (d *Chromedp) Count(ctx context.Context, sel Selector) (int, error) {
	css, _ := json.Marshal(sel.CSS)
	var n int
	if err := d.run(ctx, chromedp.Evaluate(fmt.Sprintf(`document.querySelectorAll(%s).length`, css), &n)); err != nil {
		return 0, fmt.Errorf("count %s: %w", sel.CSS, err)
	}
	return n, nil
}

func (d *Chromedp) Visible(ctx context.Context, sel Selector) (bool, error) {
	res, err := d.evalElement(ctx, sel, `const r = el.getBoundingClientRect();
	const s = window.getComputedStyle(el);
	return {found: true, visible: r.width > 0 && r.height > 0 && s.visibility !== "hidden" && s.display !== "none"};`)
	return res.Visible, err
}

func (d *Chromedp) StorageState(ctx context.Context) (*StorageState, error) {
	var cookies []*network.Cookie
	var raw string
	err := d.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
		chromedp.Evaluate(localStorageJS, &raw),
	)
	if err != nil {
		return nil, err
	}
	snap, err := parseLocalStorage(raw)
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
			Expires:  c.Expires,
			HttpOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return state, nil
}

func (d *Chromedp) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

func (d *Chromedp) Close() error {
	err := chromedp.Cancel(d.ctx)
	d.cancel()
	d.allocCancel()
	return err
}
