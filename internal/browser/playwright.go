package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/playwright-community/playwright-go"
)

// Playwright drives a page through playwright-go.
type Playwright struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	owned   bool
}

var _ Driver = (*Playwright)(nil)

// NewPlaywright starts Playwright, launches (or connects to) Chromium and
// opens a page in a fresh browser context.
func NewPlaywright(ctx context.Context, opts Options) (*Playwright, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	var b playwright.Browser
	if opts.CDPURL != "" {
		b, err = pw.Chromium.ConnectOverCDP(opts.CDPURL)
	} else {
		b, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(opts.Headless),
		})
	}
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	bctx, err := b.NewContext()
	if err != nil {
		_ = b.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("create browser context: %w", err)
	}
	timeoutMS := float64(opts.timeout().Milliseconds())
	bctx.SetDefaultTimeout(timeoutMS)
	bctx.SetDefaultNavigationTimeout(timeoutMS)

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = b.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("create page: %w", err)
	}

	opts.logger().Debug("playwright page opened", "cdp", opts.CDPURL != "", "headless", opts.Headless)
	return &Playwright{pw: pw, browser: b, context: bctx, page: page, owned: true}, nil
}

// WrapPlaywrightPage adapts a page whose lifecycle the caller manages.
// Close only closes the page.
func WrapPlaywrightPage(page playwright.Page) *Playwright {
	return &Playwright{page: page, context: page.Context()}
}

// Page returns the underlying Playwright page.
func (d *Playwright) Page() playwright.Page {
	return d.page
}

func (d *Playwright) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := d.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (d *Playwright) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.page.Title()
}

// locate returns a locator for exactly one existing element.
func (d *Playwright) locate(ctx context.Context, sel Selector) (playwright.Locator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all := d.page.Locator(sel.CSS)
	count, err := all.Count()
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", sel.CSS, err)
	}
	idx, ok := resolveIndex(sel.Index, count)
	if !ok {
		return nil, notFound(sel)
	}
	return all.Nth(idx), nil
}

func (d *Playwright) Text(ctx context.Context, sel Selector) (string, error) {
	loc, err := d.locate(ctx, sel)
	if err != nil {
		return "", err
	}
	return loc.TextContent()
}

func (d *Playwright) Attribute(ctx context.Context, sel Selector, name string) (string, error) {
	loc, err := d.locate(ctx, sel)
	if err != nil {
		return "", err
	}
	return loc.GetAttribute(name)
}

func (d *Playwright) Click(ctx context.Context, sel Selector) error {
	loc, err := d.locate(ctx, sel)
	if err != nil {
		return err
	}
	if err := loc.Click(); err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	return nil
}

func (d *Playwright) Count(ctx context.Context, sel Selector) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return d.page.Locator(sel.CSS).Count()
}

func (d *Playwright) Visible(ctx context.Context, sel Selector) (bool, error) {
	loc, err := d.locate(ctx, sel)
	if err != nil {
		return false, err
	}
	return loc.IsVisible()
}

func (d *Playwright) StorageState(ctx context.Context) (*StorageState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := d.context.StorageState()
	if err != nil {
		return nil, err
	}
	// Both types follow the storage-state JSON shape.
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var state StorageState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (d *Playwright) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.page.Screenshot()
}

func (d *Playwright) Close() error {
	err := d.page.Close()
	if !d.owned {
		return err
	}
	if cerr := d.context.Close(); err == nil {
		err = cerr
	}
	if cerr := d.browser.Close(); err == nil {
		err = cerr
	}
	if cerr := d.pw.Stop(); err == nil {
		err = cerr
	}
	return err
}
