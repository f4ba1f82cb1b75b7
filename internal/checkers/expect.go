package checkers

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/kuitang/checkers-replay/internal/browser"
	"github.com/kuitang/checkers-replay/internal/errs"
	"github.com/kuitang/checkers-replay/internal/fixture"
)

// poll re-reads an observation until match accepts it or the page timeout
// elapses. A missing element counts as "not yet"; any other driver error
// aborts. On timeout the error is errs.FailedPrecondition and names the last
// observation.
func (p *Page) poll(ctx context.Context, what, want string, read func(context.Context) (string, error), match func(string) bool) error {
	last := "<not found>"
	err := wait.PollUntilContextTimeout(ctx, p.opts.interval(), p.opts.timeout(), true, func(ctx context.Context) (bool, error) {
		got, err := read(ctx)
		if errors.Is(err, browser.ErrElementNotFound) {
			last = "<not found>"
			return false, nil
		}
		if err != nil {
			return false, err
		}
		last = got
		return match(got), nil
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if wait.Interrupted(err) {
		return errs.Newf(errs.FailedPrecondition, "expected %s to be %s, got %q after %s", what, want, last, p.opts.timeout())
	}
	return fmt.Errorf("expect %s: %w", what, err)
}

// normalizeText collapses whitespace runs and trims, the way rendered text
// is compared.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ExpectText waits until the text of sel equals want after whitespace
// normalization.
func (p *Page) ExpectText(ctx context.Context, sel browser.Selector, want string) error {
	return p.ExpectTextIn(ctx, sel, want)
}

// ExpectTextIn waits until the text of sel equals one of wants.
func (p *Page) ExpectTextIn(ctx context.Context, sel browser.Selector, wants ...string) error {
	normalized := make([]string, len(wants))
	quoted := make([]string, len(wants))
	for i, w := range wants {
		normalized[i] = normalizeText(w)
		quoted[i] = strconv.Quote(w)
	}
	read := func(ctx context.Context) (string, error) {
		text, err := p.d.Text(ctx, sel)
		return normalizeText(text), err
	}
	return p.poll(ctx, "text of "+sel.String(), strings.Join(quoted, " or "), read, func(got string) bool {
		return slices.Contains(normalized, got)
	})
}

// ExpectAttribute waits until attribute name of sel equals want.
func (p *Page) ExpectAttribute(ctx context.Context, sel browser.Selector, name, want string) error {
	read := func(ctx context.Context) (string, error) {
		return p.d.Attribute(ctx, sel, name)
	}
	return p.poll(ctx, fmt.Sprintf("%s of %s", name, sel), strconv.Quote(want), read, func(got string) bool {
		return got == want
	})
}

// ExpectPiece waits until the piece at sq has the wanted name and src.
func (p *Page) ExpectPiece(ctx context.Context, sq fixture.Square, want PieceState) error {
	read := func(ctx context.Context) (string, error) {
		state, err := p.GetBoardState(ctx, sq)
		return state.String(), err
	}
	wantText := want.String()
	return p.poll(ctx, "piece "+sq.String(), wantText, read, func(got string) bool {
		return got == wantText
	})
}

// ExpectCount waits until sel matches exactly n elements.
func (p *Page) ExpectCount(ctx context.Context, sel browser.Selector, n int) error {
	read := func(ctx context.Context) (string, error) {
		count, err := p.d.Count(ctx, sel)
		return strconv.Itoa(count), err
	}
	want := strconv.Itoa(n)
	return p.poll(ctx, "count of "+sel.CSS, want, read, func(got string) bool {
		return got == want
	})
}

// ExpectVisible waits until sel is visible.
func (p *Page) ExpectVisible(ctx context.Context, sel browser.Selector) error {
	read := func(ctx context.Context) (string, error) {
		visible, err := p.d.Visible(ctx, sel)
		return strconv.FormatBool(visible), err
	}
	return p.poll(ctx, "visibility of "+sel.String(), "true", read, func(got string) bool {
		return got == "true"
	})
}

// ExpectTitle waits until the document title equals want.
func (p *Page) ExpectTitle(ctx context.Context, want string) error {
	read := func(ctx context.Context) (string, error) {
		return p.d.Title(ctx)
	}
	return p.poll(ctx, "page title", strconv.Quote(want), read, func(got string) bool {
		return got == want
	})
}
