package fakesite

import (
	"github.com/kuitang/checkers-replay/internal/browser"
	"github.com/kuitang/checkers-replay/internal/browser/browsertest"
	"github.com/kuitang/checkers-replay/internal/checkers"
	"github.com/kuitang/checkers-replay/internal/fixture"
)

// Bind returns an in-memory driver that renders g the way the HTTP site
// does and forwards clicks to it, so the page object and runner can be
// exercised without a browser.
func Bind(g *Game) *browsertest.Fake {
	f := browsertest.New()
	f.SetTitle(checkers.PageTitle)
	f.SetText("div.page h1", checkers.HeaderText)
	f.SetText(".gameWrapper", "")
	f.SetText(".boardWrapper", "")
	f.SetText("#board", "")
	f.Set("p.footnote a",
		&browsertest.Element{Text: checkers.RestartText, Visible: true, Attrs: map[string]string{"href": "#"}},
		&browsertest.Element{Text: checkers.RulesText, Visible: true, Attrs: map[string]string{"href": "/rules"}},
	)
	lines := make([]*browsertest.Element, size)
	for i := range lines {
		lines[i] = &browsertest.Element{Visible: true}
	}
	f.Set("div.line", lines...)
	f.SetStorageState(browser.StorageState{
		Cookies: []browser.Cookie{{Name: SessionCookie, Value: "in-memory", Domain: "localhost", Path: "/", Expires: -1, HttpOnly: true, SameSite: "Lax"}},
		Origins: []browser.Origin{},
	})

	squares := make(map[string]fixture.Square, size*size)
	for line := 1; line <= size; line++ {
		for img := 1; img <= size; img++ {
			sq := fixture.Square{Line: line, Img: img}
			squares[checkers.Piece(sq).CSS] = sq
		}
	}
	restart := browser.CSS("p.footnote a")

	render(f, g)
	f.OnClick = func(f *browsertest.Fake, sel browser.Selector) error {
		if sel == restart {
			g.Reset()
		} else if sq, ok := squares[sel.CSS]; ok {
			g.Click(sq)
		}
		render(f, g)
		return nil
	}
	f.OnNavigate = func(f *browsertest.Fake, _ string) error {
		render(f, g)
		return nil
	}
	return f
}

func render(f *browsertest.Fake, g *Game) {
	snap := g.Snapshot()
	f.SetText("#message", snap.Message)
	for l, row := range snap.Lines {
		for i, sq := range row {
			css := checkers.Piece(fixture.Square{Line: l + 1, Img: i + 1}).CSS
			f.SetAttr(css, "name", sq.Name)
			f.SetAttr(css, "src", sq.Src)
		}
	}
}
