package fakesite

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"sync"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kuitang/checkers-replay/internal/fixture"
	"github.com/kuitang/checkers-replay/internal/obs"
	"github.com/kuitang/checkers-replay/internal/ratelimit"
)

//go:embed templates/*.html content/*.md
var assets embed.FS

// SessionCookie names the cookie that keys a visitor's game.
const SessionCookie = "fakecheckers_session"

var (
	pageTmpl  = template.Must(template.ParseFS(assets, "templates/page.html"))
	rulesTmpl = template.Must(template.ParseFS(assets, "templates/rules.html"))
)

// A 1x1 transparent GIF served for every piece image.
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

var images = map[string]bool{
	SrcOrange: true, SrcOrangeKing: true, SrcBlue: true, SrcBlueKing: true, SrcEmpty: true, SrcLight: true,
}

// Site serves one Game per session cookie.
type Site struct {
	script Script

	mu       sync.Mutex
	sessions map[string]*Game

	rulesOnce sync.Once
	rulesHTML []byte

	limiter *ratelimit.RateLimiter
}

// New returns a site whose games answer with script. Clicks and restarts
// are limited per session with ratelimit.DefaultConfig.
func New(script Script) *Site {
	return NewWithLimits(script, ratelimit.DefaultConfig)
}

// NewWithLimits is New with an explicit per-session action limit.
func NewWithLimits(script Script, limits ratelimit.Config) *Site {
	return &Site{
		script:   script,
		sessions: make(map[string]*Game),
		limiter:  ratelimit.New(limits),
	}
}

// Handler returns the site's routes wrapped in access logging.
func (s *Site) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handlePage)
	mux.HandleFunc("GET /state", s.handleState)
	limited := ratelimit.Middleware(s.limiter, sessionKey)
	mux.Handle("POST /click", limited(http.HandlerFunc(s.handleClick)))
	mux.Handle("POST /restart", limited(http.HandlerFunc(s.handleRestart)))
	mux.HandleFunc("GET /rules", s.handleRules)
	mux.HandleFunc("GET /{file}", s.handleImage)
	return obs.AccessLogMiddleware("fakesite", mux)
}

// Game returns the game of session id, creating it when missing.
func (s *Site) Game(id string) *Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.sessions[id]
	if !ok {
		g = NewGame(s.script)
		s.sessions[id] = g
	}
	return g
}

// Sessions returns the number of live sessions.
func (s *Site) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func sessionKey(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func (s *Site) session(w http.ResponseWriter, r *http.Request) *Game {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return s.Game(c.Value)
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	obs.From(r.Context()).Debug("session created")
	return s.Game(id)
}

type cell struct {
	Line, Img int
	Name, Src string
}

type pageData struct {
	Message string
	Lines   [][]cell
}

func (s *Site) handlePage(w http.ResponseWriter, r *http.Request) {
	snap := s.session(w, r).Snapshot()
	data := pageData{Message: snap.Message, Lines: make([][]cell, len(snap.Lines))}
	for l, row := range snap.Lines {
		data.Lines[l] = make([]cell, len(row))
		for i, sq := range row {
			data.Lines[l][i] = cell{Line: l + 1, Img: i + 1, Name: sq.Name, Src: sq.Src}
		}
	}

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, data); err != nil {
		obs.From(r.Context()).Error("render page", "error", err.Error())
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (s *Site) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.session(w, r).Snapshot())
}

func (s *Site) handleClick(w http.ResponseWriter, r *http.Request) {
	line, err1 := strconv.Atoi(r.URL.Query().Get("line"))
	img, err2 := strconv.Atoi(r.URL.Query().Get("img"))
	if err1 != nil || err2 != nil {
		http.Error(w, "line and img must be integers", http.StatusBadRequest)
		return
	}
	g := s.session(w, r)
	g.Click(fixture.Square{Line: line, Img: img})
	snap := g.Snapshot()
	obs.From(r.Context()).Debug("click", "line", line, "img", img, "message", snap.Message)
	writeJSON(w, snap)
}

func (s *Site) handleRestart(w http.ResponseWriter, r *http.Request) {
	g := s.session(w, r)
	g.Reset()
	writeJSON(w, g.Snapshot())
}

func (s *Site) handleRules(w http.ResponseWriter, r *http.Request) {
	s.rulesOnce.Do(func() {
		md, err := assets.ReadFile("content/rules.md")
		if err != nil {
			return
		}
		var buf bytes.Buffer
		if err := rulesTmpl.Execute(&buf, template.HTML(renderMarkdown(md))); err != nil {
			return
		}
		s.rulesHTML = buf.Bytes()
	})
	if s.rulesHTML == nil {
		http.Error(w, "rules unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(s.rulesHTML)
}

func (s *Site) handleImage(w http.ResponseWriter, r *http.Request) {
	if !images[r.PathValue("file")] {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(pixelGIF)
}

// renderMarkdown converts markdown to sanitized HTML.
func renderMarkdown(md []byte) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("code")
	return policy.SanitizeBytes(markdown.Render(p.Parse(md), renderer))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(v)
}
