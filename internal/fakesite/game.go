// Package fakesite is a deterministic local stand-in for the checkers game
// page. It honors the DOM contract the page object depends on and answers
// orange moves with scripted blue replies. It is a test double: it checks
// just enough of a move to reject obvious mistakes and is not a rule engine.
package fakesite

import (
	"fmt"
	"sync"

	"github.com/kuitang/checkers-replay/internal/fixture"
)

// Piece images.
const (
	SrcOrange     = "you1.gif"
	SrcOrangeKing = "you2.gif"
	SrcBlue       = "me1.gif"
	SrcBlueKing   = "me2.gif"
	SrcEmpty      = "gray.gif"
	SrcLight      = "black.gif"
)

// Banner texts.
const (
	MessageStart   = "Select an orange piece to move."
	MessageIdle    = "Make a move."
	MessageInvalid = "This is an invalid move."
)

const size = fixture.Lines

// Move is a source and destination square.
type Move struct {
	From fixture.Square `json:"from"`
	To   fixture.Square `json:"to"`
}

func (m Move) String() string {
	return fmt.Sprintf("%s -> %s", m.From, m.To)
}

// Script maps an orange move to the blue reply played after it.
type Script map[Move]Move

// SingleCaptureScript answers the moves of the single-capture scenario so
// that the second orange move jumps a blue piece.
func SingleCaptureScript() Script {
	sq := func(line, img int) fixture.Square { return fixture.Square{Line: line, Img: img} }
	return Script{
		{From: sq(6, 2), To: sq(5, 3)}: {From: sq(3, 5), To: sq(4, 4)},
		{From: sq(5, 3), To: sq(3, 5)}: {From: sq(3, 1), To: sq(4, 2)},
		{From: sq(6, 6), To: sq(5, 7)}: {From: sq(2, 2), To: sq(3, 1)},
		{From: sq(7, 5), To: sq(6, 6)}: {From: sq(3, 7), To: sq(4, 8)},
		{From: sq(6, 4), To: sq(5, 5)}: {From: sq(2, 8), To: sq(3, 7)},
	}
}

// SquareName is the name attribute of the image at sq. The page numbers
// squares from the opposite corner, so (1, 1) is space77.
func SquareName(sq fixture.Square) string {
	return fmt.Sprintf("space%d%d", size-sq.Img, size-sq.Line)
}

func dark(sq fixture.Square) bool {
	return (sq.Line+sq.Img)%2 == 0
}

func onBoard(sq fixture.Square) bool {
	return sq.Line >= 1 && sq.Line <= size && sq.Img >= 1 && sq.Img <= size
}

func isOrange(src string) bool { return src == SrcOrange || src == SrcOrangeKing }
func isBlue(src string) bool   { return src == SrcBlue || src == SrcBlueKing }

// Square is the observable state of one image.
type Square struct {
	Name string `json:"name"`
	Src  string `json:"src"`
}

// Snapshot is the observable state of the page.
type Snapshot struct {
	Message string     `json:"message"`
	Lines   [][]Square `json:"lines"`
	Moves   int        `json:"moves"`
}

// Game is one session's board.
type Game struct {
	mu       sync.Mutex
	board    [size][size]string
	message  string
	selected *fixture.Square
	script   Script
	moves    int
}

// NewGame returns a fresh board that answers with script.
func NewGame(script Script) *Game {
	g := &Game{script: script}
	g.Reset()
	return g
}

// Reset restores the starting position.
func (g *Game) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for line := 1; line <= size; line++ {
		for img := 1; img <= size; img++ {
			sq := fixture.Square{Line: line, Img: img}
			src := SrcLight
			if dark(sq) {
				switch {
				case line <= 3:
					src = SrcBlue
				case line >= 6:
					src = SrcOrange
				default:
					src = SrcEmpty
				}
			}
			g.set(sq, src)
		}
	}
	g.message = MessageStart
	g.selected = nil
	g.moves = 0
}

func (g *Game) get(sq fixture.Square) string    { return g.board[sq.Line-1][sq.Img-1] }
func (g *Game) set(sq fixture.Square, s string) { g.board[sq.Line-1][sq.Img-1] = s }

// Src returns the image at sq, or "" off the board.
func (g *Game) Src(sq fixture.Square) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !onBoard(sq) {
		return ""
	}
	return g.get(sq)
}

// Place puts src on sq. It lets tests stage positions the script never
// reaches.
func (g *Game) Place(sq fixture.Square, src string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if onBoard(sq) {
		g.set(sq, src)
	}
}

// Message returns the banner text.
func (g *Game) Message() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.message
}

// Snapshot returns the observable state.
func (g *Game) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	snap := Snapshot{Message: g.message, Moves: g.moves, Lines: make([][]Square, size)}
	for line := 1; line <= size; line++ {
		row := make([]Square, size)
		for img := 1; img <= size; img++ {
			sq := fixture.Square{Line: line, Img: img}
			row[img-1] = Square{Name: SquareName(sq), Src: g.get(sq)}
		}
		snap.Lines[line-1] = row
	}
	return snap
}

// Click applies a click on sq: the first click selects an orange piece, the
// second attempts to move it there.
func (g *Game) Click(sq fixture.Square) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !onBoard(sq) {
		return
	}
	src := g.get(sq)
	if g.selected == nil || isOrange(src) {
		if isOrange(src) {
			s := sq
			g.selected = &s
		}
		return
	}

	from := *g.selected
	g.selected = nil
	if !g.orangeMove(from, sq) {
		g.message = MessageInvalid
		return
	}
	g.moves++
	if reply, ok := g.script[Move{From: from, To: sq}]; ok {
		g.blueMove(reply)
	}
	g.message = MessageIdle
}

// orangeMove validates and applies a step or single jump.
func (g *Game) orangeMove(from, to fixture.Square) bool {
	if !dark(to) || g.get(to) != SrcEmpty {
		return false
	}
	piece := g.get(from)
	dl, di := to.Line-from.Line, to.Img-from.Img
	if abs(dl) != abs(di) {
		return false
	}
	if piece == SrcOrange && dl > 0 {
		return false
	}
	switch abs(dl) {
	case 1:
	case 2:
		mid := fixture.Square{Line: from.Line + dl/2, Img: from.Img + di/2}
		if !isBlue(g.get(mid)) {
			return false
		}
		g.set(mid, SrcEmpty)
	default:
		return false
	}
	g.set(from, SrcEmpty)
	if to.Line == 1 {
		piece = SrcOrangeKing
	}
	g.set(to, piece)
	return true
}

// blueMove applies a scripted reply without validating it beyond the
// board edges.
func (g *Game) blueMove(m Move) {
	if !onBoard(m.From) || !onBoard(m.To) || !isBlue(g.get(m.From)) {
		return
	}
	piece := g.get(m.From)
	dl, di := m.To.Line-m.From.Line, m.To.Img-m.From.Img
	if abs(dl) == 2 && abs(di) == 2 {
		g.set(fixture.Square{Line: m.From.Line + dl/2, Img: m.From.Img + di/2}, SrcEmpty)
	}
	g.set(m.From, SrcEmpty)
	if m.To.Line == size {
		piece = SrcBlueKing
	}
	g.set(m.To, piece)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
