// Package fixture loads the scenario fixtures replayed against the checkers
// page: named scenarios, each an ordered list of moves with the piece
// attributes expected before and after every move.
//
// Fixtures are JSON by default; files ending in .yaml or .yml are read as
// YAML with the same field names.
package fixture

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kuitang/checkers-replay/internal/errs"
)

// Lines is the number of rows on the board.
const Lines = 8

// Square addresses a piece image by 1-based line and 1-based image index
// within the line.
type Square struct {
	Line int `json:"line" yaml:"line"`
	Img  int `json:"img" yaml:"img"`
}

func (s Square) String() string {
	return fmt.Sprintf("(%d, %d)", s.Line, s.Img)
}

// Probe is a monitored square with the attributes expected on it.
type Probe struct {
	Line int    `json:"line" yaml:"line"`
	Img  int    `json:"img" yaml:"img"`
	Name string `json:"name" yaml:"name"`
	Src  string `json:"src" yaml:"src"`
}

// Square returns the probed square.
func (p Probe) Square() Square {
	return Square{Line: p.Line, Img: p.Img}
}

// Millis is a duration in whole milliseconds as written in fixtures.
type Millis int

// Duration converts m to a time.Duration.
func (m Millis) Duration() time.Duration {
	return time.Duration(m) * time.Millisecond
}

// Move is one scripted move and its expected outcome.
type Move struct {
	FromLine int `json:"fromLine" yaml:"fromLine"`
	FromImg  int `json:"fromImg" yaml:"fromImg"`
	ToLine   int `json:"toLine" yaml:"toLine"`
	ToImg    int `json:"toImg" yaml:"toImg"`

	FromName   string `json:"fromName" yaml:"fromName"`
	FromSrc    string `json:"fromSrc" yaml:"fromSrc"`
	ToName     string `json:"toName" yaml:"toName"`
	ToSrcAfter string `json:"toSrcAfter" yaml:"toSrcAfter"`

	Wait      Millis `json:"wait" yaml:"wait"`
	WaitAfter Millis `json:"waitAfter" yaml:"waitAfter"`

	// IsInvalid marks a move the game is expected to reject.
	IsInvalid bool `json:"isInvalid,omitempty" yaml:"isInvalid,omitempty"`

	CheckBlueBefore *Probe `json:"checkBlueBefore,omitempty" yaml:"checkBlueBefore,omitempty"`
	CheckBlueAfter  *Probe `json:"checkBlueAfter,omitempty" yaml:"checkBlueAfter,omitempty"`

	IsKing bool `json:"isKing,omitempty" yaml:"isKing,omitempty"`
}

// From returns the source square.
func (m Move) From() Square { return Square{Line: m.FromLine, Img: m.FromImg} }

// To returns the destination square.
func (m Move) To() Square { return Square{Line: m.ToLine, Img: m.ToImg} }

// ChecksCapture reports whether the move carries both capture probes.
func (m Move) ChecksCapture() bool {
	return m.CheckBlueBefore != nil && m.CheckBlueAfter != nil
}

// Scenario is a named, ordered sequence of moves.
type Scenario struct {
	ScenarioID string `json:"scenarioId" yaml:"scenarioId"`
	Moves      []Move `json:"moves" yaml:"moves"`
}

// Set is the content of a fixture file.
type Set struct {
	Scenarios []Scenario `json:"scenarios" yaml:"scenarios"`
}

// Load reads and validates a fixture file. A missing file is reported as
// errs.NotFound so callers can skip instead of failing.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.Wrap(errs.NotFound, "fixture "+path+" not found", err)
		}
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}

	var set *Set
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		set, err = ParseYAML(data)
	default:
		set, err = ParseJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return set, nil
}

// ParseJSON decodes and validates JSON fixture data.
func ParseJSON(data []byte) (*Set, error) {
	var set Set
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "decode JSON fixture", err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &set, nil
}

// ParseYAML decodes and validates YAML fixture data.
func ParseYAML(data []byte) (*Set, error) {
	var set Set
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "decode YAML fixture", err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &set, nil
}

// Find returns the scenario with the given id, or an errs.NotFound error.
func (s *Set) Find(id string) (*Scenario, error) {
	if s != nil {
		for i := range s.Scenarios {
			if s.Scenarios[i].ScenarioID == id {
				return &s.Scenarios[i], nil
			}
		}
	}
	return nil, errs.Newf(errs.NotFound, "scenario %q not found", id)
}

// IDs lists the scenario ids in file order.
func (s *Set) IDs() []string {
	ids := make([]string, 0, len(s.Scenarios))
	for _, sc := range s.Scenarios {
		ids = append(ids, sc.ScenarioID)
	}
	return ids
}

// Validate checks structural consistency. It does not check that moves
// are legal checkers moves.
func (s *Set) Validate() error {
	var problems []string
	seen := make(map[string]bool)
	for i, sc := range s.Scenarios {
		where := fmt.Sprintf("scenarios[%d]", i)
		if sc.ScenarioID == "" {
			problems = append(problems, where+": scenarioId is empty")
		} else if seen[sc.ScenarioID] {
			problems = append(problems, fmt.Sprintf("%s: duplicate scenarioId %q", where, sc.ScenarioID))
		}
		seen[sc.ScenarioID] = true
		if len(sc.Moves) == 0 {
			problems = append(problems, where+": no moves")
		}
		for j, m := range sc.Moves {
			problems = append(problems, m.problems(fmt.Sprintf("%s.moves[%d]", where, j))...)
		}
	}
	if len(problems) > 0 {
		return errs.New(errs.InvalidArgument, "invalid fixture: "+strings.Join(problems, "; "))
	}
	return nil
}

func (m Move) problems(where string) []string {
	var out []string
	check := func(name string, sq Square) {
		if sq.Line < 1 || sq.Line > Lines || sq.Img < 1 {
			out = append(out, fmt.Sprintf("%s: %s %s out of range", where, name, sq))
		}
	}
	check("from", m.From())
	check("to", m.To())
	if m.CheckBlueBefore != nil {
		check("checkBlueBefore", m.CheckBlueBefore.Square())
	}
	if m.CheckBlueAfter != nil {
		check("checkBlueAfter", m.CheckBlueAfter.Square())
		if m.CheckBlueBefore == nil {
			out = append(out, where+": checkBlueAfter requires checkBlueBefore")
		}
	}
	if m.From() == m.To() {
		out = append(out, where+": from and to are the same square")
	}
	if m.Wait < 0 || m.WaitAfter < 0 {
		out = append(out, where+": waits must not be negative")
	}
	if m.FromName == "" || m.FromSrc == "" || m.ToName == "" || m.ToSrcAfter == "" {
		out = append(out, where+": fromName, fromSrc, toName and toSrcAfter are required")
	}
	return out
}
