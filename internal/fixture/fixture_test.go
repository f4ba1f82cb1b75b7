package fixture

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/checkers-replay/internal/errs"
)

const sampleJSON = `{
  "scenarios": [
    {
      "scenarioId": "single-capture",
      "moves": [
        {"fromLine": 6, "fromImg": 2, "toLine": 5, "toImg": 3,
         "fromName": "space65", "fromSrc": "you1.gif", "toName": "space54", "toSrcAfter": "you1.gif",
         "wait": 500, "waitAfter": 1000},
        {"fromLine": 5, "fromImg": 3, "toLine": 3, "toImg": 5,
         "fromName": "space54", "fromSrc": "you1.gif", "toName": "space32", "toSrcAfter": "you1.gif",
         "wait": 500, "waitAfter": 1000,
         "checkBlueBefore": {"line": 4, "img": 4, "name": "space43", "src": "me1.gif"},
         "checkBlueAfter": {"line": 4, "img": 4, "name": "space43", "src": "gray.gif"}}
      ]
    },
    {
      "scenarioId": "invalid-move",
      "moves": [
        {"fromLine": 6, "fromImg": 2, "toLine": 4, "toImg": 4,
         "fromName": "space65", "fromSrc": "you1.gif", "toName": "space43", "toSrcAfter": "gray.gif",
         "wait": 0, "waitAfter": 500, "isInvalid": true}
      ]
    }
  ]
}`

const sampleYAML = `
scenarios:
  - scenarioId: king-row
    moves:
      - fromLine: 2
        fromImg: 2
        toLine: 1
        toImg: 1
        fromName: space76
        fromSrc: you1.gif
        toName: space77
        toSrcAfter: you2.gif
        wait: 250
        waitAfter: 750
        isKing: true
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_JSON(t *testing.T) {
	t.Parallel()
	set, err := Load(writeFile(t, "moves.json", sampleJSON))
	require.NoError(t, err)
	require.Equal(t, []string{"single-capture", "invalid-move"}, set.IDs())

	sc, err := set.Find("single-capture")
	require.NoError(t, err)
	require.Len(t, sc.Moves, 2)

	first := sc.Moves[0]
	require.Equal(t, Square{Line: 6, Img: 2}, first.From())
	require.Equal(t, Square{Line: 5, Img: 3}, first.To())
	require.False(t, first.ChecksCapture())
	require.Equal(t, int64(1000), first.WaitAfter.Duration().Milliseconds())

	capture := sc.Moves[1]
	require.True(t, capture.ChecksCapture())
	require.Equal(t, "gray.gif", capture.CheckBlueAfter.Src)
	require.Equal(t, Square{Line: 4, Img: 4}, capture.CheckBlueBefore.Square())

	invalid, err := set.Find("invalid-move")
	require.NoError(t, err)
	require.True(t, invalid.Moves[0].IsInvalid)
}

func TestLoad_YAMLByExtension(t *testing.T) {
	t.Parallel()
	set, err := Load(writeFile(t, "moves.yml", sampleYAML))
	require.NoError(t, err)
	sc, err := set.Find("king-row")
	require.NoError(t, err)
	require.True(t, sc.Moves[0].IsKing)
	require.Equal(t, Millis(750), sc.Moves[0].WaitAfter)
}

func TestLoad_MissingFileIsNotFound(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	require.Equal(t, errs.NotFound, errs.CodeOf(err))
	require.True(t, errs.IsSkip(err))
}

func TestLoad_MalformedIsInvalidArgument(t *testing.T) {
	t.Parallel()
	_, err := Load(writeFile(t, "broken.json", `{"scenarios": [`))
	require.Error(t, err)
	require.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
	require.False(t, errs.IsSkip(err))
}

func TestFind_MissingScenario(t *testing.T) {
	t.Parallel()
	set, err := ParseJSON([]byte(sampleJSON))
	require.NoError(t, err)
	_, err = set.Find("double-jump")
	require.Equal(t, errs.NotFound, errs.CodeOf(err))

	var nilSet *Set
	_, err = nilSet.Find("single-capture")
	require.Equal(t, errs.NotFound, errs.CodeOf(err))
}

func TestValidate_CollectsProblems(t *testing.T) {
	t.Parallel()
	set := &Set{Scenarios: []Scenario{
		{ScenarioID: "a"},
		{ScenarioID: "a", Moves: []Move{{
			FromLine: 9, FromImg: 1, ToLine: 9, ToImg: 1,
			Wait:           -1,
			CheckBlueAfter: &Probe{Line: 4, Img: 4, Src: "gray.gif"},
		}}},
	}}
	err := set.Validate()
	require.Error(t, err)
	require.Equal(t, errs.InvalidArgument, errs.CodeOf(err))

	msg := err.Error()
	for _, want := range []string{
		"scenarios[0]: no moves",
		`duplicate scenarioId "a"`,
		"from (9, 1) out of range",
		"checkBlueAfter requires checkBlueBefore",
		"from and to are the same square",
		"waits must not be negative",
		"toSrcAfter are required",
	} {
		require.True(t, strings.Contains(msg, want), "missing %q in %q", want, msg)
	}
}

func testValidate_InRangeMovesAccepted(t *rapid.T) {
	coord := rapid.IntRange(1, Lines)
	m := Move{
		FromLine: coord.Draw(t, "fromLine"), FromImg: coord.Draw(t, "fromImg"),
		ToLine: coord.Draw(t, "toLine"), ToImg: coord.Draw(t, "toImg"),
		FromName: "a", FromSrc: "b", ToName: "c", ToSrcAfter: "d",
		Wait:      Millis(rapid.IntRange(0, 5000).Draw(t, "wait")),
		WaitAfter: Millis(rapid.IntRange(0, 5000).Draw(t, "waitAfter")),
	}
	set := &Set{Scenarios: []Scenario{{ScenarioID: "s", Moves: []Move{m}}}}
	err := set.Validate()
	if m.From() == m.To() {
		if err == nil {
			t.Fatalf("expected same-square move to be rejected: %+v", m)
		}
		return
	}
	if err != nil {
		t.Fatalf("valid move rejected: %v", err)
	}
}

func TestValidate_InRangeMovesAccepted(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testValidate_InRangeMovesAccepted)
}
