package browser

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestEngineValid(t *testing.T) {
	t.Parallel()
	for _, e := range Engines() {
		if !e.Valid() {
			t.Errorf("%q should be valid", e)
		}
	}
	if Engine("selenium").Valid() {
		t.Error("selenium should not be valid")
	}
}

func TestSelectorString(t *testing.T) {
	t.Parallel()
	base := CSS("p.footnote a")
	cases := map[string]Selector{
		"p.footnote a":            base,
		"p.footnote a >> last":    base.Last(),
		"p.footnote a >> nth=2":   base.Nth(2),
		"#message":                CSS("#message"),
	}
	for want, sel := range cases {
		if got := sel.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}

func testResolveIndex_Properties(t *rapid.T) {
	count := rapid.IntRange(0, 20).Draw(t, "count")
	index := rapid.IntRange(-25, 25).Draw(t, "index")

	got, ok := resolveIndex(index, count)
	inRange := (index >= 0 && index < count) || (index < 0 && -index <= count)
	if ok != inRange {
		t.Fatalf("resolveIndex(%d, %d) ok=%v, want %v", index, count, ok, inRange)
	}
	if !ok {
		return
	}
	if got < 0 || got >= count {
		t.Fatalf("resolved index %d out of range for count %d", got, count)
	}
	if index >= 0 && got != index {
		t.Fatalf("non-negative index changed: %d -> %d", index, got)
	}
	if index < 0 && got != count+index {
		t.Fatalf("negative index %d resolved to %d, want %d", index, got, count+index)
	}
}

func TestResolveIndex_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testResolveIndex_Properties)
}

func TestNotFoundWrapsSentinel(t *testing.T) {
	t.Parallel()
	err := notFound(CSS("div.line").Nth(9))
	if !errors.Is(err, ErrElementNotFound) {
		t.Fatalf("expected ErrElementNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "nth=9") {
		t.Fatalf("expected selector in message, got %v", err)
	}
}

func TestElementJS_QuotesSelector(t *testing.T) {
	t.Parallel()
	js := elementJS(CSS(`img[name="space77"]`).Last(), "return {found: true};")
	if !strings.Contains(js, `"img[name=\"space77\"]"`) {
		t.Fatalf("selector not JSON-quoted:\n%s", js)
	}
	if !strings.Contains(js, "let i = -1;") {
		t.Fatalf("index not embedded:\n%s", js)
	}
}

func TestParseLocalStorage(t *testing.T) {
	t.Parallel()
	snap, err := parseLocalStorage(`{"origin":"https://www.gamesforthebrain.com","items":[["best","3"]]}`)
	if err != nil {
		t.Fatalf("parseLocalStorage: %v", err)
	}
	origins := snap.origins()
	if len(origins) != 1 || origins[0].LocalStorage[0] != (NameValue{Name: "best", Value: "3"}) {
		t.Fatalf("unexpected origins: %+v", origins)
	}

	blank, err := parseLocalStorage(`{"origin":"null","items":[]}`)
	if err != nil {
		t.Fatalf("parseLocalStorage: %v", err)
	}
	if got := blank.origins(); got != nil {
		t.Fatalf("opaque origin should be dropped, got %+v", got)
	}

	if _, err := parseLocalStorage("{"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestStorageState_WriteFileUsesPlaywrightShape(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	state := &StorageState{Cookies: []Cookie{{Name: "sid", Value: "abc", Domain: "127.0.0.1", Path: "/", HttpOnly: true}}}
	if err := state.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("state is not JSON: %v", err)
	}
	if _, ok := raw["origins"].([]any); !ok {
		t.Fatalf("origins must be an array, got %T", raw["origins"])
	}
	cookie := raw["cookies"].([]any)[0].(map[string]any)
	if cookie["httpOnly"] != true || cookie["name"] != "sid" {
		t.Fatalf("unexpected cookie encoding: %v", cookie)
	}
}

func TestOpen_UnknownEngine(t *testing.T) {
	t.Parallel()
	if _, err := Open(context.Background(), Options{Engine: "netscape"}); err == nil {
		t.Fatal("expected error for unknown engine")
	}
}
