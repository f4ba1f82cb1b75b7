package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

var allCodes = []Code{
	InvalidArgument,
	NotFound,
	FailedPrecondition,
	Unavailable,
	Internal,
}

func testCodeOf_RoundtripForTypedErrors(t *rapid.T) {
	code := rapid.SampledFrom(allCodes).Draw(t, "code")
	message := rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "message")

	err := New(code, message)
	if got := CodeOf(err); got != code {
		t.Fatalf("CodeOf(New) mismatch: got=%q want=%q", got, code)
	}
	if got := MessageOf(err); got != message {
		t.Fatalf("MessageOf(New) mismatch: got=%q want=%q", got, message)
	}
}

func TestCodeOf_RoundtripForTypedErrors(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCodeOf_RoundtripForTypedErrors)
}

func testCodeOfAndMessageOf_WrappedTypedError(t *rapid.T) {
	code := rapid.SampledFrom(allCodes).Draw(t, "code")
	message := rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "message")
	cause := errors.New(rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "cause"))

	err := Wrap(code, message, cause)
	wrapped := fmt.Errorf("outer: %w", err)

	if got := CodeOf(wrapped); got != code {
		t.Fatalf("CodeOf(wrapped) mismatch: got=%q want=%q", got, code)
	}
	if got := MessageOf(wrapped); got != message {
		t.Fatalf("MessageOf(wrapped) mismatch: got=%q want=%q", got, message)
	}
	if !errors.Is(wrapped, cause) {
		t.Fatal("expected cause to stay reachable through errors.Is")
	}
	if !strings.Contains(wrapped.Error(), cause.Error()) {
		t.Fatalf("expected error text %q to include cause %q", wrapped.Error(), cause.Error())
	}
}

func TestCodeOfAndMessageOf_WrappedTypedError(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCodeOfAndMessageOf_WrappedTypedError)
}

func TestCodeOf_UntypedDefaultsToInternal(t *testing.T) {
	t.Parallel()
	if got := CodeOf(errors.New("boom")); got != Internal {
		t.Fatalf("expected internal, got %q", got)
	}
	if got := MessageOf(errors.New("boom")); got != "boom" {
		t.Fatalf("expected raw message, got %q", got)
	}
}

func TestIsSkip(t *testing.T) {
	t.Parallel()
	cases := map[Code]bool{
		InvalidArgument:    false,
		NotFound:           true,
		FailedPrecondition: false,
		Unavailable:        true,
		Internal:           false,
	}
	for code, want := range cases {
		err := fmt.Errorf("ctx: %w", New(code, "x"))
		if got := IsSkip(err); got != want {
			t.Errorf("IsSkip(%s) = %v, want %v", code, got, want)
		}
	}
	if IsSkip(nil) {
		t.Error("IsSkip(nil) must be false")
	}
}
