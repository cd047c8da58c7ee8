package prompts

import (
	"strings"
	"testing"
)

func TestBaseStatesDirectiveSyntax(t *testing.T) {
	t.Parallel()
	base := Base()
	for _, marker := range []string{"[[", "]]", "<py>", "</py>", "[[ask]]", "[end]"} {
		if !strings.Contains(base, marker) {
			t.Errorf("system prompt missing %q", marker)
		}
	}
}

func TestCombine(t *testing.T) {
	t.Parallel()
	if got := Combine(""); got != Base() {
		t.Fatalf("empty user prompt changed the base")
	}
	got := Combine("  Prefer intel syntax.  ")
	if !strings.HasSuffix(got, "\n\nPrefer intel syntax.") {
		t.Fatalf("combined = %q", got[len(got)-60:])
	}
}

func TestInitialRequest(t *testing.T) {
	t.Parallel()
	got := InitialRequest("/bin/ls", "find the argument parser")
	want := "Target: /bin/ls\nRequest: find the argument parser"
	if got != want {
		t.Fatalf("got %q", got)
	}
	if fallback := InitialRequest("/bin/ls", "  "); !strings.Contains(fallback, DefaultInstruction) {
		t.Fatalf("default instruction not applied: %q", fallback)
	}
}
