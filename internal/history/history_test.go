package history

import "testing"

func TestNewSeedsSystemTurn(t *testing.T) {
	t.Parallel()
	h := New("be helpful")
	if h.Len() != 1 {
		t.Fatalf("len = %d", h.Len())
	}
	turns := h.Turns()
	if turns[0].Role != RoleSystem || turns[0].Content != "be helpful" {
		t.Fatalf("system turn = %+v", turns[0])
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	t.Parallel()
	h := New("sys")
	h.Append(RoleUser, "question")
	h.Append(RoleAssistant, "answer")

	turns := h.Turns()
	if len(turns) != 3 {
		t.Fatalf("len = %d", len(turns))
	}
	if turns[1].Role != RoleUser || turns[2].Role != RoleAssistant {
		t.Fatalf("turns = %+v", turns)
	}
	if h.Last().Content != "answer" {
		t.Fatalf("last = %+v", h.Last())
	}
}

func TestTurnsReturnsCopy(t *testing.T) {
	t.Parallel()
	h := New("sys")
	h.Append(RoleUser, "original")

	turns := h.Turns()
	turns[1].Content = "mutated"
	if h.Turns()[1].Content != "original" {
		t.Fatalf("transcript mutated through returned slice")
	}
}

func TestCharCount(t *testing.T) {
	t.Parallel()
	h := New("abc")
	h.Append(RoleUser, "de")
	if got := h.CharCount(); got != 5 {
		t.Fatalf("char count = %d", got)
	}
}
