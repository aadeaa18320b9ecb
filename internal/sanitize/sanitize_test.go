package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTicketID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  PROJ-1  ", "PROJ-1"},
		{"PROJ\x00-2", "PROJ-2"},
		{"a\nb", "ab"},
		{"\t\t", ""},
		{"", ""},
		{"ÄÖÜ-3", "ÄÖÜ-3"},
	}
	for _, tt := range tests {
		if got := TicketID(tt.in); got != tt.want {
			t.Errorf("TicketID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTicketIDClamp(t *testing.T) {
	long := strings.Repeat("é", 300)
	got := TicketID(long)
	if n := utf8.RuneCountInString(got); n != MaxTicketIDLen {
		t.Fatalf("expected %d runes, got %d", MaxTicketIDLen, n)
	}
	if !utf8.ValidString(got) {
		t.Fatal("clamp split a rune")
	}
}

func TestNote(t *testing.T) {
	in := "line one\n\tline two\x07"
	want := "line one\n\tline two"
	if got := Note(in); got != want {
		t.Fatalf("Note = %q, want %q", got, want)
	}

	long := strings.Repeat("x", MaxNoteLen+10)
	if got := Note(long); len(got) != MaxNoteLen {
		t.Fatalf("Note length = %d, want %d", len(got), MaxNoteLen)
	}
}

func TestTitle(t *testing.T) {
	if got := Title("  Senior Engineer\n"); got != "Senior Engineer" {
		t.Fatalf("Title = %q", got)
	}
	if got := Title(strings.Repeat("t", 500)); len(got) != MaxTitleLen {
		t.Fatalf("Title length = %d", len(got))
	}
}
