package fingerprint

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
	}{
		{"trims edges", "  hello  ", "hello"},
		{"collapses runs", "a \t\n b", "a b"},
		{"lowercases", "Book Title", "book title"},
		{"unicode aware", "CAFÉ Crème", "café crème"},
		{"empty", "   \n\t ", ""},
		{"already normal", "plain text", "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewEqualAfterNormalization(t *testing.T) {
	a, err := New(KindBookSummary, "The  Great   Gatsby")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := New(KindBookSummary, "  the great gatsby ")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a != b {
		t.Errorf("fingerprints differ for inputs equal after normalization: %s vs %s", a, b)
	}
}

func TestNewDistinctContent(t *testing.T) {
	a, _ := New(KindBookSummary, "book one")
	b, _ := New(KindBookSummary, "book two")
	if a == b {
		t.Error("distinct content produced equal fingerprints")
	}
}

func TestNewKindSeparation(t *testing.T) {
	a, _ := New(KindBookSummary, "same content")
	b, _ := New(KindReviewSummary, "same content")
	if a == b {
		t.Error("same content under different kinds must produce distinct fingerprints")
	}
}

func TestNewStableAcrossCalls(t *testing.T) {
	first, _ := New(KindRecommendation, "Dune by Frank Herbert")
	second, _ := New(KindRecommendation, "Dune by Frank Herbert")
	if first != second {
		t.Error("fingerprint is not deterministic")
	}
	if len(first.String()) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(first.String()))
	}
}

func TestNewInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		content string
	}{
		{"unknown kind", Kind("poetry"), "content"},
		{"empty content", KindBookSummary, ""},
		{"whitespace only", KindBookSummary, " \t\n "},
		{"invalid utf8", KindBookSummary, string([]byte{0xff, 0xfe})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.kind, tt.content)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestKindValid(t *testing.T) {
	for _, k := range []Kind{KindBookSummary, KindReviewSummary, KindRecommendation} {
		if !k.Valid() {
			t.Errorf("%s should be valid", k)
		}
	}
	if Kind("").Valid() || Kind("other").Valid() {
		t.Error("unknown kinds should be invalid")
	}
}
