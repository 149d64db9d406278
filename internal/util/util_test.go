package util

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestRandomHex(t *testing.T) {
	a, err := RandomHex(32)
	if err != nil {
		t.Fatalf("RandomHex failed: %v", err)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	if _, err := HexDecode(a); err != nil {
		t.Errorf("expected valid hex, got %v", err)
	}

	b, _ := RandomHex(32)
	if a == b {
		t.Error("RandomHex should not repeat")
	}
}

func TestWipeBytes(t *testing.T) {
	b := []byte("secret")
	WipeBytes(b)
	for i, c := range b {
		if c != 0 {
			t.Fatalf("byte %d not wiped", i)
		}
	}
}

func TestTruncate(t *testing.T) {
	t.Run("Short", func(t *testing.T) {
		if got := Truncate("Mozilla/5.0", 255); got != "Mozilla/5.0" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("ASCII", func(t *testing.T) {
		got := Truncate(strings.Repeat("a", 300), 255)
		if len(got) != 255 {
			t.Errorf("expected 255 chars, got %d", len(got))
		}
	})

	t.Run("Multibyte", func(t *testing.T) {
		got := Truncate(strings.Repeat("ü", 300), 255)
		if n := utf8.RuneCountInString(got); n != 255 {
			t.Errorf("expected 255 runes, got %d", n)
		}
		if !utf8.ValidString(got) {
			t.Error("expected valid UTF-8")
		}
	})

	t.Run("Normalizes", func(t *testing.T) {
		// "u" followed by a combining diaeresis composes to a single rune.
		got := Truncate("u\u0308", 1)
		if got != "\u00fc" {
			t.Errorf("got %q, want composed form", got)
		}
	})

	t.Run("InvalidUTF8", func(t *testing.T) {
		got := Truncate("ok\xff", 10)
		if !utf8.ValidString(got) {
			t.Errorf("expected valid UTF-8, got %q", got)
		}
	})
}
