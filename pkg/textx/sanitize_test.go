// Package textx contains tests for the text helpers.
package textx

import "testing"

func TestSanitizeText(t *testing.T) {
	in := "he\x00llo\nwo\x7frld\t!"
	got := SanitizeText(in)
	if got != "hello\nworld\t!" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestSanitizeTextTrims(t *testing.T) {
	if got := SanitizeText("  spaced out \n"); got != "spaced out" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 100); got != "short" {
		t.Fatalf("short input must pass through, got %q", got)
	}
	if got := Truncate("alpha beta gamma delta", 16); got != "alpha beta …" {
		t.Fatalf("expected word-boundary cut, got %q", got)
	}
	if got := Truncate("abcdefghij", 4); got != "abcd …" {
		t.Fatalf("no-space input should hard cut, got %q", got)
	}
}
