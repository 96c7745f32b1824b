package util

import "testing"

func TestSnippet(t *testing.T) {
	if got := Snippet("Hello\x00   world \n\t again", 100); got != "Hello world again" {
		t.Fatalf("unexpected snippet: %q", got)
	}
	if got := Snippet("abcdefghij", 4); got != "abcd..." {
		t.Fatalf("unexpected truncation: %q", got)
	}
}
