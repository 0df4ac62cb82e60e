package sha256

import "testing"

func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestHasherHashTextIgnoresSpacing(t *testing.T) {
	t.Parallel()

	h := New()
	a := h.HashText("Hello   World\n")
	b := h.HashText(" hello world")
	if a != b {
		t.Fatalf("expected equal digests, got %s vs %s", a, b)
	}
	if h.HashText("hello there") == a {
		t.Fatal("expected different text to hash differently")
	}
	if want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"; a != want {
		t.Fatalf("expected %s, got %s", want, a)
	}
}
