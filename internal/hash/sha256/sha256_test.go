package sha256

import "testing"

func TestHashKnownDigest(t *testing.T) {
	t.Parallel()

	got, err := New().Hash([]byte("https://example.com"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	// echo -n 'https://example.com' | sha256sum
	want := "100680ad546ce6a577f42f52df33b4cfdca756859e664b8d7de329b150d09ce9"
	if got != want {
		t.Fatalf("Hash() = %s, want %s", got, want)
	}
}

func TestHashDistinguishesInputs(t *testing.T) {
	t.Parallel()

	h := New()
	a, err := h.Hash([]byte("https://example.com/a"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	b, err := h.Hash([]byte("https://example.com/b"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if a == b {
		t.Fatal("distinct inputs must not collide")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}
