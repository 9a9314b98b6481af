package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
)

func TestNewIDProducesValidUUIDs(t *testing.T) {
	t.Parallel()

	gen := New()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := gen.NewID()
		if err != nil {
			t.Fatalf("NewID() error = %v", err)
		}
		parsed, err := goUUID.Parse(id)
		if err != nil {
			t.Fatalf("NewID() returned invalid UUID %q: %v", id, err)
		}
		if parsed.Version() != 4 {
			t.Fatalf("expected v4 UUID, got v%d", parsed.Version())
		}
		if seen[id] {
			t.Fatalf("duplicate id %q after %d generations", id, i)
		}
		seen[id] = true
	}
}
