package system

import (
	"testing"
	"time"
)

func TestNowReturnsUTC(t *testing.T) {
	t.Parallel()

	got := New().Now()
	if got.Location() != time.UTC {
		t.Fatalf("expected UTC timestamps, got location %v", got.Location())
	}
}

func TestNowTracksWallClock(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UTC()
	got := clk.Now()
	after := time.Now().UTC()

	if got.Before(before.Add(-time.Second)) || got.After(after.Add(time.Second)) {
		t.Fatalf("Now() = %v, want within [%v, %v]", got, before, after)
	}
	if clk.Now().Before(got) {
		t.Fatal("successive Now() calls must be non-decreasing")
	}
}
