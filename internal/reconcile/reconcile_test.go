package reconcile

import (
	"fmt"
	"testing"

	"beresin/internal/models"
)

func msgs(contents ...string) []models.Message {
	out := make([]models.Message, len(contents))
	for i, c := range contents {
		out[i] = models.Message{ID: fmt.Sprintf("m%d", i), Content: c}
	}
	return out
}

func TestFirstLoadAdoptsAndScrolls(t *testing.T) {
	var tr Tracker
	next, grew := Messages(nil, msgs("a", "b", "c"), &tr)
	if len(next) != 3 {
		t.Fatalf("want 3 messages adopted, got %d", len(next))
	}
	if !grew {
		t.Fatalf("first non-empty history must signal growth")
	}
	if tr.LastCount() != 3 {
		t.Fatalf("want tracked count 3, got %d", tr.LastCount())
	}
}

func TestEqualLengthKeepsPrevious(t *testing.T) {
	var tr Tracker
	prev, _ := Messages(nil, msgs("a", "b", "c"), &tr)

	// Same length, different content in one element: the count gate drops it.
	fetched := msgs("a", "EDITED", "c")
	next, grew := Messages(prev, fetched, &tr)
	if grew {
		t.Fatalf("equal-length snapshot must not signal growth")
	}
	if &next[0] != &prev[0] {
		t.Fatalf("equal-length snapshot must keep previous state")
	}
	if next[1].Content != "b" {
		t.Fatalf("edited element must be ignored, got %q", next[1].Content)
	}
}

func TestGrowthSignalsExactlyOnce(t *testing.T) {
	var tr Tracker
	prev, _ := Messages(nil, msgs("a"), &tr)

	signals := 0
	fetched := msgs("a", "b", "c", "d")
	next, grew := Messages(prev, fetched, &tr)
	if grew {
		signals++
	}
	if tr.LastCount() != 4 {
		t.Fatalf("want tracked count 4, got %d", tr.LastCount())
	}

	// Re-applying the identical snapshot changes nothing.
	again, grew := Messages(next, fetched, &tr)
	if grew {
		signals++
	}
	if signals != 1 {
		t.Fatalf("want exactly one growth signal, got %d", signals)
	}
	if len(again) != 4 {
		t.Fatalf("state changed on redundant fetch")
	}
}

func TestShorterLateSnapshotAdoptsWithoutScroll(t *testing.T) {
	var tr Tracker
	prev, _ := Messages(nil, msgs("a", "b", "c"), &tr)

	// A slow older fetch landing late: shorter, adopted, no scroll.
	next, grew := Messages(prev, msgs("a", "b"), &tr)
	if grew {
		t.Fatalf("shrink must not signal growth")
	}
	if len(next) != 2 {
		t.Fatalf("length change must be adopted, got %d", len(next))
	}
	if tr.LastCount() != 3 {
		t.Fatalf("baseline must not regress, got %d", tr.LastCount())
	}

	// The newer snapshot returns on the next tick: adopted, still no
	// scroll because nothing grew past the old baseline.
	next, grew = Messages(next, msgs("a", "b", "c"), &tr)
	if grew {
		t.Fatalf("recovering the same length must not re-signal")
	}
	if len(next) != 3 {
		t.Fatalf("want 3 messages back, got %d", len(next))
	}
}

func TestResetMakesNextHistoryScroll(t *testing.T) {
	var tr Tracker
	_, _ = Messages(nil, msgs("a", "b", "c", "d", "e"), &tr)
	tr.Reset()
	if tr.LastCount() != 0 {
		t.Fatalf("reset must zero the count")
	}

	// After a contact switch even a shorter first history counts as growth.
	_, grew := Messages(nil, msgs("x"), &tr)
	if !grew {
		t.Fatalf("first history after reset must signal growth")
	}
	if tr.LastCount() != 1 {
		t.Fatalf("want tracked count 1, got %d", tr.LastCount())
	}
}

func TestEmptyFetchResetsBaseline(t *testing.T) {
	var tr Tracker
	prev, _ := Messages(nil, msgs("a", "b"), &tr)
	next, grew := Messages(prev, nil, &tr)
	if grew || len(next) != 0 {
		t.Fatalf("emptied log: grew=%v len=%d", grew, len(next))
	}
	if tr.LastCount() != 0 {
		t.Fatalf("empty log must reset baseline, got %d", tr.LastCount())
	}
}
