package reconcile

import "beresin/internal/models"

// Tracker remembers how many messages the view last displayed for the
// current subject. The owning session manager synchronizes access and must
// Reset it before the first fetch of a newly selected subject, so the first
// non-empty history always reads as growth.
type Tracker struct {
	last int
}

// Reset clears the tracked count. Called on every subject switch.
func (t *Tracker) Reset() {
	t.last = 0
}

// LastCount returns the tracked displayed count.
func (t *Tracker) LastCount() int {
	return t.last
}

// observe folds a newly displayed count into the tracker and reports whether
// the log grew past everything displayed so far. An empty list resets the
// baseline the way an emptied chat view does.
func (t *Tracker) observe(count int) bool {
	if count == 0 {
		t.last = 0
		return false
	}
	if count > t.last {
		t.last = count
		return true
	}
	return false
}

// Messages decides whether to adopt a freshly fetched snapshot of a message
// list. The gate is count-based, not a content diff: equal-length snapshots
// keep the previous state untouched, so an in-place edit or a same-length
// swap is never picked up. That is a deliberate, known limitation carried
// over from the source heuristic.
//
// grew is true exactly when the adopted snapshot is longer than anything
// displayed before; the caller turns it into a single scroll-to-latest
// signal.
func Messages(prev, fetched []models.Message, t *Tracker) (next []models.Message, grew bool) {
	if len(fetched) == len(prev) {
		return prev, false
	}
	return fetched, t.observe(len(fetched))
}
