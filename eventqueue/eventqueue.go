// Package eventqueue holds a time-sorted queue of ir.Event values, the
// structure the scheduler fills and the engine drains during playback.
package eventqueue

import (
	"sort"

	"github.com/oxbowlabs/beatforge/ir"
)

// Queue is a sorted-by-time list of events, drained non-destructively via a
// cursor: draining advances the cursor past consumed events rather than
// removing them, so RenderFrame's per-frame drain never touches the heap.
type Queue struct {
	events []ir.Event
	cursor int
}

// New returns an empty Queue.
func New() *Queue { return &Queue{} }

// Push inserts event into the not-yet-drained region, keeping it sorted by
// Time (stable insertion point among equal timestamps).
func (q *Queue) Push(event ir.Event) {
	pos := q.cursor + sort.Search(len(q.events)-q.cursor, func(i int) bool {
		return q.events[q.cursor+i].Time.Compare(event.Time) > 0
	})
	q.events = append(q.events, ir.Event{})
	copy(q.events[pos+1:], q.events[pos:])
	q.events[pos] = event
}

// Peek returns the earliest undrained event without advancing the cursor,
// or false if there is none.
func (q *Queue) Peek() (ir.Event, bool) {
	if q.cursor >= len(q.events) {
		return ir.Event{}, false
	}
	return q.events[q.cursor], true
}

// Pop returns the earliest undrained event and advances the cursor past it,
// or false if there is none.
func (q *Queue) Pop() (ir.Event, bool) {
	if q.cursor >= len(q.events) {
		return ir.Event{}, false
	}
	e := q.events[q.cursor]
	q.cursor++
	return e, true
}

// DrainUntil calls fn, in time order, for every undrained event with
// Time <= t, advancing the cursor past each one. It never allocates: events
// stay in place and are only walked past, not copied out into a slice.
func (q *Queue) DrainUntil(t ir.MusicalTime, fn func(ir.Event)) {
	for q.cursor < len(q.events) && q.events[q.cursor].Time.Compare(t) <= 0 {
		fn(q.events[q.cursor])
		q.cursor++
	}
}

// ResetCursor rewinds the drain cursor to the start without discarding any
// event, letting a queue already drained once be replayed (e.g. after the
// engine's clock seeks backward).
func (q *Queue) ResetCursor() { q.cursor = 0 }

// Retain keeps only events for which keep returns true, preserving order
// and adjusting the cursor so already-drained events stay drained. Used by
// the edit system to drop stale scheduled events for a rewritten pattern
// range without disturbing events for the rest of the song.
func (q *Queue) Retain(keep func(ir.Event) bool) {
	removedBeforeCursor := 0
	out := q.events[:0]
	for i, e := range q.events {
		if keep(e) {
			out = append(out, e)
			continue
		}
		if i < q.cursor {
			removedBeforeCursor++
		}
	}
	q.events = out
	q.cursor -= removedBeforeCursor
}

// Clear empties the queue and resets its cursor.
func (q *Queue) Clear() {
	q.events = q.events[:0]
	q.cursor = 0
}

// IsEmpty reports whether the queue has no undrained events.
func (q *Queue) IsEmpty() bool { return q.cursor >= len(q.events) }

// Len returns the number of undrained events.
func (q *Queue) Len() int { return len(q.events) - q.cursor }
