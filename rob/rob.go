// Package rob implements the reorder buffer: a bounded, tag-ordered FIFO
// that lets instructions execute out of order while retiring strictly in
// program order.
package rob

import (
	"github.com/sarchlab/rvoo/inst"
	"github.com/sarchlab/rvoo/queue"
	"github.com/sarchlab/rvoo/rename"
)

// Status is the lifecycle state of a reorder-buffer entry.
type Status int

// Reorder-buffer entry states.
const (
	Executing Status = iota
	Executed
)

// Entry is one in-flight instruction tracked by the reorder buffer.
type Entry struct {
	Tag    inst.Tag
	Inst   rename.Inst
	Status Status
}

// ROB is a bounded FIFO of Entry, pushed in tag order at dispatch and
// popped from the head only once the head entry has executed.
type ROB struct {
	q *queue.Queue[Entry]
}

// New creates a ROB with the given capacity.
func New(capacity int) *ROB {
	return &ROB{q: queue.New[Entry](capacity)}
}

// Capacity returns the ROB's maximum number of in-flight entries.
func (r *ROB) Capacity() int { return r.q.Capacity() }

// Len returns the number of entries currently in the ROB.
func (r *ROB) Len() int { return r.q.Len() }

// IsFull reports whether the ROB has no room for another dispatch.
func (r *ROB) IsFull() bool { return r.q.IsFull() }

// TryPush dispatches a newly renamed instruction into the ROB, in
// Executing state. Callers must push in increasing tag order.
func (r *ROB) TryPush(tag inst.Tag, in rename.Inst) bool {
	return r.q.TryPush(Entry{Tag: tag, Inst: in, Status: Executing})
}

// MarkExecuted transitions the entry for tag to Executed, once its
// execution unit has produced a result (or, for stores, once it is safe to
// commit). It is a no-op if tag is not present.
func (r *ROB) MarkExecuted(tag inst.Tag) {
	r.q.Each(func(_ int, e *Entry) {
		if e.Tag == tag {
			e.Status = Executed
		}
	})
}

// TryPop removes and returns the head entry, but only if it has executed;
// this is the commit-eligibility check.
func (r *ROB) TryPop() (Entry, bool) {
	head, ok := r.q.Front()
	if !ok || head.Status != Executed {
		return Entry{}, false
	}

	return r.q.TryPop()
}

// Peek returns the head entry without popping it.
func (r *ROB) Peek() (Entry, bool) {
	return r.q.Front()
}

// KillTagsAfter removes every entry whose tag is greater than cut, as part
// of a pipeline squash.
func (r *ROB) KillTagsAfter(cut inst.Tag) {
	r.q.RetainFunc(func(e Entry) bool { return e.Tag <= cut })
}

// Each exposes every live entry in FIFO (tag) order, for introspection.
func (r *ROB) Each(f func(Entry)) {
	r.q.Each(func(_ int, e *Entry) { f(*e) })
}
