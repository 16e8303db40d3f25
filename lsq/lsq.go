// Package lsq implements the load and store queues: per-instruction
// address-range tracking, store-to-load forwarding, and the two supported
// memory-ordering disciplines (conservative and speculative-with-recovery).
package lsq

import "github.com/sarchlab/rvoo/inst"

// LoadStatus is the lifecycle of one load queue entry.
type LoadStatus int

// Load lifecycle states.
const (
	NotExecuting LoadStatus = iota
	InFlight
	WrittenBack
)

// Speculation selects how aggressively loads may execute ahead of older
// stores whose addresses are not yet known.
type Speculation int

// Supported memory-speculation disciplines.
const (
	// Conservative blocks a load until every older store's address is
	// known, so an overlap can always be detected before the load reads
	// memory.
	Conservative Speculation = iota
	// Aggressive lets a load execute past older stores with unresolved
	// addresses; if one of those addresses later turns out to overlap,
	// the load (and everything younger) must be squashed and re-executed.
	Aggressive
)

type loadEntry struct {
	tag       inst.Tag
	addr      uint32
	addrKnown bool
	size      inst.AccessSize
	signed    bool
	status    LoadStatus
	value     uint32
}

type storeEntry struct {
	tag       inst.Tag
	addr      uint32
	addrKnown bool
	size      inst.AccessSize
	value     uint32
}

// LSQ is the combined load queue and store queue.
type LSQ struct {
	mode   Speculation
	loads  []loadEntry
	stores []storeEntry
	capL   int
	capS   int
}

// New creates an LSQ with the given per-queue capacities and speculation
// mode.
func New(loadCapacity, storeCapacity int, mode Speculation) *LSQ {
	return &LSQ{capL: loadCapacity, capS: storeCapacity, mode: mode}
}

// LoadQueueFull reports whether the load queue has no room for another
// dispatch.
func (q *LSQ) LoadQueueFull() bool { return len(q.loads) >= q.capL }

// StoreQueueFull reports whether the store queue has no room for another
// dispatch.
func (q *LSQ) StoreQueueFull() bool { return len(q.stores) >= q.capS }

// DispatchLoad registers a load at rename/dispatch time, before its address
// is known.
func (q *LSQ) DispatchLoad(tag inst.Tag, size inst.AccessSize, signed bool) bool {
	if q.LoadQueueFull() {
		return false
	}
	q.loads = append(q.loads, loadEntry{tag: tag, size: size, signed: signed})
	return true
}

// DispatchStore registers a store at rename/dispatch time, before its
// address or value is known.
func (q *LSQ) DispatchStore(tag inst.Tag, size inst.AccessSize) bool {
	if q.StoreQueueFull() {
		return false
	}
	q.stores = append(q.stores, storeEntry{tag: tag, size: size})
	return true
}

func rangesOverlap(aStart uint32, aSize inst.AccessSize, bStart uint32, bSize inst.AccessSize) bool {
	aEnd := aStart + uint32(aSize)
	bEnd := bStart + uint32(bSize)
	return aStart < bEnd && bStart < aEnd
}

func (q *LSQ) findLoad(tag inst.Tag) *loadEntry {
	for i := range q.loads {
		if q.loads[i].tag == tag {
			return &q.loads[i]
		}
	}
	return nil
}

func (q *LSQ) findStore(tag inst.Tag) *storeEntry {
	for i := range q.stores {
		if q.stores[i].tag == tag {
			return &q.stores[i]
		}
	}
	return nil
}

// SetLoadAddr records a load's computed effective address, once the
// execution unit has computed it.
func (q *LSQ) SetLoadAddr(tag inst.Tag, addr uint32) {
	if e := q.findLoad(tag); e != nil {
		e.addr = addr
		e.addrKnown = true
	}
}

// LoadStatus returns the current lifecycle state of a load, and whether the
// tag is still tracked.
func (q *LSQ) LoadStatus(tag inst.Tag) (LoadStatus, bool) {
	e := q.findLoad(tag)
	if e == nil {
		return NotExecuting, false
	}
	return e.status, true
}

// Action is the outcome of checking whether a load may proceed.
type Action int

// Possible load actions.
const (
	// Blocked means the load cannot proceed yet: its own address is
	// unknown; under the conservative discipline, an older store's address
	// is still unknown; or, under either discipline, an older store's
	// known range overlaps the load without matching it exactly, so its
	// value cannot be forwarded.
	Blocked Action = iota
	// Forward means the load's value can be taken directly from an exact-
	// matching older store without touching the memory hierarchy.
	Forward
	// GoToMemory means the load may issue to the memory hierarchy.
	GoToMemory
)

// Check determines whether a load with a known address may execute, and if
// so whether its value can be forwarded from an in-flight store.
func (q *LSQ) Check(tag inst.Tag) (action Action, forwardedValue uint32) {
	load := q.findLoad(tag)
	if load == nil || !load.addrKnown {
		return Blocked, 0
	}

	for i := len(q.stores) - 1; i >= 0; i-- {
		st := q.stores[i]
		if st.tag >= tag {
			continue
		}

		if !st.addrKnown {
			if q.mode == Conservative {
				return Blocked, 0
			}
			continue
		}

		if rangesOverlap(st.addr, st.size, load.addr, load.size) {
			if st.addr == load.addr && st.size == load.size {
				return Forward, st.value
			}
			return Blocked, 0
		}
	}

	return GoToMemory, 0
}

// BeginExecute transitions a load to InFlight, either because it was sent
// to the memory hierarchy or because it was forwarded a value directly.
func (q *LSQ) BeginExecute(tag inst.Tag) {
	if e := q.findLoad(tag); e != nil {
		e.status = InFlight
	}
}

// CompleteLoad records a load's final value and marks it WrittenBack.
func (q *LSQ) CompleteLoad(tag inst.Tag, value uint32) {
	if e := q.findLoad(tag); e != nil {
		e.value = value
		e.status = WrittenBack
	}
}

// KillInflight returns a load from InFlight to NotExecuting, used to
// recover from a memory-order violation by surgically re-issuing the load
// rather than by a full pipeline squash.
func (q *LSQ) KillInflight(tag inst.Tag) {
	if e := q.findLoad(tag); e != nil && e.status == InFlight {
		e.status = NotExecuting
	}
}

// SetStoreAddrValue records a store's computed effective address and the
// value it will write, once both its base register and its value register
// are ready. Under the Aggressive discipline, this is also the point where
// a memory-order violation against an already-executed younger load is
// detected: every overlapping younger load is partitioned by its current
// status. A load still InFlight is named in euKills — the caller surgically
// extracts it from its execution unit and re-inserts it into the
// reservation station, no fetch redirect needed. A load already
// WrittenBack is named in mispredicts — the value it already produced is
// stale, so the caller must squash it and everything younger.
func (q *LSQ) SetStoreAddrValue(tag inst.Tag, addr, value uint32) (euKills, mispredicts []inst.Tag) {
	st := q.findStore(tag)
	if st == nil {
		return nil, nil
	}

	st.addr = addr
	st.addrKnown = true
	st.value = value

	if q.mode == Conservative {
		return nil, nil
	}

	for _, ld := range q.loads {
		if ld.tag <= tag || !ld.addrKnown {
			continue
		}
		if ld.status != InFlight && ld.status != WrittenBack {
			continue
		}
		if !rangesOverlap(addr, st.size, ld.addr, ld.size) {
			continue
		}

		switch ld.status {
		case InFlight:
			euKills = append(euKills, ld.tag)
		case WrittenBack:
			mispredicts = append(mispredicts, ld.tag)
		}
	}

	return euKills, mispredicts
}

// StoreReady reports whether a store's address and value are both known,
// making it eligible to commit.
func (q *LSQ) StoreReady(tag inst.Tag) bool {
	st := q.findStore(tag)
	return st != nil && st.addrKnown
}

// PeekOldestStore returns the oldest store's address/value, for the commit
// stage to write to main memory. It does not remove the entry;
// call RetireOldestStore after the write succeeds.
func (q *LSQ) PeekOldestStore() (tag inst.Tag, addr uint32, size inst.AccessSize, value uint32, ok bool) {
	if len(q.stores) == 0 {
		return 0, 0, 0, 0, false
	}
	st := q.stores[0]
	return st.tag, st.addr, st.size, st.value, true
}

// RetireOldestStore removes the oldest store, once its value has been
// committed to main memory.
func (q *LSQ) RetireOldestStore() {
	if len(q.stores) > 0 {
		q.stores = q.stores[1:]
	}
}

// RetireOldestLoad removes the oldest load once it has retired.
func (q *LSQ) RetireOldestLoad() {
	if len(q.loads) > 0 {
		q.loads = q.loads[1:]
	}
}

// KillTagsAfter drops every load/store entry whose tag exceeds cut, as part
// of a pipeline squash.
func (q *LSQ) KillTagsAfter(cut inst.Tag) {
	loads := q.loads[:0:0]
	for _, l := range q.loads {
		if l.tag <= cut {
			loads = append(loads, l)
		}
	}
	q.loads = loads

	stores := q.stores[:0:0]
	for _, s := range q.stores {
		if s.tag <= cut {
			stores = append(stores, s)
		}
	}
	q.stores = stores
}

// LoadQueueLen and StoreQueueLen report current occupancy, for statistics.
func (q *LSQ) LoadQueueLen() int  { return len(q.loads) }
func (q *LSQ) StoreQueueLen() int { return len(q.stores) }
