// Record Table: an amortised O(1), crash-safe, open-addressed mapping
// from SessionId to (slot offset, sequence number), backed by the
// Sector Framer.
//
// Placement scans linearly from the first record slot on an acceleration
// map miss, claiming candidate offsets from the framer so that a record
// is never split across a sector's checksum trailer. The volatile
// session_id -> slot_offset acceleration map (table.accel) is rebuilt
// lazily, deferring the full-table scan until the first Get or Set miss
// rather than paying for it unconditionally at Open.
package seqidx

import (
	"errors"
	"sync"
)

// errIndexFull is the internal signal that claim ran out of space. Set
// returns it as is; the Index reports an IndexFull IndexError to the
// error sink when it sees it.
var errIndexFull = errors.New("record table: out of space")

// recordTable is the session_id -> sequence_number table. accelMu guards
// accel/built/count independently of any lock the owning Index holds,
// since a Reader handed out by Index.Reader aliases this same table and
// outlives any single call into Index, so it cannot rely on idx.mu.
type recordTable struct {
	buf        []byte
	framer     *sectorFramer
	start, end int64

	accelMu sync.Mutex
	accel   map[uint64]int64 // session_id -> slot offset
	built   bool
	count   int
}

func newRecordTable(buf []byte, start, end, sectorSize int64) *recordTable {
	return &recordTable{
		buf:    buf,
		framer: newSectorFramer(buf, start, end, sectorSize),
		start:  start,
		end:    end,
		accel:  make(map[uint64]int64),
	}
}

// iterateSlots calls visit for every claimable slot offset in the table,
// in ascending order, until visit returns false or the region is
// exhausted. It does not distinguish empty from live slots.
func (t *recordTable) iterateSlots(visit func(off int64) bool) {
	off := t.start
	for {
		off = t.framer.claim(off, SessionRecordSize)
		if off == OutOfSpace {
			return
		}
		if !visit(off) {
			return
		}
		off += SessionRecordSize
	}
}

// ensureBuiltLocked rebuilds accel from the framed buffer if it hasn't
// been built yet. Callers must hold accelMu.
func (t *recordTable) ensureBuiltLocked() {
	if t.built {
		return
	}
	t.accel = make(map[uint64]int64, t.count)
	t.count = 0
	t.iterateSlots(func(off int64) bool {
		if !emptySessionSlot(t.buf, off) {
			id := readSessionID(t.buf, off)
			t.accel[id] = off
			t.count++
		}
		return true
	})
	t.built = true
}

// Set installs or updates the sequence number for sessionID. Returns
// errIndexFull if the table has no room for a new record; existing
// records are always updateable in place.
func (t *recordTable) Set(sessionID uint64, seq uint32) error {
	t.accelMu.Lock()
	defer t.accelMu.Unlock()
	t.ensureBuiltLocked()

	if off, ok := t.accel[sessionID]; ok {
		storeSeqNo(t.buf, off, seq)
		t.framer.markDirty(off)
		return nil
	}

	var result error = errIndexFull
	t.iterateSlots(func(off int64) bool {
		if emptySessionSlot(t.buf, off) {
			writeSessionID(t.buf, off, sessionID)
			storeSeqNo(t.buf, off, seq)
			t.framer.markDirty(off)
			t.accel[sessionID] = off
			t.count++
			result = nil
			return false
		}
		if readSessionID(t.buf, off) == sessionID {
			storeSeqNo(t.buf, off, seq)
			t.framer.markDirty(off)
			t.accel[sessionID] = off
			result = nil
			return false
		}
		return true
	})
	return result
}

// Get returns the sequence number for sessionID and whether it is
// present. A miss does not mutate the acceleration map. Safe to call
// concurrently with Set from a different goroutine (e.g. via a detached
// Reader while the writer is still running).
func (t *recordTable) Get(sessionID uint64) (uint32, bool) {
	t.accelMu.Lock()
	defer t.accelMu.Unlock()
	t.ensureBuiltLocked()

	if off, ok := t.accel[sessionID]; ok {
		return loadSeqNo(t.buf, off), true
	}

	var seq uint32
	found := false
	t.iterateSlots(func(off int64) bool {
		if emptySessionSlot(t.buf, off) {
			return true
		}
		if readSessionID(t.buf, off) == sessionID {
			seq = loadSeqNo(t.buf, off)
			found = true
			return false
		}
		return true
	})
	return seq, found
}

// ResetOne sets sessionID's sequence number to 0, preserving invariant 4
// (session_id stays non-zero, distinguishing it from a true empty slot).
func (t *recordTable) ResetOne(sessionID uint64) error {
	return t.Set(sessionID, 0)
}

// ResetAll zeros the entire record region and clears the acceleration
// map. Checksums are re-established on the writer's next flush.
func (t *recordTable) ResetAll() {
	clear(t.buf[t.start:t.end])
	for off := t.start; off < t.end; off += t.framer.sectorSize {
		t.framer.markDirty(off)
	}

	t.accelMu.Lock()
	t.accel = make(map[uint64]int64)
	t.built = true
	t.count = 0
	t.accelMu.Unlock()
}

// Len returns the number of live records, rebuilding the acceleration
// map first if necessary.
func (t *recordTable) Len() int {
	t.accelMu.Lock()
	defer t.accelMu.Unlock()
	t.ensureBuiltLocked()
	return t.count
}

// TotalSlots returns the total number of claimable slots in the table,
// live and empty combined.
func (t *recordTable) TotalSlots() int {
	n := 0
	t.iterateSlots(func(int64) bool { n++; return true })
	return n
}

// All iterates every live (session_id, sequence_number) pair in ascending
// slot order. The callback's acquire-load of sequence_number means a
// concurrent writer update is either fully visible or not yet visible,
// never torn.
func (t *recordTable) All(visit func(sessionID uint64, seq uint32) bool) {
	cont := true
	t.iterateSlots(func(off int64) bool {
		if !cont {
			return false
		}
		if emptySessionSlot(t.buf, off) {
			return true
		}
		id := readSessionID(t.buf, off)
		seq := loadSeqNo(t.buf, off)
		cont = visit(id, seq)
		return cont
	})
}
