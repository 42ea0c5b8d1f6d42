// Position Table: records, per upstream transport session, the last
// archival-log offset consumed. It is a second framed region with its
// own claim cursor, using the same open-addressing discipline as the
// Record Table but keyed by a 32-bit transport session id rather than a
// 64-bit SessionId — a different identifier space entirely.
package seqidx

import (
	"encoding/binary"
	"sync"
)

// PositionRecordSize is the fixed block length of a position record: a
// 4-byte transport session id, an 8-byte recording id, and an 8-byte
// position, padded to 24 bytes for 8-byte alignment of the two int64
// fields.
const PositionRecordSize = 24

const (
	transportIDOffset  = 0
	recordingIDOffset  = 8
	positionOffset     = 16
)

func emptyPositionSlot(buf []byte, off int) bool {
	return binary.LittleEndian.Uint32(buf[off+transportIDOffset:off+transportIDOffset+4]) == 0 &&
		binary.LittleEndian.Uint64(buf[off+recordingIDOffset:off+recordingIDOffset+8]) == 0 &&
		binary.LittleEndian.Uint64(buf[off+positionOffset:off+positionOffset+8]) == 0
}

func readTransportID(buf []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(buf[off+transportIDOffset : off+transportIDOffset+4]))
}

func writeTransportID(buf []byte, off int, id int32) {
	binary.LittleEndian.PutUint32(buf[off+transportIDOffset:off+transportIDOffset+4], uint32(id))
}

func readRecordingID(buf []byte, off int) int64 {
	return int64(binary.LittleEndian.Uint64(buf[off+recordingIDOffset : off+recordingIDOffset+8]))
}

func writeRecordingID(buf []byte, off int, id int64) {
	binary.LittleEndian.PutUint64(buf[off+recordingIDOffset:off+recordingIDOffset+8], uint64(id))
}

func readPosition(buf []byte, off int) int64 {
	return int64(binary.LittleEndian.Uint64(buf[off+positionOffset : off+positionOffset+8]))
}

func writePosition(buf []byte, off int, pos int64) {
	binary.LittleEndian.PutUint64(buf[off+positionOffset:off+positionOffset+8], uint64(pos))
}

// positionTable is the transport_session_id -> (recording_id, position)
// table. accelMu guards accel/built/count the same way recordTable's
// does, for the same reason: a detached Reader can read this table
// concurrently with the writer.
type positionTable struct {
	buf        []byte
	framer     *sectorFramer
	start, end int64

	accelMu sync.Mutex
	accel   map[int32]int64
	built   bool
	count   int
}

func newPositionTable(buf []byte, start, end, sectorSize int64) *positionTable {
	return &positionTable{
		buf:    buf,
		framer: newSectorFramer(buf, start, end, sectorSize),
		start:  start,
		end:    end,
		accel:  make(map[int32]int64),
	}
}

func (t *positionTable) iterateSlots(visit func(off int64) bool) {
	off := t.start
	for {
		off = t.framer.claim(off, PositionRecordSize)
		if off == OutOfSpace {
			return
		}
		if !visit(off) {
			return
		}
		off += PositionRecordSize
	}
}

// ensureBuiltLocked rebuilds accel from the framed buffer if it hasn't
// been built yet. Callers must hold accelMu.
func (t *positionTable) ensureBuiltLocked() {
	if t.built {
		return
	}
	t.accel = make(map[int32]int64, t.count)
	t.count = 0
	t.iterateSlots(func(off int64) bool {
		if !emptyPositionSlot(t.buf, off) {
			t.accel[readTransportID(t.buf, off)] = off
			t.count++
		}
		return true
	})
	t.built = true
}

// IndexedUpTo records that transportSessionID has consumed the archival
// log, of the given recordingID, up to position. Called once per
// fragment at the end of OnFragment.
func (t *positionTable) IndexedUpTo(transportSessionID int32, recordingID, position int64) error {
	t.accelMu.Lock()
	defer t.accelMu.Unlock()
	t.ensureBuiltLocked()

	if off, ok := t.accel[transportSessionID]; ok {
		writeRecordingID(t.buf, off, recordingID)
		writePosition(t.buf, off, position)
		t.framer.markDirty(off)
		return nil
	}

	var result error = errIndexFull
	t.iterateSlots(func(off int64) bool {
		if emptyPositionSlot(t.buf, off) {
			writeTransportID(t.buf, off, transportSessionID)
			writeRecordingID(t.buf, off, recordingID)
			writePosition(t.buf, off, position)
			t.framer.markDirty(off)
			t.accel[transportSessionID] = off
			t.count++
			result = nil
			return false
		}
		if readTransportID(t.buf, off) == transportSessionID {
			writeRecordingID(t.buf, off, recordingID)
			writePosition(t.buf, off, position)
			t.framer.markDirty(off)
			t.accel[transportSessionID] = off
			result = nil
			return false
		}
		return true
	})
	return result
}

// ReadLastPosition iterates every live position record, newest writes
// first being indistinguishable from oldest (the table does not order by
// time), calling consumer for each until it returns false. Callers
// resuming after a restart typically care about a single
// (transportSessionID, recordingID) pair and can stop at the first match.
func (t *positionTable) ReadLastPosition(consumer func(transportSessionID int32, recordingID, position int64) bool) {
	t.accelMu.Lock()
	t.ensureBuiltLocked()
	t.accelMu.Unlock()
	t.iterateSlots(func(off int64) bool {
		if emptyPositionSlot(t.buf, off) {
			return true
		}
		return consumer(readTransportID(t.buf, off), readRecordingID(t.buf, off), readPosition(t.buf, off))
	})
}

// Len returns the number of live position records.
func (t *positionTable) Len() int {
	t.accelMu.Lock()
	defer t.accelMu.Unlock()
	t.ensureBuiltLocked()
	return t.count
}

// TotalSlots returns the total number of claimable slots in the table,
// live and empty combined.
func (t *positionTable) TotalSlots() int {
	n := 0
	t.iterateSlots(func(int64) bool { n++; return true })
	return n
}
