// SessionRecord layout and the release/acquire field access discipline:
// sequence_number must be visible to a concurrent reader only after
// session_id has been published, and a reader that sees a live
// session_id with sequence_number still 0 must treat that as
// "allocated, no number yet" rather than a torn read.
//
// The technique — an unsafe.Pointer into the shared byte slice paired with
// sync/atomic Store/Load — is the same one used for seqlock-style shared
// memory records in other_examples/…AlephTX-aleph-tx__feeder-shm-seqlock.go,
// adapted here to a single field instead of a whole-slot sequence lock: the
// table's claim/scan discipline (table.go) already serialises slot
// allocation on the single writer, so only the one field that readers poll
// needs atomic semantics.
package seqidx

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"
)

// SessionRecordSize is the fixed block length of a session record: an
// 8-byte session id, a 4-byte sequence number, and 4 bytes of padding so
// the sequence number field lands on an 8-byte boundary within any
// 16-byte-aligned slot.
const SessionRecordSize = 16

const (
	sessionIDOffset = 0
	seqNoOffset     = 8
)

// emptySessionSlot reports whether the record at buf[off:] is the empty
// sentinel: session_id == 0 and sequence_number == 0 (invariant 4). Any
// other combination, including sequence_number == 0 with a non-zero
// session_id immediately after a per-session reset, is a live record.
func emptySessionSlot(buf []byte, off int) bool {
	return readSessionID(buf, off) == 0 && loadSeqNo(buf, off) == 0
}

func readSessionID(buf []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(buf[off+sessionIDOffset : off+sessionIDOffset+8])
}

func writeSessionID(buf []byte, off int, id uint64) {
	binary.LittleEndian.PutUint64(buf[off+sessionIDOffset:off+sessionIDOffset+8], id)
}

// loadSeqNo is an acquire-load of the sequence number field. Readers
// racing a concurrent writer see either the old value or the new one,
// never a torn mix of the two.
func loadSeqNo(buf []byte, off int) uint32 {
	p := (*uint32)(unsafe.Pointer(&buf[off+seqNoOffset]))
	return atomic.LoadUint32(p)
}

// storeSeqNo is a release-store of the sequence number field. Called
// after session_id has already been written, so a reader that observes
// the new session_id can only observe a sequence_number that is either
// still 0 (not yet published) or the fully-formed new value.
func storeSeqNo(buf []byte, off int, seq uint32) {
	p := (*uint32)(unsafe.Pointer(&buf[off+seqNoOffset]))
	atomic.StoreUint32(p, seq)
}

// clearSessionSlot zeros a record in place, so it reads back as an
// empty slot.
func clearSessionSlot(buf []byte, off int) {
	clear(buf[off : off+SessionRecordSize])
}
