// Reader provides read-only access either over the writer's live buffer
// (zero-copy, sharing Index's acquire-load semantics) or over a
// quiescent on-disk snapshot opened independently of any writer. The two
// paths are split out explicitly since this index's buffer may outlive
// or be read apart from the writer that produced it.
package seqidx

import (
	"fmt"
	"os"
)

// Reader is a read-only view over a record and position table pair. It
// never mutates buf.
type Reader struct {
	buf       []byte
	records   *recordTable
	positions *positionTable
}

// Reader returns a Reader bound to the Index's live buffer. It remains
// valid only as long as the Index stays open. Reads race the writer
// using acquire-load on sequence_number and a plain load on session_id
// for record fields in buf; the tables' acceleration maps are guarded by
// their own accelMu, independent of idx.mu, so a Reader can be driven
// from another goroutine while the writer keeps calling OnFragment.
func (idx *Index) Reader() *Reader {
	return &Reader{buf: idx.buf, records: idx.records, positions: idx.positions}
}

// OpenReader reads name inside dir into memory and returns a Reader over
// its quiescent contents, without taking on writer responsibilities
// (no recovery, no flush). Used to inspect an index while its writer is
// not running, or from a separate process reading the same directory.
func OpenReader(dir, name string, cfg Config) (*Reader, error) {
	cfg = cfg.withDefaults()

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("seqidx: open root %q: %w", dir, err)
	}
	defer root.Close()

	f, err := root.OpenFile(name, os.O_RDONLY, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, info.Size())
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, err
	}

	if blankHeader(buf) {
		return nil, fmt.Errorf("seqidx: %s has no header; index was never flushed", name)
	}
	hdr := decodeHeader(buf)
	if !hdr.Schema.matches(expectedSchema()) {
		return nil, &IndexError{Kind: SchemaMismatch, Found: hdr.Schema, Expected: expectedSchema()}
	}

	recordStart, recordEnd, positionStart, positionEnd := layout(cfg)
	return &Reader{
		buf:       buf,
		records:   newRecordTable(buf, recordStart, recordEnd, cfg.SectorSize),
		positions: newPositionTable(buf, positionStart, positionEnd, cfg.SectorSize),
	}, nil
}

// Lookup returns the recorded sequence number for sessionID and whether
// it was found.
func (r *Reader) Lookup(sessionID uint64) (uint32, bool) {
	return r.records.Get(sessionID)
}

// Iter walks every live (sessionID, sequenceNumber) pair until visit
// returns false.
func (r *Reader) Iter(visit func(sessionID uint64, seq uint32) bool) {
	r.records.All(visit)
}

// ReadLastPosition iterates every live position record until consumer
// returns false.
func (r *Reader) ReadLastPosition(consumer func(transportSessionID int32, recordingID, position int64) bool) {
	r.positions.ReadLastPosition(consumer)
}

// Stats summarises table occupancy for diagnostics: live and empty slot
// counts for both tables, plus the timestamp of the most recent flush
// (set only by Index.Stats; Reader.Stats, whether over a live Index or
// an on-disk snapshot, has no flush clock and leaves it zero).
type Stats struct {
	SessionRecords       int
	SessionRecordsEmpty  int
	PositionRecords      int
	PositionRecordsEmpty int
	LastFlushMs          int64
}

// Stats reports table occupancy for this snapshot. LastFlushMs is
// always zero.
func (r *Reader) Stats() Stats {
	sessionLive := r.records.Len()
	positionLive := r.positions.Len()
	return Stats{
		SessionRecords:       sessionLive,
		SessionRecordsEmpty:  r.records.TotalSlots() - sessionLive,
		PositionRecords:      positionLive,
		PositionRecordsEmpty: r.positions.TotalSlots() - positionLive,
	}
}

// Stats reports table occupancy and the last flush time of an open
// Index.
func (idx *Index) Stats() Stats {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	sessionLive := idx.records.Len()
	positionLive := idx.positions.Len()
	return Stats{
		SessionRecords:       sessionLive,
		SessionRecordsEmpty:  idx.records.TotalSlots() - sessionLive,
		PositionRecords:      positionLive,
		PositionRecordsEmpty: idx.positions.TotalSlots() - positionLive,
		LastFlushMs:          idx.lastFlush,
	}
}
