// Index is the writer engine: the single mutator of the shared buffer,
// driven by a cooperative duty cycle rather than its own goroutine or
// background workers.
package seqidx

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

// Index holds an open sequence number index. The zero value is not
// usable; construct with Open.
type Index struct {
	cfg  Config
	root *os.Root
	fm   *fileManager
	buf  []byte

	records   *recordTable
	positions *positionTable

	mu        sync.Mutex
	closed    bool
	dirty     bool
	lastFlush int64

	// termRoll tracks, per transport session id, the archival-log
	// position at which the upstream term buffer is expected to roll
	// over. Populated on the first fragment seen for a transport
	// session; advanced and reported whenever a later fragment's end
	// position crosses it.
	termRoll map[int32]int64
}

// Open recovers or initialises the index file name inside dir and
// returns a ready Index. dir must exist; it becomes the sandbox root for
// every path operation.
func Open(dir, name string, cfg Config) (*Index, error) {
	cfg = cfg.withDefaults()

	if cfg.SectorSize <= 0 {
		return nil, ErrCapacityTooSmall
	}
	if cfg.FileCapacity < HeaderSize+cfg.SectorSize {
		return nil, ErrCapacityTooSmall
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("seqidx: open root %q: %w", dir, err)
	}

	onError := errorSink(cfg)

	fm, buf, err := openFileManager(root, name, cfg.FileCapacity, onError)
	if err != nil {
		root.Close()
		return nil, err
	}

	recordStart, recordEnd, positionStart, positionEnd := layout(cfg)

	if blankHeader(buf) {
		encodeHeader(buf, &messageHeader{
			Schema:             expectedSchema(),
			Capacity:           uint64(cfg.FileCapacity),
			SessionRecordSize:  SessionRecordSize,
			PositionRecordSize: PositionRecordSize,
			SplitOffset:        uint64(positionStart),
		})
	}

	records := newRecordTable(buf, recordStart, recordEnd, cfg.SectorSize)
	positions := newPositionTable(buf, positionStart, positionEnd, cfg.SectorSize)

	records.framer.validateChecksums(func(sectorOffset int64) {
		onError(&IndexError{Kind: ChecksumFailed, SectorOffset: sectorOffset})
		records.framer.zeroSector(sectorOffset)
	})
	positions.framer.validateChecksums(func(sectorOffset int64) {
		onError(&IndexError{Kind: ChecksumFailed, SectorOffset: sectorOffset})
		positions.framer.zeroSector(sectorOffset)
	})

	idx := &Index{
		cfg:       cfg,
		root:      root,
		fm:        fm,
		buf:       buf,
		records:   records,
		positions: positions,
		lastFlush: cfg.Clock.NowMs(),
		termRoll:  make(map[int32]int64),
	}

	if cfg.Logger != nil {
		cfg.Logger.Infow("index opened", "dir", dir, "name", name, "capacity", cfg.FileCapacity)
	}

	return idx, nil
}

// layout derives the record/position region split from cfg, rounding
// each region down to a whole number of sectors (the 0.9/0.1 split).
func layout(cfg Config) (recordStart, recordEnd, positionStart, positionEnd int64) {
	available := cfg.FileCapacity - HeaderSize
	totalSectors := available / cfg.SectorSize

	recordSectors := int64(float64(totalSectors) * SequenceNumberRatio)
	if recordSectors < 1 {
		recordSectors = 1
	}
	if recordSectors > totalSectors-1 && totalSectors > 1 {
		recordSectors = totalSectors - 1
	}
	positionSectors := totalSectors - recordSectors
	if positionSectors < 1 {
		positionSectors = 1
		recordSectors = totalSectors - 1
	}

	recordStart = HeaderSize
	recordEnd = recordStart + recordSectors*cfg.SectorSize
	positionStart = recordEnd
	positionEnd = positionStart + positionSectors*cfg.SectorSize
	return
}

func errorSink(cfg Config) ErrorHandler {
	return func(e *IndexError) {
		if cfg.Logger != nil {
			logIndexError(cfg.Logger, e)
		}
		if cfg.ErrorHandler != nil {
			cfg.ErrorHandler(e)
		}
	}
}

func logIndexError(l *zap.SugaredLogger, e *IndexError) {
	l.Warnw("index error", "kind", e.Kind.String(), "error", e.Error())
}

// OnFragment applies a decoded fragment to the index: a sequence-number
// update, a per-session reset, or a full reset. Fragments on a stream
// other than cfg.StreamID are ignored when StreamID is non-zero.
// Continuation fragments (Begin == false) are ignored outright: the
// header of interest only lives on the first fragment of a logical
// message, the same assumption a term-buffer fragment handler makes.
//
// For a Message fragment, the recording id is resolved through
// cfg.RecordingIDLookup rather than read off the decoded message, and
// the fragment's (offset, end position) pair is fed to the term-roll
// tracker; a detected roll forces an immediate flush rather than
// waiting for DoWork's next timeout tick, since a roll means the
// upstream archival log is about to recycle the term buffer this
// position pointed into.
func (idx *Index) OnFragment(f Fragment) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ErrClosed
	}

	hdr, ok := fragmentHeader(f)
	if !ok {
		return fmt.Errorf("seqidx: empty fragment")
	}
	if idx.cfg.StreamID != 0 && hdr.StreamID() != idx.cfg.StreamID {
		return nil
	}
	if !f.Begin {
		return nil
	}

	switch {
	case f.ResetAll != nil:
		idx.records.ResetAll()
		idx.markDirty()
		return nil

	case f.ResetSession != nil:
		target := f.ResetSession.TargetSessionID()
		if err := idx.records.ResetOne(target); err != nil {
			idx.reportFull(target)
			return err
		}
		idx.markDirty()
		return nil

	case f.Message != nil:
		m := f.Message
		if err := idx.records.Set(m.SessionID(), m.SequenceNumber()); err != nil {
			idx.reportFull(m.SessionID())
			return err
		}
		transportSessionID := m.TransportSessionID()
		recordingID := idx.cfg.RecordingIDLookup(transportSessionID)
		if err := idx.positions.IndexedUpTo(transportSessionID, recordingID, m.Position()); err != nil {
			idx.reportFull(m.SessionID())
			return err
		}
		idx.markDirty()

		endPosition := m.Position()
		if idx.observeTermRoll(transportSessionID, f.Offset, endPosition-int64(f.Length), endPosition) {
			if err := idx.flushLocked(); err == nil {
				idx.lastFlush = idx.cfg.Clock.NowMs()
			}
		}
		return nil
	}

	return fmt.Errorf("seqidx: empty fragment")
}

// observeTermRoll tracks the expected term-roll position for
// transportSessionID and reports whether endPosition just crossed it.
// On the first fragment seen for a transport session it only records
// the expected roll position, startPosition + termBufferLength -
// offset, where startPosition is the fragment's end position minus its
// length; it never reports a roll on that first observation. On every
// later fragment, once endPosition exceeds the pending roll, the
// boundary advances by one more term length and the crossing is
// reported exactly once.
func (idx *Index) observeTermRoll(transportSessionID int32, offset int32, startPosition, endPosition int64) bool {
	termLen := idx.cfg.TermBufferLength
	pending, ok := idx.termRoll[transportSessionID]
	if !ok {
		idx.termRoll[transportSessionID] = startPosition + termLen - int64(offset)
		return false
	}
	if endPosition > pending {
		idx.termRoll[transportSessionID] = pending + termLen
		return true
	}
	return false
}

func fragmentHeader(f Fragment) (HeaderDecoder, bool) {
	switch {
	case f.Message != nil:
		return f.Message, true
	case f.ResetAll != nil:
		return f.ResetAll, true
	case f.ResetSession != nil:
		return f.ResetSession, true
	default:
		return nil, false
	}
}

func (idx *Index) reportFull(sessionID uint64) {
	errorSink(idx.cfg)(&IndexError{Kind: IndexFull, SessionID: sessionID})
}

func (idx *Index) markDirty() {
	idx.dirty = true
}

// ResetSequenceNumbers clears every session's recorded sequence number,
// the same effect OnFragment applies for a ResetSessionIdsDecoder, but
// callable directly by an operator tool rather than through the
// fragment stream.
func (idx *Index) ResetSequenceNumbers() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}
	idx.records.ResetAll()
	idx.markDirty()
	return nil
}

// DoWork is the cooperative duty-cycle tick: it performs at most one
// unit of work (a flush, if one is due) and returns the
// number of actions taken, so a caller's event loop can poll it
// alongside other cooperative tasks without blocking.
func (idx *Index) DoWork() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed || !idx.dirty {
		return 0
	}

	now := idx.cfg.Clock.NowMs()
	if now-idx.lastFlush < idx.cfg.FlushTimeoutMs {
		return 0
	}

	if err := idx.flushLocked(); err != nil {
		return 0
	}
	idx.lastFlush = now
	return 1
}

func (idx *Index) flushLocked() error {
	idx.records.framer.updateChecksums()
	idx.positions.framer.updateChecksums()

	if err := idx.fm.Flush(idx.buf, errorSink(idx.cfg)); err != nil {
		return err
	}
	idx.dirty = false
	if idx.cfg.Logger != nil {
		idx.cfg.Logger.Infow("index flushed", "records", idx.records.Len(), "positions", idx.positions.Len())
	}
	return nil
}

// ReadLastPosition iterates every live position record, calling
// consumer until it returns false or the table is exhausted.
func (idx *Index) ReadLastPosition(consumer func(transportSessionID int32, recordingID, position int64) bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.positions.ReadLastPosition(consumer)
}

// IsOpen reports whether the index is still usable.
func (idx *Index) IsOpen() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return !idx.closed
}

// PassingPlace returns the diagnostic path of the three-file set's
// transient rename target, for tests and operational tooling that want
// to assert no stray passing-place file survives a clean shutdown.
func (idx *Index) PassingPlace() string {
	return idx.fm.passingPlace()
}

// Close flushes any pending mutation and releases the index's file
// handles. Idempotent.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}

	var flushErr error
	if idx.dirty {
		flushErr = idx.flushLocked()
	}

	closeErr := idx.fm.Close()
	rootErr := idx.root.Close()
	idx.closed = true

	if idx.cfg.Logger != nil {
		idx.cfg.Logger.Infow("index closed")
	}

	switch {
	case flushErr != nil:
		return flushErr
	case closeErr != nil:
		return closeErr
	default:
		return rootErr
	}
}
