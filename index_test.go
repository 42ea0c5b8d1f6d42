// Core lifecycle and crash-recovery tests: a shared openTestIndex
// helper, one fresh directory per test, and assertions against the
// public surface rather than internal state wherever the public
// surface can show it.
package seqidx

import (
	"os"
	"path/filepath"
	"testing"
)

type fakeClock struct{ ms int64 }

func (c *fakeClock) NowMs() int64 { return c.ms }

func openTestIndex(t *testing.T, cfg Config) (*Index, string) {
	t.Helper()
	dir := t.TempDir()
	idx, err := Open(dir, "sessions.idx", cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx, dir
}

func TestOpenCreatesBothFiles(t *testing.T) {
	idx, dir := openTestIndex(t, Config{})
	if !idx.IsOpen() {
		t.Fatal("freshly opened index should report IsOpen")
	}

	if _, err := os.Stat(filepath.Join(dir, "sessions.idx")); err != nil {
		t.Errorf("index file not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sessions.idx.write")); err != nil {
		t.Errorf("writable file not created: %v", err)
	}
}

func TestOnFragmentSetsAndFlushes(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	idx, dir := openTestIndex(t, Config{Clock: clock, FlushTimeoutMs: 100})

	if err := idx.OnFragment(NewToyMessage(7, 42, 0, 1, 2048)); err != nil {
		t.Fatalf("OnFragment: %v", err)
	}

	clock.ms += 200
	if n := idx.DoWork(); n != 1 {
		t.Fatalf("DoWork() = %d, want 1 (a flush was due)", n)
	}
	if n := idx.DoWork(); n != 0 {
		t.Fatalf("DoWork() immediately after a flush = %d, want 0 (nothing dirty)", n)
	}

	reader, err := OpenReader(dir, "sessions.idx", Config{})
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	seq, ok := reader.Lookup(7)
	if !ok || seq != 42 {
		t.Fatalf("Lookup(7) after reopen = (%d, %v), want (42, true)", seq, ok)
	}
}

func TestOnFragmentRejectsOtherStream(t *testing.T) {
	idx, _ := openTestIndex(t, Config{StreamID: 9})

	if err := idx.OnFragment(NewToyMessage(7, 42, 1, 1, 2048)); err != nil {
		t.Fatalf("OnFragment: %v", err)
	}
	if _, ok := idx.Reader().Lookup(7); ok {
		t.Error("fragment on a different stream id should be ignored")
	}
}

func TestResetSequenceNumbersIsIdempotent(t *testing.T) {
	idx, _ := openTestIndex(t, Config{})
	idx.OnFragment(NewToyMessage(1, 5, 0, 1, 1))

	if err := idx.ResetSequenceNumbers(); err != nil {
		t.Fatalf("ResetSequenceNumbers: %v", err)
	}
	if err := idx.ResetSequenceNumbers(); err != nil {
		t.Fatalf("second ResetSequenceNumbers: %v", err)
	}
	if idx.Stats().SessionRecords != 0 {
		t.Error("ResetSequenceNumbers should clear every session record")
	}
}

func TestOnFragmentPerSessionReset(t *testing.T) {
	idx, _ := openTestIndex(t, Config{})
	idx.OnFragment(NewToyMessage(1, 5, 0, 1, 1))
	idx.OnFragment(NewToyMessage(2, 9, 0, 1, 1))

	if err := idx.OnFragment(NewToyResetSession(0, 1)); err != nil {
		t.Fatalf("OnFragment(resetSession): %v", err)
	}

	seq, ok := idx.Reader().Lookup(1)
	if !ok || seq != 0 {
		t.Fatalf("session 1 after reset = (%d, %v), want (0, true)", seq, ok)
	}
	seq, ok = idx.Reader().Lookup(2)
	if !ok || seq != 9 {
		t.Fatalf("session 2 should be untouched, got (%d, %v)", seq, ok)
	}
}

func TestCloseFlushesPendingWork(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(dir, "sessions.idx", Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	idx.OnFragment(NewToyMessage(1, 5, 0, 1, 1))
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reader, err := OpenReader(dir, "sessions.idx", Config{})
	if err != nil {
		t.Fatalf("OpenReader after close: %v", err)
	}
	if seq, ok := reader.Lookup(1); !ok || seq != 5 {
		t.Fatalf("Lookup(1) after reopen = (%d, %v), want (5, true)", seq, ok)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	idx, _ := openTestIndex(t, Config{})
	if err := idx.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if idx.IsOpen() {
		t.Error("IsOpen should be false after Close")
	}
}

func TestOnFragmentAfterCloseIsRejected(t *testing.T) {
	idx, _ := openTestIndex(t, Config{})
	idx.Close()

	if err := idx.OnFragment(NewToyMessage(1, 5, 0, 1, 1)); err != ErrClosed {
		t.Errorf("OnFragment after Close = %v, want ErrClosed", err)
	}
}

func TestNoPassingPlaceSurvivesCleanShutdown(t *testing.T) {
	clock := &fakeClock{ms: 0}
	idx, dir := openTestIndex(t, Config{Clock: clock, FlushTimeoutMs: 1})
	idx.OnFragment(NewToyMessage(1, 5, 0, 1, 1))
	clock.ms++
	idx.DoWork()

	matches, err := filepath.Glob(filepath.Join(dir, filepath.Base(idx.PassingPlace())))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("passing-place file should not survive a completed flip, found %v", matches)
	}
}

func TestOnFragmentIgnoresContinuationFragments(t *testing.T) {
	idx, _ := openTestIndex(t, Config{})

	frag := NewToyMessageFragment(1, 5, 0, 1, 0, 64, false, 100)
	if err := idx.OnFragment(frag); err != nil {
		t.Fatalf("OnFragment(continuation): %v", err)
	}
	if _, ok := idx.Reader().Lookup(1); ok {
		t.Error("a continuation fragment (Begin == false) should be ignored entirely")
	}
}

func TestOnFragmentUsesRecordingIDLookup(t *testing.T) {
	cfg := Config{
		RecordingIDLookup: func(transportSessionID int32) int64 {
			return int64(transportSessionID) * 1000
		},
	}
	idx, _ := openTestIndex(t, cfg)

	if err := idx.OnFragment(NewToyMessage(1, 5, 0, 3, 500)); err != nil {
		t.Fatalf("OnFragment: %v", err)
	}

	var gotRecording int64
	idx.ReadLastPosition(func(transportSessionID int32, recordingID, position int64) bool {
		if transportSessionID == 3 {
			gotRecording = recordingID
		}
		return true
	})
	if gotRecording != 3000 {
		t.Fatalf("recording id = %d, want 3000 (from injected lookup)", gotRecording)
	}
}

func TestOnFragmentDetectsTermRollAndFlushesEarly(t *testing.T) {
	clock := &fakeClock{ms: 0}
	idx, dir := openTestIndex(t, Config{
		Clock:            clock,
		FlushTimeoutMs:   1_000_000, // large enough that DoWork would never fire on its own
		TermBufferLength: 1000,
	})

	// First fragment for transport session 1 establishes the pending roll
	// at start_position + term_buffer_length - offset = 0 + 1000 - 0.
	first := NewToyMessageFragment(1, 1, 0, 1, 0, 0, true, 0)
	if err := idx.OnFragment(first); err != nil {
		t.Fatalf("OnFragment(first): %v", err)
	}

	// A fragment whose end position stays under the pending roll (1000)
	// must not force a flush.
	under := NewToyMessageFragment(1, 2, 0, 1, 0, 500, true, 900)
	if err := idx.OnFragment(under); err != nil {
		t.Fatalf("OnFragment(under): %v", err)
	}
	if idx.DoWork() != 0 {
		t.Fatal("DoWork should have nothing to do before the term rolls (the flush timeout hasn't elapsed)")
	}

	// A fragment whose end position exceeds the pending roll must trigger
	// an immediate flush, independent of the flush timeout: DoWork should
	// find nothing left to do right after it.
	over := NewToyMessageFragment(1, 3, 0, 1, 0, 700, true, 1600)
	if err := idx.OnFragment(over); err != nil {
		t.Fatalf("OnFragment(over): %v", err)
	}
	if n := idx.DoWork(); n != 0 {
		t.Errorf("DoWork() after a term roll = %d, want 0 (the roll already flushed)", n)
	}
	reader, err := OpenReader(dir, "sessions.idx", Config{})
	if err != nil {
		t.Fatalf("OpenReader after term roll: %v", err)
	}
	if seq, ok := reader.Lookup(1); !ok || seq != 3 {
		t.Errorf("Lookup(1) on disk after term roll = (%d, %v), want (3, true)", seq, ok)
	}
}

func TestReopenAfterCrashBetweenFirstTwoRenames(t *testing.T) {
	dir := t.TempDir()
	clock := &fakeClock{ms: 0}
	idx, err := Open(dir, "sessions.idx", Config{Clock: clock, FlushTimeoutMs: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	idx.OnFragment(NewToyMessage(1, 5, 0, 1, 1))
	clock.ms++
	idx.DoWork()
	idx.Close()

	// Simulate a crash between rename 1 (index->passing) and rename 2
	// (writable->index): index is missing, passing holds the last
	// flushed data, writable holds stale scratch.
	indexPath := filepath.Join(dir, "sessions.idx")
	passingPath := filepath.Join(dir, "sessions.idx.passing")
	if err := os.Rename(indexPath, passingPath); err != nil {
		t.Fatalf("simulate crash: %v", err)
	}

	reopened, err := Open(dir, "sessions.idx", Config{Clock: clock})
	if err != nil {
		t.Fatalf("Open after simulated crash: %v", err)
	}
	defer reopened.Close()

	seq, ok := reopened.Reader().Lookup(1)
	if !ok || seq != 5 {
		t.Fatalf("Lookup(1) after recovery = (%d, %v), want (5, true)", seq, ok)
	}
}
