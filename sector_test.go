package seqidx

import "testing"

func TestSectorFramerClaimWithinSector(t *testing.T) {
	buf := make([]byte, 64)
	f := newSectorFramer(buf, 0, 64, 64)

	off := f.claim(0, 16)
	if off != 0 {
		t.Fatalf("first claim = %d, want 0", off)
	}
	off = f.claim(16, 16)
	if off != 16 {
		t.Fatalf("second claim = %d, want 16", off)
	}
}

func TestSectorFramerClaimAdvancesPastTrailer(t *testing.T) {
	// Sector size 32, checksum trailer occupies the last 4 bytes, so the
	// payload is [0,28) in the first sector and [32,60) in the second.
	buf := make([]byte, 64)
	f := newSectorFramer(buf, 0, 64, 32)

	off := f.claim(20, 16) // would straddle the trailer at 28
	if off != 32 {
		t.Fatalf("claim should skip to next sector's payload start, got %d", off)
	}
}

func TestSectorFramerClaimOutOfSpace(t *testing.T) {
	buf := make([]byte, 32)
	f := newSectorFramer(buf, 0, 32, 32)

	if off := f.claim(0, 40); off != OutOfSpace {
		t.Fatalf("claim of oversized record = %d, want OutOfSpace", off)
	}
}

func TestSectorFramerChecksumRoundTrip(t *testing.T) {
	buf := make([]byte, 32)
	f := newSectorFramer(buf, 0, 32, 32)

	copy(buf[0:10], []byte("0123456789"))
	f.markDirty(0)
	f.updateChecksums()

	var failures []int64
	f.validateChecksums(func(off int64) { failures = append(failures, off) })
	if len(failures) != 0 {
		t.Fatalf("unexpected checksum failures: %v", failures)
	}

	// Corrupt a payload byte without recomputing the checksum.
	buf[3] ^= 0xff
	failures = nil
	f.validateChecksums(func(off int64) { failures = append(failures, off) })
	if len(failures) != 1 || failures[0] != 0 {
		t.Fatalf("expected one failure at sector 0, got %v", failures)
	}
}

func TestSectorFramerZeroSector(t *testing.T) {
	buf := make([]byte, 32)
	f := newSectorFramer(buf, 0, 32, 32)
	copy(buf[0:10], []byte("0123456789"))

	f.zeroSector(0)
	for _, b := range buf[0:28] {
		if b != 0 {
			t.Fatalf("zeroSector left non-zero payload byte")
		}
	}
}
