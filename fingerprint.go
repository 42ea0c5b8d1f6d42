// Fingerprint is an off-path diagnostic read operation: a digest over
// the live record and position regions
// that two index instances can compare to confirm they agree without
// shipping the whole buffer. Three algorithms are wired so the choice
// can trade digest strength for speed: xxh3 (fast, the default, used
// elsewhere in the retrieved pack for exactly this kind of bulk
// checksum), blake2b (cryptographic strength, for audit contexts), and
// the standard library's fnv-1a as the zero-dependency fallback.
package seqidx

import (
	"encoding/hex"
	"fmt"
	"hash/fnv"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// FingerprintAlgorithm selects the digest Fingerprint computes.
type FingerprintAlgorithm int

const (
	AlgXXHash3 FingerprintAlgorithm = iota
	AlgFNV1a
	AlgBlake2b
)

func (a FingerprintAlgorithm) String() string {
	switch a {
	case AlgXXHash3:
		return "xxh3"
	case AlgFNV1a:
		return "fnv1a"
	case AlgBlake2b:
		return "blake2b"
	default:
		return fmt.Sprintf("FingerprintAlgorithm(%d)", int(a))
	}
}

// Fingerprint hashes the live (non-empty) records of both tables in
// ascending slot order, so two instances with identical data but
// different free-slot garbage bytes still agree. It does not touch the
// sector checksum trailers.
func (idx *Index) Fingerprint(alg FingerprintAlgorithm) (string, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	switch alg {
	case AlgXXHash3:
		h := xxh3.New()
		idx.hashLiveRecords(h.Write)
		return hex.EncodeToString(h.Sum(nil)), nil
	case AlgFNV1a:
		h := fnv.New128a()
		idx.hashLiveRecords(func(b []byte) (int, error) { return h.Write(b) })
		return hex.EncodeToString(h.Sum(nil)), nil
	case AlgBlake2b:
		h, err := blake2b.New256(nil)
		if err != nil {
			return "", err
		}
		idx.hashLiveRecords(h.Write)
		return hex.EncodeToString(h.Sum(nil)), nil
	default:
		return "", fmt.Errorf("seqidx: unknown fingerprint algorithm %v", alg)
	}
}

func (idx *Index) hashLiveRecords(write func([]byte) (int, error)) {
	var scratch [SessionRecordSize]byte
	idx.records.All(func(sessionID uint64, seq uint32) bool {
		writeSessionID(scratch[:], 0, sessionID)
		storeSeqNo(scratch[:], 0, seq)
		write(scratch[:])
		return true
	})

	var pscratch [PositionRecordSize]byte
	idx.positions.ReadLastPosition(func(transportSessionID int32, recordingID, position int64) bool {
		writeTransportID(pscratch[:], 0, transportSessionID)
		writeRecordingID(pscratch[:], 0, recordingID)
		writePosition(pscratch[:], 0, position)
		write(pscratch[:])
		return true
	})
}
