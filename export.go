// ExportSnapshot/ImportSnapshot are off-path diagnostics: a portable,
// textual rendering of the live tables for support tooling
// to paste into a ticket, distinct from the raw binary file. The
// pipeline - JSON for structure, zstd to keep the result pasteable,
// ascii85 so the compressed bytes survive a text field - trades a
// little encode time for a snapshot that round-trips through chat
// windows and ticket comment boxes without corruption.
package seqidx

import (
	"bytes"
	"encoding/ascii85"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

// snapshotRecord is one live session record in the exported snapshot.
type snapshotRecord struct {
	SessionID      uint64 `json:"session_id"`
	SequenceNumber uint32 `json:"sequence_number"`
}

// snapshotPosition is one live position record in the exported snapshot.
type snapshotPosition struct {
	TransportSessionID int32 `json:"transport_session_id"`
	RecordingID        int64 `json:"recording_id"`
	Position           int64 `json:"position"`
}

// snapshot is the JSON document compressed and ascii85-encoded by
// ExportSnapshot.
type snapshot struct {
	Records   []snapshotRecord   `json:"records"`
	Positions []snapshotPosition `json:"positions"`
}

// ExportSnapshot renders every live record in both tables as compressed,
// ascii85-encoded JSON text.
func (idx *Index) ExportSnapshot() (string, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var snap snapshot
	idx.records.All(func(sessionID uint64, seq uint32) bool {
		snap.Records = append(snap.Records, snapshotRecord{SessionID: sessionID, SequenceNumber: seq})
		return true
	})
	idx.positions.ReadLastPosition(func(transportSessionID int32, recordingID, position int64) bool {
		snap.Positions = append(snap.Positions, snapshotPosition{
			TransportSessionID: transportSessionID,
			RecordingID:        recordingID,
			Position:           position,
		})
		return true
	})

	raw, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("seqidx: marshal snapshot: %w", err)
	}

	var compressed bytes.Buffer
	enc, err := zstd.NewWriter(&compressed)
	if err != nil {
		return "", fmt.Errorf("seqidx: new zstd writer: %w", err)
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return "", fmt.Errorf("seqidx: compress snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("seqidx: close zstd writer: %w", err)
	}

	var encoded bytes.Buffer
	w := ascii85.NewEncoder(&encoded)
	if _, err := w.Write(compressed.Bytes()); err != nil {
		return "", fmt.Errorf("seqidx: ascii85 encode snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("seqidx: close ascii85 encoder: %w", err)
	}

	return encoded.String(), nil
}

// ImportSnapshot writes every record in text, as produced by
// ExportSnapshot, into both tables. It does not touch sessions or
// positions absent from the snapshot but present in the index - those
// are left as-is, so importing is additive-or-overwriting rather than a
// full reset. ResetSequenceNumbers clears only the session records;
// position records are never cleared.
func (idx *Index) ImportSnapshot(text string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}

	decoded := ascii85.NewDecoder(bytes.NewReader([]byte(text)))
	compressed, err := io.ReadAll(decoded)
	if err != nil {
		return fmt.Errorf("seqidx: ascii85 decode snapshot: %w", err)
	}

	dec, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("seqidx: new zstd reader: %w", err)
	}
	defer dec.Close()

	raw, err := io.ReadAll(dec)
	if err != nil {
		return fmt.Errorf("seqidx: decompress snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("seqidx: unmarshal snapshot: %w", err)
	}

	for _, r := range snap.Records {
		if err := idx.records.Set(r.SessionID, r.SequenceNumber); err != nil {
			idx.reportFull(r.SessionID)
			return err
		}
	}
	for _, p := range snap.Positions {
		if err := idx.positions.IndexedUpTo(p.TransportSessionID, p.RecordingID, p.Position); err != nil {
			idx.reportFull(uint64(p.TransportSessionID))
			return err
		}
	}

	idx.markDirty()
	return nil
}
