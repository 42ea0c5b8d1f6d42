// The message header occupies the fixed prefix of the buffer, at offset 0.
// It is a small binary (not JSON) record carrying a schema id/template
// id/block length/version, SBE-style, because the buffer it prefixes is
// shared with a wire-format-adjacent system: the session/position records
// downstream of it are themselves fixed-width binary, not JSON lines, so
// encoding/binary is the closest fit. goccy/go-json is reserved in this
// module for the off-path diagnostics export (export.go) where a
// textual, portable format is actually wanted.
package seqidx

import "encoding/binary"

// HeaderSize is the fixed size of the message header in bytes. Sectors
// begin immediately after it.
const HeaderSize = 64

// Schema identifiers this package writes and expects to read back. A file
// written by a different schema/template/version is treated as
// SchemaMismatch and loaded as blank.
const (
	CurrentSchemaID     uint16 = 1
	CurrentTemplateID   uint16 = 1
	CurrentBlockLength  uint16 = 0 // informational; record sizes are independently fixed
	CurrentSchemaVersion uint16 = 1
)

// SchemaID identifies the wire schema a header was written with.
type SchemaID struct {
	SchemaID    uint16
	TemplateID  uint16
	BlockLength uint16
	Version     uint16
}

func (s SchemaID) matches(other SchemaID) bool {
	return s.SchemaID == other.SchemaID && s.TemplateID == other.TemplateID && s.Version == other.Version
}

// messageHeader describes the layout of the shared buffer: total capacity,
// the fixed size of each table's record type, and the byte offset at which
// the session-record region ends and the position-record region begins
// (the 0.9/0.1 split between the two).
type messageHeader struct {
	Schema             SchemaID
	Capacity           uint64
	SessionRecordSize  uint32
	PositionRecordSize uint32
	SplitOffset        uint64
}

func expectedSchema() SchemaID {
	return SchemaID{CurrentSchemaID, CurrentTemplateID, CurrentBlockLength, CurrentSchemaVersion}
}

// encodeHeader writes h into buf[0:HeaderSize]. buf must be at least
// HeaderSize bytes.
func encodeHeader(buf []byte, h *messageHeader) {
	b := binary.LittleEndian
	b.PutUint16(buf[0:2], h.Schema.SchemaID)
	b.PutUint16(buf[2:4], h.Schema.TemplateID)
	b.PutUint16(buf[4:6], h.Schema.BlockLength)
	b.PutUint16(buf[6:8], h.Schema.Version)
	b.PutUint64(buf[8:16], h.Capacity)
	b.PutUint32(buf[16:20], h.SessionRecordSize)
	b.PutUint32(buf[20:24], h.PositionRecordSize)
	b.PutUint64(buf[24:32], h.SplitOffset)
}

// decodeHeader reads a messageHeader from buf[0:HeaderSize].
func decodeHeader(buf []byte) *messageHeader {
	b := binary.LittleEndian
	return &messageHeader{
		Schema: SchemaID{
			SchemaID:    b.Uint16(buf[0:2]),
			TemplateID:  b.Uint16(buf[2:4]),
			BlockLength: b.Uint16(buf[4:6]),
			Version:     b.Uint16(buf[6:8]),
		},
		Capacity:           b.Uint64(buf[8:16]),
		SessionRecordSize:  b.Uint32(buf[16:20]),
		PositionRecordSize: b.Uint32(buf[20:24]),
		SplitOffset:        b.Uint64(buf[24:32]),
	}
}

// blank reports whether buf's header is all-zero, i.e. a freshly
// allocated file that has never had a header written.
func blankHeader(buf []byte) bool {
	for _, v := range buf[:32] {
		if v != 0 {
			return false
		}
	}
	return true
}
