package seqidx

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, HeaderSize)
	h := &messageHeader{
		Schema:             expectedSchema(),
		Capacity:           DefaultFileCapacity,
		SessionRecordSize:  SessionRecordSize,
		PositionRecordSize: PositionRecordSize,
		SplitOffset:        1 << 20,
	}
	encodeHeader(buf, h)

	got := decodeHeader(buf)
	if *got != *h {
		t.Errorf("decodeHeader(encodeHeader(h)) = %+v, want %+v", got, h)
	}
}

func TestBlankHeaderDetection(t *testing.T) {
	buf := make([]byte, HeaderSize)
	if !blankHeader(buf) {
		t.Error("all-zero buffer should be reported blank")
	}

	encodeHeader(buf, &messageHeader{Schema: expectedSchema()})
	if blankHeader(buf) {
		t.Error("buffer with a written schema id should not be reported blank")
	}
}

func TestSchemaMatches(t *testing.T) {
	a := expectedSchema()
	b := a
	if !a.matches(b) {
		t.Error("identical SchemaID values should match")
	}
	b.SchemaID++
	if a.matches(b) {
		t.Error("differing SchemaID should not match")
	}
}
