// External-collaborator interfaces: OnFragment is handed an
// already-decoded fragment rather than raw bytes, so the index has no
// opinion on wire format. These interfaces describe what the caller's
// decoder must expose; the Toy* types below are a minimal concrete
// implementation used to exercise OnFragment end-to-end in tests,
// standing in for a real upstream message format.
package seqidx

// HeaderDecoder exposes the FIX-style session/sequence fields every
// fragment must carry, regardless of which concrete message type it is.
type HeaderDecoder interface {
	SessionID() uint64
	SequenceNumber() uint32
	StreamID() int32
}

// FixMessageDecoder is an ordinary application fragment: its header
// identifies the session and sequence number to record, its transport
// coordinates identify the upstream stream the archival log tracks, and
// Position reports the archival-log offset reached once this fragment
// has been consumed (the recording id itself comes from the injected
// RecordingIDLookup collaborator, not from the decoder).
type FixMessageDecoder interface {
	HeaderDecoder
	TransportSessionID() int32
	Position() int64
}

// ResetSessionIdsDecoder carries the administrative command that clears
// every session's recorded sequence number back to the empty state.
type ResetSessionIdsDecoder interface {
	HeaderDecoder
}

// ResetSequenceNumberDecoder carries the administrative command that
// clears a single session's recorded sequence number.
type ResetSequenceNumberDecoder interface {
	HeaderDecoder
	TargetSessionID() uint64
}

// Fragment is the sum type OnFragment dispatches on: exactly one of
// Message/ResetAll/ResetSession is non-nil. Offset and Length describe
// the fragment's span within the current term buffer, the same two
// coordinates a duty-cycled fragment handler receives alongside the
// header; Begin reports whether this fragment carries the BEGIN flag of
// a logical message. Continuation fragments (Begin == false) are
// ignored by OnFragment — the header of interest is only meaningful on
// the first fragment of a message.
type Fragment struct {
	Message      FixMessageDecoder
	ResetAll     ResetSessionIdsDecoder
	ResetSession ResetSequenceNumberDecoder

	Offset int32
	Length int32
	Begin  bool
}

// toyHeader is the shared field set behind every toy decoder below.
type toyHeader struct {
	sessionID uint64
	seqNo     uint32
	streamID  int32
}

func (h toyHeader) SessionID() uint64      { return h.sessionID }
func (h toyHeader) SequenceNumber() uint32 { return h.seqNo }
func (h toyHeader) StreamID() int32        { return h.streamID }

// ToyMessage is a minimal FixMessageDecoder for tests: a fixed-width
// struct rather than a real FIX tag/value wire format.
type ToyMessage struct {
	toyHeader
	Transport  int32
	RecordedAt int64
}

func (m ToyMessage) TransportSessionID() int32 { return m.Transport }
func (m ToyMessage) Position() int64           { return m.RecordedAt }

// NewToyMessage builds a Fragment wrapping a single-fragment (Begin
// true, offset 0) ToyMessage. Use NewToyMessageFragment to exercise
// continuation filtering or term-roll detection explicitly.
func NewToyMessage(sessionID uint64, seqNo uint32, streamID int32, transport int32, position int64) Fragment {
	return NewToyMessageFragment(sessionID, seqNo, streamID, transport, 0, 0, true, position)
}

// NewToyMessageFragment builds a Fragment wrapping a ToyMessage with
// explicit term-buffer offset/length and BEGIN flag, for tests of
// continuation-fragment filtering and term-roll detection.
func NewToyMessageFragment(sessionID uint64, seqNo uint32, streamID, transport, offset, length int32, begin bool, position int64) Fragment {
	return Fragment{
		Message: ToyMessage{
			toyHeader:  toyHeader{sessionID: sessionID, seqNo: seqNo, streamID: streamID},
			Transport:  transport,
			RecordedAt: position,
		},
		Offset: offset,
		Length: length,
		Begin:  begin,
	}
}

// ToyResetAll is a minimal ResetSessionIdsDecoder for tests.
type ToyResetAll struct {
	toyHeader
}

// NewToyResetAll builds a Fragment wrapping a ToyResetAll command.
func NewToyResetAll(streamID int32) Fragment {
	return Fragment{ResetAll: ToyResetAll{toyHeader{streamID: streamID}}, Begin: true}
}

// ToyResetSession is a minimal ResetSequenceNumberDecoder for tests.
type ToyResetSession struct {
	toyHeader
	Target uint64
}

func (r ToyResetSession) TargetSessionID() uint64 { return r.Target }

// NewToyResetSession builds a Fragment wrapping a ToyResetSession command.
func NewToyResetSession(streamID int32, target uint64) Fragment {
	return Fragment{ResetSession: ToyResetSession{toyHeader: toyHeader{streamID: streamID}, Target: target}, Begin: true}
}
