// Configuration for an Index: a plain struct with defaults filled in by
// Open, rather than a functional-options builder, since the tunable set
// is small and fixed.
package seqidx

import "go.uber.org/zap"

// Default sizing. FileCapacity must be an integral number of sectors and
// at least the message header plus one sector.
const (
	DefaultSectorSize     = 4096
	DefaultFileCapacity   = 4 * 1024 * 1024 // 4 MiB
	DefaultFlushTimeoutMs = 1000
	SequenceNumberRatio   = 0.9 // 90% record region, 10% position region

	// DefaultTermBufferLength is the fixed span of one term of the
	// upstream archival log, used to detect term rolls. 16 MiB matches
	// the common Aeron default term length.
	DefaultTermBufferLength = 16 * 1024 * 1024
)

// Config holds tunables for Open. Zero values are replaced with defaults.
type Config struct {
	// FileCapacity is the total span of the shared buffer in bytes. Must
	// be an integral number of sectors and at least the message header
	// plus one sector.
	FileCapacity int64

	// SectorSize is the fixed physical span of each checksum-framed
	// sector.
	SectorSize int64

	// StreamID restricts onFragment to fragments carrying this stream id;
	// others are ignored. Zero accepts fragments on every stream.
	StreamID int32

	// FlushTimeoutMs is the minimum interval, in milliseconds, between
	// time-triggered flushes (doWork's cooperative tick).
	FlushTimeoutMs int64

	// TermBufferLength is the fixed span of one term of the upstream
	// archival log. OnFragment watches each transport session's
	// archival-log position against a rolling boundary advanced by this
	// amount, and triggers an out-of-band flush whenever a fragment's
	// end position crosses it.
	TermBufferLength int64

	// RecordingIDLookup resolves a transport session id to the archival
	// recording id indexing it, supplied by the host gateway. Called
	// once per fragment; the result is not cached by the index.
	RecordingIDLookup func(transportSessionID int32) int64

	// FingerprintAlgorithm defaults to AlgXXHash3. Fingerprint computes
	// the digest named by its own argument and does not read this field.
	FingerprintAlgorithm FingerprintAlgorithm

	// ErrorHandler receives every non-fatal error. A nil handler means
	// errors are silently dropped, which is legal but discouraged
	// outside of tests.
	ErrorHandler ErrorHandler

	// Logger receives structured diagnostic lines at the same points
	// ErrorHandler fires, plus Info-level flush/recovery lines. Optional;
	// a nil logger means no logging.
	Logger *zap.SugaredLogger

	// Clock supplies monotonic milliseconds for flush-timeout scheduling.
	// Defaults to RealClock.
	Clock Clock
}

func (c Config) withDefaults() Config {
	if c.FileCapacity == 0 {
		c.FileCapacity = DefaultFileCapacity
	}
	if c.SectorSize == 0 {
		c.SectorSize = DefaultSectorSize
	}
	if c.FlushTimeoutMs == 0 {
		c.FlushTimeoutMs = DefaultFlushTimeoutMs
	}
	if c.TermBufferLength == 0 {
		c.TermBufferLength = DefaultTermBufferLength
	}
	if c.RecordingIDLookup == nil {
		c.RecordingIDLookup = func(int32) int64 { return 0 }
	}
	if c.FingerprintAlgorithm == 0 {
		c.FingerprintAlgorithm = AlgXXHash3
	}
	if c.ErrorHandler == nil {
		c.ErrorHandler = func(*IndexError) {}
	}
	if c.Clock == nil {
		c.Clock = RealClock{}
	}
	return c
}
