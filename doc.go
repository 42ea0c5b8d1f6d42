// Package seqidx is a single-writer, crash-safe persistent index from a
// 64-bit session identifier to the last observed 32-bit sequence number of
// a FIX-like message stream.
//
// The index is designed to sit on the hot ingest path of a gateway: every
// inbound/outbound message fragment is offered to it, and it must survive a
// crash at any instruction without replaying the archival log. Durability
// comes from a passing-place rename dance across three file paths plus
// sector-level checksum framing, so a torn write or a crash mid-fsync
// leaves a readable predecessor on disk.
//
// Two logical tables share one file: session records (session id ->
// sequence number) and position records (transport session id -> last
// archival-log offset consumed). Both use the same sector-framed,
// checksummed layout.
//
// The package assumes a single writer goroutine driving OnFragment/DoWork/
// Close; readers may run concurrently on other goroutines, safely, and
// observe a consistent, if slightly stale, view of the live buffer. Each
// table guards its own acceleration map with a dedicated mutex rather
// than the writer's lock, since a Reader handed out by Index.Reader is
// meant to outlive any single call into Index.
package seqidx
