package seqidx

import (
	"errors"
	"strings"
	"testing"
)

func TestIndexErrorUnwrap(t *testing.T) {
	wrapped := errors.New("disk full")
	e := &IndexError{Kind: RenameFailed, Err: wrapped}
	if !errors.Is(e, wrapped) {
		t.Errorf("errors.Is should see through Unwrap to the wrapped error")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		ChecksumFailed:  "CHECKSUM_FAILED",
		IndexFull:       "INDEX_FULL",
		RenameFailed:    "RENAME_FAILED",
		SchemaMismatch:  "SCHEMA_MISMATCH",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}

func TestIndexErrorMessageMentionsKind(t *testing.T) {
	e := &IndexError{Kind: IndexFull, SessionID: 42}
	if msg := e.Error(); !strings.Contains(msg, "index full") {
		t.Errorf("Error() = %q, should mention the index-full kind", msg)
	}
}
