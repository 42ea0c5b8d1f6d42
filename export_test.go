package seqidx

import "testing"

func TestExportImportSnapshotRoundTrip(t *testing.T) {
	src, _ := openTestIndex(t, Config{})
	src.OnFragment(NewToyMessage(1, 5, 0, 1, 200))
	src.OnFragment(NewToyMessage(2, 9, 0, 1, 400))

	text, err := src.ExportSnapshot()
	if err != nil {
		t.Fatalf("ExportSnapshot: %v", err)
	}
	if text == "" {
		t.Fatal("ExportSnapshot returned empty text")
	}

	dst, _ := openTestIndex(t, Config{})
	if err := dst.ImportSnapshot(text); err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}

	if seq, ok := dst.Reader().Lookup(1); !ok || seq != 5 {
		t.Errorf("Lookup(1) after import = (%d, %v), want (5, true)", seq, ok)
	}
	if seq, ok := dst.Reader().Lookup(2); !ok || seq != 9 {
		t.Errorf("Lookup(2) after import = (%d, %v), want (9, true)", seq, ok)
	}
}

func TestImportSnapshotRejectedAfterClose(t *testing.T) {
	idx, _ := openTestIndex(t, Config{})
	text, err := idx.ExportSnapshot()
	if err != nil {
		t.Fatalf("ExportSnapshot: %v", err)
	}
	idx.Close()

	if err := idx.ImportSnapshot(text); err != ErrClosed {
		t.Errorf("ImportSnapshot after Close = %v, want ErrClosed", err)
	}
}
