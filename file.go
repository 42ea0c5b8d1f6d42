// File Manager: owns the three-file set (index, writable, passing-place)
// and performs the atomic flip and crash recovery.
//
// Sandboxed directory access uses an os.Root: every path operation is
// relative to one os.Root so the index can never escape its dedicated
// directory.
//
// The in-memory buffer the writer mutates is a plain heap []byte, not
// itself a memory-mapped region — it only needs the same capacity as the
// mapped writable file, not shared pages with it, and keeping it off the
// mmap means the release/acquire field access in record.go works
// identically on every platform. github.com/edsrzf/mmap-go backs only
// the two on-disk scratch/canonical handles that the flush cycle copies
// the buffer into.
package seqidx

import (
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

const (
	writableSuffix = ".write"
	passingSuffix  = ".passing"
)

// fileManager owns the three on-disk paths and the two live memory-mapped
// handles (index, writable). At every quiescent instant exactly two of
// the three paths exist on disk (invariant 6); passingPath exists only
// transiently during flip.
type fileManager struct {
	root *os.Root
	name string

	indexPath, writablePath, passingPath string

	indexFile, writableFile *os.File
	indexMmap, writableMmap mmap.MMap

	lock fileLock

	capacity int64
}

// openFileManager performs the recovery-at-open sequence and returns a
// ready fileManager plus the recovered in-memory buffer.
func openFileManager(root *os.Root, name string, capacity int64, onError ErrorHandler) (*fileManager, []byte, error) {
	fm := &fileManager{
		root:         root,
		name:         name,
		indexPath:    name,
		writablePath: name + writableSuffix,
		passingPath:  name + passingSuffix,
		capacity:     capacity,
	}

	buf, err := fm.recover(onError)
	if err != nil {
		return nil, nil, err
	}

	if err := fm.openHandles(buf); err != nil {
		return nil, nil, err
	}

	return fm, buf, nil
}

// recover implements the three-step recovery: load P_index if present
// (starting blank if its schema does not match), else promote
// P_passing, else start blank.
func (fm *fileManager) recover(onError ErrorHandler) ([]byte, error) {
	if fm.exists(fm.indexPath) {
		buf, ok, err := fm.loadFrom(fm.indexPath, onError)
		if err != nil {
			return nil, err
		}
		if ok {
			return buf, nil
		}
		// Schema mismatch: start from a blank buffer; P_passing is not
		// consulted.
		return fm.blankBuffer(), nil
	}

	if fm.exists(fm.passingPath) {
		if err := fm.root.Rename(fm.passingPath, fm.indexPath); err != nil {
			return nil, err
		}
		return fm.recover(onError)
	}

	return fm.blankBuffer(), nil
}

func (fm *fileManager) exists(name string) bool {
	_, err := fm.root.Stat(name)
	return err == nil
}

// loadFrom reads name into a fresh buffer and validates its schema; the
// caller validates and zeroes any sector whose checksum fails. ok is
// false if the schema doesn't match, signalling the caller to start from
// a blank buffer.
func (fm *fileManager) loadFrom(name string, onError ErrorHandler) ([]byte, bool, error) {
	f, err := fm.root.OpenFile(name, os.O_RDONLY, 0o644)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, false, err
	}
	if info.Size() != fm.capacity {
		return nil, false, ErrSizeMismatch
	}

	buf := make([]byte, fm.capacity)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, false, err
	}

	if blankHeader(buf) {
		return fm.blankBuffer(), true, nil
	}

	hdr := decodeHeader(buf)
	want := expectedSchema()
	if !hdr.Schema.matches(want) {
		onError(&IndexError{Kind: SchemaMismatch, Found: hdr.Schema, Expected: want})
		return nil, false, nil
	}

	// Sector checksum validation runs once Open has rebuilt the record
	// and position framers over this buffer (it needs the configured
	// sector size and the header's split offset); see Index.Open.
	return buf, true, nil
}

// blankBuffer allocates a fresh zeroed buffer of capacity. The header is
// written by the caller (Open) once it knows the configured sector size
// and split offset.
func (fm *fileManager) blankBuffer() []byte {
	return make([]byte, fm.capacity)
}

// openHandles ensures both P_index and P_writable exist on disk sized to
// capacity and mmaps both, removing any leftover P_passing so that
// exactly two of the three paths are present at rest.
func (fm *fileManager) openHandles(buf []byte) error {
	if !fm.exists(fm.indexPath) {
		if err := fm.writeWholeFile(fm.indexPath, buf); err != nil {
			return err
		}
	}
	if !fm.exists(fm.writablePath) {
		if err := fm.writeWholeFile(fm.writablePath, buf); err != nil {
			return err
		}
	}
	if fm.exists(fm.passingPath) {
		if err := fm.root.Remove(fm.passingPath); err != nil {
			return err
		}
	}

	indexFile, indexMap, err := fm.openMapped(fm.indexPath)
	if err != nil {
		return err
	}
	writableFile, writableMap, err := fm.openMapped(fm.writablePath)
	if err != nil {
		indexMap.Unmap()
		indexFile.Close()
		return err
	}

	fm.indexFile, fm.indexMmap = indexFile, indexMap
	fm.writableFile, fm.writableMmap = writableFile, writableMap

	if err := fm.acquireLock(); err != nil {
		fm.Close()
		return err
	}
	return nil
}

// acquireLock takes an exclusive flock/LockFileEx on the current index
// file handle, enforcing the single-writer requirement across processes.
func (fm *fileManager) acquireLock() error {
	fm.lock.setFile(fm.indexFile)
	return fm.lock.Lock(LockExclusive)
}

// releaseLock releases the lock and detaches it from the file handle,
// so Close can safely close the fd afterward.
func (fm *fileManager) releaseLock() error {
	err := fm.lock.Unlock()
	fm.lock.setFile(nil)
	return err
}

func (fm *fileManager) writeWholeFile(name string, buf []byte) error {
	f, err := fm.root.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteAt(buf, 0); err != nil {
		return err
	}
	return f.Sync()
}

func (fm *fileManager) openMapped(name string) (*os.File, mmap.MMap, error) {
	f, err := fm.root.OpenFile(name, os.O_RDWR, 0o644)
	if err != nil {
		return nil, nil, err
	}
	m, err := mmap.MapRegion(f, int(fm.capacity), mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, m, nil
}

// Flush copies buf into the writable mapped file, forces it to stable
// storage, then performs the three-rename atomic flip (updateChecksums
// is the caller's responsibility beforehand).
func (fm *fileManager) Flush(buf []byte, onError ErrorHandler) error {
	copy(fm.writableMmap, buf)
	if err := fm.writableMmap.Flush(); err != nil {
		return err
	}
	if err := fm.writableFile.Sync(); err != nil {
		return err
	}
	if err := fm.flip(onError); err != nil {
		return err
	}
	if err := fsyncDir(fm.root, "."); err != nil {
		// Directory fsync is a best-effort durability improvement;
		// failure here does not undo an already-committed flip.
		onError(&IndexError{Kind: RenameFailed, Src: fm.indexPath, Dst: ".", Err: err})
	}
	return nil
}

// flip performs the rename sequence: index->passing, writable->index,
// passing->writable. On platforms where an open mmap blocks renaming
// the underlying file (Windows), beforeFlip/afterFlip unmap and remap
// around it; on POSIX nothing is remapped and afterFlip swaps the two
// handles in place, since the renamed-around file descriptors stay
// valid, but only when the writable file now sits at the index path.
func (fm *fileManager) flip(onError ErrorHandler) error {
	if err := fm.beforeFlip(); err != nil {
		return err
	}

	if err := fm.root.Rename(fm.indexPath, fm.passingPath); err != nil {
		onError(&IndexError{Kind: RenameFailed, Src: fm.indexPath, Dst: fm.passingPath, Err: err})
		fm.afterFlip() //nolint:errcheck // best-effort: restore mapped state for retry
		return err
	}
	if err := fm.root.Rename(fm.writablePath, fm.indexPath); err != nil {
		onError(&IndexError{Kind: RenameFailed, Src: fm.writablePath, Dst: fm.indexPath, Err: err})
		fm.root.Rename(fm.passingPath, fm.indexPath) //nolint:errcheck // best-effort rollback
		fm.afterFlip()
		return err
	}
	if err := fm.root.Rename(fm.passingPath, fm.writablePath); err != nil {
		onError(&IndexError{Kind: RenameFailed, Src: fm.passingPath, Dst: fm.writablePath, Err: err})
		fm.afterFlip()
		return err
	}

	return fm.afterFlip()
}

// passingPlace returns the diagnostic path of the passing-place file.
func (fm *fileManager) passingPlace() string {
	return fm.passingPath
}

// Close unmaps and closes both handles. Idempotent.
func (fm *fileManager) Close() error {
	var firstErr error
	if err := fm.releaseLock(); err != nil && firstErr == nil {
		firstErr = err
	}
	if fm.indexMmap != nil {
		if err := fm.indexMmap.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
		fm.indexMmap = nil
	}
	if fm.writableMmap != nil {
		if err := fm.writableMmap.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
		fm.writableMmap = nil
	}
	if fm.indexFile != nil {
		if err := fm.indexFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		fm.indexFile = nil
	}
	if fm.writableFile != nil {
		if err := fm.writableFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		fm.writableFile = nil
	}
	return firstErr
}
