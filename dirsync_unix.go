//go:build !windows

package seqidx

import (
	"os"

	"golang.org/x/sys/unix"
)

// fsyncDir forces the directory entry changes made by the three renames
// in fileManager.flip to stable storage: the renames themselves are
// atomic, but the directory's own metadata still needs a separate fsync
// on POSIX to survive a power loss. Uses x/sys/unix directly rather than
// os.File.Sync so the intent - flushing directory metadata, not file
// contents - is explicit at the call site.
func fsyncDir(root *os.Root, name string) error {
	fd, err := unix.Open(root.Name(), unix.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)
	return unix.Fsync(fd)
}
