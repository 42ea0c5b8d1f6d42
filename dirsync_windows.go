//go:build windows

package seqidx

import "os"

// fsyncDir is a no-op on Windows: NTFS does not expose a directory
// handle that can be meaningfully fsync'd, and MoveFileEx-backed
// renames are already durable once the call returns.
func fsyncDir(root *os.Root, name string) error {
	return nil
}
