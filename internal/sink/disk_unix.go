//go:build !windows

package sink

import (
	"fmt"
	"os"
	"syscall"
)

// DiskUsage returns the bytes available to the caller and the total size of
// the filesystem holding path.
func DiskUsage(path string) (free, total uint64, err error) {
	stat, err := os.Stat(path)
	if err != nil {
		return 0, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if !stat.IsDir() {
		return 0, 0, fmt.Errorf("%s is not a directory", path)
	}

	var fs syscall.Statfs_t
	if err := syscall.Statfs(path, &fs); err != nil {
		return 0, 0, fmt.Errorf("statfs %s: %w", path, err)
	}

	return uint64(fs.Bavail) * uint64(fs.Bsize), uint64(fs.Blocks) * uint64(fs.Bsize), nil
}
