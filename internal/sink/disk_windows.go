//go:build windows

package sink

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// DiskUsage returns the bytes available to the caller and the total size of
// the volume holding path.
func DiskUsage(path string) (free, total uint64, err error) {
	stat, err := os.Stat(path)
	if err != nil {
		return 0, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if !stat.IsDir() {
		return 0, 0, fmt.Errorf("%s is not a directory", path)
	}

	ptr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, 0, fmt.Errorf("encode path: %w", err)
	}

	var freeBytes, totalBytes, totalFreeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(ptr, &freeBytes, &totalBytes, &totalFreeBytes); err != nil {
		return 0, 0, fmt.Errorf("get disk free space: %w", err)
	}

	return freeBytes, totalBytes, nil
}
