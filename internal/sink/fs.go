package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const stagingDirName = ".partial"

// FSTarget writes media into a local directory. Items are staged under
// <dir>/.partial/<item> and renamed into dir on commit.
type FSTarget struct {
	dir     string
	minFree uint64
}

// NewFSTarget creates a directory target, creating dir when missing.
func NewFSTarget(dir string, minFree uint64) (*FSTarget, error) {
	if dir == "" {
		return nil, errors.New("output directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve output directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &FSTarget{dir: abs, minFree: minFree}, nil
}

// Dir returns the output directory.
func (t *FSTarget) Dir() string {
	return t.dir
}

func (t *FSTarget) String() string {
	return "directory " + t.dir
}

// Prepare creates a fresh staging directory for itemID after checking free
// space.
func (t *FSTarget) Prepare(ctx context.Context, itemID string) (string, error) {
	if err := checkFree(t.dir, t.minFree); err != nil {
		return "", err
	}

	staging := filepath.Join(t.dir, stagingDirName, SafeName(itemID))
	if err := os.RemoveAll(staging); err != nil {
		return "", fmt.Errorf("clear staging directory: %w", err)
	}
	if err := os.MkdirAll(staging, 0755); err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}
	return staging, nil
}

// Commit moves localPath into the output directory, replacing any previous
// file of the same name.
func (t *FSTarget) Commit(ctx context.Context, itemID, localPath string) (string, error) {
	final := filepath.Join(t.dir, filepath.Base(localPath))

	if err := os.Rename(localPath, final); err != nil {
		// Cross-device staging falls back to a copy.
		if cerr := copyFile(localPath, final); cerr != nil {
			return "", fmt.Errorf("move %s: %w", filepath.Base(localPath), cerr)
		}
		os.Remove(localPath)
	}

	os.RemoveAll(filepath.Join(t.dir, stagingDirName, SafeName(itemID)))
	return final, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
