// Package sink provides output targets that retrieved media is committed to.
package sink

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/iconidentify/reelgrab/internal/domain"
)

// OutputTarget receives retrieved media. Prepare returns a local staging
// directory for one item; Commit moves a finished file from that directory
// to its final location and returns where it ended up.
type OutputTarget interface {
	Prepare(ctx context.Context, itemID string) (string, error)
	Commit(ctx context.Context, itemID, localPath string) (string, error)
	String() string
}

// Options configures targets created by Open.
type Options struct {
	// TempPath holds staging files for remote targets.
	TempPath string
	// MinFreeBytes is the free space required before a retrieval starts.
	MinFreeBytes uint64
}

// Open creates the output target named by target. A bare path or fs:// URL
// yields a directory target; b2://keyID:appKey@bucket/prefix a Backblaze B2
// target.
func Open(ctx context.Context, target string, opts Options) (OutputTarget, error) {
	if !strings.Contains(target, "://") {
		return NewFSTarget(target, opts.MinFreeBytes)
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse output target: %w", err)
	}

	switch u.Scheme {
	case "fs", "file":
		return NewFSTarget(u.Host+u.Path, opts.MinFreeBytes)
	case "b2":
		return NewB2Target(ctx, u, opts)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedTarget, u.Scheme)
	}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

const maxNameLen = 120

// SafeName turns an item id into a filename stem. Ids that are already safe
// are used as is. Any other id gets a hash of the raw id appended, so two
// ids that sanitize alike still get distinct stems.
func SafeName(itemID string) string {
	name := unsafeChars.ReplaceAllString(itemID, "_")
	name = strings.Trim(name, "._")
	if name == itemID && name != "" && len(name) <= maxNameLen {
		return name
	}

	h := fnv.New32a()
	h.Write([]byte(itemID))
	suffix := fmt.Sprintf("%08x", h.Sum32())

	if name == "" {
		name = "item"
	}
	if limit := maxNameLen - len(suffix) - 1; len(name) > limit {
		name = name[:limit]
	}
	return name + "-" + suffix
}

func checkFree(dir string, minFree uint64) error {
	if minFree == 0 {
		return nil
	}
	free, _, err := DiskUsage(dir)
	if err != nil {
		// Unknown free space is not a reason to refuse work.
		return nil
	}
	if free < minFree {
		return fmt.Errorf("%w: %d bytes free in %s", domain.ErrStorageFull, free, filepath.Clean(dir))
	}
	return nil
}
