package sink

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	blazer "github.com/Backblaze/blazer/b2"
)

var _ OutputTarget = (*B2Target)(nil)

// objectStore is the slice of a bucket the B2 target needs.
type objectStore interface {
	Upload(ctx context.Context, name, contentType string, r io.Reader) error
	Name() string
}

// B2Target stages media locally and uploads it to a Backblaze B2 bucket on
// commit.
type B2Target struct {
	store   objectStore
	prefix  string
	tempDir string
	minFree uint64
}

// NewB2Target connects to the bucket named by u
// (b2://keyID:appKey@bucket/prefix).
func NewB2Target(ctx context.Context, u *url.URL, opts Options) (*B2Target, error) {
	keyID := u.User.Username()
	appKey, _ := u.User.Password()
	bucketName := u.Hostname()
	if keyID == "" || appKey == "" || bucketName == "" {
		return nil, fmt.Errorf("b2 target needs b2://keyID:appKey@bucket/prefix")
	}

	client, err := blazer.NewClient(ctx, keyID, appKey)
	if err != nil {
		return nil, fmt.Errorf("create b2 client: %w", err)
	}
	bucket, err := client.Bucket(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("get b2 bucket: %w", err)
	}

	return newB2Target(&blazerStore{bucket: bucket}, u.Path, opts)
}

func newB2Target(store objectStore, prefix string, opts Options) (*B2Target, error) {
	tempDir := opts.TempPath
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}
	return &B2Target{
		store:   store,
		prefix:  strings.Trim(prefix, "/"),
		tempDir: tempDir,
		minFree: opts.MinFreeBytes,
	}, nil
}

func (t *B2Target) String() string {
	return fmt.Sprintf("b2 %q bucket", t.store.Name())
}

// Prepare creates a local staging directory for itemID.
func (t *B2Target) Prepare(ctx context.Context, itemID string) (string, error) {
	if err := checkFree(t.tempDir, t.minFree); err != nil {
		return "", err
	}

	staging := filepath.Join(t.tempDir, "reelgrab-"+SafeName(itemID))
	if err := os.RemoveAll(staging); err != nil {
		return "", fmt.Errorf("clear staging directory: %w", err)
	}
	if err := os.MkdirAll(staging, 0755); err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}
	return staging, nil
}

// Commit uploads localPath and removes the staging directory. The returned
// location has the form b2://bucket/key.
func (t *B2Target) Commit(ctx context.Context, itemID, localPath string) (string, error) {
	name := filepath.Base(localPath)
	key := name
	if t.prefix != "" {
		key = path.Join(t.prefix, name)
	}

	contentType := contentTypeFor(name)

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open staged file: %w", err)
	}
	defer f.Close()

	if err := t.store.Upload(ctx, key, contentType, f); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	os.RemoveAll(filepath.Dir(localPath))
	return fmt.Sprintf("b2://%s/%s", t.store.Name(), key), nil
}

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
}

func contentTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := videoTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

type blazerStore struct {
	bucket *blazer.Bucket
}

func (s *blazerStore) Name() string {
	return s.bucket.Name()
}

func (s *blazerStore) Upload(ctx context.Context, name, contentType string, r io.Reader) error {
	attrs := blazer.Attrs{ContentType: contentType}
	writer := s.bucket.Object(name).NewWriter(ctx, blazer.WithAttrsOption(&attrs))

	if _, err := writer.ReadFrom(r); err != nil {
		writer.Close()
		return fmt.Errorf("copy to b2: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close b2 object: %w", err)
	}
	return nil
}
