package downloader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/iconidentify/reelgrab/internal/config"
	"github.com/iconidentify/reelgrab/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedFetcher fails or succeeds per attempt according to errs. A nil
// entry (or running past the end) writes a file and succeeds.
type scriptedFetcher struct {
	mu       sync.Mutex
	errs     []error
	signals  [][]ProgressSignal
	info     *MediaInfo
	infoErr  error
	calls    int
	inspects int
	configs  []RequestConfig
}

func (f *scriptedFetcher) Inspect(ctx context.Context, url string, cfg RequestConfig) (*MediaInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inspects++
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	if f.info != nil {
		return f.info, nil
	}
	return &MediaInfo{Ext: "mp4", VCodec: "h264", DurationSeconds: 12}, nil
}

func (f *scriptedFetcher) Fetch(ctx context.Context, req FetchRequest, onSignal func(ProgressSignal)) (string, error) {
	f.mu.Lock()
	n := f.calls
	f.calls++
	f.configs = append(f.configs, req.Config)
	var sigs []ProgressSignal
	if n < len(f.signals) {
		sigs = f.signals[n]
	}
	var err error
	if n < len(f.errs) {
		err = f.errs[n]
	}
	f.mu.Unlock()

	for _, s := range sigs {
		onSignal(s)
	}
	if err != nil {
		return "", err
	}
	path := filepath.Join(req.Dir, req.Name+".mp4")
	if werr := os.WriteFile(path, []byte("media"), 0644); werr != nil {
		return "", werr
	}
	return path, nil
}

// memTarget stages into a temp dir and records commits.
type memTarget struct {
	dir        string
	prepareErr error
	commits    []string
}

func (m *memTarget) String() string { return "memory" }

func (m *memTarget) Prepare(ctx context.Context, itemID string) (string, error) {
	if m.prepareErr != nil {
		return "", m.prepareErr
	}
	return m.dir, nil
}

func (m *memTarget) Commit(ctx context.Context, itemID, localPath string) (string, error) {
	m.commits = append(m.commits, localPath)
	return "final/" + filepath.Base(localPath), nil
}

type recorder struct {
	mu     sync.Mutex
	values []float64
}

func (r *recorder) record(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *recorder) last() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		return -1
	}
	return r.values[len(r.values)-1]
}

func newTestEngine(f Fetcher) *Engine {
	v := NewVariants(config.DownloadConfig{})
	v.pick = func(n int) int { return n - 1 }
	return NewEngine(v, f, nil, RetryConfig{MaxAttempts: 3}, testLogger())
}

func testItem() domain.VideoDescriptor {
	return domain.VideoDescriptor{ID: "vid1", URL: "https://www.tiktok.com/@u/video/1", DurationSeconds: 10, Selected: true}
}

var (
	errForbidden = errors.New("ERROR: unable to download video data: HTTP Error 403: Forbidden")
	errSocket    = errors.New("[WinError 10013] An attempt was made to access a socket in a way forbidden by its access permissions")
	errTimeout   = errors.New("read tcp: i/o timeout")
)

func TestEngine_ForbiddenForbiddenSuccess(t *testing.T) {
	f := &scriptedFetcher{
		errs: []error{errForbidden, errForbidden, nil},
		signals: [][]ProgressSignal{
			{{DownloadedBytes: 30, TotalBytes: 100}},
			{{DownloadedBytes: 60, TotalBytes: 100}},
			{{DownloadedBytes: 10, TotalBytes: 100}, {FragmentIndex: 4, FragmentCount: 8}},
		},
	}
	e := newTestEngine(f)
	rec := &recorder{}

	res := e.Retrieve(context.Background(), testItem(), &memTarget{dir: t.TempDir()}, rec.record)

	if !res.Success || res.Status != domain.ItemStatusCompleted {
		t.Fatalf("result = %+v, want success", res)
	}
	if res.Progress != 100 {
		t.Errorf("Progress = %v, want 100", res.Progress)
	}
	if got := rec.last(); got != 100 {
		t.Errorf("last progress callback = %v, want 100", got)
	}
	if len(res.Attempts) != 3 {
		t.Fatalf("len(Attempts) = %d, want 3", len(res.Attempts))
	}
	if res.Attempts[2].Outcome != domain.OutcomeSuccess {
		t.Errorf("Attempts[2].Outcome = %q, want success", res.Attempts[2].Outcome)
	}
	wantVariants := []domain.ConfigVariant{domain.VariantStandard, domain.VariantAlternateHeaders, domain.VariantAlternateHeaders}
	for i, want := range wantVariants {
		if res.Attempts[i].Variant != want {
			t.Errorf("Attempts[%d].Variant = %q, want %q", i, res.Attempts[i].Variant, want)
		}
	}
	if res.Attempts[0].Classification == nil || res.Attempts[0].Classification.Kind != domain.KindHTTPForbidden {
		t.Errorf("Attempts[0].Classification = %+v", res.Attempts[0].Classification)
	}
	if f.configs[1].UserAgent != userAgentPool[len(userAgentPool)-1] {
		t.Errorf("alternate headers UA = %q", f.configs[1].UserAgent)
	}
	if f.inspects != 2 {
		t.Errorf("pre-flight inspections = %d, want 2", f.inspects)
	}
	if res.Path != "final/vid1.mp4" {
		t.Errorf("Path = %q", res.Path)
	}
}

func TestEngine_BudgetExhausted(t *testing.T) {
	f := &scriptedFetcher{errs: []error{errTimeout, errTimeout, errTimeout, errTimeout}}
	e := newTestEngine(f)

	res := e.Retrieve(context.Background(), testItem(), &memTarget{dir: t.TempDir()}, nil)

	if res.Success {
		t.Fatal("expected failure")
	}
	if f.calls != 3 {
		t.Errorf("fetch calls = %d, want 3", f.calls)
	}
	if len(res.Attempts) != 3 {
		t.Fatalf("len(Attempts) = %d, want 3", len(res.Attempts))
	}
	if res.Status != domain.ItemStatusFailed {
		t.Errorf("Status = %q, want failed", res.Status)
	}
	if !errors.Is(res.Err, domain.ErrRetryBudgetExhausted) {
		t.Errorf("Err = %v, want ErrRetryBudgetExhausted", res.Err)
	}
	if res.Attempts[0].Outcome != domain.OutcomeRetriable || res.Attempts[2].Outcome != domain.OutcomeFatal {
		t.Errorf("outcomes = %q, %q", res.Attempts[0].Outcome, res.Attempts[2].Outcome)
	}
	for i, a := range res.Attempts {
		if a.Variant != domain.VariantStandard {
			t.Errorf("Attempts[%d].Variant = %q, unknown errors keep the variant", i, a.Variant)
		}
	}
}

func TestEngine_FinishedSignalThenFailure(t *testing.T) {
	errPostprocess := errors.New("ERROR: Postprocessing: ffmpeg exited with code 1")
	finished := []ProgressSignal{{DownloadedBytes: 100, TotalBytes: 100}, {Status: SignalFinished}}
	f := &scriptedFetcher{
		errs:    []error{errPostprocess, errPostprocess, errPostprocess},
		signals: [][]ProgressSignal{finished, finished, finished},
	}
	rec := &recorder{}

	res := newTestEngine(f).Retrieve(context.Background(), testItem(), &memTarget{dir: t.TempDir()}, rec.record)

	if res.Success || res.Status != domain.ItemStatusFailed {
		t.Fatalf("result = %+v, want failed", res)
	}
	if !errors.Is(res.Err, domain.ErrRetryBudgetExhausted) {
		t.Errorf("Err = %v, want ErrRetryBudgetExhausted", res.Err)
	}
	if res.Progress >= 100 {
		t.Errorf("Progress = %v, a failed item must stay below 100", res.Progress)
	}
	item := testItem()
	item.Progress = res.Progress
	if !item.NeedsRetry() {
		t.Error("failed item is not eligible for retry-failed")
	}
}

func TestEngine_CommitFailureKeepsProgressBelowFull(t *testing.T) {
	f := &scriptedFetcher{signals: [][]ProgressSignal{{{Status: SignalFinished}}}}
	e := newTestEngine(f)
	e.retry.MaxAttempts = 1

	res := e.Retrieve(context.Background(), testItem(), &failingCommitTarget{memTarget{dir: t.TempDir()}}, nil)

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Progress != domain.IncompleteProgressCeiling {
		t.Errorf("Progress = %v, want %v", res.Progress, domain.IncompleteProgressCeiling)
	}
}

type failingCommitTarget struct{ memTarget }

func (f *failingCommitTarget) Commit(ctx context.Context, itemID, localPath string) (string, error) {
	return "", errors.New("upload rejected")
}

func TestEngine_VariantMutation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.ConfigVariant
	}{
		{"socket permission", errSocket, domain.VariantSocketFallback},
		{"rate limited", errors.New("HTTP Error 429: Too Many Requests"), domain.VariantSocketFallback},
		{"forbidden", errForbidden, domain.VariantAlternateHeaders},
		{"not found", errors.New("HTTP Error 404: Not Found"), domain.VariantStandard},
		{"typed status", &HTTPStatusError{StatusCode: 403, URL: "x"}, domain.VariantAlternateHeaders},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &scriptedFetcher{errs: []error{tt.err, nil}}
			res := newTestEngine(f).Retrieve(context.Background(), testItem(), &memTarget{dir: t.TempDir()}, nil)
			if !res.Success {
				t.Fatalf("expected success on attempt 2: %+v", res)
			}
			if got := res.Attempts[1].Variant; got != tt.want {
				t.Errorf("second variant = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEngine_SocketFallbackConfig(t *testing.T) {
	f := &scriptedFetcher{errs: []error{errSocket, nil}}
	newTestEngine(f).Retrieve(context.Background(), testItem(), &memTarget{dir: t.TempDir()}, nil)

	cfg := f.configs[1]
	if cfg.SocketTimeout.Seconds() != 30 || cfg.Retries != 2 || cfg.FragmentRetries != 2 || cfg.ChunkSize != 512*1024 {
		t.Errorf("fallback config = %+v", cfg)
	}
	if cfg.UserAgent != mobileSafariUA {
		t.Errorf("fallback UA = %q", cfg.UserAgent)
	}
	if f.configs[0].Variant != domain.VariantStandard || f.configs[0].ChunkSize != 1<<20 {
		t.Errorf("first config = %+v", f.configs[0])
	}
}

func TestEngine_PreflightRejectsNonVideo(t *testing.T) {
	tests := []struct {
		name string
		info *MediaInfo
	}{
		{"image ext", &MediaInfo{Ext: "jpg", DurationSeconds: 5}},
		{"no video codec", &MediaInfo{Ext: "m4a", VCodec: "none", DurationSeconds: 5}},
		{"zero duration", &MediaInfo{Ext: "mp4", DurationSeconds: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &scriptedFetcher{errs: []error{errTimeout, nil}, info: tt.info}
			res := newTestEngine(f).Retrieve(context.Background(), testItem(), &memTarget{dir: t.TempDir()}, nil)

			if res.Status != domain.ItemStatusNonVideo {
				t.Errorf("Status = %q, want non_video", res.Status)
			}
			if !errors.Is(res.Err, domain.ErrNonVideoContent) {
				t.Errorf("Err = %v, want ErrNonVideoContent", res.Err)
			}
			if f.calls != 1 {
				t.Errorf("fetch calls = %d, want 1", f.calls)
			}
		})
	}
}

func TestEngine_PreflightErrorIsInconclusive(t *testing.T) {
	f := &scriptedFetcher{errs: []error{errTimeout, nil}, infoErr: errors.New("inspect failed")}
	res := newTestEngine(f).Retrieve(context.Background(), testItem(), &memTarget{dir: t.TempDir()}, nil)
	if !res.Success {
		t.Errorf("inspect errors must not block the attempt: %+v", res)
	}
}

func TestEngine_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &scriptedFetcher{}
	res := newTestEngine(f).Retrieve(ctx, testItem(), &memTarget{dir: t.TempDir()}, nil)

	if res.Status != domain.ItemStatusCanceled {
		t.Errorf("Status = %q, want canceled", res.Status)
	}
	if f.calls != 0 {
		t.Errorf("fetch calls = %d, want 0", f.calls)
	}
	if !IsCanceled(res) {
		t.Error("IsCanceled should report true")
	}
}

func TestEngine_PrepareFailure(t *testing.T) {
	f := &scriptedFetcher{}
	target := &memTarget{prepareErr: domain.ErrStorageFull}
	res := newTestEngine(f).Retrieve(context.Background(), testItem(), target, nil)

	if res.Success || !errors.Is(res.Err, domain.ErrStorageFull) {
		t.Errorf("result = %+v, want storage full failure", res)
	}
	if f.calls != 0 {
		t.Errorf("fetch calls = %d, want 0", f.calls)
	}
}

func TestEngine_DirectMediaUsesDirectFetcher(t *testing.T) {
	extract := &scriptedFetcher{}
	direct := &scriptedFetcher{}
	e := NewEngine(NewVariants(config.DownloadConfig{}), extract, direct, RetryConfig{MaxAttempts: 3}, testLogger())

	item := domain.VideoDescriptor{ID: "clip", URL: "https://cdn.example.com/clip.mp4"}
	res := e.Retrieve(context.Background(), item, &memTarget{dir: t.TempDir()}, nil)
	if !res.Success {
		t.Fatalf("expected success: %+v", res)
	}
	if direct.calls != 1 || extract.calls != 0 {
		t.Errorf("direct calls = %d, extract calls = %d", direct.calls, extract.calls)
	}
}

type captureEmitter struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *captureEmitter) Emit(e domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}
func (c *captureEmitter) EmitInfo(domain.EventCategory, string, string, domain.EventMetadata)    {}
func (c *captureEmitter) EmitWarning(domain.EventCategory, string, string, domain.EventMetadata) {}
func (c *captureEmitter) EmitError(domain.EventCategory, string, string, domain.EventMetadata)   {}
func (c *captureEmitter) EmitSuccess(domain.EventCategory, string, string, domain.EventMetadata) {}

func TestEngine_EmitsAttemptEvents(t *testing.T) {
	f := &scriptedFetcher{errs: []error{errForbidden, nil}}
	e := newTestEngine(f)
	em := &captureEmitter{}
	e.SetEventEmitter(em)

	e.Retrieve(context.Background(), testItem(), &memTarget{dir: t.TempDir()}, nil)

	if len(em.events) != 2 {
		t.Fatalf("events = %d, want 2", len(em.events))
	}
	if em.events[0].Severity != domain.EventSeverityWarning || em.events[1].Severity != domain.EventSeveritySuccess {
		t.Errorf("severities = %q, %q", em.events[0].Severity, em.events[1].Severity)
	}
	for _, ev := range em.events {
		if ev.Category != domain.EventCategoryRetrieve {
			t.Errorf("category = %q", ev.Category)
		}
	}
}

type fakeVerifier struct {
	info  *MediaInfo
	err   error
	paths []string
}

func (v *fakeVerifier) Verify(ctx context.Context, path string) (*MediaInfo, error) {
	v.paths = append(v.paths, path)
	return v.info, v.err
}

func TestEngine_VerifierRejectsOutput(t *testing.T) {
	f := &scriptedFetcher{}
	target := &memTarget{dir: t.TempDir()}
	v := &fakeVerifier{info: &MediaInfo{Ext: "mp4", VCodec: "none", DurationSeconds: 30}}

	e := newTestEngine(f)
	e.SetVerifier(v)
	res := e.Retrieve(context.Background(), testItem(), target, nil)

	if res.Status != domain.ItemStatusNonVideo || !errors.Is(res.Err, domain.ErrNonVideoContent) {
		t.Fatalf("result = %+v, want non-video rejection", res)
	}
	if len(target.commits) != 0 {
		t.Errorf("rejected file was committed: %v", target.commits)
	}
	if len(v.paths) != 1 {
		t.Fatalf("verify calls = %d, want 1", len(v.paths))
	}
	if _, err := os.Stat(v.paths[0]); !os.IsNotExist(err) {
		t.Errorf("rejected file left behind: %v", err)
	}
	if len(res.Attempts) != 1 || res.Attempts[0].Outcome != domain.OutcomeFatal {
		t.Errorf("attempts = %+v", res.Attempts)
	}
}

func TestEngine_VerifierErrorIsInconclusive(t *testing.T) {
	f := &scriptedFetcher{}
	target := &memTarget{dir: t.TempDir()}

	e := newTestEngine(f)
	e.SetVerifier(&fakeVerifier{err: errors.New("ffprobe: exit status 1")})
	res := e.Retrieve(context.Background(), testItem(), target, nil)

	if !res.Success || len(target.commits) != 1 {
		t.Errorf("verification errors must not block the commit: %+v", res)
	}
}
