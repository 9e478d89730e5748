package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yourusername/clip-forge/internal/config"
	"github.com/yourusername/clip-forge/internal/jobs"
	"github.com/yourusername/clip-forge/internal/runner"
)

// stubRunner は外部ツールを起動せずに Runner を模倣します。
type stubRunner struct {
	mu            sync.Mutex
	runCalls      [][]string
	progressCalls [][]string

	percents    []float64
	progressErr error
	block       chan struct{}

	onRun   func(name string, args []string) (string, error)
	runErrs []error
	runOut  string
}

func (r *stubRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	r.mu.Lock()
	r.runCalls = append(r.runCalls, append([]string{name}, args...))
	var err error
	if len(r.runErrs) > 0 {
		err = r.runErrs[0]
		r.runErrs = r.runErrs[1:]
	}
	onRun := r.onRun
	out := r.runOut
	r.mu.Unlock()

	if onRun != nil {
		return onRun(name, args)
	}
	if err != nil {
		return "", err
	}
	return out, nil
}

func (r *stubRunner) RunProgress(ctx context.Context, sink runner.ProgressFunc, name string, args ...string) error {
	r.mu.Lock()
	r.progressCalls = append(r.progressCalls, append([]string{name}, args...))
	block := r.block
	percents := r.percents
	progressErr := r.progressErr
	r.mu.Unlock()

	if block != nil {
		<-block
	}
	if progressErr != nil {
		return progressErr
	}
	for _, p := range percents {
		sink(p, fmt.Sprintf("[download] %5.1f%% of 10.00MiB", p))
	}
	return nil
}

func (r *stubRunner) calls() (runs, progresses [][]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string{}, r.runCalls...), append([][]string{}, r.progressCalls...)
}

// recordingObserver は受信メッセージを蓄積する観測者です。
type recordingObserver struct {
	mu       sync.Mutex
	messages []jobs.ProgressMessage
}

func (o *recordingObserver) Send(msg jobs.ProgressMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, msg)
	return nil
}

func (o *recordingObserver) snapshot() []jobs.ProgressMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]jobs.ProgressMessage{}, o.messages...)
}

func newTestService(t *testing.T, stub *stubRunner) (*Service, *jobs.Store, *jobs.Hub) {
	t.Helper()
	cfg := &config.Config{
		DownloadsDir:   t.TempDir(),
		YtdlpPath:      "yt-dlp",
		FfmpegPath:     "ffmpeg",
		MaxClipSeconds: 600,
	}
	store := jobs.NewStore()
	hub := jobs.NewHub(store)
	svc, err := NewService(cfg, store, hub, stub, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return svc, store, hub
}

func waitForTerminal(t *testing.T, store *jobs.Store, jobID string) jobs.Record {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if record, ok := store.Get(jobID); ok && record.Status.Terminal() {
			return record
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state", jobID)
	return jobs.Record{}
}

func TestStartClipRejectsStartAfterEnd(t *testing.T) {
	svc, store, _ := newTestService(t, &stubRunner{})

	_, err := svc.StartClip(context.Background(), ClipRequest{
		URL:       "https://example.com/watch?v=abc",
		StartTime: "0:40",
		EndTime:   "0:10",
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != CodeInvalidInput {
		t.Fatalf("unexpected error: %v", err)
	}
	if apiErr.Message != "Start time must be before end time" {
		t.Fatalf("unexpected message: %s", apiErr.Message)
	}
	if store.Len() != 0 {
		t.Fatalf("no store entry may exist after rejection, got %d", store.Len())
	}
}

func TestStartClipRejectsEqualTimes(t *testing.T) {
	svc, store, _ := newTestService(t, &stubRunner{})

	_, err := svc.StartClip(context.Background(), ClipRequest{
		URL:       "https://example.com/watch?v=abc",
		StartTime: "0:10",
		EndTime:   "0:10",
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if store.Len() != 0 {
		t.Fatalf("no store entry may exist after rejection, got %d", store.Len())
	}
}

func TestStartClipRejectsLongDuration(t *testing.T) {
	svc, store, _ := newTestService(t, &stubRunner{})

	_, err := svc.StartClip(context.Background(), ClipRequest{
		URL:       "https://example.com/watch?v=abc",
		StartTime: "0:00",
		EndTime:   "10:01",
	})
	if err == nil {
		t.Fatal("expected duration error")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("unexpected error type: %v", err)
	}
	if !strings.Contains(apiErr.Message, "600") {
		t.Fatalf("expected duration limit in message, got %s", apiErr.Message)
	}
	if store.Len() != 0 {
		t.Fatalf("no store entry may exist after rejection, got %d", store.Len())
	}
}

func TestStartClipRejectsInvalidURL(t *testing.T) {
	svc, _, _ := newTestService(t, &stubRunner{})

	for _, rawURL := range []string{"", "not-a-url", "ftp://example.com/x", "https://"} {
		_, err := svc.StartClip(context.Background(), ClipRequest{
			URL:       rawURL,
			StartTime: "0:10",
			EndTime:   "0:40",
		})
		if err == nil {
			t.Fatalf("expected error for url %q", rawURL)
		}
	}
}

func TestStartClipRejectsInvalidTimeFormat(t *testing.T) {
	svc, _, _ := newTestService(t, &stubRunner{})

	_, err := svc.StartClip(context.Background(), ClipRequest{
		URL:       "https://example.com/watch?v=abc",
		StartTime: "ten seconds",
		EndTime:   "0:40",
	})
	if err == nil {
		t.Fatal("expected time format error")
	}
}

func TestStartClipInitializesRecord(t *testing.T) {
	stub := &stubRunner{block: make(chan struct{})}
	svc, store, _ := newTestService(t, stub)

	job, err := svc.StartClip(context.Background(), ClipRequest{
		URL:       "https://example.com/watch?v=abc",
		StartTime: "0:10",
		EndTime:   "0:40",
	})
	if err != nil {
		t.Fatalf("StartClip returned error: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected a job id")
	}
	if job.Filename != job.ID+".mp4" {
		t.Fatalf("unexpected filename: %s", job.Filename)
	}
	if job.DownloadURL != "/api/download-file/"+job.Filename {
		t.Fatalf("unexpected download url: %s", job.DownloadURL)
	}

	record, ok := store.Get(job.ID)
	if !ok {
		t.Fatal("expected an initial record right after submission")
	}
	if record.Status != jobs.StatusDownloading || record.Progress != 0 {
		t.Fatalf("unexpected initial record: %#v", record)
	}
	if record.Message != "Starting download..." {
		t.Fatalf("unexpected initial message: %s", record.Message)
	}

	close(stub.block)
	waitForTerminal(t, store, job.ID)
}

func TestClipPipelineCompletes(t *testing.T) {
	stub := &stubRunner{
		block:    make(chan struct{}),
		percents: []float64{10, 55.5, 100},
	}
	svc, store, hub := newTestService(t, stub)

	job, err := svc.StartClip(context.Background(), ClipRequest{
		URL:       "https://example.com/watch?v=abc",
		StartTime: "0:10",
		EndTime:   "0:40",
	})
	if err != nil {
		t.Fatalf("StartClip returned error: %v", err)
	}

	obs := &recordingObserver{}
	hub.Attach(job.ID, obs)
	close(stub.block)

	record := waitForTerminal(t, store, job.ID)
	if record.Status != jobs.StatusCompleted {
		t.Fatalf("unexpected terminal status: %#v", record)
	}
	if record.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", record.Progress)
	}
	if record.Message != "Done!" {
		t.Fatalf("unexpected message: %s", record.Message)
	}
	if record.Filename != job.Filename {
		t.Fatalf("unexpected filename: %s", record.Filename)
	}
	if record.DownloadURL != job.DownloadURL {
		t.Fatalf("unexpected download url: %s", record.DownloadURL)
	}

	// 観測者が受信した進捗は単調非減少で、downloading 中は50以下
	last := -1
	for _, msg := range obs.snapshot() {
		if msg.DownloadID != job.ID {
			t.Fatalf("message for wrong job: %s", msg.DownloadID)
		}
		if msg.Data.Progress < last {
			t.Fatalf("progress regressed: %d -> %d", last, msg.Data.Progress)
		}
		last = msg.Data.Progress
		if msg.Data.Status == jobs.StatusDownloading && msg.Data.Progress > 50 {
			t.Fatalf("download stage progress above 50: %#v", msg.Data)
		}
		if msg.Data.Progress > 100 {
			t.Fatalf("progress above 100: %#v", msg.Data)
		}
	}
}

func TestClipPipelineDownloadFailure(t *testing.T) {
	stub := &stubRunner{progressErr: errors.New("yt-dlp failed: ERROR: unavailable")}
	svc, store, _ := newTestService(t, stub)

	job, err := svc.StartClip(context.Background(), ClipRequest{
		URL:       "https://example.com/watch?v=abc",
		StartTime: "0:10",
		EndTime:   "0:40",
	})
	if err != nil {
		t.Fatalf("StartClip returned error: %v", err)
	}

	record := waitForTerminal(t, store, job.ID)
	if record.Status != jobs.StatusError {
		t.Fatalf("expected error status, got %#v", record)
	}
	if record.Progress != 0 {
		t.Fatalf("expected progress 0 on error, got %d", record.Progress)
	}
	if record.Message == "" {
		t.Fatal("expected a failure message")
	}

	runs, _ := stub.calls()
	if len(runs) != 0 {
		t.Fatalf("trimmer must not run after a failed download: %v", runs)
	}
}

func TestClipPipelineRetriesWithReencode(t *testing.T) {
	stub := &stubRunner{
		percents: []float64{100},
		runErrs:  []error{errors.New("ffmpeg failed: could not stream copy")},
	}
	svc, store, _ := newTestService(t, stub)

	job, err := svc.StartClip(context.Background(), ClipRequest{
		URL:       "https://example.com/watch?v=abc",
		StartTime: "0:10",
		EndTime:   "0:40",
	})
	if err != nil {
		t.Fatalf("StartClip returned error: %v", err)
	}

	record := waitForTerminal(t, store, job.ID)
	if record.Status != jobs.StatusCompleted {
		t.Fatalf("expected completion after re-encode retry, got %#v", record)
	}

	runs, _ := stub.calls()
	if len(runs) != 2 {
		t.Fatalf("expected exactly 2 trimmer invocations, got %d", len(runs))
	}
	if !containsArg(runs[0], "copy") {
		t.Fatalf("first attempt must stream copy: %v", runs[0])
	}
	if !containsArg(runs[1], "libx264") {
		t.Fatalf("retry must re-encode: %v", runs[1])
	}
}

func TestClipPipelineClampsRegressingProgress(t *testing.T) {
	// yt-dlp はフラグメント毎にパーセントが巻き戻ることがある
	stub := &stubRunner{
		block:    make(chan struct{}),
		percents: []float64{80, 10, 100},
	}
	svc, store, hub := newTestService(t, stub)

	job, err := svc.StartClip(context.Background(), ClipRequest{
		URL:       "https://example.com/watch?v=abc",
		StartTime: "0:10",
		EndTime:   "0:40",
	})
	if err != nil {
		t.Fatalf("StartClip returned error: %v", err)
	}

	obs := &recordingObserver{}
	hub.Attach(job.ID, obs)
	close(stub.block)

	record := waitForTerminal(t, store, job.ID)
	if record.Status != jobs.StatusCompleted {
		t.Fatalf("unexpected terminal status: %#v", record)
	}

	last := -1
	for _, msg := range obs.snapshot() {
		if msg.Data.Progress < last {
			t.Fatalf("published progress regressed: %d -> %d", last, msg.Data.Progress)
		}
		last = msg.Data.Progress
		if msg.Data.Status == jobs.StatusDownloading && msg.Data.Progress > 50 {
			t.Fatalf("download stage progress above 50: %#v", msg.Data)
		}
	}
}

func TestClipPipelineFailureRemovesPartialArtifact(t *testing.T) {
	stub := &stubRunner{percents: []float64{100}}
	svc, store, _ := newTestService(t, stub)

	// トリマーは出力を書きかけたまま両方の試行で失敗する
	stub.onRun = func(name string, args []string) (string, error) {
		outputPath := args[len(args)-1]
		if err := os.WriteFile(outputPath, []byte("partial"), 0o640); err != nil {
			t.Errorf("failed to write partial output: %v", err)
		}
		return "", errors.New("ffmpeg failed: malformed input")
	}

	job, err := svc.StartClip(context.Background(), ClipRequest{
		URL:       "https://example.com/watch?v=abc",
		StartTime: "0:10",
		EndTime:   "0:40",
	})
	if err != nil {
		t.Fatalf("StartClip returned error: %v", err)
	}

	record := waitForTerminal(t, store, job.ID)
	if record.Status != jobs.StatusError {
		t.Fatalf("expected error status, got %#v", record)
	}

	outputPath := filepath.Join(svc.cfg.DownloadsDir, job.Filename)
	if _, err := os.Stat(outputPath); !os.IsNotExist(err) {
		t.Fatalf("partial artifact must not remain after a failed cut: stat err=%v", err)
	}
	leftovers, err := filepath.Glob(filepath.Join(svc.cfg.DownloadsDir, job.ID+"*"))
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("job files left behind after failure: %v", leftovers)
	}
}

func TestClipPipelineFailsAfterRetry(t *testing.T) {
	stub := &stubRunner{
		percents: []float64{100},
		runErrs: []error{
			errors.New("ffmpeg failed: could not stream copy"),
			errors.New("ffmpeg failed: encode error"),
		},
	}
	svc, store, _ := newTestService(t, stub)

	job, err := svc.StartClip(context.Background(), ClipRequest{
		URL:       "https://example.com/watch?v=abc",
		StartTime: "0:10",
		EndTime:   "0:40",
	})
	if err != nil {
		t.Fatalf("StartClip returned error: %v", err)
	}

	record := waitForTerminal(t, store, job.ID)
	if record.Status != jobs.StatusError {
		t.Fatalf("expected error status, got %#v", record)
	}

	runs, _ := stub.calls()
	if len(runs) != 2 {
		t.Fatalf("exactly one internal retry is allowed, got %d invocations", len(runs))
	}
}

func TestClipPipelineTriggersSweep(t *testing.T) {
	stub := &stubRunner{percents: []float64{100}}
	svc, store, _ := newTestService(t, stub)

	var mu sync.Mutex
	swept := false
	svc.SetSweepTrigger(func() {
		mu.Lock()
		swept = true
		mu.Unlock()
	})

	job, err := svc.StartClip(context.Background(), ClipRequest{
		URL:       "https://example.com/watch?v=abc",
		StartTime: "0:10",
		EndTime:   "0:40",
	})
	if err != nil {
		t.Fatalf("StartClip returned error: %v", err)
	}

	waitForTerminal(t, store, job.ID)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := swept
		mu.Unlock()
		if done {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("sweep trigger was not invoked after completion")
}

func TestNewJobIDUnique(t *testing.T) {
	const goroutines = 100
	const perGoroutine = 10

	var mu sync.Mutex
	seen := make(map[string]struct{}, goroutines*perGoroutine)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				id := newJobID()
				mu.Lock()
				if _, dup := seen[id]; dup {
					mu.Unlock()
					t.Errorf("duplicate job id: %s", id)
					return
				}
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != goroutines*perGoroutine {
		t.Fatalf("expected %d unique ids, got %d", goroutines*perGoroutine, len(seen))
	}
}

func TestDownloadArgs(t *testing.T) {
	stub := &stubRunner{}
	svc, _, _ := newTestService(t, stub)
	svc.cfg.YtdlpExtraArgs = "--force-ipv4 --socket-timeout 10"

	args := svc.downloadArgs("https://example.com/watch?v=abc", "/tmp/out.mp4")

	if args[len(args)-1] != "https://example.com/watch?v=abc" {
		t.Fatalf("url must be the final argument: %v", args)
	}
	if !containsArg(args, formatSelector) {
		t.Fatalf("format selector missing: %v", args)
	}
	if !containsArg(args, "--newline") {
		t.Fatalf("--newline missing: %v", args)
	}
	if !containsArg(args, "--force-ipv4") || !containsArg(args, "--socket-timeout") {
		t.Fatalf("extra args missing: %v", args)
	}
	if containsArg(args, "--cookies") {
		t.Fatalf("unexpected --cookies without a cookies file: %v", args)
	}
}

func TestDownloadArgsWithCookies(t *testing.T) {
	stub := &stubRunner{}
	svc, _, _ := newTestService(t, stub)
	svc.cfg.CookiesFile = "/etc/ytdlp/cookies.txt"

	args := svc.downloadArgs("https://example.com/watch?v=abc", "/tmp/out.mp4")
	if !containsArg(args, "--cookies") || !containsArg(args, "/etc/ytdlp/cookies.txt") {
		t.Fatalf("cookies flag missing: %v", args)
	}
}

func TestCutArgs(t *testing.T) {
	svc, _, _ := newTestService(t, &stubRunner{})

	fast := svc.cutArgs("/tmp/in.mp4", "/tmp/out.mp4", 10, 30, false)
	if !containsArg(fast, "copy") {
		t.Fatalf("fast path must stream copy: %v", fast)
	}
	if fast[len(fast)-1] != "/tmp/out.mp4" {
		t.Fatalf("output path must be last: %v", fast)
	}

	slow := svc.cutArgs("/tmp/in.mp4", "/tmp/out.mp4", 10, 30, true)
	if !containsArg(slow, "libx264") || !containsArg(slow, "aac") {
		t.Fatalf("re-encode args missing: %v", slow)
	}
	if !containsArg(slow, "10") || !containsArg(slow, "30") {
		t.Fatalf("start/duration missing: %v", slow)
	}
}

func containsArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}
