package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codebuildervaibhav/content-pipeline/internal/apperr"
	"github.com/codebuildervaibhav/content-pipeline/internal/content"
	"github.com/codebuildervaibhav/content-pipeline/internal/logger"
	"github.com/codebuildervaibhav/content-pipeline/internal/queue"
	"github.com/codebuildervaibhav/content-pipeline/internal/storage"
	"github.com/codebuildervaibhav/content-pipeline/internal/style"
	"github.com/codebuildervaibhav/content-pipeline/internal/transcription"
	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

type fakeTranscripts struct {
	err   error
	block chan struct{}
}

func (f *fakeTranscripts) Process(ctx context.Context, in transcription.Input) (*types.TranscriptResult, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	text := in.Transcript.RawText
	if text == "" {
		text = "uploaded speech"
	}
	chunks := []types.Chunk{{ID: "chunk_001", Text: text, Start: 0, End: 1.5, AudioPath: in.Files.Audio}}
	return &types.TranscriptResult{Chunks: chunks, Mode: types.ModeManual, ChunkCount: len(chunks)}, nil
}

type fakeProfiles struct{ err error }

func (f *fakeProfiles) Process(ctx context.Context, in style.Input) (*types.ProfileResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.ProfileResult{
		Voice:         []string{"warm"},
		Themes:        []string{"baking"},
		Values:        []string{"craft"},
		EmotionalTone: []string{},
		Relatability:  []string{},
		RawProfile:    "# Style Profile\nClient ID: " + in.Profile.ClientID + "\n",
		Source:        types.ProfileSourceJSON,
		MissingFields: []string{"emotional_tone", "relatability"},
	}, nil
}

type fakeContents struct{}

func (fakeContents) Process(ctx context.Context, in content.Input) (*types.ContentResult, error) {
	return &types.ContentResult{
		Fields: []types.ContentField{
			{Key: "rendered_title", Value: content.ClientName(in.ClientName, in.Profile.RawProfile)},
			{Key: "blog_post_title", Value: "Bread"},
			{Key: "linkedin_post_1", Value: "Hello"},
		},
		Fallbacks: []string{content.StepBio},
	}, nil
}

type harness struct {
	store *storage.SQLiteStore
	pool  *queue.WorkerPool
	orch  *Orchestrator
	tr    *fakeTranscripts
	pr    *fakeProfiles
}

func newHarness(t *testing.T, workers, queueSize int, timeout time.Duration) *harness {
	t.Helper()
	store, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	pool := queue.NewWorkerPool(workers, queueSize, timeout, logger.Discard())
	pool.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Stop(ctx)
		store.Close()
	})

	h := &harness{store: store, pool: pool, tr: &fakeTranscripts{}, pr: &fakeProfiles{}}
	h.orch = New(store, pool, Config{
		Transcripts:  h.tr,
		Profiles:     h.pr,
		Contents:     fakeContents{},
		StageTimeout: timeout,
	}, logger.Discard())
	return h
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) transcriptStatus(t *testing.T, id string) types.Status {
	t.Helper()
	tr, err := h.store.Transcripts().Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get transcript: %v", err)
	}
	return tr.Status
}

func (h *harness) submit(t *testing.T, raw string) *types.Transcript {
	t.Helper()
	tr, err := h.orch.SubmitTranscript(context.Background(), Submission{
		Transcript: &types.Transcript{ClientID: "c1", SourceType: types.SourceManual, RawText: raw},
	})
	if err != nil {
		t.Fatalf("SubmitTranscript() error = %v", err)
	}
	return tr
}

func (h *harness) completedTranscript(t *testing.T) *types.Transcript {
	t.Helper()
	tr := h.submit(t, "I bake bread.")
	eventually(t, "transcript completed", func() bool { return h.transcriptStatus(t, tr.ID) == types.StatusCompleted })
	return tr
}

func TestSubmitTranscriptCompletes(t *testing.T) {
	h := newHarness(t, 2, 10, time.Minute)
	tr := h.submit(t, "I bake bread.")
	if tr.ID == "" || tr.Status != types.StatusProcessing {
		t.Fatalf("submitted transcript = %+v", tr)
	}

	eventually(t, "transcript completed", func() bool { return h.transcriptStatus(t, tr.ID) == types.StatusCompleted })

	got, _ := h.store.Transcripts().Get(context.Background(), tr.ID)
	if len(got.Chunks) != 1 || got.Chunks[0].Text != "I bake bread." {
		t.Errorf("chunks = %+v", got.Chunks)
	}
	if got.Metadata["mode"] != types.ModeManual {
		t.Errorf("metadata = %v", got.Metadata)
	}
}

func TestSubmitTranscriptRequiresClient(t *testing.T) {
	h := newHarness(t, 1, 10, time.Minute)
	_, err := h.orch.SubmitTranscript(context.Background(), Submission{Transcript: &types.Transcript{}})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestStageFailureRecorded(t *testing.T) {
	h := newHarness(t, 1, 10, time.Minute)
	h.tr.err = errors.New("no client speech found in transcript")

	tr := h.submit(t, "x")
	eventually(t, "transcript failed", func() bool { return h.transcriptStatus(t, tr.ID) == types.StatusFailed })

	got, _ := h.store.Transcripts().Get(context.Background(), tr.ID)
	if got.Metadata["error"] != "no client speech found in transcript" {
		t.Errorf("metadata.error = %v", got.Metadata["error"])
	}
}

func TestGenerateProfileRequiresCompletedTranscript(t *testing.T) {
	h := newHarness(t, 1, 10, time.Minute)
	h.tr.block = make(chan struct{})
	defer close(h.tr.block)

	tr := h.submit(t, "x")
	_, err := h.orch.GenerateProfile(context.Background(), tr.ID)
	if !apperr.IsKind(err, apperr.KindNotReady) {
		t.Fatalf("err = %v, want not-ready error", err)
	}
	if e := apperr.As(err); e.Status() != 400 {
		t.Errorf("status = %d, want 400", e.Status())
	}

	profiles, _ := h.store.Profiles().List(context.Background())
	if len(profiles) != 0 {
		t.Errorf("profiles = %d, want none", len(profiles))
	}
}

func TestGenerateProfileValidation(t *testing.T) {
	h := newHarness(t, 1, 10, time.Minute)
	if _, err := h.orch.GenerateProfile(context.Background(), ""); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("empty id err = %v", err)
	}
	if _, err := h.orch.GenerateProfile(context.Background(), "missing"); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("missing id err = %v", err)
	}
	if _, err := h.orch.GenerateContent(context.Background(), "missing"); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("missing profile err = %v", err)
	}
}

func TestGenerateProfileConflict(t *testing.T) {
	h := newHarness(t, 1, 10, time.Minute)
	tr := h.completedTranscript(t)

	first, err := h.orch.GenerateProfile(context.Background(), tr.ID)
	if err != nil {
		t.Fatalf("GenerateProfile() error = %v", err)
	}

	_, err = h.orch.GenerateProfile(context.Background(), tr.ID)
	e := apperr.As(err)
	if e.Kind != apperr.KindConflict || e.ExistingID != first.ID || e.IDField != "profileId" {
		t.Fatalf("err = %+v, want conflict with %s", e, first.ID)
	}

	profiles, _ := h.store.Profiles().List(context.Background())
	if len(profiles) != 1 {
		t.Errorf("profiles = %d, want 1", len(profiles))
	}
}

func TestGenerateProfileConcurrentRequests(t *testing.T) {
	h := newHarness(t, 2, 50, time.Minute)
	tr := h.completedTranscript(t)

	const n = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   []string
		conflicts []*apperr.Error
		others    []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := h.orch.GenerateProfile(context.Background(), tr.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created = append(created, p.ID)
			case apperr.IsKind(err, apperr.KindConflict):
				conflicts = append(conflicts, apperr.As(err))
			default:
				others = append(others, err)
			}
		}()
	}
	wg.Wait()

	if len(others) != 0 {
		t.Fatalf("unexpected errors: %v", others)
	}
	if len(created) != 1 || len(conflicts) != n-1 {
		t.Fatalf("created = %d, conflicts = %d; want 1 and %d", len(created), len(conflicts), n-1)
	}
	for _, e := range conflicts {
		if e.Code != "ERR_PROFILE_EXISTS" || e.ExistingID != created[0] {
			t.Errorf("conflict = %+v, want existing id %s", e, created[0])
		}
	}

	profiles, _ := h.store.Profiles().List(context.Background())
	if len(profiles) != 1 {
		t.Errorf("profiles = %d, want 1", len(profiles))
	}
}

func TestGenerateContentConflict(t *testing.T) {
	h := newHarness(t, 1, 10, time.Minute)
	ctx := context.Background()
	tr := h.completedTranscript(t)

	p, err := h.orch.GenerateProfile(ctx, tr.ID)
	if err != nil {
		t.Fatalf("GenerateProfile() error = %v", err)
	}
	eventually(t, "profile completed", func() bool {
		got, _ := h.store.Profiles().Get(ctx, p.ID)
		return got != nil && got.Status == types.StatusCompleted
	})

	first, err := h.orch.GenerateContent(ctx, p.ID)
	if err != nil {
		t.Fatalf("GenerateContent() error = %v", err)
	}

	_, err = h.orch.GenerateContent(ctx, p.ID)
	e := apperr.As(err)
	if e == nil || e.Kind != apperr.KindConflict || e.Code != "ERR_CONTENT_EXISTS" {
		t.Fatalf("err = %v, want content conflict", err)
	}
	if e.ExistingID != first.ID || e.IDField != "contentId" {
		t.Errorf("conflict = %+v, want contentId %s", e, first.ID)
	}
	if e.Status() != 409 {
		t.Errorf("status = %d, want 409", e.Status())
	}

	contents, _ := h.store.Contents().List(ctx)
	if len(contents) != 1 {
		t.Errorf("contents = %d, want 1", len(contents))
	}
}

func TestEndToEnd(t *testing.T) {
	h := newHarness(t, 2, 10, time.Minute)
	ctx := context.Background()
	tr := h.completedTranscript(t)

	p, err := h.orch.GenerateProfile(ctx, tr.ID)
	if err != nil {
		t.Fatalf("GenerateProfile() error = %v", err)
	}
	eventually(t, "profile completed", func() bool {
		got, _ := h.store.Profiles().Get(ctx, p.ID)
		return got != nil && got.Status == types.StatusCompleted
	})
	gotProfile, _ := h.store.Profiles().Get(ctx, p.ID)
	if len(gotProfile.Voice) == 0 || len(gotProfile.Themes) == 0 {
		t.Errorf("profile = %+v", gotProfile)
	}
	if gotProfile.Metadata["source"] != types.ProfileSourceJSON {
		t.Errorf("profile metadata = %v", gotProfile.Metadata)
	}

	c, err := h.orch.GenerateContent(ctx, p.ID)
	if err != nil {
		t.Fatalf("GenerateContent() error = %v", err)
	}
	eventually(t, "content completed", func() bool {
		got, _ := h.store.Contents().Get(ctx, c.ID)
		return got != nil && got.Status == types.StatusCompleted
	})

	gotContent, _ := h.store.Contents().Get(ctx, c.ID)
	for _, key := range []string{"rendered_title", "blog_post_title", "linkedin_post_1"} {
		if _, ok := gotContent.Field(key); !ok {
			t.Errorf("content missing %s", key)
		}
	}
	if title, _ := gotContent.Field("rendered_title"); title != "c1" {
		t.Errorf("rendered_title = %q, want client id from raw profile", title)
	}

	project, err := h.store.Projects().Get(ctx, "c1")
	if err != nil {
		t.Fatalf("project not mirrored: %v", err)
	}
	if len(project.Content) != 3 {
		t.Errorf("project content = %+v", project.Content)
	}

	if _, err := h.orch.GenerateContent(ctx, p.ID); !apperr.IsKind(err, apperr.KindConflict) {
		t.Errorf("second GenerateContent err = %v, want conflict", err)
	}
}

func TestQueueFullFailsEntity(t *testing.T) {
	store, err := storage.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	// no workers: the first job fills the queue
	pool := queue.NewWorkerPool(0, 1, time.Minute, logger.Discard())
	orch := New(store, pool, Config{Transcripts: &fakeTranscripts{}}, logger.Discard())

	sub := func() *types.Transcript {
		tr, err := orch.SubmitTranscript(context.Background(), Submission{
			Transcript: &types.Transcript{ClientID: "c1", SourceType: types.SourceManual, RawText: "x"},
		})
		if err != nil {
			t.Fatalf("SubmitTranscript() error = %v", err)
		}
		return tr
	}
	queued := sub()
	overflow := sub()

	got, _ := store.Transcripts().Get(context.Background(), overflow.ID)
	if got.Status != types.StatusFailed || got.Metadata["error"] != "pipeline queue full" {
		t.Errorf("overflow transcript = %s %v", got.Status, got.Metadata)
	}
	got, _ = store.Transcripts().Get(context.Background(), queued.ID)
	if got.Status != types.StatusProcessing {
		t.Errorf("queued transcript status = %s", got.Status)
	}
}

func TestStageTimeout(t *testing.T) {
	h := newHarness(t, 1, 10, 30*time.Millisecond)
	h.tr.block = make(chan struct{})
	defer close(h.tr.block)

	tr := h.submit(t, "x")
	eventually(t, "transcript failed", func() bool { return h.transcriptStatus(t, tr.ID) == types.StatusFailed })

	got, _ := h.store.Transcripts().Get(context.Background(), tr.ID)
	if got.Metadata["error"] != ErrStageTimedOut.Error() {
		t.Errorf("metadata.error = %v", got.Metadata["error"])
	}
}

func TestDeletedEntityIsNotResurrected(t *testing.T) {
	h := newHarness(t, 1, 10, time.Minute)
	h.tr.block = make(chan struct{})

	tr := h.submit(t, "x")
	if err := h.store.Transcripts().Delete(context.Background(), tr.ID); err != nil {
		t.Fatal(err)
	}
	close(h.tr.block)

	eventually(t, "task finished", func() bool { return !h.pool.IsActive(tr.ID) })
	if _, err := h.store.Transcripts().Get(context.Background(), tr.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() err = %v, want ErrNotFound", err)
	}
}

func TestSweepFailsStuckEntities(t *testing.T) {
	h := newHarness(t, 1, 10, time.Minute)
	ctx := context.Background()

	stuck := &types.Transcript{Base: types.Base{Status: types.StatusProcessing}, ClientID: "c1", SourceType: types.SourceManual}
	if err := h.store.Transcripts().Insert(ctx, stuck); err != nil {
		t.Fatal(err)
	}
	done := &types.Transcript{Base: types.Base{Status: types.StatusCompleted}, ClientID: "c1", SourceType: types.SourceManual}
	if err := h.store.Transcripts().Insert(ctx, done); err != nil {
		t.Fatal(err)
	}

	n, err := h.orch.Sweep(ctx)
	if err != nil || n != 0 {
		t.Fatalf("Sweep() = %d, %v; want nothing swept before the deadline", n, err)
	}

	h.orch.now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err = h.orch.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if n != 1 {
		t.Errorf("swept = %d, want 1", n)
	}

	got, _ := h.store.Transcripts().Get(ctx, stuck.ID)
	if got.Status != types.StatusFailed || got.Metadata["error"] != "stage timed out" {
		t.Errorf("stuck transcript = %s %v", got.Status, got.Metadata)
	}
	got, _ = h.store.Transcripts().Get(ctx, done.ID)
	if got.Status != types.StatusCompleted {
		t.Errorf("completed transcript changed to %s", got.Status)
	}
}

func TestSubmitTranscriptFetchError(t *testing.T) {
	h := newHarness(t, 1, 10, time.Minute)
	tr, err := h.orch.SubmitTranscript(context.Background(), Submission{
		Transcript: &types.Transcript{ClientID: "c1", SourceType: types.SourceUpload, SourceURL: "https://example.com/a.mp3"},
		Fetch: func(ctx context.Context) (transcription.Files, error) {
			return transcription.Files{}, errors.New("download failed: 403")
		},
	})
	if err != nil {
		t.Fatalf("SubmitTranscript() error = %v", err)
	}
	eventually(t, "transcript failed", func() bool { return h.transcriptStatus(t, tr.ID) == types.StatusFailed })
	got, _ := h.store.Transcripts().Get(context.Background(), tr.ID)
	if got.Metadata["error"] != "download failed: 403" {
		t.Errorf("metadata.error = %v", got.Metadata["error"])
	}
}

func TestUploadedMediaKeptWithArtifacts(t *testing.T) {
	h := newHarness(t, 1, 10, time.Minute)
	out := t.TempDir()
	h.orch.stages.Local = storage.NewLocalStorage(out)

	upload := filepath.Join(t.TempDir(), "u1_audio.mp3")
	if err := os.WriteFile(upload, []byte("sound"), 0644); err != nil {
		t.Fatal(err)
	}
	tr, err := h.orch.SubmitTranscript(context.Background(), Submission{
		Transcript: &types.Transcript{ClientID: "c1", SourceType: types.SourceUpload},
		Files:      transcription.Files{Audio: upload},
	})
	if err != nil {
		t.Fatalf("SubmitTranscript() error = %v", err)
	}
	eventually(t, "transcript completed", func() bool { return h.transcriptStatus(t, tr.ID) == types.StatusCompleted })

	got, _ := h.store.Transcripts().Get(context.Background(), tr.ID)
	kept := got.Chunks[0].AudioPath
	if !strings.HasPrefix(kept, out) {
		t.Fatalf("AudioPath = %q, want a path under the output dir", kept)
	}
	if _, err := os.Stat(kept); err != nil {
		t.Errorf("kept media missing: %v", err)
	}
	if _, err := os.Stat(upload); !os.IsNotExist(err) {
		t.Errorf("upload left in temp dir: %v", err)
	}
}
