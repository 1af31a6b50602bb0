package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/content-pipeline/internal/content"
	"github.com/codebuildervaibhav/content-pipeline/internal/continuation"
	"github.com/codebuildervaibhav/content-pipeline/internal/logger"
	"github.com/codebuildervaibhav/content-pipeline/internal/pipeline"
	"github.com/codebuildervaibhav/content-pipeline/internal/queue"
	"github.com/codebuildervaibhav/content-pipeline/internal/storage"
	"github.com/codebuildervaibhav/content-pipeline/internal/style"
	"github.com/codebuildervaibhav/content-pipeline/internal/transcription"
	"github.com/codebuildervaibhav/content-pipeline/internal/types"
	"github.com/codebuildervaibhav/content-pipeline/internal/vapi"
)

const sampleVTT = `WEBVTT

00:00:01.000 --> 00:00:03.000
Speaker 1: Tell me about your bakery.

00:00:03.500 --> 00:01:05.250
Speaker 2: I bake sourdough every morning for my neighbours.
`

type fakeProfiles struct{}

func (fakeProfiles) Process(ctx context.Context, in style.Input) (*types.ProfileResult, error) {
	return &types.ProfileResult{
		Voice:         []string{"warm"},
		Themes:        []string{"baking"},
		Values:        []string{"craft"},
		EmotionalTone: []string{"hopeful"},
		Relatability:  []string{"family"},
		RawProfile:    "# Style Profile\nClient ID: " + in.Profile.ClientID + "\n",
		Source:        types.ProfileSourceJSON,
		MissingFields: []string{},
	}, nil
}

type fakeContents struct{}

func (fakeContents) Process(ctx context.Context, in content.Input) (*types.ContentResult, error) {
	return &types.ContentResult{Fields: []types.ContentField{
		{Key: "rendered_title", Value: content.ClientName(in.ClientName, in.Profile.RawProfile)},
		{Key: "rendered_subtitle", Value: "Baking Bread"},
		{Key: "blog_post_title", Value: "Why Sourdough"},
		{Key: "blog_post_content", Value: "<p>Because.</p>"},
		{Key: "linkedin_post_1", Value: "Fresh loaves today"},
	}}, nil
}

type fakeCalls struct {
	mu        sync.Mutex
	scheduled []vapi.CallRequest
	initiated []vapi.CallRequest
	err       error
}

func (f *fakeCalls) ScheduleCall(ctx context.Context, req vapi.CallRequest) (*vapi.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.scheduled = append(f.scheduled, req)
	return &vapi.Call{ID: "call_scheduled", Status: "scheduled"}, nil
}

func (f *fakeCalls) InitiateCall(ctx context.Context, req vapi.CallRequest) (*vapi.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.initiated = append(f.initiated, req)
	return &vapi.Call{ID: "call_now", Status: "queued"}, nil
}

type fakeArchive struct {
	got *storage.Archive
	err error
}

func (f *fakeArchive) Upload(ctx context.Context, a *storage.Archive) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.got = a
	return "https://drive.example.com/" + a.Name, nil
}

type fakeRenderer struct{ html string }

func (f *fakeRenderer) PDF(ctx context.Context, html string) ([]byte, error) {
	f.html = html
	return []byte("%PDF-1.4 fake"), nil
}

type fakeFetcher struct {
	transcript []vapi.Message
	data       map[string]interface{}
}

func (f *fakeFetcher) GetCall(ctx context.Context, id string) (*vapi.Call, error) {
	return &vapi.Call{ID: id, Status: "ended"}, nil
}

func (f *fakeFetcher) GetCallTranscript(ctx context.Context, id string) ([]vapi.Message, error) {
	return f.transcript, nil
}

func (f *fakeFetcher) GetCallAnalysis(ctx context.Context, id string) (*vapi.Analysis, error) {
	return &vapi.Analysis{StructuredData: f.data}, nil
}

type testServer struct {
	app     *fiber.App
	store   *storage.SQLiteStore
	calls   *fakeCalls
	archive *fakeArchive
	render  *fakeRenderer
	fetcher *fakeFetcher
	deps    *Deps
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	log := logger.Discard()
	pool := queue.NewWorkerPool(2, 10, 5*time.Second, log)
	pool.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Stop(ctx)
		store.Close()
	})

	orch := pipeline.New(store, pool, pipeline.Config{
		Transcripts:  transcription.NewProcessor(nil, nil, nil),
		Profiles:     fakeProfiles{},
		Contents:     fakeContents{},
		StageTimeout: 5 * time.Second,
	}, log)

	s := &testServer{
		store:   store,
		calls:   &fakeCalls{},
		archive: &fakeArchive{},
		render:  &fakeRenderer{},
		fetcher: &fakeFetcher{},
	}
	s.deps = &Deps{
		Store:        store,
		Pipeline:     orch,
		Calls:        s.calls,
		Continuation: continuation.NewService(continuation.NewStore(""), s.fetcher, log),
		Archive:      s.archive,
		Renderer:     s.render,
		LogBuffer:    logger.NewLogBuffer(10),
		Log:          log,
		TempDir:      t.TempDir(),
		MaxSizeMB:    1,
	}
	s.app = NewApp(s.deps)
	Register(s.app, s.deps)
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, out
}

func (s *testServer) list(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return out
}

func (s *testServer) waitStatus(t *testing.T, path string, want types.Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var last interface{}
	for time.Now().Before(deadline) {
		_, body := s.do(t, http.MethodGet, path, nil)
		last = body["status"]
		if last == string(want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s status = %v, want %s", path, last, want)
}

func multipartUpload(t *testing.T, fields map[string]string, files map[string][2]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	for field, f := range files {
		part, err := w.CreateFormFile(field, f[0])
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write([]byte(f[1]))
	}
	_ = w.Close()
	req := httptest.NewRequest(http.MethodPost, "/transcripts/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestHealthAndLogs(t *testing.T) {
	s := newTestServer(t)
	s.deps.LogBuffer.Write([]byte("hello\n"))

	if code, body := s.do(t, http.MethodGet, "/health", nil); code != 200 || body["status"] != "ok" {
		t.Errorf("health = %d %v", code, body)
	}
	code, body := s.do(t, http.MethodGet, "/logs", nil)
	if code != 200 {
		t.Fatalf("logs status = %d", code)
	}
	if logs, _ := body["logs"].([]interface{}); len(logs) != 1 {
		t.Errorf("logs = %v", body["logs"])
	}
}

func TestNotFoundBody(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/transcripts/nope", "/profiles/nope", "/content/nope", "/interviews/nope", "/projects/nope"} {
		code, body := s.do(t, http.MethodGet, path, nil)
		if code != 404 {
			t.Errorf("GET %s = %d, want 404", path, code)
		}
		if body["error"] == "" || body["error"] == nil {
			t.Errorf("GET %s body = %v, want error message", path, body)
		}
	}
	if code, _ := s.do(t, http.MethodDelete, "/content/nope", nil); code != 404 {
		t.Errorf("DELETE missing content = %d, want 404", code)
	}
}

func TestUploadToApprovedContent(t *testing.T) {
	s := newTestServer(t)

	code, body := s.send(t, multipartUpload(t,
		map[string]string{"clientId": "client_1"},
		map[string][2]string{"subtitle": {"session.vtt", sampleVTT}}))
	if code != fiber.StatusAccepted {
		t.Fatalf("upload = %d %v", code, body)
	}
	transcriptID, _ := body["transcriptId"].(string)
	s.waitStatus(t, "/transcripts/"+transcriptID+"/status", types.StatusCompleted)

	_, chunks := s.do(t, http.MethodGet, "/transcripts/"+transcriptID+"/chunks", nil)
	list, _ := chunks["chunks"].([]interface{})
	if len(list) != 1 {
		t.Fatalf("chunks = %v, want only the client cue", chunks["chunks"])
	}
	first := list[0].(map[string]interface{})
	if first["start"] != 3.5 || first["end"] != 65.25 {
		t.Errorf("chunk timing = %v..%v", first["start"], first["end"])
	}

	code, body = s.do(t, http.MethodPost, "/profiles/generate", fiber.Map{"transcriptId": transcriptID})
	if code != fiber.StatusAccepted {
		t.Fatalf("profile generate = %d %v", code, body)
	}
	profileID, _ := body["profileId"].(string)
	s.waitStatus(t, "/profiles/"+profileID+"/status", types.StatusCompleted)

	code, body = s.do(t, http.MethodPost, "/profiles/generate", fiber.Map{"transcriptId": transcriptID})
	if code != fiber.StatusConflict || body["profileId"] != profileID {
		t.Errorf("second profile generate = %d %v, want 409 with existing id", code, body)
	}

	code, body = s.do(t, http.MethodPost, "/content/generate", fiber.Map{"profileId": profileID})
	if code != fiber.StatusAccepted {
		t.Fatalf("content generate = %d %v", code, body)
	}
	contentID, _ := body["contentId"].(string)
	s.waitStatus(t, "/content/"+contentID+"/status", types.StatusCompleted)

	code, body = s.do(t, http.MethodGet, "/content/"+contentID, nil)
	if code != 200 {
		t.Fatalf("get content = %d", code)
	}
	keys := map[string]bool{}
	for _, f := range body["contentFields"].([]interface{}) {
		keys[f.(map[string]interface{})["key"].(string)] = true
	}
	for _, k := range []string{"rendered_title", "blog_post_title", "linkedin_post_1"} {
		if !keys[k] {
			t.Errorf("content missing field %s", k)
		}
	}

	code, body = s.do(t, http.MethodGet, "/projects/client_1", nil)
	if code != 200 || body["projectId"] != "client_1" {
		t.Errorf("project = %d %v", code, body)
	}

	req := httptest.NewRequest(http.MethodGet, "/content/"+contentID+"/export.xlsx", nil)
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 || resp.Header.Get("Content-Type") != xlsxMIME {
		t.Errorf("export = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	resp.Body.Close()

	code, body = s.do(t, http.MethodPost, "/content/"+contentID+"/approve", nil)
	if code != 200 || body["status"] != string(types.StatusApproved) {
		t.Fatalf("approve = %d %v", code, body)
	}
	meta, _ := body["metadata"].(map[string]interface{})
	if url, _ := meta["archiveUrl"].(string); !strings.HasPrefix(url, "https://drive.example.com/") {
		t.Errorf("archiveUrl = %v", meta["archiveUrl"])
	}
	if s.archive.got == nil || len(s.archive.got.Spreadsheet) == 0 {
		t.Error("archive should receive the spreadsheet")
	}

	if code, _ := s.do(t, http.MethodPost, "/content/"+contentID+"/approve", nil); code != 400 {
		t.Errorf("second approve = %d, want 400", code)
	}
}

func TestUploadValidation(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name   string
		fields map[string]string
		files  map[string][2]string
		code   string
	}{
		{"missing client", nil, map[string][2]string{"subtitle": {"a.vtt", sampleVTT}}, "ERR_MISSING_CLIENT_ID"},
		{"no file", map[string]string{"clientId": "c1"}, nil, "ERR_NO_FILE"},
		{"bad extension", map[string]string{"clientId": "c1"}, map[string][2]string{"audio": {"notes.txt", "hi"}}, "ERR_INVALID_FORMAT"},
		{"subtitle in audio field", map[string]string{"clientId": "c1"}, map[string][2]string{"audio": {"a.vtt", sampleVTT}}, "ERR_INVALID_FORMAT"},
		{"too large", map[string]string{"clientId": "c1"}, map[string][2]string{"audio": {"a.mp3", strings.Repeat("x", 1024*1024+1)}}, "ERR_FILE_TOO_LARGE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.send(t, multipartUpload(t, tt.fields, tt.files))
			if code != 400 || body["code"] != tt.code {
				t.Errorf("upload = %d %v, want 400 %s", code, body, tt.code)
			}
		})
	}
}

func TestGenerateBeforeTranscriptCompletes(t *testing.T) {
	s := newTestServer(t)
	tr := &types.Transcript{ClientID: "c1", SourceType: types.SourceManual, Base: types.Base{Status: types.StatusProcessing}}
	if err := s.store.Transcripts().Insert(context.Background(), tr); err != nil {
		t.Fatal(err)
	}

	code, _ := s.do(t, http.MethodPost, "/profiles/generate", fiber.Map{"transcriptId": tr.ID})
	if code != 400 {
		t.Errorf("generate = %d, want 400", code)
	}
	if _, err := s.store.Profiles().FindByRef(context.Background(), tr.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("profile created for unfinished transcript: %v", err)
	}

	if code, _ := s.do(t, http.MethodPost, "/profiles/generate", fiber.Map{}); code != 400 {
		t.Errorf("generate without id = %d, want 400", code)
	}
	if code, _ := s.do(t, http.MethodPost, "/content/generate", fiber.Map{"profileId": "missing"}); code != 404 {
		t.Errorf("content for missing profile = %d, want 404", code)
	}
}

func TestManualTranscriptAndChunkEdit(t *testing.T) {
	s := newTestServer(t)

	if code, _ := s.do(t, http.MethodPost, "/transcripts/manual", fiber.Map{"clientId": "c1"}); code != 400 {
		t.Errorf("manual without text = %d, want 400", code)
	}

	code, body := s.do(t, http.MethodPost, "/transcripts/manual", fiber.Map{"clientId": "c1", "text": "I bake bread.\n\nEvery morning."})
	if code != fiber.StatusAccepted {
		t.Fatalf("manual = %d %v", code, body)
	}
	id := body["transcriptId"].(string)
	s.waitStatus(t, "/transcripts/"+id+"/status", types.StatusCompleted)

	edit := fiber.Map{"chunks": []fiber.Map{{"id": "chunk_001", "text": "I bake sourdough."}}}
	code, body = s.do(t, http.MethodPut, "/transcripts/"+id+"/chunks", edit)
	if code != 200 {
		t.Fatalf("edit chunks = %d %v", code, body)
	}
	if chunks := body["chunks"].([]interface{}); len(chunks) != 1 {
		t.Errorf("chunks = %v", chunks)
	}

	if code, _ := s.do(t, http.MethodPut, "/transcripts/"+id+"/chunks", fiber.Map{"chunks": []fiber.Map{{"id": ""}}}); code != 400 {
		t.Errorf("invalid chunk edit = %d, want 400", code)
	}

	pending := &types.Transcript{ClientID: "c1", Base: types.Base{Status: types.StatusProcessing}}
	_ = s.store.Transcripts().Insert(context.Background(), pending)
	if code, _ := s.do(t, http.MethodPut, "/transcripts/"+pending.ID+"/chunks", edit); code != 400 {
		t.Errorf("edit unfinished transcript = %d, want 400", code)
	}

	if code, _ := s.do(t, http.MethodDelete, "/transcripts/"+id, nil); code != 200 {
		t.Errorf("delete = %d", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/transcripts/"+id, nil); code != 404 {
		t.Errorf("get deleted = %d, want 404", code)
	}
}

func TestContentFieldsAndPreview(t *testing.T) {
	s := newTestServer(t)
	ct := &types.Content{
		ClientID:  "c1",
		ProfileID: "p1",
		Base:      types.Base{Status: types.StatusCompleted},
		ContentFields: []types.ContentField{
			{Key: "rendered_title", Value: "Ada"},
			{Key: "rendered_bio_html", Value: `<p onclick="x()">Baker</p><script>alert(1)</script>`},
		},
	}
	if err := s.store.Contents().Insert(context.Background(), ct); err != nil {
		t.Fatal(err)
	}

	code, body := s.do(t, http.MethodPut, "/content/"+ct.ID+"/fields", fiber.Map{"contentFields": []fiber.Map{
		{"key": "rendered_title", "value": "Ada Baker"},
		{"key": "tagline", "value": "Fresh daily"},
	}})
	if code != 200 {
		t.Fatalf("update fields = %d %v", code, body)
	}
	fields := body["contentFields"].([]interface{})
	if len(fields) != 3 || fields[0].(map[string]interface{})["value"] != "Ada Baker" {
		t.Errorf("fields = %v", fields)
	}

	req := httptest.NewRequest(http.MethodGet, "/content/"+ct.ID+"/preview.pdf", nil)
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	pdf, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Errorf("preview = %d %q", resp.StatusCode, pdf)
	}
	if !strings.Contains(s.render.html, "Ada Baker") || strings.Contains(s.render.html, "<script>") {
		t.Errorf("preview html not sanitized or missing title")
	}

	failed := &types.Content{ClientID: "c1", ProfileID: "p2", Base: types.Base{Status: types.StatusFailed}}
	_ = s.store.Contents().Insert(context.Background(), failed)
	for _, path := range []string{"/content/" + failed.ID + "/export.xlsx", "/content/" + failed.ID + "/preview.pdf"} {
		if code, _ := s.do(t, http.MethodGet, path, nil); code != 400 {
			t.Errorf("GET %s on failed content = %d, want 400", path, code)
		}
	}
	if code, _ := s.do(t, http.MethodPost, "/content/"+failed.ID+"/approve", nil); code != 400 {
		t.Errorf("approve failed content = %d, want 400", code)
	}
}

func TestApproveKeepsApprovalWhenArchiveFails(t *testing.T) {
	s := newTestServer(t)
	s.archive.err = errors.New("drive down")
	ct := &types.Content{ClientID: "c1", ProfileID: "p1", Base: types.Base{Status: types.StatusCompleted}}
	_ = s.store.Contents().Insert(context.Background(), ct)

	code, body := s.do(t, http.MethodPost, "/content/"+ct.ID+"/approve", nil)
	if code != 200 || body["status"] != string(types.StatusApproved) {
		t.Fatalf("approve = %d %v", code, body)
	}
	if meta, _ := body["metadata"].(map[string]interface{}); meta["archiveError"] != "drive down" {
		t.Errorf("metadata = %v", body["metadata"])
	}
}
