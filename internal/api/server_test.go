package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/docredact/internal/config"
	"github.com/dgallion1/docredact/internal/pathstore"
	"github.com/dgallion1/docredact/internal/pipeline"
	"github.com/dgallion1/docredact/internal/redact"
	"github.com/dgallion1/docredact/internal/sink"
)

const testKey = "secret"

type memSink struct {
	mu  sync.Mutex
	got []*sink.Artifact
}

func (s *memSink) Put(_ context.Context, a *sink.Artifact) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, a)
	return "mem/" + a.Name, nil
}

func testServer(t *testing.T, records *sink.PathstoreSink) *Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		DocredactAPIKey: testKey,
		WorkerCount:     2,
		MaxQueueSize:    10,
		MaxUploadBytes:  1 << 20,
		JobTTL:          time.Hour,
	}
	orch := pipeline.NewOrchestrator(cfg, []sink.Sink{&memSink{}}, log)
	orch.Start(context.Background())
	t.Cleanup(orch.Stop)
	return NewServer(orch, records, log, cfg)
}

type part struct {
	field, filename, content string
}

func multipartBody(t *testing.T, fields map[string]string, files ...part) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(f.content))
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+testKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func waitTerminal(t *testing.T, h http.Handler, jobID string) pipeline.JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec := do(t, h, http.MethodGet, "/api/redact/"+jobID+"/status", nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status: %d %s", rec.Code, rec.Body.String())
		}
		var snap pipeline.JobSnapshot
		decode(t, rec, &snap)
		if snap.Status.Terminal() {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s stuck in %s", jobID, snap.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealth_NoAuth(t *testing.T) {
	s := testServer(t, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	decode(t, rec, &body)
	if body["status"] != "ok" || body["pathstore"] != false {
		t.Errorf("unexpected health body %v", body)
	}
}

func TestAuth(t *testing.T) {
	s := testServer(t, nil)
	for _, header := range []string{"", "Bearer wrong", "secret"} {
		req := httptest.NewRequest(http.MethodGet, "/api/redact/x/status", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
}

func TestRedact_SubmitPollDownload(t *testing.T) {
	s := testServer(t, nil)
	body, ct := multipartBody(t,
		map[string]string{"user_id": "u1", "title": "Minutes", "seed": "5"},
		part{"file", "minutes.txt", "We met on Monday. Nothing was decided.\n\nAdjourned early."},
	)
	rec := do(t, s, http.MethodPost, "/api/redact", body, ct)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var accepted struct {
		JobID   string `json:"job_id"`
		Status  string `json:"status"`
		PollURL string `json:"poll_url"`
	}
	decode(t, rec, &accepted)
	if accepted.Status != "queued" || accepted.PollURL != "/api/redact/"+accepted.JobID+"/status" {
		t.Errorf("unexpected accept body %+v", accepted)
	}

	snap := waitTerminal(t, s, accepted.JobID)
	if snap.Status != pipeline.StatusCompleted {
		t.Fatalf("expected completed, got %s: %v", snap.Status, snap.Progress.Errors)
	}
	if snap.Title != "Minutes" || snap.Progress.Words != 9 {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	dl := do(t, s, http.MethodGet, "/api/redact/"+accepted.JobID+"/download", nil, "")
	if dl.Code != http.StatusOK {
		t.Fatalf("download: %d %s", dl.Code, dl.Body.String())
	}
	if got := dl.Header().Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Errorf("unexpected content type %q", got)
	}
	if cd := dl.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment;") || !strings.Contains(cd, "Minutes - REDACTED - ") {
		t.Errorf("unexpected disposition %q", cd)
	}
	if got := strings.Count(dl.Body.String(), redact.Marker); got != snap.Progress.Masked {
		t.Errorf("expected %d markers, found %d", snap.Progress.Masked, got)
	}
}

func TestRedact_Validation(t *testing.T) {
	s := testServer(t, nil)
	cases := []struct {
		name   string
		fields map[string]string
		file   *part
		want   int
	}{
		{"missing user", map[string]string{}, &part{"file", "a.txt", "x"}, http.StatusBadRequest},
		{"user with slash", map[string]string{"user_id": "a/b"}, &part{"file", "a.txt", "x"}, http.StatusBadRequest},
		{"missing file", map[string]string{"user_id": "u"}, nil, http.StatusBadRequest},
		{"bad seed", map[string]string{"user_id": "u", "seed": "-1"}, &part{"file", "a.txt", "x"}, http.StatusBadRequest},
		{"unsupported", map[string]string{"user_id": "u"}, &part{"file", "a.xlsx", "x"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		var files []part
		if tc.file != nil {
			files = append(files, *tc.file)
		}
		body, ct := multipartBody(t, tc.fields, files...)
		rec := do(t, s, http.MethodPost, "/api/redact", body, ct)
		if rec.Code != tc.want {
			t.Errorf("%s: expected %d, got %d (%s)", tc.name, tc.want, rec.Code, rec.Body.String())
		}
	}
}

func TestRedact_TooLarge(t *testing.T) {
	s := testServer(t, nil)
	s.cfg.MaxUploadBytes = 8
	body, ct := multipartBody(t, map[string]string{"user_id": "u"}, part{"file", "a.txt", "more than eight bytes"})
	rec := do(t, s, http.MethodPost, "/api/redact", body, ct)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestBatchRedact(t *testing.T) {
	s := testServer(t, nil)
	body, ct := multipartBody(t, map[string]string{"user_id": "u1"},
		part{"files", "a.txt", "alpha beta"},
		part{"files", "b.md", "# Title\n\ngamma delta"},
		part{"files", "c.exe", "nope"},
	)
	rec := do(t, s, http.MethodPost, "/api/redact/batch", body, ct)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Jobs []map[string]any `json:"jobs"`
	}
	decode(t, rec, &out)
	if len(out.Jobs) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out.Jobs))
	}
	if _, ok := out.Jobs[2]["error"]; !ok {
		t.Errorf("expected an error for the unsupported file, got %v", out.Jobs[2])
	}
	for _, j := range out.Jobs[:2] {
		id, _ := j["job_id"].(string)
		if snap := waitTerminal(t, s, id); snap.Status != pipeline.StatusCompleted {
			t.Errorf("%v: expected completed, got %s", j["filename"], snap.Status)
		}
	}
}

func TestStatusAndDownload_UnknownJob(t *testing.T) {
	s := testServer(t, nil)
	for _, p := range []string{"/api/redact/nope/status", "/api/redact/nope/download"} {
		if rec := do(t, s, http.MethodGet, p, nil, ""); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", p, rec.Code)
		}
	}
}

func TestDownload_FailedJobConflicts(t *testing.T) {
	s := testServer(t, nil)
	// A .docx that is not a zip archive fails in parsing.
	body, ct := multipartBody(t, map[string]string{"user_id": "u"}, part{"file", "broken.docx", "not a zip"})
	rec := do(t, s, http.MethodPost, "/api/redact", body, ct)
	var accepted struct {
		JobID string `json:"job_id"`
	}
	decode(t, rec, &accepted)
	if snap := waitTerminal(t, s, accepted.JobID); snap.Status != pipeline.StatusFailed {
		t.Fatalf("expected failed, got %s", snap.Status)
	}
	if dl := do(t, s, http.MethodGet, "/api/redact/"+accepted.JobID+"/download", nil, ""); dl.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", dl.Code)
	}
}

func TestRecords_DisabledWithoutPathstore(t *testing.T) {
	s := testServer(t, nil)
	rec := do(t, s, http.MethodGet, "/api/redactions?user_id=u1", nil, "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

const storedID = "0190a5f2-7c1e-7b3a-9d4e-1f2a3b4c5d6e"

// fakePathstore serves a single stored record for user u1 and records the
// paths of every request it receives.
func fakePathstore(t *testing.T, rec sink.Record) (*httptest.Server, func() []string) {
	t.Helper()
	value, _ := json.Marshal(rec)
	var mu sync.Mutex
	deleted := false
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r.Method+" "+r.URL.Path)
		key := "/kv/users/u1/redactions/" + rec.DocID
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/kv/users/u1/redactions/*":
			nodes := []map[string]any{}
			if !deleted {
				nodes = append(nodes, map[string]any{"key_path": key, "value": json.RawMessage(value)})
			}
			json.NewEncoder(w).Encode(map[string]any{"nodes": nodes})
		case r.Method == http.MethodGet && r.URL.Path == key && !deleted:
			json.NewEncoder(w).Encode(map[string]any{"key_path": key, "value": json.RawMessage(value)})
		case r.Method == http.MethodDelete && r.URL.Path == key:
			deleted = true
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), seen...)
	}
}

func TestRecords_ListGetDelete(t *testing.T) {
	stored := sink.Record{
		DocID:       storedID,
		Title:       "Plan",
		Name:        "Plan - REDACTED - 2024-01-01 00-00.txt",
		ContentType: "text/plain; charset=utf-8",
		Size:        9,
		Content:     []byte("████ plan"),
	}
	ps, _ := fakePathstore(t, stored)
	s := testServer(t, sink.NewPathstoreSink(pathstore.NewClient(ps.URL, "k")))

	rec := do(t, s, http.MethodGet, "/api/redactions?user_id=u1", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}
	var list struct {
		Redactions []sink.Record `json:"redactions"`
	}
	decode(t, rec, &list)
	if len(list.Redactions) != 1 || list.Redactions[0].DocID != storedID || list.Redactions[0].Content != nil {
		t.Fatalf("unexpected list %+v", list.Redactions)
	}

	got := do(t, s, http.MethodGet, "/api/redactions/"+storedID+"?user_id=u1", nil, "")
	if got.Code != http.StatusOK || got.Body.String() != "████ plan" {
		t.Fatalf("get: %d %q", got.Code, got.Body.String())
	}

	if del := do(t, s, http.MethodDelete, "/api/redactions/"+storedID+"?user_id=u1", nil, ""); del.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", del.Code, del.Body.String())
	}
	if missing := do(t, s, http.MethodGet, "/api/redactions/"+storedID+"?user_id=u1", nil, ""); missing.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", missing.Code)
	}
	if bad := do(t, s, http.MethodGet, "/api/redactions", nil, ""); bad.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without user_id, got %d", bad.Code)
	}
}

func TestRecords_RejectsIDsOutsideRecordPrefix(t *testing.T) {
	ps, seen := fakePathstore(t, sink.Record{DocID: storedID})
	s := testServer(t, sink.NewPathstoreSink(pathstore.NewClient(ps.URL, "k")))

	for _, target := range []string{
		"/api/redactions/..?user_id=alice",
		"/api/redactions/.?user_id=alice",
		"/api/redactions/%2E%2E?user_id=alice",
		"/api/redactions/not-a-uuid?user_id=alice",
		"/api/redactions/" + storedID + "?user_id=..",
	} {
		for _, method := range []string{http.MethodGet, http.MethodDelete} {
			if rec := do(t, s, method, target, nil, ""); rec.Code != http.StatusBadRequest {
				t.Errorf("%s %s: expected 400, got %d (%s)", method, target, rec.Code, rec.Body.String())
			}
		}
	}
	if got := seen(); len(got) != 0 {
		t.Errorf("no request should reach pathstore, got %q", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report.docx":          "report.docx",
		"../../etc/passwd.txt": "passwd.txt",
		`C:\Users\me\notes.md`: "notes.md",
		"":                     "unnamed",
		"..":                   "_",
		"weird..name.txt":      "weird_name.txt",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q): expected %q, got %q", in, want, got)
		}
	}
}
