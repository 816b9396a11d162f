package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/docredact/internal/pathstore"
	"github.com/dgallion1/docredact/internal/redact"
)

func TestCopyName(t *testing.T) {
	now := time.Date(2024, 3, 7, 9, 5, 59, 0, time.UTC)
	cases := []struct {
		title, ext, want string
	}{
		{"Quarterly Report", ".docx", "Quarterly Report - REDACTED - 2024-03-07 09-05.docx"},
		{"  notes ", "", "notes - REDACTED - 2024-03-07 09-05"},
		{"a/b\\c", ".txt", "a_b_c - REDACTED - 2024-03-07 09-05.txt"},
		{"", ".md", "document - REDACTED - 2024-03-07 09-05.md"},
	}
	for _, tc := range cases {
		if got := CopyName(tc.title, tc.ext, now); got != tc.want {
			t.Errorf("CopyName(%q, %q): expected %q, got %q", tc.title, tc.ext, tc.want, got)
		}
	}
}

func TestDirSink_WritesAndNeverOverwrites(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s := &DirSink{Dir: dir}
	a := &Artifact{Name: "doc - REDACTED - 2024-01-01 00-00.txt", Data: []byte("first")}

	p1, err := s.Put(context.Background(), a)
	if err != nil {
		t.Fatalf("first put: %v", err)
	}
	a.Data = []byte("second")
	p2, err := s.Put(context.Background(), a)
	if err != nil {
		t.Fatalf("second put: %v", err)
	}

	if p1 == p2 {
		t.Fatalf("expected distinct paths, got %q twice", p1)
	}
	if filepath.Base(p2) != "doc - REDACTED - 2024-01-01 00-00 (2).txt" {
		t.Errorf("unexpected second name %q", filepath.Base(p2))
	}
	if b, _ := os.ReadFile(p1); string(b) != "first" {
		t.Errorf("first copy was modified: %q", b)
	}
	if b, _ := os.ReadFile(p2); string(b) != "second" {
		t.Errorf("unexpected second copy %q", b)
	}
}

func TestDirSink_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &DirSink{Dir: t.TempDir()}
	if _, err := s.Put(ctx, &Artifact{Name: "x.txt"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// fakeStore is a minimal in-memory pathstore.
type fakeStore struct {
	nodes map[string]json.RawMessage
}

func (f *fakeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/kv/")
	switch {
	case r.Method == http.MethodPut:
		var req struct {
			Value json.RawMessage `json:"value"`
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.nodes[key] = req.Value
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodGet && strings.HasSuffix(key, "/*"):
		prefix := strings.TrimSuffix(key, "*")
		type node struct {
			Key   string          `json:"key_path"`
			Value json.RawMessage `json:"value"`
		}
		var out struct {
			Nodes []node `json:"nodes"`
		}
		for k, v := range f.nodes {
			if strings.HasPrefix(k, prefix) {
				out.Nodes = append(out.Nodes, node{Key: k, Value: v})
			}
		}
		json.NewEncoder(w).Encode(out)
	case r.Method == http.MethodGet:
		v, ok := f.nodes[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"key_path": key, "value": v})
	case r.Method == http.MethodDelete:
		for k := range f.nodes {
			if k == key || strings.HasPrefix(k, key+"/") {
				delete(f.nodes, k)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func TestPathstoreSink_PutListGetDelete(t *testing.T) {
	store := &fakeStore{nodes: map[string]json.RawMessage{}}
	srv := httptest.NewServer(store)
	defer srv.Close()

	s := NewPathstoreSink(pathstore.NewClient(srv.URL, "k"))
	ctx := context.Background()
	a := &Artifact{
		DocID:       "01J0000000000000000000000A",
		UserID:      "u1",
		Title:       "Report",
		Name:        "Report - REDACTED - 2024-01-01 00-00.txt",
		ContentType: "text/plain; charset=utf-8",
		Data:        []byte("████ text"),
		Stats:       redact.Stats{Runs: 1, Words: 2, Masked: 1},
		CreatedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	key, err := s.Put(ctx, a)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if key != "users/u1/redactions/01J0000000000000000000000A" {
		t.Errorf("unexpected key %q", key)
	}

	records, err := s.List(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Content != nil {
		t.Error("list should not carry content")
	}
	if records[0].Size != len(a.Data) || records[0].Stats.Masked != 1 {
		t.Errorf("unexpected record %+v", records[0])
	}

	rec, err := s.Get(ctx, "u1", a.DocID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec == nil || string(rec.Content) != "████ text" {
		t.Fatalf("expected content back, got %+v", rec)
	}

	if err := s.Delete(ctx, "u1", a.DocID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rec, err := s.Get(ctx, "u1", a.DocID); err != nil || rec != nil {
		t.Errorf("expected record gone, got %+v, %v", rec, err)
	}
}

func TestPathstoreSink_RequiresIDs(t *testing.T) {
	s := NewPathstoreSink(pathstore.NewClient("http://unused", "k"))
	if _, err := s.Put(context.Background(), &Artifact{UserID: "u1"}); err == nil {
		t.Fatal("expected error without doc id")
	}
}

func TestPathstoreSink_RejectsDotSegments(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewPathstoreSink(pathstore.NewClient(srv.URL, "k"))
	ctx := context.Background()
	for _, ids := range [][2]string{{"u1", ".."}, {"u1", "."}, {"..", "d"}, {"u1", "a/b"}, {"", "d"}} {
		if err := s.Delete(ctx, ids[0], ids[1]); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Delete(%q, %q): expected ErrInvalidKey, got %v", ids[0], ids[1], err)
		}
		if _, err := s.Get(ctx, ids[0], ids[1]); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Get(%q, %q): expected ErrInvalidKey, got %v", ids[0], ids[1], err)
		}
	}
	if _, err := s.List(ctx, "..", 0); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("List(..): expected ErrInvalidKey, got %v", err)
	}
	if hits != 0 {
		t.Errorf("expected no pathstore requests, got %d", hits)
	}
}

func TestValidSegment(t *testing.T) {
	cases := map[string]bool{
		"u1":    true,
		"a.b":   true,
		"":      false,
		".":     false,
		"..":    false,
		"a/b":   false,
		`a\b`:   false,
		"a\x00": false,
	}
	for in, want := range cases {
		if got := ValidSegment(in); got != want {
			t.Errorf("ValidSegment(%q): expected %v, got %v", in, want, got)
		}
	}
}

func TestPathstoreSink_RetryableErrorSurvivesWrapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewPathstoreSink(pathstore.NewClient(srv.URL, "k"))
	_, err := s.Put(context.Background(), &Artifact{UserID: "u", DocID: "d"})
	var se *pathstore.StatusError
	if !errors.As(err, &se) || !se.Retryable() {
		t.Errorf("expected retryable status error, got %v", err)
	}
}
