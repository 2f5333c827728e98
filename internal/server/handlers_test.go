package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/contenttype"
	"github.com/hyperjump/kensaku/internal/keyword"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/internal/source"
	"github.com/hyperjump/kensaku/internal/storage"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{Storage: config.StorageConfig{
		DatabasePath:   filepath.Join(dir, "db.sqlite"),
		BleveIndexPath: filepath.Join(dir, "bleve"),
	}}
	config.ApplyDefaults(cfg)
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	kw, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = kw.Close()
		_ = store.Close()
	})
	deps := search.Deps{Store: store, Keyword: kw, MinWordLength: cfg.Search.MinWordLength}
	srv := NewServer(source.Name, deps, cfg, zap.NewNop())
	return srv, srv.Router()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	r := httptest.NewRequest(method, path, rd)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func seed(t *testing.T, h http.Handler) {
	t.Helper()
	thread := &models.Thread{ThreadID: 10, NodeID: 2, Title: "Hello there", UserID: 1, PostDate: 100}
	items := []*models.IndexItem{
		contenttype.ThreadItem(thread, "Hello world from the first post"),
		contenttype.PostItem(11, thread, "hello again, world", 200, 2),
		contenttype.PostItem(12, thread, "unrelated gardening chatter", 300, 2),
	}
	for _, item := range items {
		if w := do(t, h, http.MethodPost, "/api/v1/index", item); w.Code != http.StatusCreated {
			t.Fatalf("insert %s:%d: got %d, body: %s", item.ContentType, item.ContentID, w.Code, w.Body.String())
		}
	}
}

func decodeSearch(t *testing.T, w *httptest.ResponseRecorder) models.SearchResponse {
	t.Helper()
	var out models.SearchResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestHandleSearch(t *testing.T) {
	_, h := newTestServer(t)
	seed(t, h)

	w := do(t, h, http.MethodPost, "/api/v1/search", SearchRequest{Query: "hello world", Order: "date"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}
	out := decodeSearch(t, w)
	if len(out.Results) != 2 {
		t.Fatalf("results: got %v, want 2", out.Results)
	}
	if out.Results[0] != (models.ContentRef{ContentType: contenttype.TypePost, ContentID: 11}) {
		t.Errorf("newest first: got %v", out.Results[0])
	}
}

func TestHandleSearch_TypeGrouped(t *testing.T) {
	_, h := newTestServer(t)
	seed(t, h)

	w := do(t, h, http.MethodPost, "/api/v1/search", SearchRequest{
		Query:             "hello",
		Type:              contenttype.TypePost,
		GroupByDiscussion: true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	out := decodeSearch(t, w)
	if len(out.Results) != 1 || out.Results[0] != (models.ContentRef{ContentType: contenttype.TypeThread, ContentID: 10}) {
		t.Errorf("grouped results: got %v", out.Results)
	}
}

func TestHandleSearch_ShortWordsReported(t *testing.T) {
	_, h := newTestServer(t)
	seed(t, h)

	w := do(t, h, http.MethodPost, "/api/v1/search", SearchRequest{Query: "an"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	out := decodeSearch(t, w)
	if len(out.Results) != 0 {
		t.Errorf("results: got %v, want none", out.Results)
	}
	if len(out.Errors) != 1 || out.Errors[0].Field != search.FieldKeywords {
		t.Errorf("errors: got %+v", out.Errors)
	}
}

func TestHandleSearch_OrderThroughJoinedTable(t *testing.T) {
	_, h := newTestServer(t)
	seed(t, h)

	w := do(t, h, http.MethodPost, "/api/v1/search", SearchRequest{Query: "hello", Type: contenttype.TypePost, Order: contenttype.OrderReplies})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	if out := decodeSearch(t, w); len(out.Results) != 2 {
		t.Errorf("results: got %v, want 2", out.Results)
	}
}

func TestHandleSearch_BadRequests(t *testing.T) {
	_, h := newTestServer(t)
	tests := []struct {
		name string
		body any
		want int
	}{
		{"malformed body", "{", http.StatusBadRequest},
		{"unknown type", SearchRequest{Query: "hello", Type: "album"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, h, http.MethodPost, "/api/v1/search", tt.body); w.Code != tt.want {
				t.Errorf("status: got %d, want %d, body: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestHandleUserContent(t *testing.T) {
	_, h := newTestServer(t)
	seed(t, h)

	w := do(t, h, http.MethodGet, "/api/v1/users/2/content?max_date=300", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		UserID  int64               `json:"user_id"`
		Results []models.ContentRef `json:"results"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.UserID != 2 || len(out.Results) != 1 || out.Results[0].ContentID != 11 {
		t.Errorf("got %+v", out)
	}

	if w := do(t, h, http.MethodGet, "/api/v1/users/abc/content", nil); w.Code != http.StatusBadRequest {
		t.Errorf("invalid user id: got %d", w.Code)
	}
}

func TestHandleUpdate(t *testing.T) {
	srv, h := newTestServer(t)
	seed(t, h)

	w := do(t, h, http.MethodPatch, "/api/v1/index/post/12", map[string]any{"message": "hello gardening friends"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	rec, err := srv.deps.Store.Get(context.Background(), contenttype.TypePost, 12)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Message != "hello gardening friends" {
		t.Errorf("message: got %q", rec.Message)
	}

	if w := do(t, h, http.MethodPatch, "/api/v1/index/post/999", map[string]any{"message": "x"}); w.Code != http.StatusNotFound {
		t.Errorf("missing record: got %d", w.Code)
	}
	if w := do(t, h, http.MethodPatch, "/api/v1/index/post/12", map[string]any{"bogus": 1}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown column: got %d", w.Code)
	}
}

func TestHandleDelete(t *testing.T) {
	srv, h := newTestServer(t)
	seed(t, h)

	w := do(t, h, http.MethodDelete, "/api/v1/index/post?ids=11,12", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	n, err := srv.deps.Store.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("records after delete: got %d, want 1", n)
	}
	if w := do(t, h, http.MethodDelete, "/api/v1/index/post?ids=1,x", nil); w.Code != http.StatusBadRequest {
		t.Errorf("invalid ids: got %d", w.Code)
	}
}

func TestHandleInsert_Validation(t *testing.T) {
	_, h := newTestServer(t)
	if w := do(t, h, http.MethodPost, "/api/v1/index", models.IndexItem{Message: "no key"}); w.Code != http.StatusBadRequest {
		t.Errorf("missing key: got %d", w.Code)
	}
}

func TestHandleImport(t *testing.T) {
	_, h := newTestServer(t)
	export := strings.Join([]string{
		`{"type":"thread","thread_id":10,"node_id":2,"title":"Gardening tips","user_id":1,"post_date":100,"message":"opening gardening post"}`,
		`{"type":"post","post_id":101,"thread_id":10,"user_id":3,"post_date":110,"message":"first reply about gardening"}`,
	}, "\n")
	w := do(t, h, http.MethodPost, "/api/v1/import", export)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var res struct {
		RunID    string         `json:"run_id"`
		Imported map[string]int `json:"imported"`
	}
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.RunID == "" || res.Imported[contenttype.TypeThread] != 1 || res.Imported[contenttype.TypePost] != 1 {
		t.Errorf("import result: %+v", res)
	}

	out := decodeSearch(t, do(t, h, http.MethodPost, "/api/v1/search", SearchRequest{Query: "gardening"}))
	if len(out.Results) != 2 {
		t.Errorf("imported items searchable: got %v", out.Results)
	}
}

func TestHandleStatus(t *testing.T) {
	_, h := newTestServer(t)
	seed(t, h)

	w := do(t, h, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		Records        int64    `json:"records"`
		Documents      uint64   `json:"documents"`
		SourceHandler  string   `json:"source_handler"`
		ContentTypes   []string `json:"content_types"`
		DiskUsageBytes *int64   `json:"disk_usage_bytes"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Records != 3 || out.Documents != 3 {
		t.Errorf("counts: records=%d documents=%d, want 3/3", out.Records, out.Documents)
	}
	if out.SourceHandler != source.Name {
		t.Errorf("source_handler: got %q", out.SourceHandler)
	}
	if len(out.ContentTypes) != 2 {
		t.Errorf("content_types: got %v", out.ContentTypes)
	}
	if out.DiskUsageBytes == nil || *out.DiskUsageBytes < 1 {
		t.Errorf("disk_usage_bytes: got %v", out.DiskUsageBytes)
	}
}

func TestHandleHealth(t *testing.T) {
	_, h := newTestServer(t)
	w := do(t, h, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs(" 1, 2,,3 ")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Errorf("got %v", ids)
	}
	if ids, _ := parseIDs(""); len(ids) != 0 {
		t.Errorf("empty: got %v", ids)
	}
}
