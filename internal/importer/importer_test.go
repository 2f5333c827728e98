package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/hyperjump/kensaku/internal/contenttype"
	"github.com/hyperjump/kensaku/internal/keyword"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/internal/source"
	"github.com/hyperjump/kensaku/internal/storage"
)

const export = `{"type":"post","post_id":101,"thread_id":10,"user_id":3,"post_date":110,"message":"first reply about gardening"}
{"type":"thread","thread_id":10,"node_id":2,"title":"Gardening tips","user_id":1,"post_date":100,"reply_count":12,"prefix_id":"4","message":"opening gardening post","tags":["soil","compost"]}
{"type":"profile_post","profile_post_id":5,"profile_user_id":7,"user_id":3,"post_date":120,"message":"gardening greetings"}
not json at all
{"type":"album","album_id":1}
{"type":"post","post_id":102,"thread_id":10,"user_id":3,"post_date":130,"message":["wrong","shape"]}
{"type":"post","post_id":103,"thread_id":99,"user_id":4,"post_date":140,"message":"orphan gardening reply"}

{"type":"thread","thread_id":11,"node_id":3,"title":"Missing date"}
`

// recordingHandler logs the calls an import makes.
type recordingHandler struct {
	search.SourceHandler
	events []string
}

func (h *recordingHandler) SetIsRebuild(rebuild bool) {
	if rebuild {
		h.events = append(h.events, "rebuild:on")
	} else {
		h.events = append(h.events, "rebuild:off")
	}
	h.SourceHandler.SetIsRebuild(rebuild)
}

func (h *recordingHandler) InsertIntoIndex(ctx context.Context, item *models.IndexItem) error {
	h.events = append(h.events, "insert:"+item.ContentType)
	return h.SourceHandler.InsertIntoIndex(ctx, item)
}

func (h *recordingHandler) FinalizeRebuildSet(ctx context.Context) error {
	h.events = append(h.events, "finalize")
	return h.SourceHandler.FinalizeRebuildSet(ctx)
}

func newBackends(t *testing.T) (*source.Handler, *storage.SQLiteStorage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "import.db"))
	if err != nil {
		t.Fatal(err)
	}
	kw, err := keyword.NewBleveIndex("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = kw.Close()
		_ = store.Close()
	})
	h, err := source.New(search.Deps{Store: store, Keyword: kw})
	if err != nil {
		t.Fatal(err)
	}
	return h, store
}

func TestImport(t *testing.T) {
	h, store := newBackends(t)
	rec := &recordingHandler{SourceHandler: h}
	ctx := context.Background()

	res, err := New(rec, store).Import(ctx, strings.NewReader(export))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.RunID == "" {
		t.Error("RunID not set")
	}
	if res.Imported["thread"] != 1 || res.Imported["post"] != 2 || res.Imported["profile_post"] != 1 {
		t.Errorf("Imported = %v", res.Imported)
	}
	if res.Total() != 4 {
		t.Errorf("Total = %d", res.Total())
	}
	if res.Skipped != 4 {
		t.Errorf("Skipped = %d, want 4", res.Skipped)
	}

	want := []string{
		"rebuild:on",
		"insert:thread", "finalize",
		"insert:post", "insert:post", "finalize",
		"insert:profile_post", "finalize",
		"rebuild:off",
	}
	if strings.Join(rec.events, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v\nwant     %v", rec.events, want)
	}

	n, _ := store.Count(ctx)
	if n != 4 {
		t.Errorf("store count = %d, want 4", n)
	}
	post, err := store.Get(ctx, "post", 101)
	if err != nil {
		t.Fatal(err)
	}
	if post.Metadata != "_md_user_3 _md_content_post _md_node_2 _md_thread_10 _md_prefix_4" {
		t.Errorf("post metadata = %q", post.Metadata)
	}
	thread, _ := store.Get(ctx, "thread", 10)
	if !strings.HasSuffix(thread.Metadata, "_md_tag_soil _md_tag_compost") {
		t.Errorf("thread metadata = %q", thread.Metadata)
	}
	orphan, _ := store.Get(ctx, "post", 103)
	if orphan == nil || orphan.DiscussionID != 99 {
		t.Errorf("orphan post = %+v", orphan)
	}

	refs, err := h.SearchType(ctx, contenttype.Post{}, "gardening", search.Constraints{"reply_count": 10}, "date", true, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 || refs[0] != (models.ContentRef{ContentType: "thread", ContentID: 10}) {
		t.Errorf("grouped search = %v", refs)
	}
}

func TestImportFile(t *testing.T) {
	h, store := newBackends(t)
	path := filepath.Join(t.TempDir(), "export.jsonl")
	if err := os.WriteFile(path, []byte(export), 0644); err != nil {
		t.Fatal(err)
	}
	res, err := New(h, store).ImportFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Total() != 4 {
		t.Errorf("Total = %d", res.Total())
	}
	if _, err := New(h, store).ImportFile(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDecode(t *testing.T) {
	data := gjson.Parse(`{"s":"x","n":3,"b":true,"l":[1,"a"],"nested":[[1]],"o":{"a":1},"z":null}`)
	tests := []struct {
		field   Field
		wantErr bool
	}{
		{Field{Name: "s", Shape: ShapeScalar, Required: true}, false},
		{Field{Name: "n", Shape: ShapeScalar}, false},
		{Field{Name: "b", Shape: ShapeScalar}, false},
		{Field{Name: "l", Shape: ShapeList}, false},
		{Field{Name: "l", Shape: ShapeScalar}, true},
		{Field{Name: "s", Shape: ShapeList}, true},
		{Field{Name: "nested", Shape: ShapeList}, true},
		{Field{Name: "o", Shape: ShapeScalar}, true},
		{Field{Name: "z", Shape: ShapeScalar}, false},
		{Field{Name: "z", Shape: ShapeScalar, Required: true}, true},
		{Field{Name: "missing", Shape: ShapeList}, false},
		{Field{Name: "missing", Shape: ShapeScalar, Required: true}, true},
	}
	for _, tt := range tests {
		_, err := decode(data, tt.field)
		if (err != nil) != tt.wantErr {
			t.Errorf("decode(%+v) err = %v, wantErr %v", tt.field, err, tt.wantErr)
		}
		var fe *FieldError
		if err != nil && !errors.As(err, &fe) {
			t.Errorf("decode(%+v) error is not a FieldError: %v", tt.field, err)
		}
	}
}

func TestImport_CanceledContext(t *testing.T) {
	h, store := newBackends(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(h, store).Import(ctx, strings.NewReader(export)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// failingHandler fails inserts of one content id and, optionally, every finalize.
type failingHandler struct {
	*source.Handler
	failID       int64
	failFinalize bool
}

func (h *failingHandler) InsertIntoIndex(ctx context.Context, item *models.IndexItem) error {
	if item.ContentID == h.failID {
		return errors.New("index unavailable")
	}
	return h.Handler.InsertIntoIndex(ctx, item)
}

func (h *failingHandler) FinalizeRebuildSet(ctx context.Context) error {
	if h.failFinalize {
		return errors.New("disk full")
	}
	return h.Handler.FinalizeRebuildSet(ctx)
}

const twoPosts = `{"type":"thread","thread_id":10,"node_id":2,"title":"Gardening tips","user_id":1,"post_date":100,"message":"opening gardening post"}
{"type":"post","post_id":101,"thread_id":10,"user_id":3,"post_date":110,"message":"first gardening reply"}
{"type":"post","post_id":102,"thread_id":10,"user_id":3,"post_date":120,"message":"second gardening reply"}
`

func TestImport_FailedStepFlushesBatch(t *testing.T) {
	inner, store := newBackends(t)
	h := &failingHandler{Handler: inner, failID: 102}
	ctx := context.Background()

	if _, err := New(h, store).Import(ctx, strings.NewReader(twoPosts)); err == nil {
		t.Fatal("expected import error")
	}
	if _, err := store.Get(ctx, contenttype.TypePost, 101); err != nil {
		t.Errorf("post batched before the failure should be written: %v", err)
	}
	if n := inner.DiscardRebuildSet(); n != 0 {
		t.Errorf("%d rows left in the rebuild batch", n)
	}
}

func TestImport_UnwritableBatchIsDropped(t *testing.T) {
	inner, store := newBackends(t)
	h := &failingHandler{Handler: inner, failFinalize: true}
	ctx := context.Background()

	if _, err := New(h, store).Import(ctx, strings.NewReader(twoPosts)); err == nil {
		t.Fatal("expected import error")
	}
	if n := inner.DiscardRebuildSet(); n != 0 {
		t.Errorf("%d rows left in the rebuild batch", n)
	}

	if err := inner.InsertIntoIndex(ctx, contenttype.ThreadItem(&models.Thread{ThreadID: 10, Title: "Live edit"}, "edited")); err != nil {
		t.Fatal(err)
	}
	if err := inner.FinalizeRebuildSet(ctx); err != nil {
		t.Fatal(err)
	}
	rec, err := store.Get(ctx, contenttype.TypeThread, 10)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Title != "Live edit" {
		t.Errorf("stale import row overwrote the live write: title %q", rec.Title)
	}
}
