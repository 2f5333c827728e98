package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kensaku/internal/keyword"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
)

func testBackends(t *testing.T) (*storage.SQLiteStorage, *keyword.BleveIndex) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "index.db"))
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
	return store, kw
}

func post(id int64, message string) *models.IndexRecord {
	return &models.IndexRecord{
		ContentType: "post",
		ContentID:   id,
		Title:       "Title",
		Message:     message,
		Metadata:    "_md_user_1 _md_content_post",
		ItemDate:    id * 100,
		UserID:      1,
	}
}

func TestPreprocess(t *testing.T) {
	if got := Preprocess("  hello \n\t world  "); got != "hello world" {
		t.Errorf("got %q", got)
	}
}

func TestImmediateWriter_ReplacesByKey(t *testing.T) {
	store, kw := testBackends(t)
	w := NewImmediateWriter(store, kw)
	ctx := context.Background()

	if err := w.Write(ctx, post(1, "first version")); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(ctx, post(1, "second   version")); err != nil {
		t.Fatal(err)
	}

	n, _ := store.Count(ctx)
	if n != 1 {
		t.Fatalf("store count = %d, want 1", n)
	}
	got, _ := store.Get(ctx, "post", 1)
	if got.Message != "second version" {
		t.Errorf("message = %q", got.Message)
	}
	docs, _ := kw.DocCount()
	if docs != 1 {
		t.Errorf("doc count = %d, want 1", docs)
	}
}

func TestBulkWriter_FlushesOnThreshold(t *testing.T) {
	store, kw := testBackends(t)
	ctx := context.Background()

	row, _ := json.Marshal(post(1, "message body"))
	threshold := len(row) * 3
	w := NewBulkWriter(store, kw, WithFlushBytes(threshold))

	const n = 10
	for i := int64(1); i <= n; i++ {
		if err := w.Write(ctx, post(i, "message body")); err != nil {
			t.Fatal(err)
		}
	}
	flushes, written := w.Stats()
	if flushes == 0 {
		t.Fatal("expected an intermediate flush before Close")
	}
	if written+w.Pending() != n {
		t.Errorf("written %d + pending %d != %d", written, w.Pending(), n)
	}

	if err := w.Close(ctx); err != nil {
		t.Fatal(err)
	}
	count, _ := store.Count(ctx)
	if count != n {
		t.Errorf("store count = %d, want %d", count, n)
	}
	docs, _ := kw.DocCount()
	if docs != n {
		t.Errorf("doc count = %d, want %d", docs, n)
	}
	if err := w.Write(ctx, post(11, "late")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := w.Close(ctx); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestBulkWriter_BuffersBelowThreshold(t *testing.T) {
	store, kw := testBackends(t)
	ctx := context.Background()
	w := NewBulkWriter(store, kw)

	for i := int64(1); i <= 3; i++ {
		_ = w.Write(ctx, post(i, "small"))
	}
	count, _ := store.Count(ctx)
	if count != 0 {
		t.Errorf("rows visible before flush: %d", count)
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	count, _ = store.Count(ctx)
	if count != 3 {
		t.Errorf("store count = %d, want 3", count)
	}
}

func TestBulkWriter_Discard(t *testing.T) {
	store, kw := testBackends(t)
	ctx := context.Background()
	w := NewBulkWriter(store, kw)

	_ = w.Write(ctx, post(1, "stale"))
	_ = w.Write(ctx, post(2, "stale"))
	if n := w.Discard(); n != 2 {
		t.Errorf("Discard = %d, want 2", n)
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if count, _ := store.Count(ctx); count != 0 {
		t.Errorf("discarded rows were written: %d", count)
	}
}

type failingStore struct {
	storage.Store
}

func (failingStore) Upsert(context.Context, *models.IndexRecord) error {
	return errors.New("disk full")
}

func (failingStore) BatchUpsert(context.Context, []*models.IndexRecord) error {
	return errors.New("disk full")
}

func TestWriters_PropagateStoreFailure(t *testing.T) {
	_, kw := testBackends(t)
	ctx := context.Background()

	if err := NewImmediateWriter(failingStore{}, kw).Write(ctx, post(1, "x")); err == nil {
		t.Error("immediate: expected error")
	}

	bw := NewBulkWriter(failingStore{}, kw)
	_ = bw.Write(ctx, post(1, "x"))
	if err := bw.Close(ctx); err == nil {
		t.Error("bulk: expected error from Close")
	}
	if bw.Pending() != 1 {
		t.Errorf("failed batch should stay pending, got %d", bw.Pending())
	}
}
