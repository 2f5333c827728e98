// Package indexer writes index records to the record store and the full-text index,
// either one row at a time or in size-bounded batches.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/keyword"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
)

// DefaultFlushBytes is the accumulated serialized size that triggers a bulk flush.
const DefaultFlushBytes = 500000

// ErrClosed is returned by writes to a closed BulkWriter.
var ErrClosed = errors.New("bulk writer is closed")

// Writer persists index records.
type Writer interface {
	Write(ctx context.Context, rec *models.IndexRecord) error
}

// Option configures a writer.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	flushBytes int
}

// WithLogger sets a logger for write failures and flushes.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithFlushBytes sets the BulkWriter flush threshold. Non-positive values keep the default.
func WithFlushBytes(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.flushBytes = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{flushBytes: DefaultFlushBytes}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// ImmediateWriter upserts each record as it is written.
type ImmediateWriter struct {
	store   storage.Store
	keyword keyword.Index
	logger  *zap.Logger
}

// NewImmediateWriter returns a writer for live content edits.
func NewImmediateWriter(store storage.Store, kw keyword.Index, opts ...Option) *ImmediateWriter {
	o := buildOptions(opts)
	return &ImmediateWriter{store: store, keyword: kw, logger: o.logger}
}

// Write replaces the record in the store, then in the full-text index.
func (w *ImmediateWriter) Write(ctx context.Context, rec *models.IndexRecord) error {
	rec = prepare(rec)
	if err := w.store.Upsert(ctx, rec); err != nil {
		w.logger.Error("index write failed", zap.String("key", rec.Key()), zap.Error(err))
		return fmt.Errorf("failed to store %s: %w", rec.Key(), err)
	}
	if err := w.keyword.Index(ctx, rec); err != nil {
		w.logger.Error("full-text index write failed", zap.String("key", rec.Key()), zap.Error(err))
		return fmt.Errorf("failed to index %s: %w", rec.Key(), err)
	}
	return nil
}

// BulkWriter buffers records and writes them in batches once their serialized size
// exceeds the flush threshold. Close flushes the remainder. A BulkWriter belongs to
// one rebuild pass; concurrent rebuilds each need their own.
type BulkWriter struct {
	mu         sync.Mutex
	store      storage.Store
	keyword    keyword.Index
	logger     *zap.Logger
	flushBytes int

	pending      []*models.IndexRecord
	pendingBytes int
	closed       bool

	flushes int
	written int
}

// NewBulkWriter returns a writer for rebuild sweeps and imports.
func NewBulkWriter(store storage.Store, kw keyword.Index, opts ...Option) *BulkWriter {
	o := buildOptions(opts)
	return &BulkWriter{store: store, keyword: kw, logger: o.logger, flushBytes: o.flushBytes}
}

// Write buffers rec, flushing when the buffer exceeds the threshold.
func (w *BulkWriter) Write(ctx context.Context, rec *models.IndexRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	rec = prepare(rec)
	row, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", rec.Key(), err)
	}
	w.pending = append(w.pending, rec)
	w.pendingBytes += len(row)
	if w.pendingBytes > w.flushBytes {
		return w.flushLocked(ctx)
	}
	return nil
}

// Flush writes buffered records.
func (w *BulkWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

func (w *BulkWriter) flushLocked(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	rows, size := len(w.pending), w.pendingBytes
	if err := w.store.BatchUpsert(ctx, w.pending); err != nil {
		w.logger.Error("bulk store write failed", zap.Int("rows", rows), zap.Error(err))
		return fmt.Errorf("failed to store batch of %d rows: %w", rows, err)
	}
	if err := w.keyword.IndexBatch(ctx, w.pending); err != nil {
		w.logger.Error("bulk full-text write failed", zap.Int("rows", rows), zap.Error(err))
		return fmt.Errorf("failed to index batch of %d rows: %w", rows, err)
	}
	w.pending = nil
	w.pendingBytes = 0
	w.flushes++
	w.written += rows
	w.logger.Debug("flushed rebuild batch", zap.Int("rows", rows), zap.Int("bytes", size))
	return nil
}

// Close flushes remaining records and rejects further writes. Closing twice is a no-op.
func (w *BulkWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	if err := w.flushLocked(ctx); err != nil {
		return err
	}
	w.closed = true
	return nil
}

// Discard drops buffered records without writing them and returns how many were dropped.
func (w *BulkWriter) Discard() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(w.pending)
	w.pending = nil
	w.pendingBytes = 0
	return n
}

// Pending returns the number of buffered records.
func (w *BulkWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Stats returns the number of flushes and rows written so far.
func (w *BulkWriter) Stats() (flushes, written int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushes, w.written
}
