// Package source implements the built-in "default" search source handler on top of the
// SQLite record store and the bleve full-text index.
package source

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/indexer"
	"github.com/hyperjump/kensaku/internal/keyword"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/internal/storage"
)

// Name is the registry name of this handler.
const Name = search.DefaultSourceHandler

var (
	// ErrUnsupportedOrder is returned for order parts on a table with no usable join structure.
	ErrUnsupportedOrder = errors.New("unsupported order")
	// ErrUnknownJoin is returned when a predicate references a table no join structure describes.
	ErrUnknownJoin = errors.New("unknown join table")
)

func init() {
	search.RegisterSourceHandler(Name, func(deps search.Deps) (search.SourceHandler, error) {
		return New(deps)
	})
}

// Handler is the default source handler. It is not safe to share one Handler between
// concurrent rebuilds; create one per request or worker.
type Handler struct {
	*search.Base

	store         storage.Store
	keyword       keyword.Index
	logger        *zap.Logger
	immediate     *indexer.ImmediateWriter
	flushBytes    int
	groupPageSize int

	mu        sync.Mutex
	isRebuild bool
	bulk      *indexer.BulkWriter
}

var _ search.SourceHandler = (*Handler)(nil)

// New returns a handler over deps.Store and deps.Keyword.
func New(deps search.Deps) (*Handler, error) {
	if deps.Store == nil || deps.Keyword == nil {
		return nil, fmt.Errorf("source handler %q requires a store and a keyword index", Name)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		store:         deps.Store,
		keyword:       deps.Keyword,
		logger:        logger,
		immediate:     indexer.NewImmediateWriter(deps.Store, deps.Keyword, indexer.WithLogger(logger)),
		flushBytes:    deps.BulkFlushBytes,
		groupPageSize: deps.GroupPageSize,
	}
	h.Base = search.NewBase(h, search.NewTokenizer(deps.MinWordLength))
	return h, nil
}

// SupportsRelevance is false: results are ordered by date or left unordered.
func (h *Handler) SupportsRelevance() bool {
	return false
}

// SetIsRebuild switches InsertIntoIndex between immediate and batched writes.
// Rows already batched stay buffered until FinalizeRebuildSet.
func (h *Handler) SetIsRebuild(rebuild bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.isRebuild = rebuild
	if rebuild && h.bulk == nil {
		h.bulk = h.BeginRebuild()
	}
}

// BeginRebuild returns a new bulk writer bound to this handler's backends. The caller must
// Close it to flush trailing rows.
func (h *Handler) BeginRebuild() *indexer.BulkWriter {
	return indexer.NewBulkWriter(h.store, h.keyword,
		indexer.WithFlushBytes(h.flushBytes),
		indexer.WithLogger(h.logger),
	)
}

// InsertIntoIndex builds the record for item and writes it with the active strategy.
func (h *Handler) InsertIntoIndex(ctx context.Context, item *models.IndexItem) error {
	rec := search.BuildRecord(item)
	h.mu.Lock()
	var w indexer.Writer = h.immediate
	if h.isRebuild {
		w = h.bulk
	}
	h.mu.Unlock()
	return w.Write(ctx, rec)
}

// FinalizeRebuildSet flushes rows batched in rebuild mode.
func (h *Handler) FinalizeRebuildSet(ctx context.Context) error {
	h.mu.Lock()
	bulk := h.bulk
	h.mu.Unlock()
	if bulk == nil {
		return nil
	}
	return bulk.Flush(ctx)
}

// DiscardRebuildSet drops rows batched in rebuild mode and returns how many were dropped.
func (h *Handler) DiscardRebuildSet() int {
	h.mu.Lock()
	bulk := h.bulk
	h.mu.Unlock()
	if bulk == nil {
		return 0
	}
	return bulk.Discard()
}

// UpdateIndex changes the given columns and refreshes the full-text document.
func (h *Handler) UpdateIndex(ctx context.Context, contentType string, contentID int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	if err := h.store.Update(ctx, contentType, contentID, fields); err != nil {
		return fmt.Errorf("failed to update %s: %w", models.ContentKey(contentType, contentID), err)
	}
	rec, err := h.store.Get(ctx, contentType, contentID)
	if err != nil {
		return err
	}
	if err := h.keyword.Index(ctx, rec); err != nil {
		h.logger.Error("full-text reindex failed", zap.String("key", rec.Key()), zap.Error(err))
		return fmt.Errorf("failed to reindex %s: %w", rec.Key(), err)
	}
	return nil
}

// DeleteFromIndex removes records; an empty id list touches nothing.
func (h *Handler) DeleteFromIndex(ctx context.Context, contentType string, contentIDs []int64) error {
	if len(contentIDs) == 0 {
		return nil
	}
	if err := h.store.Delete(ctx, contentType, contentIDs); err != nil {
		return fmt.Errorf("failed to delete %s records: %w", contentType, err)
	}
	if err := h.keyword.Delete(ctx, contentType, contentIDs); err != nil {
		return fmt.Errorf("failed to delete %s documents: %w", contentType, err)
	}
	return nil
}

// Rebuild re-feeds every stored record into the full-text index through a bulk writer.
func (h *Handler) Rebuild(ctx context.Context, pageSize int) (int, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}
	bw := h.BeginRebuild()
	total := 0
	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		recs, err := h.store.List(ctx, offset, pageSize)
		if err != nil {
			return total, fmt.Errorf("failed to list records: %w", err)
		}
		for _, rec := range recs {
			if err := bw.Write(ctx, rec); err != nil {
				return total, err
			}
		}
		total += len(recs)
		if len(recs) < pageSize {
			break
		}
	}
	if err := bw.Close(ctx); err != nil {
		return total, err
	}
	h.logger.Info("rebuild complete", zap.Int("records", total))
	return total, nil
}

// ExecuteSearchByUserID lists a user's content newest first, optionally before maxDate.
func (h *Handler) ExecuteSearchByUserID(ctx context.Context, userID, maxDate int64, maxResults int) ([]models.ContentRef, error) {
	return h.store.ListByUser(ctx, userID, maxDate, search.ClampMaxResults(maxResults))
}
