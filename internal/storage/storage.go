// Package storage defines the persistence interface for index records and joinable tables.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kensaku/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidIdentifier is returned for table or column names outside the allowed set.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// Store is the authoritative record store behind the full-text index.
type Store interface {
	// Upsert replaces any record with the same (content_type, content_id).
	Upsert(ctx context.Context, rec *models.IndexRecord) error
	// BatchUpsert writes recs in one transaction, in order.
	BatchUpsert(ctx context.Context, recs []*models.IndexRecord) error
	// Update changes the given columns of one record. Metadata is never recomputed.
	Update(ctx context.Context, contentType string, contentID int64, fields map[string]any) error
	// Delete removes records by type and ids. An empty id list issues no statement.
	Delete(ctx context.Context, contentType string, contentIDs []int64) error
	Get(ctx context.Context, contentType string, contentID int64) (*models.IndexRecord, error)
	List(ctx context.Context, offset, limit int) ([]*models.IndexRecord, error)
	// ListByUser returns a user's content newest first; maxDate > 0 excludes item_date >= maxDate.
	ListByUser(ctx context.Context, userID, maxDate int64, limit int) ([]models.ContentRef, error)
	// Lookup returns the distinct key column values of table rows matching every predicate.
	Lookup(ctx context.Context, table, key string, preds []models.Predicate) ([]int64, error)
	// SortRefs orders search hits by order parts, resolving parts on other tables through joins.
	SortRefs(ctx context.Context, refs []models.ContentRef, order []models.OrderPart, joins map[string]models.Join, grouped bool) ([]models.ContentRef, error)

	UpsertThread(ctx context.Context, t *models.Thread) error
	GetThread(ctx context.Context, threadID int64) (*models.Thread, error)
	DeleteThreads(ctx context.Context, threadIDs []int64) error

	Count(ctx context.Context) (int64, error)
	Close() error
}
