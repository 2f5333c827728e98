// Package keyword provides the full-text index of index records.
package keyword

import (
	"context"

	"github.com/hyperjump/kensaku/internal/models"
)

// Index defines full-text indexing and search over index records.
type Index interface {
	Index(ctx context.Context, rec *models.IndexRecord) error
	// IndexBatch writes recs in one batch; later duplicates of a key win.
	IndexBatch(ctx context.Context, recs []*models.IndexRecord) error
	Delete(ctx context.Context, contentType string, contentIDs []int64) error
	Search(ctx context.Context, req *Request) ([]models.ContentRef, error)
	// DocCount returns the total number of documents in the index.
	DocCount() (uint64, error)
	Close() error
}

// Occur is how a clause participates in the boolean match.
type Occur int

const (
	// Must clauses are required.
	Must Occur = iota
	// Should clauses are optional alternatives; at least one must match when there is no Must clause.
	Should
	// MustNot clauses exclude matching documents.
	MustNot
)

// Clause is one word or phrase of a boolean-mode query.
type Clause struct {
	Occur  Occur
	Text   string
	Phrase bool
}

// Request is one full-text search.
type Request struct {
	// Clauses are matched against Fields. No clauses matches every document.
	Clauses []Clause
	// Fields defaults to title, message, and metadata.
	Fields []string
	// Metadata groups are all required; any token within a group may match.
	Metadata [][]string
	// Filters are predicates on search_index columns (content_type, content_id, item_date,
	// user_id, discussion_id).
	Filters []models.Predicate
	Order   []models.OrderPart
	// GroupByType, when set, collapses hits by discussion_id and returns
	// (GroupByType, discussion_id) pairs.
	GroupByType string
	Limit       int
	// PageSize is the fetch size while collapsing by discussion.
	PageSize int
}
