// Package search provides query tokenization, metadata encoding, constraint processing,
// and the source handler contract that concrete search engines implement.
package search

import (
	"context"

	"github.com/hyperjump/kensaku/internal/models"
)

// Constraints maps constraint names (user, content, node, date, title_only, or
// type-specific names) to caller-supplied values.
type Constraints map[string]any

// SourceHandler is implemented by every concrete index/search engine.
type SourceHandler interface {
	// SupportsRelevance reports whether relevance ordering is meaningful for this engine.
	SupportsRelevance() bool

	InsertIntoIndex(ctx context.Context, item *models.IndexItem) error
	// UpdateIndex changes the given columns only; metadata is not recomputed.
	UpdateIndex(ctx context.Context, contentType string, contentID int64, fields map[string]any) error
	DeleteFromIndex(ctx context.Context, contentType string, contentIDs []int64) error
	// FinalizeRebuildSet flushes rows batched while rebuild mode was active.
	FinalizeRebuildSet(ctx context.Context) error
	SetIsRebuild(rebuild bool)

	SearchGeneral(ctx context.Context, query string, constraints Constraints, order string, maxResults int) ([]models.ContentRef, error)
	SearchType(ctx context.Context, typeHandler TypeHandler, query string, constraints Constraints, order string, groupByDiscussion bool, maxResults int) ([]models.ContentRef, error)
	ExecuteSearch(ctx context.Context, req *ExecuteRequest) ([]models.ContentRef, error)
	ExecuteSearchByUserID(ctx context.Context, userID, maxDate int64, maxResults int) ([]models.ContentRef, error)

	SetSearcher(sink ErrorSink)
	Error(message, field string)
	Warning(message, field string)
}

// TypeHandler supplies type-specific constraint, order, grouping, and join behaviour.
type TypeHandler interface {
	// SearchContentTypes lists the content types searched for this type.
	SearchContentTypes() []string
	FilterConstraints(h SourceHandler, constraints Constraints) Constraints
	// ProcessConstraint returns nil to drop the constraint.
	ProcessConstraint(h SourceHandler, name string, value any, all Constraints) *ProcessedConstraint
	// OrderClause returns nil to fall back to the generic order.
	OrderClause(order string) []models.OrderPart
	GroupByType() string
	JoinStructures(aliases []string) map[string]models.Join
}

// ExecuteRequest carries everything an engine needs to run one search.
type ExecuteRequest struct {
	Query                 string
	TitleOnly             bool
	Constraints           ProcessedConstraints
	Order                 []models.OrderPart
	GroupByDiscussionType string
	MaxResults            int
	TypeHandler           TypeHandler
}

// DefaultMaxResults applies when a non-positive result limit is requested.
const DefaultMaxResults = 100

// ClampMaxResults returns n, or DefaultMaxResults when n <= 0.
func ClampMaxResults(n int) int {
	if n <= 0 {
		return DefaultMaxResults
	}
	return n
}
