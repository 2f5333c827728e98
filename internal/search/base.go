package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/kensaku/internal/models"
)

// Form field that query notices are attached to.
const FieldKeywords = "keywords"

// Base implements the engine-independent half of SourceHandler. Concrete handlers embed
// *Base and supply ExecuteSearch.
type Base struct {
	self      SourceHandler
	tokenizer *Tokenizer
	searcher  ErrorSink
}

// NewBase binds the generic orchestration to the concrete handler self.
func NewBase(self SourceHandler, tokenizer *Tokenizer) *Base {
	if tokenizer == nil {
		tokenizer = NewTokenizer(DefaultMinWordLength)
	}
	return &Base{self: self, tokenizer: tokenizer}
}

// SetSearcher attaches the error sink; nil runs headless.
func (b *Base) SetSearcher(sink ErrorSink) {
	b.searcher = sink
}

// Error reports a fatal query error; dropped when no searcher is attached.
func (b *Base) Error(message, field string) {
	if b.searcher != nil {
		b.searcher.AddError(models.Notice{Field: field, Message: message})
	}
}

// Warning reports a non-fatal query warning; dropped when no searcher is attached.
func (b *Base) Warning(message, field string) {
	if b.searcher != nil {
		b.searcher.AddWarning(models.Notice{Field: field, Message: message})
	}
}

// Tokenizer returns the tokenizer used by Tokenize.
func (b *Base) Tokenizer() *Tokenizer {
	return b.tokenizer
}

// Tokenize parses raw and reports too-short/common words to the searcher.
func (b *Base) Tokenize(raw string) *TokenizedQuery {
	q := b.tokenizer.Tokenize(raw)
	if b.searcher == nil {
		return q
	}
	switch {
	case q.Fatal():
		b.searcher.AddError(models.Notice{
			Field:   FieldKeywords,
			Message: "The search could not be completed because the search keywords were too short or too common.",
			Words:   q.InvalidWords,
		})
	case q.HasDroppedWords():
		b.searcher.AddWarning(models.Notice{
			Field: FieldKeywords,
			Message: fmt.Sprintf("The following words were not included in your search because they are too short or too common: %s",
				strings.Join(q.InvalidWords, ", ")),
			Words: q.InvalidWords,
		})
	}
	return q
}

// SearchGeneral searches all content types.
func (b *Base) SearchGeneral(ctx context.Context, query string, constraints Constraints, order string, maxResults int) ([]models.ContentRef, error) {
	constraints = constraints.Clone()
	titleOnly := constraints.PopBool(ConstraintTitleOnly)
	return b.self.ExecuteSearch(ctx, &ExecuteRequest{
		Query:       query,
		TitleOnly:   titleOnly,
		Constraints: b.ProcessConstraints(constraints, nil),
		Order:       GenericOrderClause(order),
		MaxResults:  maxResults,
	})
}

// SearchType searches the content types of typeHandler, optionally collapsing results by discussion.
func (b *Base) SearchType(ctx context.Context, typeHandler TypeHandler, query string, constraints Constraints, order string, groupByDiscussion bool, maxResults int) ([]models.ContentRef, error) {
	constraints = constraints.Clone()
	titleOnly := constraints.PopBool(ConstraintTitleOnly)
	constraints[ConstraintContent] = typeHandler.SearchContentTypes()
	constraints = typeHandler.FilterConstraints(b.self, constraints)

	orderParts := typeHandler.OrderClause(order)
	if len(orderParts) == 0 {
		orderParts = GenericOrderClause(order)
	}
	groupType := ""
	if groupByDiscussion {
		groupType = typeHandler.GroupByType()
	}
	return b.self.ExecuteSearch(ctx, &ExecuteRequest{
		Query:                 query,
		TitleOnly:             titleOnly,
		Constraints:           b.ProcessConstraints(constraints, typeHandler),
		Order:                 orderParts,
		GroupByDiscussionType: groupType,
		MaxResults:            maxResults,
		TypeHandler:           typeHandler,
	})
}

// OrderDate sorts newest first.
const OrderDate = "date"

// GenericOrderClause maps an order token to index-table order parts. Relevance is not supported.
func GenericOrderClause(order string) []models.OrderPart {
	if order == OrderDate {
		return []models.OrderPart{{Table: models.IndexTable, Field: "item_date", Direction: models.SortDesc}}
	}
	return nil
}
