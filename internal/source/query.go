package source

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/keyword"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/search"
)

// ExecuteSearch tokenizes the query, applies constraints, and runs it against the full-text
// index. A query made only of too-short or common words returns no results without
// touching the index.
func (h *Handler) ExecuteSearch(ctx context.Context, req *search.ExecuteRequest) ([]models.ContentRef, error) {
	q := h.Tokenize(req.Query)
	if q.Fatal() {
		h.logger.Debug("search aborted", zap.String("query", req.Query), zap.Strings("invalid_words", q.InvalidWords))
		return []models.ContentRef{}, nil
	}

	limit := search.ClampMaxResults(req.MaxResults)
	indexOrder, orderJoins, err := splitOrder(req)
	if err != nil {
		return nil, err
	}

	kreq := &keyword.Request{
		Clauses:     RenderClauses(q.Tokens, h.Tokenizer().IsValidWord),
		Order:       indexOrder,
		GroupByType: req.GroupByDiscussionType,
		Limit:       limit,
		PageSize:    h.groupPageSize,
	}
	if orderJoins != nil && kreq.Limit < JoinOrderCandidates {
		kreq.Limit = JoinOrderCandidates
	}
	if req.TitleOnly {
		kreq.Fields = []string{keyword.FieldTitle, keyword.FieldMetadata}
	}

	joined := make(map[string][]models.Predicate)
	for _, name := range req.Constraints.Names() {
		pc := req.Constraints[name]
		if pc.Metadata != nil {
			kreq.Metadata = append(kreq.Metadata, search.MetadataKeys(pc.Metadata.Key, pc.Metadata.Values))
			continue
		}
		if pc.Query == nil {
			continue
		}
		if t := pc.Query.Table; t == "" || t == models.IndexTable {
			kreq.Filters = append(kreq.Filters, *pc.Query)
		} else {
			joined[t] = append(joined[t], *pc.Query)
		}
	}

	if len(joined) > 0 {
		filters, empty, err := h.resolveJoins(ctx, req.TypeHandler, joined)
		if err != nil {
			return nil, err
		}
		if empty {
			return []models.ContentRef{}, nil
		}
		kreq.Filters = append(kreq.Filters, filters...)
	}

	refs, err := h.keyword.Search(ctx, kreq)
	if err != nil {
		return nil, err
	}
	if orderJoins != nil {
		refs, err = h.store.SortRefs(ctx, refs, req.Order, orderJoins, req.GroupByDiscussionType != "")
		if err != nil {
			return nil, fmt.Errorf("failed to order results: %w", err)
		}
		if len(refs) > limit {
			refs = refs[:limit]
		}
	}
	h.logger.Debug("search executed",
		zap.String("query", req.Query),
		zap.Int("clauses", len(kreq.Clauses)),
		zap.Int("metadata_groups", len(kreq.Metadata)),
		zap.Int("filters", len(kreq.Filters)),
		zap.Int("results", len(refs)),
	)
	return refs, nil
}

// JoinOrderCandidates is how many hits are fetched for re-sorting when the order uses a
// joined table.
const JoinOrderCandidates = 5000

// splitOrder separates search_index order parts, which the full-text index sorts on, from
// parts on joined tables. orderJoins is nil when no part needs a join.
func splitOrder(req *search.ExecuteRequest) (indexOrder []models.OrderPart, orderJoins map[string]models.Join, err error) {
	var aliases []string
	for _, o := range req.Order {
		if o.Table == "" || o.Table == models.IndexTable {
			indexOrder = append(indexOrder, o)
			continue
		}
		aliases = append(aliases, o.Table)
	}
	if len(aliases) == 0 {
		return indexOrder, nil, nil
	}
	if req.TypeHandler == nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnsupportedOrder, aliases)
	}
	structures := req.TypeHandler.JoinStructures(aliases)
	orderJoins = make(map[string]models.Join, len(aliases))
	for _, alias := range aliases {
		j, ok := structures[alias]
		if !ok || j.RelationshipTable != models.IndexTable {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedOrder, alias)
		}
		if req.GroupByDiscussionType != "" && j.RelationshipField != keyword.FieldDiscussionID {
			return nil, nil, fmt.Errorf("%w: %s does not join on %s", ErrUnsupportedOrder, alias, keyword.FieldDiscussionID)
		}
		orderJoins[alias] = j
	}
	return indexOrder, orderJoins, nil
}

// resolveJoins turns predicates on joined tables into search_index predicates on the
// relationship column. empty is true when some joined table has no matching rows.
func (h *Handler) resolveJoins(ctx context.Context, th search.TypeHandler, joined map[string][]models.Predicate) (filters []models.Predicate, empty bool, err error) {
	aliases := make([]string, 0, len(joined))
	for alias := range joined {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	if th == nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnknownJoin, aliases)
	}
	structures := th.JoinStructures(aliases)

	for _, alias := range aliases {
		j, ok := structures[alias]
		if !ok {
			return nil, false, fmt.Errorf("%w: %s", ErrUnknownJoin, alias)
		}
		if j.RelationshipTable != models.IndexTable {
			return nil, false, fmt.Errorf("%w: %s joins %s, not %s", ErrUnknownJoin, alias, j.RelationshipTable, models.IndexTable)
		}
		preds := make([]models.Predicate, len(joined[alias]))
		for i, p := range joined[alias] {
			p.Table = j.Table
			preds[i] = p
		}
		keys, err := h.store.Lookup(ctx, j.Table, j.Key, preds)
		if err != nil {
			return nil, false, fmt.Errorf("failed to resolve join %s: %w", alias, err)
		}
		if len(keys) == 0 {
			return nil, true, nil
		}
		values := make([]any, len(keys))
		for i, k := range keys {
			values[i] = k
		}
		filters = append(filters, models.Predicate{
			Table:    models.IndexTable,
			Field:    j.RelationshipField,
			Operator: models.OpEqual,
			Values:   values,
		})
	}
	return filters, false, nil
}

// RenderClauses maps tokens to boolean clauses: no modifier and "+" are required, "|" is
// optional, "-" excludes. Words rejected by valid are left out of word clauses, and a clause
// with no valid word is skipped. Phrases keep their full text. A nil valid accepts every word.
func RenderClauses(tokens []search.Token, valid func(string) bool) []keyword.Clause {
	clauses := make([]keyword.Clause, 0, len(tokens))
	for _, tok := range tokens {
		words := search.SplitWords(tok.Text())
		kept := make([]string, 0, len(words))
		for _, w := range words {
			if valid == nil || valid(w) {
				kept = append(kept, w)
			}
		}
		if len(kept) == 0 {
			continue
		}
		c := keyword.Clause{Text: strings.Join(kept, " ")}
		if tok.IsPhrase() {
			c.Text, c.Phrase = tok.Text(), true
		}
		switch tok.Modifier {
		case search.ModifierOr:
			c.Occur = keyword.Should
		case search.ModifierExclude:
			c.Occur = keyword.MustNot
		default:
			c.Occur = keyword.Must
		}
		clauses = append(clauses, c)
	}
	return clauses
}
