package keyword

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/kensaku/internal/models"
)

const defaultPageSize = 200

// Field names in the bleve document.
const (
	FieldContentType  = "content_type"
	FieldContentID    = "content_id"
	FieldTitle        = "title"
	FieldMessage      = "message"
	FieldMetadata     = "metadata"
	FieldItemDate     = "item_date"
	FieldUserID       = "user_id"
	FieldDiscussionID = "discussion_id"
)

var numericFields = map[string]bool{
	FieldContentID:    true,
	FieldItemDate:     true,
	FieldUserID:       true,
	FieldDiscussionID: true,
}

// document is the bleve representation of an IndexRecord. Metadata tokens are split so
// each one is an exact keyword term.
type document struct {
	ContentType  string   `json:"content_type"`
	ContentID    int64    `json:"content_id"`
	Title        string   `json:"title"`
	Message      string   `json:"message"`
	Metadata     []string `json:"metadata"`
	ItemDate     int64    `json:"item_date"`
	UserID       int64    `json:"user_id"`
	DiscussionID int64    `json:"discussion_id"`
}

func newDocument(rec *models.IndexRecord) *document {
	return &document{
		ContentType:  rec.ContentType,
		ContentID:    rec.ContentID,
		Title:        rec.Title,
		Message:      rec.Message,
		Metadata:     strings.Fields(rec.Metadata),
		ItemDate:     rec.ItemDate,
		UserID:       rec.UserID,
		DiscussionID: rec.DiscussionID,
	}
}

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// WordAnalyzer lowercases unicode words and keeps every one of them. Word validity is
// decided before a query reaches the index, so the index must not drop words itself.
const WordAnalyzer = "kensaku_words"

func newMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	if err := im.AddCustomAnalyzer(WordAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, fmt.Errorf("failed to define analyzer: %w", err)
	}

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = WordAnalyzer
	docMapping.AddFieldMappingsAt(FieldTitle, textFieldMapping)
	docMapping.AddFieldMappingsAt(FieldMessage, textFieldMapping)

	metadataMapping := bleve.NewKeywordFieldMapping()
	metadataMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt(FieldMetadata, metadataMapping)
	contentTypeMapping := bleve.NewKeywordFieldMapping()
	contentTypeMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt(FieldContentType, contentTypeMapping)

	for field := range numericFields {
		numericMapping := bleve.NewNumericFieldMapping()
		numericMapping.IncludeInAll = false
		docMapping.AddFieldMappingsAt(field, numericMapping)
	}

	im.AddDocumentMapping("record", docMapping)
	im.DefaultType = "record"
	im.DefaultMapping = docMapping
	im.DefaultAnalyzer = WordAnalyzer
	return im, nil
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path creates an in-memory index.
// If you change the index mapping in code, remove the index directory and run a rebuild.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im, err := newMapping()
	if err != nil {
		return nil, err
	}
	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index replaces the document for rec's key.
func (b *BleveIndex) Index(ctx context.Context, rec *models.IndexRecord) error {
	return b.index.Index(rec.Key(), newDocument(rec))
}

// IndexBatch indexes recs in a single bleve batch.
func (b *BleveIndex) IndexBatch(ctx context.Context, recs []*models.IndexRecord) error {
	if len(recs) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, rec := range recs {
		if err := batch.Index(rec.Key(), newDocument(rec)); err != nil {
			return fmt.Errorf("failed to batch %s: %w", rec.Key(), err)
		}
	}
	return b.index.Batch(batch)
}

// Delete removes documents of contentType with the given ids.
func (b *BleveIndex) Delete(ctx context.Context, contentType string, contentIDs []int64) error {
	if len(contentIDs) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, id := range contentIDs {
		batch.Delete(models.ContentKey(contentType, id))
	}
	return b.index.Batch(batch)
}

// Search runs req and returns matching (content_type, content_id) pairs, or
// (GroupByType, discussion_id) pairs when grouping.
func (b *BleveIndex) Search(ctx context.Context, req *Request) ([]models.ContentRef, error) {
	q, err := buildQuery(req)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	if req.GroupByType != "" {
		return b.searchGrouped(ctx, q, req, limit)
	}

	sr := bleve.NewSearchRequestOptions(q, limit, 0, false)
	sr.Fields = []string{FieldContentType, FieldContentID}
	if sort := sortOrder(req.Order); len(sort) > 0 {
		sr.SortBy(sort)
	}
	results, err := b.index.SearchInContext(ctx, sr)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]models.ContentRef, 0, len(results.Hits))
	for _, hit := range results.Hits {
		ref, err := refFromID(hit.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, nil
}

// searchGrouped pages through hits in order, keeping the first hit of each discussion.
func (b *BleveIndex) searchGrouped(ctx context.Context, q blevequery.Query, req *Request, limit int) ([]models.ContentRef, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	seen := roaring64.New()
	out := make([]models.ContentRef, 0, limit)
	sort := sortOrder(req.Order)

	for from := 0; len(out) < limit; from += pageSize {
		sr := bleve.NewSearchRequestOptions(q, pageSize, from, false)
		sr.Fields = []string{FieldDiscussionID}
		if len(sort) > 0 {
			sr.SortBy(sort)
		}
		results, err := b.index.SearchInContext(ctx, sr)
		if err != nil {
			return nil, fmt.Errorf("Bleve grouped search failed: %w", err)
		}
		for _, hit := range results.Hits {
			discussionID := uint64(numberField(hit.Fields[FieldDiscussionID]))
			if seen.Contains(discussionID) {
				continue
			}
			seen.Add(discussionID)
			out = append(out, models.ContentRef{ContentType: req.GroupByType, ContentID: int64(discussionID)})
			if len(out) == limit {
				break
			}
		}
		if len(results.Hits) < pageSize {
			break
		}
	}
	return out, nil
}

// DefaultFields are matched when a request names no fields.
var DefaultFields = []string{FieldTitle, FieldMessage, FieldMetadata}

func buildQuery(req *Request) (blevequery.Query, error) {
	var conjuncts []blevequery.Query
	if text := textQuery(req); text != nil {
		conjuncts = append(conjuncts, text)
	}
	for _, group := range req.Metadata {
		if len(group) == 0 {
			continue
		}
		terms := make([]blevequery.Query, len(group))
		for i, token := range group {
			tq := bleve.NewTermQuery(token)
			tq.SetField(FieldMetadata)
			terms[i] = tq
		}
		conjuncts = append(conjuncts, bleve.NewDisjunctionQuery(terms...))
	}
	for _, p := range req.Filters {
		fq, err := filterQuery(p)
		if err != nil {
			return nil, err
		}
		conjuncts = append(conjuncts, fq)
	}
	switch len(conjuncts) {
	case 0:
		return bleve.NewMatchAllQuery(), nil
	case 1:
		return conjuncts[0], nil
	default:
		return bleve.NewConjunctionQuery(conjuncts...), nil
	}
}

// textQuery builds the boolean match of req.Clauses, or nil when there are none.
func textQuery(req *Request) blevequery.Query {
	if len(req.Clauses) == 0 {
		return nil
	}
	fields := req.Fields
	if len(fields) == 0 {
		fields = DefaultFields
	}
	var must, should, mustNot []blevequery.Query
	for _, c := range req.Clauses {
		q := clauseQuery(c, fields)
		switch c.Occur {
		case Must:
			must = append(must, q)
		case Should:
			should = append(should, q)
		case MustNot:
			mustNot = append(mustNot, q)
		}
	}
	return blevequery.NewBooleanQuery(must, should, mustNot)
}

// clauseQuery matches one clause in any of fields.
func clauseQuery(c Clause, fields []string) blevequery.Query {
	perField := make([]blevequery.Query, 0, len(fields))
	for _, field := range fields {
		if c.Phrase {
			pq := bleve.NewMatchPhraseQuery(c.Text)
			pq.SetField(field)
			perField = append(perField, pq)
			continue
		}
		mq := bleve.NewMatchQuery(c.Text)
		mq.SetField(field)
		mq.SetOperator(blevequery.MatchQueryOperatorAnd)
		perField = append(perField, mq)
	}
	if len(perField) == 1 {
		return perField[0]
	}
	return bleve.NewDisjunctionQuery(perField...)
}

// filterQuery turns an index-table predicate into a term or numeric range query.
func filterQuery(p models.Predicate) (blevequery.Query, error) {
	if p.Table != "" && p.Table != models.IndexTable {
		return nil, fmt.Errorf("predicate on table %q cannot be evaluated by the full-text index", p.Table)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if !numericFields[p.Field] && p.Field != FieldContentType {
		return nil, fmt.Errorf("field %q cannot be filtered", p.Field)
	}

	values := make([]blevequery.Query, 0, len(p.Values))
	for _, v := range p.Values {
		q, err := valueQuery(p.Field, p.Operator, v)
		if err != nil {
			return nil, err
		}
		values = append(values, q)
	}
	var matched blevequery.Query = values[0]
	if len(values) > 1 {
		matched = bleve.NewDisjunctionQuery(values...)
	}
	if p.Operator == models.OpNotEqual {
		return blevequery.NewBooleanQuery(nil, nil, []blevequery.Query{matched}), nil
	}
	return matched, nil
}

func valueQuery(field, op string, v any) (blevequery.Query, error) {
	if field == FieldContentType {
		if op != models.OpEqual && op != models.OpNotEqual {
			return nil, fmt.Errorf("operator %s not supported on %s", op, field)
		}
		tq := bleve.NewTermQuery(fmt.Sprint(v))
		tq.SetField(field)
		return tq, nil
	}

	n, err := toFloat(v)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", field, err)
	}
	t, f := true, false
	var rq *blevequery.NumericRangeQuery
	switch op {
	case models.OpEqual, models.OpNotEqual:
		rq = bleve.NewNumericRangeInclusiveQuery(&n, &n, &t, &t)
	case models.OpGreater:
		rq = bleve.NewNumericRangeInclusiveQuery(&n, nil, &f, nil)
	case models.OpGreaterEqual:
		rq = bleve.NewNumericRangeInclusiveQuery(&n, nil, &t, nil)
	case models.OpLess:
		rq = bleve.NewNumericRangeInclusiveQuery(nil, &n, nil, &f)
	case models.OpLessEqual:
		rq = bleve.NewNumericRangeInclusiveQuery(nil, &n, nil, &t)
	default:
		return nil, fmt.Errorf("unknown operator %q", op)
	}
	rq.SetField(field)
	return rq, nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", x)
		}
		return n, nil
	}
	return 0, fmt.Errorf("not a number: %v", v)
}

func numberField(v any) float64 {
	n, _ := toFloat(v)
	return n
}

// sortOrder maps order parts to bleve sort keys; the document id breaks ties.
func sortOrder(parts []models.OrderPart) []string {
	if len(parts) == 0 {
		return nil
	}
	keys := make([]string, 0, len(parts)+1)
	for _, p := range parts {
		if p.Descending() {
			keys = append(keys, "-"+p.Field)
		} else {
			keys = append(keys, p.Field)
		}
	}
	return append(keys, "_id")
}

func refFromID(id string) (models.ContentRef, error) {
	i := strings.LastIndexByte(id, ':')
	if i <= 0 {
		return models.ContentRef{}, fmt.Errorf("malformed document id %q", id)
	}
	n, err := strconv.ParseInt(id[i+1:], 10, 64)
	if err != nil {
		return models.ContentRef{}, fmt.Errorf("malformed document id %q: %w", id, err)
	}
	return models.ContentRef{ContentType: id[:i], ContentID: n}, nil
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// DocCount returns the total number of documents in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}
