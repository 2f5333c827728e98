package contenttype

import (
	"strconv"

	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/search"
)

// Content types indexed for forum discussions.
const (
	TypePost   = "post"
	TypeThread = "thread"
)

// Metadata keys written for posts and threads.
const (
	MetaNode   = "node"
	MetaThread = "thread"
	MetaPrefix = "prefix"
)

// OrderReplies sorts by the thread's reply count.
const OrderReplies = "replies"

// Post searches thread posts and thread titles and groups them by thread.
type Post struct{}

// SearchContentTypes returns post and thread.
func (Post) SearchContentTypes() []string {
	return []string{TypePost, TypeThread}
}

// FilterConstraints drops a non-positive reply_count minimum.
func (Post) FilterConstraints(h search.SourceHandler, constraints search.Constraints) search.Constraints {
	if v, ok := constraints["reply_count"]; ok && search.IntValue(v) <= 0 {
		delete(constraints, "reply_count")
	}
	return constraints
}

// ProcessConstraint handles thread, prefix, and reply_count.
func (Post) ProcessConstraint(h search.SourceHandler, name string, value any, all search.Constraints) *search.ProcessedConstraint {
	switch name {
	case MetaThread:
		id := search.IntValue(value)
		if id <= 0 {
			return nil
		}
		return &search.ProcessedConstraint{Metadata: &search.MetadataConstraint{
			Key:    MetaThread,
			Values: []string{strconv.FormatInt(id, 10)},
		}}
	case MetaPrefix:
		ids := search.SplitIDs(value)
		if len(ids) == 0 {
			return nil
		}
		return &search.ProcessedConstraint{Metadata: &search.MetadataConstraint{Key: MetaPrefix, Values: ids}}
	case "reply_count":
		return &search.ProcessedConstraint{Query: &models.Predicate{
			Table:    models.ThreadTable,
			Field:    "reply_count",
			Operator: models.OpGreaterEqual,
			Values:   []any{search.IntValue(value)},
		}}
	}
	return nil
}

// OrderClause maps "replies" to the thread reply count; other orders fall back.
func (Post) OrderClause(order string) []models.OrderPart {
	if order == OrderReplies {
		return []models.OrderPart{{Table: models.ThreadTable, Field: "reply_count", Direction: models.SortDesc}}
	}
	return nil
}

// GroupByType returns thread.
func (Post) GroupByType() string {
	return TypeThread
}

// JoinStructures describes the thread table, joined on discussion_id.
func (Post) JoinStructures(aliases []string) map[string]models.Join {
	out := make(map[string]models.Join)
	for _, alias := range aliases {
		if alias == models.ThreadTable {
			out[alias] = models.Join{
				Table:             models.ThreadTable,
				Key:               "thread_id",
				RelationshipTable: models.IndexTable,
				RelationshipField: "discussion_id",
			}
		}
	}
	return out
}

// PostItem builds the index item for a post in thread t.
func PostItem(postID int64, t *models.Thread, message string, postDate, userID int64) *models.IndexItem {
	return &models.IndexItem{
		ContentType:  TypePost,
		ContentID:    postID,
		Message:      message,
		ItemDate:     postDate,
		UserID:       userID,
		DiscussionID: t.ThreadID,
		Metadata:     threadMetadata(t),
	}
}

// ThreadItem builds the index item for a thread title; message is the first post's text.
func ThreadItem(t *models.Thread, message string) *models.IndexItem {
	return &models.IndexItem{
		ContentType:  TypeThread,
		ContentID:    t.ThreadID,
		Title:        t.Title,
		Message:      message,
		ItemDate:     t.PostDate,
		UserID:       t.UserID,
		DiscussionID: t.ThreadID,
		Metadata:     threadMetadata(t),
	}
}

func threadMetadata(t *models.Thread) []models.MetaField {
	meta := []models.MetaField{
		models.Meta(MetaNode, strconv.FormatInt(t.NodeID, 10)),
		models.Meta(MetaThread, strconv.FormatInt(t.ThreadID, 10)),
	}
	if t.PrefixID > 0 {
		meta = append(meta, models.Meta(MetaPrefix, strconv.FormatInt(t.PrefixID, 10)))
	}
	return meta
}
