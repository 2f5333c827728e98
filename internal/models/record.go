// Package models defines core data structures for index records, search predicates, and results.
package models

import "strconv"

// IndexTable is the alias of the search index table in predicates, order parts, and join relationships.
const IndexTable = "search_index"

// IndexRecord is one indexed content item. (ContentType, ContentID) is its natural key.
type IndexRecord struct {
	ContentType  string `json:"content_type" db:"content_type"`
	ContentID    int64  `json:"content_id" db:"content_id"`
	Title        string `json:"title" db:"title"`
	Message      string `json:"message" db:"message"`
	Metadata     string `json:"metadata" db:"metadata"`
	ItemDate     int64  `json:"item_date" db:"item_date"`
	UserID       int64  `json:"user_id" db:"user_id"`
	DiscussionID int64  `json:"discussion_id" db:"discussion_id"`
}

// Key returns the record's natural key as "content_type:content_id".
func (r *IndexRecord) Key() string {
	return ContentKey(r.ContentType, r.ContentID)
}

// ContentKey formats a natural key.
func ContentKey(contentType string, contentID int64) string {
	return contentType + ":" + strconv.FormatInt(contentID, 10)
}

// MetaField is one caller-supplied metadata dimension. Values holds one entry for a scalar
// value and several for a list (e.g. a post belonging to several nodes).
type MetaField struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

// Meta builds a MetaField.
func Meta(key string, values ...string) MetaField {
	return MetaField{Key: key, Values: values}
}

// IndexItem is the input to InsertIntoIndex. Metadata is appended to the generated
// user and content tokens in the order given.
type IndexItem struct {
	ContentType  string      `json:"content_type"`
	ContentID    int64       `json:"content_id"`
	Title        string      `json:"title,omitempty"`
	Message      string      `json:"message"`
	ItemDate     int64       `json:"item_date"`
	UserID       int64       `json:"user_id"`
	DiscussionID int64       `json:"discussion_id,omitempty"`
	Metadata     []MetaField `json:"metadata,omitempty"`
}
