package search

import (
	"strconv"
	"strings"

	"github.com/hyperjump/kensaku/internal/models"
)

// MetadataPrefix starts every synthetic metadata token.
const MetadataPrefix = "_md_"

// Built-in metadata keys written for every record.
const (
	MetadataUser    = "user"
	MetadataContent = "content"
)

// SanitizeMetadataValue strips everything but ASCII letters, digits, and underscore.
func SanitizeMetadataValue(value string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return -1
	}, value)
}

// MetadataKey encodes one facet value as "_md_<key>_<sanitized value>". The same function
// builds stored tokens and query tokens.
func MetadataKey(key, value string) string {
	return MetadataPrefix + key + "_" + SanitizeMetadataValue(value)
}

// MetadataKeys encodes each value in order, one token per value.
func MetadataKeys(key string, values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = MetadataKey(key, v)
	}
	return out
}

// BuildMetadata returns the space-joined token string for a record: user, content, then
// the caller's fields in order.
func BuildMetadata(contentType string, userID int64, extra []models.MetaField) string {
	pieces := []string{
		MetadataKey(MetadataUser, strconv.FormatInt(userID, 10)),
		MetadataKey(MetadataContent, contentType),
	}
	for _, f := range extra {
		pieces = append(pieces, MetadataKeys(f.Key, f.Values)...)
	}
	return strings.Join(pieces, " ")
}

// BuildRecord turns an IndexItem into the row that is stored and indexed.
func BuildRecord(item *models.IndexItem) *models.IndexRecord {
	return &models.IndexRecord{
		ContentType:  item.ContentType,
		ContentID:    item.ContentID,
		Title:        item.Title,
		Message:      item.Message,
		Metadata:     BuildMetadata(item.ContentType, item.UserID, item.Metadata),
		ItemDate:     item.ItemDate,
		UserID:       item.UserID,
		DiscussionID: item.DiscussionID,
	}
}
