package indexer

import (
	"strings"
	"unicode"

	"github.com/hyperjump/kensaku/internal/models"
)

// Preprocess normalizes text for indexing (trim, collapse whitespace).
func Preprocess(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}

// prepare returns a copy of rec with title and message normalized.
func prepare(rec *models.IndexRecord) *models.IndexRecord {
	out := *rec
	out.Title = Preprocess(rec.Title)
	out.Message = Preprocess(rec.Message)
	return &out
}
