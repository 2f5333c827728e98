package models

// ContentRef is a single search hit: a content type and id, or a group-by type and
// discussion id when results are collapsed by discussion.
type ContentRef struct {
	ContentType string `json:"content_type"`
	ContentID   int64  `json:"content_id"`
}

// Notice is a message reported to the error sink for a form field.
type Notice struct {
	Field   string   `json:"field"`
	Message string   `json:"message"`
	Words   []string `json:"words,omitempty"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []ContentRef `json:"results"`
	Errors    []Notice     `json:"errors,omitempty"`
	Warnings  []Notice     `json:"warnings,omitempty"`
	QueryTime int64        `json:"query_time_ms"`
	Query     string       `json:"query"`
}
