package models

// ThreadTable is the alias of the joined thread table.
const ThreadTable = "thread"

// Thread is a discussion row joined against search_index.discussion_id by the post type handler.
type Thread struct {
	ThreadID   int64  `json:"thread_id"`
	NodeID     int64  `json:"node_id"`
	Title      string `json:"title"`
	UserID     int64  `json:"user_id"`
	PostDate   int64  `json:"post_date"`
	ReplyCount int64  `json:"reply_count"`
	PrefixID   int64  `json:"prefix_id"`
}
