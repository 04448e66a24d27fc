package events

import "time"

// Event types broadcast on the feed.
const (
	BookCreated     = "book.created"
	BookUpdated     = "book.updated"
	BookDeleted     = "book.deleted"
	BookmarkCreated = "bookmark.created"
	BookmarkDeleted = "bookmark.deleted"
)

type Event struct {
	Type   string    `json:"type"`
	UserID int64     `json:"user_id"`
	BookID int64     `json:"book_id"`
	At     time.Time `json:"at"`
}
