package models

import "time"

// Image is one entry of a book's stored image list. The list is persisted
// as a JSON array in the books.image text column; every entry carries an
// integer id unique within its book.
type Image struct {
	ID  int    `json:"id"`
	URL string `json:"url"`
}

type Book struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	UserID     int64     `json:"id_user"`
	CategoryID int64     `json:"id_category"`
	Content    string    `json:"content"`
	Images     []Image   `json:"images"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
