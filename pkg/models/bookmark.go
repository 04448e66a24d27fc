package models

import "time"

type Bookmark struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"id_user"`
	BookID    int64     `json:"id_book"`
	CreatedAt time.Time `json:"created_at"`
}
