package bookmarks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// ErrDuplicate reports a second bookmark for the same (user, book) pair.
// The unique index on bookmarks(id_user, id_book) raises it even when two
// concurrent requests both pass the handler's existence check.
var ErrDuplicate = errors.New("bookmark already exists")

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

// Row is one bookmark joined with its book, the book's author and category,
// and the bookmarking user.
type Row struct {
	BookmarkID    int64
	BookID        int64
	Title         string
	Content       string
	ImageJSON     string
	Category      string
	BookCreator   string // the book author's username
	Username      string // the bookmarking user's username
	BookCreatedAt time.Time
	CreatedAt     time.Time // when the bookmark was made
}

const rowSelect = `
	SELECT bm.id, b.id, b.title, b.content, b.image, c.name,
	       owner.username, caller.username, b.created_at, bm.created_at
	FROM bookmarks bm
	JOIN books b ON b.id = bm.id_book
	JOIN users owner ON owner.id = b.id_user
	JOIN users caller ON caller.id = bm.id_user
	JOIN categories c ON c.id = b.id_category`

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (Row, error) {
	var r Row
	err := s.Scan(
		&r.BookmarkID, &r.BookID, &r.Title, &r.Content, &r.ImageJSON,
		&r.Category, &r.BookCreator, &r.Username, &r.BookCreatedAt, &r.CreatedAt,
	)
	return r, err
}

func (r *Repo) Count(ctx context.Context, userID int64) (int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookmarks WHERE id_user = ?
	`, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("count bookmarks: %w", err)
	}
	return total, nil
}

func (r *Repo) List(ctx context.Context, userID int64, limit, offset int) ([]Row, error) {
	if limit <= 0 || limit > 100 {
		limit = 4
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.DB.QueryContext(ctx, rowSelect+`
		WHERE bm.id_user = ?
		ORDER BY bm.created_at DESC, bm.id DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	out := make([]Row, 0, limit)
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bookmark row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func (r *Repo) Exists(ctx context.Context, userID, bookID int64) (bool, error) {
	var exists bool
	if err := r.DB.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM bookmarks WHERE id_user = ? AND id_book = ?)
	`, userID, bookID).Scan(&exists); err != nil {
		return false, fmt.Errorf("bookmark exists: %w", err)
	}
	return exists, nil
}

func (r *Repo) Create(ctx context.Context, userID, bookID int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO bookmarks (id_user, id_book)
		VALUES (?, ?)
	`, userID, bookID)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("create bookmark: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create bookmark id: %w", err)
	}
	return id, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*Row, error) {
	row, err := scanRow(r.DB.QueryRowContext(ctx, rowSelect+`
		WHERE bm.id = ?
	`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get bookmark: %w", err)
	}
	return &row, nil
}

// DeleteByBook removes the caller's bookmark for a book.
func (r *Repo) DeleteByBook(ctx context.Context, userID, bookID int64) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM bookmarks
		WHERE id_user = ? AND id_book = ?
	`, userID, bookID)
	if err != nil {
		return false, fmt.Errorf("delete bookmark: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *Repo) BookExists(ctx context.Context, bookID int64) (bool, error) {
	var exists bool
	if err := r.DB.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM books WHERE id = ?)
	`, bookID).Scan(&exists); err != nil {
		return false, fmt.Errorf("book exists: %w", err)
	}
	return exists, nil
}
