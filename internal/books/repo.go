package books

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

type ListQuery struct {
	Keyword    string // substring match on title or author username
	Sort       string // newest (default), popular, a-z, z-a
	CategoryID int64
	ViewerID   int64 // 0 for anonymous; drives is_bookmarked
	Limit      int
	Offset     int
}

// Row is one book joined with its author and category, plus the viewer's
// bookmark state.
type Row struct {
	ID           int64
	Title        string
	Content      string
	ImageJSON    string
	UserID       int64
	Username     string
	Avatar       string
	CategoryID   int64
	Category     string
	CreatedAt    time.Time
	Bookmarks    int
	IsBookmarked bool
}

const rowColumns = `
	b.id, b.title, b.content, b.image, b.created_at,
	b.id_user, u.username, u.avatar_image,
	b.id_category, c.name,
	(SELECT COUNT(*) FROM bookmarks bm WHERE bm.id_book = b.id) AS bookmark_count,
	EXISTS(SELECT 1 FROM bookmarks bm WHERE bm.id_book = b.id AND bm.id_user = ?) AS is_bookmarked`

const rowFrom = `
	FROM books b
	JOIN users u ON u.id = b.id_user
	JOIN categories c ON c.id = b.id_category`

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (Row, error) {
	var (
		r      Row
		avatar sql.NullString
	)
	if err := s.Scan(
		&r.ID, &r.Title, &r.Content, &r.ImageJSON, &r.CreatedAt,
		&r.UserID, &r.Username, &avatar,
		&r.CategoryID, &r.Category,
		&r.Bookmarks, &r.IsBookmarked,
	); err != nil {
		return Row{}, err
	}
	r.Avatar = avatar.String
	return r, nil
}

func (r *Repo) Count(ctx context.Context, q ListQuery) (int, error) {
	sqlStr, args := buildListSQL(q, true)
	var total int
	if err := r.DB.QueryRowContext(ctx, sqlStr, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}
	return total, nil
}

func (r *Repo) List(ctx context.Context, q ListQuery) ([]Row, error) {
	sqlStr, args := buildListSQL(q, false)

	rows, err := r.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	out := make([]Row, 0, q.Limit)
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// buildListSQL builds either the COUNT(*) or the SELECT list query.
func buildListSQL(q ListQuery, countOnly bool) (string, []any) {
	var args []any

	sqlStr := `SELECT` + rowColumns + rowFrom
	if countOnly {
		sqlStr = `SELECT COUNT(*)` + rowFrom
	} else {
		args = append(args, q.ViewerID)
	}

	var where []string
	if kw := strings.TrimSpace(q.Keyword); kw != "" {
		where = append(where, "(b.title LIKE ? OR u.username LIKE ?)")
		pat := "%" + kw + "%"
		args = append(args, pat, pat)
	}
	if q.CategoryID > 0 {
		where = append(where, "b.id_category = ?")
		args = append(args, q.CategoryID)
	}
	if len(where) > 0 {
		sqlStr += " WHERE " + strings.Join(where, " AND ")
	}

	if !countOnly {
		switch q.Sort {
		case "popular":
			// missing counts sort as 0 via the scalar subquery
			sqlStr += " ORDER BY bookmark_count DESC, b.id ASC"
		case "a-z":
			sqlStr += " ORDER BY b.title COLLATE NOCASE ASC"
		case "z-a":
			sqlStr += " ORDER BY b.title COLLATE NOCASE DESC"
		default: // newest
			sqlStr += " ORDER BY b.created_at DESC, b.id DESC"
		}

		limit := q.Limit
		if limit <= 0 || limit > 100 {
			limit = 12
		}
		offset := q.Offset
		if offset < 0 {
			offset = 0
		}
		sqlStr += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	return sqlStr, args
}

func (r *Repo) GetByID(ctx context.Context, id, viewerID int64) (*Row, error) {
	row, err := scanRow(r.DB.QueryRowContext(ctx, `
		SELECT`+rowColumns+rowFrom+`
		WHERE b.id = ?
	`, viewerID, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	return &row, nil
}

// Related returns up to limit books sharing a category, excluding the book
// itself.
func (r *Repo) Related(ctx context.Context, categoryID, excludeID, viewerID int64, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT`+rowColumns+rowFrom+`
		WHERE b.id_category = ? AND b.id != ?
		LIMIT ?
	`, viewerID, categoryID, excludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("related books: %w", err)
	}
	defer rows.Close()

	out := make([]Row, 0, limit)
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan related row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func (r *Repo) CountByUser(ctx context.Context, userID int64) (int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM books WHERE id_user = ?
	`, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("count user books: %w", err)
	}
	return total, nil
}

func (r *Repo) ListByUser(ctx context.Context, userID, viewerID int64, limit, offset int) ([]Row, error) {
	if limit <= 0 || limit > 100 {
		limit = 4
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT`+rowColumns+rowFrom+`
		WHERE b.id_user = ?
		ORDER BY b.created_at DESC, b.id DESC
		LIMIT ? OFFSET ?
	`, viewerID, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list user books: %w", err)
	}
	defer rows.Close()

	out := make([]Row, 0, limit)
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user book row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// ListAll returns every book ordered by category then title, for the
// grouped-by-category listing.
func (r *Repo) ListAll(ctx context.Context, viewerID int64) ([]Row, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT`+rowColumns+rowFrom+`
		ORDER BY b.id_category ASC, b.title COLLATE NOCASE ASC
	`, viewerID)
	if err != nil {
		return nil, fmt.Errorf("list all books: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func (r *Repo) Create(ctx context.Context, title string, userID, categoryID int64, content, imageJSON string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO books (title, id_user, id_category, content, image)
		VALUES (?, ?, ?, ?, ?)
	`, title, userID, categoryID, content, imageJSON)
	if err != nil {
		return 0, fmt.Errorf("create book: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create book id: %w", err)
	}
	return id, nil
}

// UpdateFields carries the partial update: nil pointers leave the column
// untouched.
type UpdateFields struct {
	Title      *string
	CategoryID *int64
	Content    *string
	ImageJSON  *string
}

func (r *Repo) Update(ctx context.Context, id int64, upd UpdateFields) error {
	var sets []string
	var args []any

	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.CategoryID != nil {
		sets = append(sets, "id_category = ?")
		args = append(args, *upd.CategoryID)
	}
	if upd.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *upd.Content)
	}
	if upd.ImageJSON != nil {
		sets = append(sets, "image = ?")
		args = append(args, *upd.ImageJSON)
	}
	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	if _, err := r.DB.ExecContext(ctx, `
		UPDATE books SET `+strings.Join(sets, ", ")+` WHERE id = ?
	`, args...); err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	return nil
}

// Delete removes the book; its bookmarks go with it via the FK cascade.
func (r *Repo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM books WHERE id = ?
	`, id)
	if err != nil {
		return false, fmt.Errorf("delete book: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *Repo) CategoryExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := r.DB.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM categories WHERE id = ?)
	`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("category exists: %w", err)
	}
	return exists, nil
}
