package auth

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"bookhub/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

// Token is one issued bearer token record. Deleting the row revokes the
// token regardless of its JWT expiry claim.
type Token struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (r *Repo) CreateUser(ctx context.Context, u *models.User) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO users (name, username, email, password_hash)
		VALUES (?, ?, ?, ?)
	`, u.Name, u.Username, u.Email, u.PasswordHash)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create user id: %w", err)
	}
	return id, nil
}

const userColumns = `id, name, username, email, password_hash, about_me, avatar_image, created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u      models.User
		about  sql.NullString
		avatar sql.NullString
	)
	if err := row.Scan(
		&u.ID, &u.Name, &u.Username, &u.Email, &u.PasswordHash,
		&about, &avatar, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.AboutMe = about.String
	u.AvatarImage = avatar.String
	return &u, nil
}

func (r *Repo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(email) = ?
	`, email)

	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get by email: %w", err)
	}
	return u, nil
}

func (r *Repo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE username = ?
	`, username)

	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get by username: %w", err)
	}
	return u, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = ?
	`, id)

	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get by id: %w", err)
	}
	return u, nil
}

func (r *Repo) CreateToken(ctx context.Context, id string, userID int64, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO access_tokens (id, user_id, expires_at)
		VALUES (?, ?, ?)
	`, id, userID, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	return nil
}

func (r *Repo) GetToken(ctx context.Context, id string) (*Token, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, user_id, expires_at, created_at
		FROM access_tokens
		WHERE id = ?
	`, id)

	var t Token
	if err := row.Scan(&t.ID, &t.UserID, &t.ExpiresAt, &t.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return &t, nil
}

func (r *Repo) DeleteToken(ctx context.Context, id string) error {
	if _, err := r.DB.ExecContext(ctx, `
		DELETE FROM access_tokens
		WHERE id = ?
	`, id); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}
