package profile

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"bookhub/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, name, username, email, password_hash, about_me, avatar_image, created_at, updated_at
		FROM users
		WHERE id = ?
	`, id)

	var (
		u      models.User
		about  sql.NullString
		avatar sql.NullString
	)
	if err := row.Scan(
		&u.ID, &u.Name, &u.Username, &u.Email, &u.PasswordHash,
		&about, &avatar, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.AboutMe = about.String
	u.AvatarImage = avatar.String
	return &u, nil
}

// Fields carries a partial profile update: nil pointers leave the column
// untouched.
type Fields struct {
	Name         *string
	AboutMe      *string
	PasswordHash *string
}

func (r *Repo) UpdateProfile(ctx context.Context, id int64, f Fields) error {
	var sets []string
	var args []any

	if f.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *f.Name)
	}
	if f.AboutMe != nil {
		sets = append(sets, "about_me = ?")
		args = append(args, *f.AboutMe)
	}
	if f.PasswordHash != nil {
		sets = append(sets, "password_hash = ?")
		args = append(args, *f.PasswordHash)
	}
	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	if _, err := r.DB.ExecContext(ctx, `
		UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?
	`, args...); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

func (r *Repo) UpdateAvatar(ctx context.Context, id int64, url string) error {
	if _, err := r.DB.ExecContext(ctx, `
		UPDATE users
		SET avatar_image = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, url, id); err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	return nil
}
