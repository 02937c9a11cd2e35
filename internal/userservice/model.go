package userservice

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

var (
	ErrNotFound          = errors.New("user not found")
	ErrDuplicateUsername = errors.New("duplicate username")
	ErrDuplicateEmail    = errors.New("duplicate email")
)

func newUserModel(db *sql.DB) *UserModel {
	return &UserModel{db: db}
}

func (m *UserModel) findByUsername(ctx context.Context, username string) (*User, error) {
	query := `
		SELECT id, name, username, email, image, role, created_at, updated_at
		FROM users
		WHERE username = $1`

	var u User
	err := m.db.QueryRowContext(ctx, query, username).Scan(&u.ID, &u.Name, &u.Username, &u.Email, &u.Image, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrNotFound
		default:
			return nil, err
		}
	}

	return &u, nil
}

// insert is used by account provisioning and tests; regular users arrive
// through the external auth provider which writes this table directly.
func (m *UserModel) insert(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (name, username, email, image, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	if u.Role == "" {
		u.Role = "user"
	}

	err := m.db.QueryRowContext(ctx, query, u.Name, u.Username, u.Email, u.Image, u.Role).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		switch {
		case strings.Contains(err.Error(), "users_username_key"):
			return ErrDuplicateUsername
		case strings.Contains(err.Error(), "users_email_key"):
			return ErrDuplicateEmail
		default:
			return err
		}
	}

	return nil
}

// usernames returns every username, used to warm the membership filter at
// startup.
func (m *UserModel) usernames(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT username FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	return names, rows.Err()
}
