package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"studentadmin/internal/store"
)

// User is an account row. Token and TokenExpiry are set together on login
// and cleared together on logout or lazy expiry.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
	Token        sql.NullString
	TokenExpiry  sql.NullTime
}

// Repository persists user accounts and their session state.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new account. Uniqueness violations on username are
// returned raw for the service to translate.
func (r *Repository) Create(ctx context.Context, username, passwordHash, role string) error {
	_, err := r.db.SQL.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role)
		VALUES ($1, $2, $3)
	`, username, passwordHash, role)
	return err
}

// FindByUsername returns the account with the given username, or nil when
// none exists.
func (r *Repository) FindByUsername(ctx context.Context, username string) (*User, error) {
	row := r.db.SQL.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, token, token_expiry
		FROM users WHERE username = $1
	`, username)
	return scanUser(row)
}

// FindByToken returns the account currently holding token, or nil when no
// account does.
func (r *Repository) FindByToken(ctx context.Context, token string) (*User, error) {
	row := r.db.SQL.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, token, token_expiry
		FROM users WHERE token = $1
	`, token)
	return scanUser(row)
}

// SetToken stores a fresh token and expiry on the account, overwriting any
// prior session.
func (r *Repository) SetToken(ctx context.Context, userID int64, token string, expiry time.Time) error {
	_, err := r.db.SQL.ExecContext(ctx, `
		UPDATE users SET token = $1, token_expiry = $2 WHERE id = $3
	`, token, expiry, userID)
	return err
}

// ClearTokenByValue clears the session on whichever account holds token and
// reports whether a row was affected.
func (r *Repository) ClearTokenByValue(ctx context.Context, token string) (bool, error) {
	res, err := r.db.SQL.ExecContext(ctx, `
		UPDATE users SET token = NULL, token_expiry = NULL WHERE token = $1
	`, token)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ClearTokenByID clears the session on the given account.
func (r *Repository) ClearTokenByID(ctx context.Context, userID int64) error {
	_, err := r.db.SQL.ExecContext(ctx, `
		UPDATE users SET token = NULL, token_expiry = NULL WHERE id = $1
	`, userID)
	return err
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.Token, &u.TokenExpiry); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
