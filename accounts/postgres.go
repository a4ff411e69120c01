package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// DBTX is the subset of database/sql used by the store.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type pinger interface {
	PingContext(ctx context.Context) error
}

// PostgresStore keeps accounts in the accounts table.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore wraps db, which may be a *sql.DB or a transaction.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts a. Unique violations map to ErrDuplicateEmail or ErrDuplicateUsername.
func (s *PostgresStore) Create(ctx context.Context, a *Account) error {
	query :=
		`INSERT INTO accounts (id, email, username, full_name, password_hash, is_active, is_admin, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 `

	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Email, a.Username, a.FullName, a.PasswordHash, a.IsActive, a.IsAdmin, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			switch pgErr.ConstraintName {
			case "accounts_email_key":
				return ErrDuplicateEmail
			case "accounts_username_key":
				return ErrDuplicateUsername
			}
			return ErrDuplicate
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const selectAccount = `SELECT id, email, username, full_name, password_hash, is_active, is_admin, created_at, updated_at, last_login
		 FROM accounts `

// GetByID returns the account with id or ErrNotFound.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Account, error) {
	return s.getOne(ctx, selectAccount+`WHERE id = $1`, id)
}

// GetByEmail looks up a normalized email.
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return s.getOne(ctx, selectAccount+`WHERE email = $1`, email)
}

func (s *PostgresStore) getOne(ctx context.Context, query string, arg string) (*Account, error) {
	a := &Account{}
	var lastLogin sql.NullTime
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&a.ID, &a.Email, &a.Username, &a.FullName, &a.PasswordHash,
		&a.IsActive, &a.IsAdmin, &a.CreatedAt, &a.UpdatedAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLogin = &t
	}
	return a, nil
}

// UpdatePasswordHash stores a new hash for id.
func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	query :=
		`UPDATE accounts SET password_hash = $2, updated_at = now()
		 WHERE id = $1
		 `
	return s.execOne(ctx, query, id, hash)
}

// TouchLastLogin records a successful login at.
func (s *PostgresStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	query :=
		`UPDATE accounts SET last_login = $2
		 WHERE id = $1
		 `
	return s.execOne(ctx, query, id, at.UTC())
}

func (s *PostgresStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping reports whether the underlying handle answers. Handles that cannot be
// pinged (transactions) are assumed healthy.
func (s *PostgresStore) Ping(ctx context.Context) error {
	p, ok := s.db.(pinger)
	if !ok {
		return nil
	}
	if err := p.PingContext(ctx); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
