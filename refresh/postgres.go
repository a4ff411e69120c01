package refresh

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore keeps records in the refresh_tokens table. Rotation relies on
// row locking: a conditional UPDATE on an already-rotated row matches nothing.
type PostgresStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewPostgresStore returns a PostgresStore over db. ttl <= 0 selects DefaultTTL.
func NewPostgresStore(db *sql.DB, ttl time.Duration, now func() time.Time) *PostgresStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &PostgresStore{db: db, ttl: ttl, now: now}
}

const insertRecordQuery = `
INSERT INTO refresh_tokens (token_hash, account_id, issued_at, expires_at)
VALUES ($1, $2, $3, $4)`

// Create issues a new token for ownerID.
func (s *PostgresStore) Create(ctx context.Context, ownerID string) (*Issued, error) {
	if ownerID == "" {
		return nil, errors.New("refresh owner is required")
	}
	token, id, err := newToken()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	exp := now.Add(s.ttl)
	if _, err := s.db.ExecContext(ctx, insertRecordQuery, id, ownerID, now, exp); err != nil {
		return nil, unavailable(err)
	}
	return &Issued{
		Token:   token,
		OwnerID: ownerID,
		Record:  Record{ID: id, OwnerID: ownerID, IssuedAt: now, ExpiresAt: exp},
	}, nil
}

const claimRecordQuery = `
UPDATE refresh_tokens SET revoked = true, replaced_by = $2
WHERE token_hash = $1 AND revoked = false AND expires_at > $3
RETURNING account_id`

const recordStateQuery = `SELECT account_id, revoked, replaced_by IS NOT NULL FROM refresh_tokens WHERE token_hash = $1`

const revokeOwnerQuery = `UPDATE refresh_tokens SET revoked = true WHERE account_id = $1 AND revoked = false`

// Rotate swaps token for a new one inside a transaction.
func (s *PostgresStore) Rotate(ctx context.Context, token string) (*Issued, error) {
	id, err := recordID(token)
	if err != nil {
		return nil, err
	}
	next, nextID, err := newToken()
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable(err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now().UTC()
	exp := now.Add(s.ttl)

	var owner string
	err = tx.QueryRowContext(ctx, claimRecordQuery, id, nextID, now).Scan(&owner)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx, insertRecordQuery, nextID, owner, now, exp); err != nil {
			return nil, unavailable(err)
		}
		if err := tx.Commit(); err != nil {
			return nil, unavailable(err)
		}
		return &Issued{
			Token:   next,
			OwnerID: owner,
			Record:  Record{ID: nextID, OwnerID: owner, IssuedAt: now, ExpiresAt: exp},
		}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, unavailable(err)
	}

	var revoked, rotated bool
	err = tx.QueryRowContext(ctx, recordStateQuery, id).Scan(&owner, &revoked, &rotated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	if !revoked {
		return nil, ErrExpired
	}

	res, err := tx.ExecContext(ctx, revokeOwnerQuery, owner)
	if err != nil {
		return nil, unavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable(err)
	}
	n, _ := res.RowsAffected()
	return nil, &ReplayError{OwnerID: owner, Revoked: int(n), Rotated: rotated}
}

// Revoke marks the record for token as revoked. Unknown tokens are a no-op.
func (s *PostgresStore) Revoke(ctx context.Context, token string) error {
	id, err := recordID(token)
	if err != nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = true WHERE token_hash = $1`, id); err != nil {
		return unavailable(err)
	}
	return nil
}

// RevokeAll revokes every live record of ownerID and returns how many changed.
func (s *PostgresStore) RevokeAll(ctx context.Context, ownerID string) (int, error) {
	res, err := s.db.ExecContext(ctx, revokeOwnerQuery, ownerID)
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

// Lookup returns the stored record for token.
func (s *PostgresStore) Lookup(ctx context.Context, token string) (*Record, error) {
	id, err := recordID(token)
	if err != nil {
		return nil, err
	}
	rec := Record{ID: id}
	var replaced sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT account_id, issued_at, expires_at, revoked, replaced_by FROM refresh_tokens WHERE token_hash = $1`, id,
	).Scan(&rec.OwnerID, &rec.IssuedAt, &rec.ExpiresAt, &rec.Revoked, &replaced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	rec.ReplacedBy = replaced.String
	return &rec, nil
}

// DeleteExpired removes records whose expiry passed before cutoff.
func (s *PostgresStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, unavailable(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Ping checks that the database answers.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}
