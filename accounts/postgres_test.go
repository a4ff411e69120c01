package accounts

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

var accountColumns = []string{"id", "email", "username", "full_name", "password_hash", "is_active", "is_admin", "created_at", "updated_at", "last_login"}

func newStoreWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresStore(db), mock, db
}

func sampleAccount() *Account {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &Account{
		ID:           "0b6c1c5e-3f5d-4f39-9c61-0d1f0f0a6d11",
		Email:        "ann@example.com",
		Username:     "ann",
		FullName:     "Ann Example",
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestCreate_Success(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()
	a := sampleAccount()

	mock.ExpectExec(`INSERT INTO accounts .* VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9\)`).
		WithArgs(a.ID, a.Email, a.Username, a.FullName, a.PasswordHash, true, false, a.CreatedAt, a.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Create(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_UniqueViolationMapsToDuplicate(t *testing.T) {
	cases := []struct {
		constraint string
		want       error
	}{
		{"accounts_email_key", ErrDuplicateEmail},
		{"accounts_username_key", ErrDuplicateUsername},
		{"accounts_pkey", ErrDuplicate},
	}
	for _, tc := range cases {
		t.Run(tc.constraint, func(t *testing.T) {
			store, mock, db := newStoreWithMock(t)
			defer db.Close()

			mock.ExpectExec(`INSERT INTO accounts`).
				WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: tc.constraint})

			err := store.Create(context.Background(), sampleAccount())
			if !errors.Is(err, tc.want) || !errors.Is(err, ErrDuplicate) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCreate_DBError(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO accounts`).WillReturnError(errors.New("db is down"))

	err := store.Create(context.Background(), sampleAccount())
	if err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected plain db error, got %v", err)
	}
}

func TestGetByEmail_FoundAndNotFound(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()
	a := sampleAccount()
	login := a.CreatedAt.Add(time.Hour)

	q := regexp.QuoteMeta(`FROM accounts WHERE email = $1`)
	mock.ExpectQuery(q).WithArgs(a.Email).WillReturnRows(
		sqlmock.NewRows(accountColumns).AddRow(a.ID, a.Email, a.Username, a.FullName, a.PasswordHash, true, false, a.CreatedAt, a.UpdatedAt, login))
	mock.ExpectQuery(q).WithArgs("nobody@example.com").WillReturnRows(sqlmock.NewRows(accountColumns))

	got, err := store.GetByEmail(context.Background(), a.Email)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != a.ID || got.LastLogin == nil || !got.LastLogin.Equal(login) {
		t.Fatalf("unexpected account: %+v", got)
	}

	if _, err := store.GetByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetByID_NullLastLogin(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()
	a := sampleAccount()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM accounts WHERE id = $1`)).WithArgs(a.ID).WillReturnRows(
		sqlmock.NewRows(accountColumns).AddRow(a.ID, a.Email, a.Username, a.FullName, a.PasswordHash, false, true, a.CreatedAt, a.UpdatedAt, nil))

	got, err := store.GetByID(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.LastLogin != nil || got.IsActive || !got.IsAdmin {
		t.Fatalf("unexpected account: %+v", got)
	}
}

func TestUpdatePasswordHash_RowsAffected(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	q := regexp.QuoteMeta(`UPDATE accounts SET password_hash = $2`)
	mock.ExpectExec(q).WithArgs("id-1", "new-hash").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("id-2", "new-hash").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.UpdatePasswordHash(context.Background(), "id-1", "new-hash"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.UpdatePasswordHash(context.Background(), "id-2", "new-hash"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestTouchLastLogin(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE accounts SET last_login = $2`)).
		WithArgs("id-1", at).WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.TouchLastLogin(context.Background(), "id-1", at); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
