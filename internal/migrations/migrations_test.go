package migrations

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
)

func TestEmbeddedMigrationsDeclareBothTables(t *testing.T) {
	files, err := fs.Glob(FS, "*.sql")
	if err != nil || len(files) == 0 {
		t.Fatalf("no embedded migrations: %v", err)
	}

	var all strings.Builder
	for _, name := range files {
		b, err := fs.ReadFile(FS, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if !strings.Contains(string(b), "-- +goose Up") {
			t.Fatalf("%s lacks a goose Up section", name)
		}
		all.Write(b)
	}
	for _, table := range []string{"CREATE TABLE IF NOT EXISTS accounts", "CREATE TABLE IF NOT EXISTS refresh_tokens"} {
		if !strings.Contains(all.String(), table) {
			t.Fatalf("missing %q", table)
		}
	}
}

func TestUpRunsGooseAgainstEmbeddedFS(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	var gotDir string
	gooseUpContext = func(ctx context.Context, d *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if d != db {
			t.Fatal("unexpected db handle")
		}
		gotDir = dir
		return nil
	}

	if err := Up(context.Background(), db); err != nil {
		t.Fatalf("Up error: %v", err)
	}
	if gotDir != "." {
		t.Fatalf("expected dir \".\", got %q", gotDir)
	}
}

func TestUpWrapsGooseError(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	boom := errors.New("boom")
	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error { return boom }

	if err := Up(context.Background(), db); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped goose error, got %v", err)
	}
}
