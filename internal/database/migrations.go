package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/jmoiron/sqlx"
)

// SchemaVersion is the version Migrate brings the database up to
const SchemaVersion = 2

// migrations[i] upgrades the schema from version i to i+1
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username VARCHAR(50) NOT NULL UNIQUE,
			password TEXT NOT NULL,
			role VARCHAR(10) NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'user')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS books (
			id BIGSERIAL PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			author VARCHAR(255) NOT NULL,
			category VARCHAR(100) NOT NULL DEFAULT '',
			quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id),
			book_id BIGINT NOT NULL REFERENCES books(id),
			borrowed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			due_date TIMESTAMPTZ NOT NULL,
			return_date TIMESTAMPTZ,
			status VARCHAR(10) NOT NULL DEFAULT 'borrowed' CHECK (status IN ('borrowed', 'returned')),
			fine BIGINT NOT NULL DEFAULT 0 CHECK (fine >= 0)
		)`,
	},
	{
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_status ON transactions (user_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_book_status ON transactions (book_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_due_active ON transactions (due_date) WHERE status = 'borrowed'`,
		`CREATE INDEX IF NOT EXISTS idx_books_category ON books (category)`,
	},
}

// CurrentVersion reads the recorded schema version, 0 for a fresh database
func CurrentVersion(ctx context.Context, db *sqlx.DB) (int, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return 0, fmt.Errorf("create meta table: %w", err)
	}

	var value string
	err := db.GetContext(ctx, &value, `SELECT value FROM meta WHERE key = 'schema_version'`)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}

	version, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("corrupt schema version %q: %w", value, err)
	}
	return version, nil
}

// Migrate applies every pending migration in one transaction
func Migrate(ctx context.Context, db *sqlx.DB) error {
	current, err := CurrentVersion(ctx, db)
	if err != nil {
		return err
	}
	if current >= SchemaVersion {
		return nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for version := current; version < SchemaVersion; version++ {
		for _, stmt := range migrations[version] {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %d: %w", version+1, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('schema_version', $1)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		strconv.Itoa(SchemaVersion),
	); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}

	log.Printf("[DATABASE] Schema migrated from version %d to %d", current, SchemaVersion)
	return nil
}
