package database

import (
	"context"
	"fmt"
	"strings"
)

// migration defines a single idempotent schema migration.
type migration struct {
	name  string
	sql   string
	check string // query that returns true if the migration is already applied
}

// migrations is the ordered list of schema migrations to apply.
// Each must be idempotent (use IF NOT EXISTS, IF EXISTS, etc.).
var migrations = []migration{
	{
		name: "create accounts",
		sql: `CREATE TABLE IF NOT EXISTS accounts (
    user_id    text PRIMARY KEY,
    balance    bigint NOT NULL DEFAULT 0 CHECK (balance >= 0),
    created_at timestamptz NOT NULL DEFAULT now(),
    updated_at timestamptz NOT NULL DEFAULT now()
)`,
		check: `SELECT EXISTS (SELECT FROM pg_tables WHERE schemaname = 'public' AND tablename = 'accounts')`,
	},
	{
		name: "create ledger_entries",
		sql: `CREATE TABLE IF NOT EXISTS ledger_entries (
    id            bigserial PRIMARY KEY,
    user_id       text NOT NULL,
    run_id        text,
    kind          text NOT NULL,
    amount        bigint NOT NULL,
    balance_after bigint NOT NULL,
    description   text NOT NULL DEFAULT '',
    created_at    timestamptz NOT NULL DEFAULT now()
)`,
		check: `SELECT EXISTS (SELECT FROM pg_tables WHERE schemaname = 'public' AND tablename = 'ledger_entries')`,
	},
	{
		name:  "add ledger_entries run/kind unique index",
		sql:   `CREATE UNIQUE INDEX IF NOT EXISTS uq_ledger_entries_run_kind ON ledger_entries (run_id, kind) WHERE run_id IS NOT NULL`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'uq_ledger_entries_run_kind')`,
	},
	{
		name:  "add ledger_entries user index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_ledger_entries_user ON ledger_entries (user_id, created_at DESC)`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_ledger_entries_user')`,
	},
	{
		name: "create records",
		sql: `CREATE TABLE IF NOT EXISTS records (
    id          uuid PRIMARY KEY,
    user_id     text NOT NULL,
    run_id      text NOT NULL UNIQUE,
    flow        text NOT NULL,
    locale      text NOT NULL DEFAULT '',
    title       text NOT NULL DEFAULT '',
    source_text text NOT NULL DEFAULT '',
    transcript  jsonb,
    summary     jsonb,
    script      jsonb,
    audio_key   text NOT NULL DEFAULT '',
    credits     bigint NOT NULL DEFAULT 0,
    providers   jsonb,
    created_at  timestamptz NOT NULL DEFAULT now()
)`,
		check: `SELECT EXISTS (SELECT FROM pg_tables WHERE schemaname = 'public' AND tablename = 'records')`,
	},
	{
		name:  "add records user index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_records_user_created ON records (user_id, created_at DESC)`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_records_user_created')`,
	},
}

// Migrate runs all pending schema migrations.
// For each migration, it first checks whether the change is already present.
// If not, it attempts to apply it. If the apply fails (e.g. insufficient
// privileges), the error is returned and the caller should treat it as fatal.
func (db *DB) Migrate(ctx context.Context) error {
	var pending []migration
	for _, m := range migrations {
		if m.check != "" {
			var exists bool
			if err := db.Pool.QueryRow(ctx, m.check).Scan(&exists); err == nil && exists {
				continue
			}
		}
		pending = append(pending, m)
	}

	if len(pending) == 0 {
		db.log.Debug().Msg("schema up to date")
		return nil
	}

	applied := 0
	for _, m := range pending {
		if _, err := db.Pool.Exec(ctx, m.sql); err != nil {
			return &MigrationError{
				failed:  m,
				pending: pending[applied:],
				err:     err,
			}
		}
		db.log.Info().Str("migration", m.name).Msg("schema migration applied")
		applied++
	}
	db.log.Info().Int("applied", applied).Msg("schema migrations complete")
	return nil
}

// MigrationError is returned when a migration fails.
// It includes the SQL needed to apply all remaining migrations manually.
type MigrationError struct {
	failed  migration
	pending []migration
	err     error
}

func (e *MigrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migration %q failed: %v\n\n", e.failed.name, e.err)
	b.WriteString("Run the following SQL as a database superuser to fix this:\n\n")
	for _, m := range e.pending {
		fmt.Fprintf(&b, "  %s;\n", m.sql)
	}
	b.WriteString("\nThen restart audiocast.")
	return b.String()
}

func (e *MigrationError) Unwrap() error {
	return e.err
}
