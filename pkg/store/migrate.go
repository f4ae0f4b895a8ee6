package store

import (
	"database/sql"
	"fmt"
	"time"
)

type migration struct {
	version    int
	name       string
	statements []string
}

// migrations returns the ordered schema history for a dialect. New schema
// changes are appended, never edited in place.
func migrations(d dialect) []migration {
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	timestamp := "DATETIME"
	if d == dialectPostgres {
		idColumn = "BIGSERIAL PRIMARY KEY"
		timestamp = "TIMESTAMPTZ"
	}

	return []migration{
		{
			version: 1,
			name:    "create ledger tables",
			statements: []string{
				`CREATE TABLE IF NOT EXISTS clients (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					contact TEXT NOT NULL DEFAULT '',
					created_at ` + timestamp + ` NOT NULL
				)`,
				// Money is stored as TEXT so no precision is lost.
				`CREATE TABLE IF NOT EXISTS loans (
					id TEXT PRIMARY KEY,
					client_id TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
					principal TEXT,
					total_billed TEXT NOT NULL,
					installment_amount TEXT NOT NULL,
					installment_count INTEGER NOT NULL,
					installments_paid INTEGER NOT NULL DEFAULT 0,
					start_date DATE NOT NULL,
					next_due_date DATE NOT NULL,
					status TEXT NOT NULL DEFAULT 'active',
					created_at ` + timestamp + ` NOT NULL,
					updated_at ` + timestamp + ` NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS cash_balance (
					id INTEGER PRIMARY KEY,
					balance TEXT NOT NULL DEFAULT '0'
				)`,
				`CREATE TABLE IF NOT EXISTS history (
					id ` + idColumn + `,
					client_label TEXT NOT NULL,
					amount TEXT NOT NULL,
					detail TEXT NOT NULL,
					created_at ` + timestamp + ` NOT NULL
				)`,
			},
		},
		{
			version: 2,
			name:    "seed cash balance",
			statements: []string{
				`INSERT INTO cash_balance (id, balance) VALUES (1, '0') ON CONFLICT (id) DO NOTHING`,
			},
		},
		{
			version: 3,
			name:    "index active loans and history",
			statements: []string{
				`CREATE INDEX IF NOT EXISTS idx_loans_status_due ON loans(status, next_due_date)`,
				`CREATE INDEX IF NOT EXISTS idx_loans_client ON loans(client_id)`,
				`CREATE INDEX IF NOT EXISTS idx_history_created ON history(created_at)`,
			},
		},
	}
}

// Migrate brings the schema up to the latest version. Applied versions are
// recorded in schema_migrations, so running it again is a no-op.
func (s *SQLStore) Migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at ` + s.timestampType() + ` NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	current, err := s.SchemaVersion()
	if err != nil {
		return err
	}

	for _, m := range migrations(s.dialect) {
		if m.version <= current {
			continue
		}
		if err := s.applyMigration(m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		s.log.WithField("version", m.version).Infof("Applied migration: %s", m.name)
	}
	return nil
}

// SchemaVersion returns the highest applied migration, 0 for an empty database.
func (s *SQLStore) SchemaVersion() (int, error) {
	var version sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}

func (s *SQLStore) applyMigration(m migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range m.statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	_, err = tx.Exec(rebind(s.dialect, `INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`),
		m.version, m.name, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record version: %w", err)
	}
	return tx.Commit()
}

func (s *SQLStore) timestampType() string {
	if s.dialect == dialectPostgres {
		return "TIMESTAMPTZ"
	}
	return "DATETIME"
}
