package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// InitSQLite opens the SQLite database at dbPath and creates the snapshot
// schema. maxOpen caps the pool; zero leaves the driver default.
func InitSQLite(dbPath string, maxOpen int) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := createSchemas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schemas: %w", err)
	}

	return db, nil
}

// Amounts are TEXT so decimals survive the round trip exactly.
func createSchemas(db *sql.DB) error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS sim_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			tick INTEGER NOT NULL,
			fed_pool TEXT NOT NULL,
			discount_rate TEXT NOT NULL,
			reserve_ratio TEXT NOT NULL,
			bank_count INTEGER NOT NULL,
			taken_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS banks (
			registered_id INTEGER PRIMARY KEY,
			id INTEGER NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			reserve TEXT NOT NULL,
			loans TEXT NOT NULL,
			deposit TEXT NOT NULL,
			equity TEXT NOT NULL,
			total TEXT NOT NULL,
			loan_rate TEXT NOT NULL,
			deposit_rate TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS households (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			cash TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS relations (
			holder_id INTEGER NOT NULL,
			counterparty_id INTEGER NOT NULL,
			payable TEXT NOT NULL,
			receivable TEXT NOT NULL,
			PRIMARY KEY (holder_id, counterparty_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_relations_counterparty ON relations(counterparty_id);`,
	}

	for _, query := range schemas {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}
