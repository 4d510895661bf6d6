// Package store provides PostgreSQL persistence for the case pipeline.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store represents the database connection and operations.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new Store instance and opens a database connection.
func NewStore(connString string) (*Store, error) {
	db, err := sqlx.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if pingErr := db.Ping(); pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return &Store{db: db}, nil
}

// NewStoreFromDB constructs a Store from an existing *sql.DB. Useful for tests.
func NewStoreFromDB(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InitDB initializes the database schema from the SQL file.
func (s *Store) InitDB(ctx context.Context) error {
	sqlFilePath := filepath.Join("sql", "init.sql")
	sqlBytes, err := os.ReadFile(sqlFilePath)
	if err != nil {
		return fmt.Errorf("failed to read SQL file: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, string(sqlBytes)); err != nil {
		return fmt.Errorf("failed to execute init SQL: %w", err)
	}

	return nil
}
