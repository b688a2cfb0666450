// Package database owns the sqlite connection and schema migrations for
// the transaction ledger.
package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens the sqlite ledger at path. Foreign keys are enforced and the
// connection pool is capped at one: imports interleave reads and writes in
// the same logical transaction and sqlite allows a single writer anyway.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	return db, nil
}
