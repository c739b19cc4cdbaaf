// Package store implements the broker's relational metadata store: durable
// exchanges, queues and bindings kept in a SQLite database (meta.db) and
// mirrored into in-memory indexes by the entity managers in package vhost.
// It is grounded on the original implementation's *Mapper classes
// (server/exchange.hpp, server/queue.hpp, server/binding.hpp), generalized
// from their embedded-engine SQL calls to Go's database/sql, wrapped with
// github.com/google/sqlcommenter so every mapper query carries a comment
// tagging the database driver; no entity or operation name is added.
package store

import (
	"database/sql"
	"fmt"

	"github.com/google/sqlcommenter/go/core"
	sqlc "github.com/google/sqlcommenter/go/database/sql"
	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver

	xlog "go.bryk.io/hive/log"
)

// commenterOptions is shared by every Open call; only the DB-driver tag is
// relevant here since there is no HTTP route/application context to embed.
var commenterOptions = core.CommenterOptions{
	Config: core.CommenterConfig{
		EnableDBDriver: true,
	},
}

// Store is the metadata database handle shared by the exchange, queue and
// binding mappers. Table creation failures are fatal to process startup per
// spec §4.1; all other mapper failures are logged and returned as errors
// without mutating in-memory state.
type Store struct {
	db  *sql.DB
	log xlog.Logger
}

// Open creates/opens the SQLite-backed metadata database at `path` and
// ensures the exchange/queue/binding tables exist. Table creation failure is
// fatal: the caller is expected to abort process startup.
func Open(path string, log xlog.Logger) (*Store, error) {
	db, err := sqlc.Open("sqlite3", path, commenterOptions)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	s := &Store{db: db, log: log}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("store: fatal: create tables: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS exchange (
			name TEXT PRIMARY KEY,
			type INTEGER NOT NULL,
			durable INTEGER NOT NULL,
			auto_delete INTEGER NOT NULL,
			args TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS queue (
			name TEXT PRIMARY KEY,
			durable INTEGER NOT NULL,
			exclusive INTEGER NOT NULL,
			auto_delete INTEGER NOT NULL,
			args TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS binding (
			exchange_name TEXT NOT NULL,
			queue_name TEXT NOT NULL,
			binding_key TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (exchange_name, queue_name)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// DropTables removes every metadata table; used by tests and by a clean
// re-bootstrap.
func (s *Store) DropTables() error {
	for _, name := range []string{"exchange", "queue", "binding"} {
		if _, err := s.db.Exec("DROP TABLE IF EXISTS " + name); err != nil {
			return err
		}
	}
	return nil
}
