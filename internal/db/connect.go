package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB, tunes the pool and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:jupyter.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/jupyter?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// One writer; also keeps a shared in-memory database alive across calls.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := EnsureSchema(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema applies the idempotent CREATE IF NOT EXISTS script for driver.
func EnsureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	default:
		return fmt.Errorf("unsupported driver: %s", driver)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		// Some drivers reject multi-statement scripts.
		for _, stmt := range strings.Split(schema, ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, e := db.ExecContext(ctx, stmt); e != nil {
				return fmt.Errorf("schema: %w", e)
			}
		}
	}
	return nil
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS jupyter (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  course INTEGER NOT NULL,
  context_id INTEGER NOT NULL,
  name TEXT NOT NULL DEFAULT '',
  autograded INTEGER NOT NULL DEFAULT 0,
  assignment TEXT,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS jupyter_questions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  jupyter INTEGER NOT NULL REFERENCES jupyter(id) ON DELETE CASCADE,
  questionnr INTEGER NOT NULL,
  maxpoints REAL NOT NULL,
  UNIQUE (jupyter, questionnr)
);

CREATE TABLE IF NOT EXISTS jupyter_questions_points (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  jupyter INTEGER NOT NULL REFERENCES jupyter(id) ON DELETE CASCADE,
  userid TEXT NOT NULL,
  questionnr INTEGER NOT NULL,
  points REAL NOT NULL DEFAULT 0,
  updated_at INTEGER NOT NULL,
  UNIQUE (jupyter, userid, questionnr)
);

CREATE TABLE IF NOT EXISTS files (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  context_id INTEGER NOT NULL,
  component TEXT NOT NULL,
  filearea TEXT NOT NULL,
  itemid INTEGER NOT NULL DEFAULT 0,
  filename TEXT NOT NULL,
  contenthash TEXT NOT NULL,
  filesize INTEGER NOT NULL,
  created_at INTEGER NOT NULL,
  UNIQUE (context_id, component, filearea, itemid, filename)
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS jupyter (
  id BIGSERIAL PRIMARY KEY,
  course BIGINT NOT NULL,
  context_id BIGINT NOT NULL,
  name TEXT NOT NULL DEFAULT '',
  autograded BOOLEAN NOT NULL DEFAULT FALSE,
  assignment TEXT,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS jupyter_questions (
  id BIGSERIAL PRIMARY KEY,
  jupyter BIGINT NOT NULL REFERENCES jupyter(id) ON DELETE CASCADE,
  questionnr INTEGER NOT NULL,
  maxpoints DOUBLE PRECISION NOT NULL,
  UNIQUE (jupyter, questionnr)
);

CREATE TABLE IF NOT EXISTS jupyter_questions_points (
  id BIGSERIAL PRIMARY KEY,
  jupyter BIGINT NOT NULL REFERENCES jupyter(id) ON DELETE CASCADE,
  userid TEXT NOT NULL,
  questionnr INTEGER NOT NULL,
  points DOUBLE PRECISION NOT NULL DEFAULT 0,
  updated_at BIGINT NOT NULL,
  UNIQUE (jupyter, userid, questionnr)
);

CREATE TABLE IF NOT EXISTS files (
  id BIGSERIAL PRIMARY KEY,
  context_id BIGINT NOT NULL,
  component TEXT NOT NULL,
  filearea TEXT NOT NULL,
  itemid BIGINT NOT NULL DEFAULT 0,
  filename TEXT NOT NULL,
  contenthash TEXT NOT NULL,
  filesize BIGINT NOT NULL,
  created_at BIGINT NOT NULL,
  UNIQUE (context_id, component, filearea, itemid, filename)
);
`
