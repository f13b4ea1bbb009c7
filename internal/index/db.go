// Package index is the local sqlite database shared by the daemons: the
// Drive change cursor of the change watcher and a history of observed sync
// statuses.
package index

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type DB struct {
	db *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	instance := &DB{db: db}
	if err := instance.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return instance, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, schemaSQL)
	return err
}

const schemaSQL = `
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS change_cursors (
	service TEXT PRIMARY KEY,
	page_token TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS status_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	game TEXT NOT NULL,
	status TEXT NOT NULL,
	local_checksum TEXT,
	drive_checksum TEXT,
	drive_owner TEXT,
	recorded_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_status_game ON status_history(game, id);
`
