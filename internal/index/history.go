package index

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// StatusRecord is one observed sync status of a game
type StatusRecord struct {
	Game          string
	Status        string
	LocalChecksum string
	DriveChecksum string
	DriveOwner    string
	RecordedAt    time.Time
}

func (r StatusRecord) sameAs(o StatusRecord) bool {
	return r.Game == o.Game &&
		r.Status == o.Status &&
		r.LocalChecksum == o.LocalChecksum &&
		r.DriveChecksum == o.DriveChecksum &&
		r.DriveOwner == o.DriveOwner
}

// RecordStatus appends rec unless it repeats the latest record of the game.
// It reports whether a row was written.
func (d *DB) RecordStatus(ctx context.Context, rec StatusRecord) (bool, error) {
	last, err := d.LastStatus(ctx, rec.Game)
	if err != nil {
		return false, err
	}
	if last != nil && last.sameAs(rec) {
		return false, nil
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO status_history (game, status, local_checksum, drive_checksum, drive_owner, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.Game, rec.Status, rec.LocalChecksum, rec.DriveChecksum, rec.DriveOwner, rec.RecordedAt.Unix())
	if err != nil {
		return false, err
	}
	return true, nil
}

// LastStatus returns the latest record of game, or nil
func (d *DB) LastStatus(ctx context.Context, game string) (*StatusRecord, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT game, status, local_checksum, drive_checksum, drive_owner, recorded_at
		FROM status_history WHERE game = ? ORDER BY id DESC LIMIT 1
	`, game)
	rec, err := scanStatus(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// History returns up to limit records of game, newest first
func (d *DB) History(ctx context.Context, game string, limit int) (records []StatusRecord, err error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT game, status, local_checksum, drive_checksum, drive_owner, recorded_at
		FROM status_history WHERE game = ? ORDER BY id DESC LIMIT ?
	`, game, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		rec, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func scanStatus(scanner interface {
	Scan(dest ...interface{}) error
}) (StatusRecord, error) {
	var rec StatusRecord
	var local, drive, owner sql.NullString
	var at int64
	if err := scanner.Scan(&rec.Game, &rec.Status, &local, &drive, &owner, &at); err != nil {
		return StatusRecord{}, err
	}
	rec.LocalChecksum = local.String
	rec.DriveChecksum = drive.String
	rec.DriveOwner = owner.String
	rec.RecordedAt = time.Unix(at, 0).UTC()
	return rec, nil
}
