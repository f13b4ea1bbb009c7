package index

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PageToken returns the stored change cursor of service. ok is false when
// none was saved yet.
func (d *DB) PageToken(ctx context.Context, service string) (token string, ok bool, err error) {
	row := d.db.QueryRowContext(ctx, `SELECT page_token FROM change_cursors WHERE service = ?`, service)
	if err := row.Scan(&token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return token, true, nil
}

// SetPageToken stores the change cursor of service
func (d *DB) SetPageToken(ctx context.Context, service, token string, at time.Time) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO change_cursors (service, page_token, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(service) DO UPDATE SET
			page_token=excluded.page_token,
			updated_at=excluded.updated_at
	`, service, token, at.Unix())
	return err
}

// ClearPageToken forgets the cursor so the next poll starts from now
func (d *DB) ClearPageToken(ctx context.Context, service string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM change_cursors WHERE service = ?`, service)
	return err
}
