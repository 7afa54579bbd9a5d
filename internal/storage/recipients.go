package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Recipient struct {
	ID        int64
	Username  string
	CreatedAt time.Time
}

// Recipients lists every recipient, newest first.
func (s *Store) Recipients(ctx context.Context) ([]Recipient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT telegram_id, username, created_at FROM recipients ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var (
			r        Recipient
			username sql.NullString
			created  int64
		)
		if err := rows.Scan(&r.ID, &username, &created); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		r.Username = username.String
		r.CreatedAt = time.UnixMilli(created)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	return out, nil
}

// RecipientIDs returns the id of every known recipient.
func (s *Store) RecipientIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT telegram_id FROM recipients`)
	if err != nil {
		return nil, fmt.Errorf("list recipient ids: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan recipient id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// UpsertRecipient inserts the recipient unless it already exists. It
// reports whether a row was created.
func (s *Store) UpsertRecipient(ctx context.Context, id int64, username string) (bool, error) {
	res, err := s.exec(ctx,
		`INSERT INTO recipients (telegram_id, username, created_at) VALUES (?,?,?)
		 ON CONFLICT(telegram_id) DO NOTHING`,
		id, nullStr(username), s.now().UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("upsert recipient %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RemoveRecipient deletes a recipient. Removing an unknown id is not an
// error.
func (s *Store) RemoveRecipient(ctx context.Context, id int64) error {
	if _, err := s.exec(ctx, `DELETE FROM recipients WHERE telegram_id = ?`, id); err != nil {
		return fmt.Errorf("remove recipient %d: %w", id, err)
	}
	return nil
}

func (s *Store) CountRecipients(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM recipients`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recipients: %w", err)
	}
	return n, nil
}
