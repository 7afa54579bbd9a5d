package storage

import (
	"context"
	"fmt"

	"kinobot/internal/content"
)

// AddWatch saves code for userID. It reports false when the pair already
// exists.
func (s *Store) AddWatch(ctx context.Context, userID int64, code string) (bool, error) {
	res, err := s.exec(ctx,
		`INSERT INTO watchlist (user_id, code, added_at) VALUES (?,?,?)
		 ON CONFLICT(user_id, code) DO NOTHING`,
		userID, code, s.now().UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("add watch %d/%s: %w", userID, code, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RemoveWatch reports false when the pair did not exist.
func (s *Store) RemoveWatch(ctx context.Context, userID int64, code string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM watchlist WHERE user_id = ? AND code = ?`, userID, code)
	if err != nil {
		return false, fmt.Errorf("remove watch %d/%s: %w", userID, code, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Watchlist returns the user's saved records in the order they were
// added. Soft-deleted records are left out.
func (s *Store) Watchlist(ctx context.Context, userID int64) ([]content.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.code, r.title, r.category, r.description, r.payload_ref, r.payload_kind, r.is_deleted, r.created_at
		   FROM watchlist w JOIN records r ON r.code = w.code
		  WHERE w.user_id = ? AND r.is_deleted = 0
		  ORDER BY w.added_at, r.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list watchlist %d: %w", userID, err)
	}
	defer rows.Close()

	var out []content.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan watchlist row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
