package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kinobot/internal/content"
)

const recordColumns = `code, title, category, description, payload_ref, payload_kind, is_deleted, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc rowScanner) (content.Record, error) {
	var (
		r         content.Record
		category  sql.NullString
		desc      sql.NullString
		kind      string
		deleted   int
		createdAt int64
	)
	if err := sc.Scan(&r.Code, &r.Title, &category, &desc, &r.PayloadRef, &kind, &deleted, &createdAt); err != nil {
		return content.Record{}, err
	}
	r.Category = category.String
	r.Description = desc.String
	r.PayloadKind = content.PayloadKind(kind)
	r.IsDeleted = deleted != 0
	r.CreatedAt = time.UnixMilli(createdAt)
	return r, nil
}

// FindByCode returns ErrNotFound when no record has the code, or when the
// record is soft-deleted and includeDeleted is false.
func (s *Store) FindByCode(ctx context.Context, code string, includeDeleted bool) (content.Record, error) {
	q := `SELECT ` + recordColumns + ` FROM records WHERE code = ?`
	if !includeDeleted {
		q += ` AND is_deleted = 0`
	}
	r, err := scanRecord(s.db.QueryRowContext(ctx, q, code))
	if errors.Is(err, sql.ErrNoRows) {
		return content.Record{}, ErrNotFound
	}
	if err != nil {
		return content.Record{}, fmt.Errorf("find record %s: %w", code, err)
	}
	return r, nil
}

// Create inserts a new record. A code already in use, deleted or not,
// yields content.ErrDuplicateCode.
func (s *Store) Create(ctx context.Context, r content.Record) (content.Record, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	_, err := s.exec(ctx,
		`INSERT INTO records (`+recordColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		r.Code, r.Title, nullStr(r.Category), nullStr(r.Description), r.PayloadRef, string(r.PayloadKind), boolInt(r.IsDeleted), r.CreatedAt.UnixMilli(),
	)
	if isUniqueViolation(err) {
		return content.Record{}, fmt.Errorf("create record %s: %w", r.Code, content.ErrDuplicateCode)
	}
	if err != nil {
		return content.Record{}, fmt.Errorf("create record %s: %w", r.Code, err)
	}
	r.CreatedAt = time.UnixMilli(r.CreatedAt.UnixMilli())
	return r, nil
}

// Save overwrites the mutable fields of an existing record.
func (s *Store) Save(ctx context.Context, r content.Record) (content.Record, error) {
	res, err := s.exec(ctx,
		`UPDATE records SET title = ?, category = ?, description = ?, payload_ref = ?, payload_kind = ?, is_deleted = ? WHERE code = ?`,
		r.Title, nullStr(r.Category), nullStr(r.Description), r.PayloadRef, string(r.PayloadKind), boolInt(r.IsDeleted), r.Code,
	)
	if err != nil {
		return content.Record{}, fmt.Errorf("save record %s: %w", r.Code, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return content.Record{}, ErrNotFound
	}
	return s.FindByCode(ctx, r.Code, true)
}

// SetDeleted flips the soft-delete flag.
func (s *Store) SetDeleted(ctx context.Context, code string, deleted bool) error {
	res, err := s.exec(ctx, `UPDATE records SET is_deleted = ? WHERE code = ?`, boolInt(deleted), code)
	if err != nil {
		return fmt.Errorf("set deleted %s: %w", code, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CountRecords(ctx context.Context, includeDeleted bool) (int, error) {
	q := `SELECT COUNT(1) FROM records`
	if !includeDeleted {
		q += ` WHERE is_deleted = 0`
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
