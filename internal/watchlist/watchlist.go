// Package watchlist keeps the codes each user saved for later.
package watchlist

import (
	"context"
	"errors"
	"fmt"

	"kinobot/internal/content"
	"kinobot/pkg/logx"
)

var (
	// ErrInvalidCode rejects input that is not "123" or "#123".
	ErrInvalidCode = errors.New("invalid code")
	// ErrUnknownCode is returned by Add for codes with no live record.
	ErrUnknownCode = errors.New("no such code")
)

// Store is the persistence the watchlist needs.
type Store interface {
	FindByCode(ctx context.Context, code string, includeDeleted bool) (content.Record, error)
	AddWatch(ctx context.Context, userID int64, code string) (bool, error)
	RemoveWatch(ctx context.Context, userID int64, code string) (bool, error)
	Watchlist(ctx context.Context, userID int64) ([]content.Record, error)
}

type Service struct {
	store    Store
	notFound error
	log      logx.Logger
}

// New returns a watchlist over store. notFound is the error store lookups
// return for a missing code.
func New(store Store, notFound error, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, notFound: notFound, log: log}
}

// Add saves code for userID and returns the saved record. added is false
// when the code was already on the list.
func (s *Service) Add(ctx context.Context, userID int64, raw string) (rec content.Record, added bool, err error) {
	code, ok := content.NormalizeCode(raw)
	if !ok {
		return content.Record{}, false, ErrInvalidCode
	}
	rec, err = s.store.FindByCode(ctx, code, false)
	if errors.Is(err, s.notFound) {
		return content.Record{}, false, ErrUnknownCode
	}
	if err != nil {
		return content.Record{}, false, fmt.Errorf("watch %s: %w", code, err)
	}
	added, err = s.store.AddWatch(ctx, userID, code)
	if err != nil {
		return content.Record{}, false, err
	}
	if added {
		s.log.Debug("watchlist add", logx.Int64("user_id", userID), logx.String("code", code))
	}
	return rec, added, nil
}

// Remove drops code from the user's list and reports whether it was there.
// Records deleted since they were saved can still be removed.
func (s *Service) Remove(ctx context.Context, userID int64, raw string) (string, bool, error) {
	code, ok := content.NormalizeCode(raw)
	if !ok {
		return "", false, ErrInvalidCode
	}
	removed, err := s.store.RemoveWatch(ctx, userID, code)
	return code, removed, err
}

// List returns the user's saved records that are still available.
func (s *Service) List(ctx context.Context, userID int64) ([]content.Record, error) {
	return s.store.Watchlist(ctx, userID)
}
