package bot

import (
	"context"
	"fmt"

	"kinobot/internal/distribution"
	"kinobot/pkg/logx"
)

// Preload fills the known-user set from storage so Track does not hit the
// database for users seen in earlier runs.
func (b *Bot) Preload(ctx context.Context) error {
	ids, err := b.store.RecipientIDs(ctx)
	if err != nil {
		return fmt.Errorf("preload recipients: %w", err)
	}
	b.knownMu.Lock()
	for _, id := range ids {
		b.known[id] = struct{}{}
	}
	n := len(b.known)
	b.knownMu.Unlock()
	b.log.Info("recipients cached", logx.Int("count", n))
	return nil
}

// Track records userID as a recipient the first time it is seen.
func (b *Bot) Track(ctx context.Context, userID int64, username string) {
	if userID <= 0 {
		return
	}
	b.knownMu.Lock()
	if _, ok := b.known[userID]; ok {
		b.knownMu.Unlock()
		return
	}
	b.known[userID] = struct{}{}
	b.knownMu.Unlock()

	created, err := b.store.UpsertRecipient(ctx, userID, username)
	if err != nil {
		b.forget(userID)
		b.log.Warn("recipient upsert failed", logx.Int64("user_id", userID), logx.Err(err))
		return
	}
	if created {
		b.log.Debug("new recipient", logx.Int64("user_id", userID), logx.String("username", username))
	}
}

func (b *Bot) forget(userID int64) {
	b.knownMu.Lock()
	delete(b.known, userID)
	b.knownMu.Unlock()
}

// BroadcastRecipients lists the current audience, newest first.
func (b *Bot) BroadcastRecipients(ctx context.Context) ([]distribution.Recipient, error) {
	rs, err := b.store.Recipients(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]distribution.Recipient, 0, len(rs))
	for _, r := range rs {
		out = append(out, distribution.Recipient{ID: r.ID, Username: r.Username})
	}
	return out, nil
}

// Prune removes an unreachable recipient. A user who later talks to the
// bot again is tracked anew.
func (b *Bot) Prune(ctx context.Context, userID int64) error {
	if err := b.store.RemoveRecipient(ctx, userID); err != nil {
		return err
	}
	b.forget(userID)
	b.log.Info("recipient pruned", logx.Int64("user_id", userID))
	return nil
}
