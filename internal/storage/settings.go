package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"kinobot/internal/access"
)

const forceJoinKey = "force_join"

// Setting returns the stored value and whether the key exists.
func (s *Store) Setting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.exec(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?,?,?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

// LoadForceJoin returns the saved force-join policy. ok is false when
// nothing was ever saved.
func (s *Store) LoadForceJoin(ctx context.Context) (cfg access.Config, ok bool, err error) {
	raw, ok, err := s.Setting(ctx, forceJoinKey)
	if err != nil || !ok {
		return access.Config{}, false, err
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return access.Config{}, false, fmt.Errorf("decode force join setting: %w", err)
	}
	return cfg, true, nil
}

func (s *Store) SaveForceJoin(ctx context.Context, cfg access.Config) error {
	if cfg.Channels == nil {
		cfg.Channels = []string{}
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.PutSetting(ctx, forceJoinKey, string(b))
}
