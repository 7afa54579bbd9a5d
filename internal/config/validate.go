package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"kinobot/internal/access"
)

// Validate checks the fields the bot cannot start without and every value
// that would otherwise fail later at apply time.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		add(errors.New("telegram.token is required"))
	}
	if len(cfg.Telegram.OwnerUserIDs) == 0 {
		add(errors.New("telegram.owner_user_ids must list at least one user"))
	}
	for i, id := range cfg.Telegram.OwnerUserIDs {
		if id <= 0 {
			add(fmt.Errorf("telegram.owner_user_ids[%d]: invalid user id %d", i, id))
		}
	}
	_, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	add(err)

	if strings.TrimSpace(cfg.Storage.Path) == "" {
		add(errors.New("storage.path is required"))
	}
	_, err = ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	add(err)

	d := cfg.Distribution
	if d.ChunkSize < 0 {
		add(fmt.Errorf("distribution.chunk_size must be >= 0"))
	}
	if d.QueueSize < 0 {
		add(fmt.Errorf("distribution.queue_size must be >= 0"))
	}
	_, err = ParseDurationField("distribution.pause", d.Pause)
	add(err)
	_, err = ParseDurationField("distribution.send_timeout", d.SendTimeout)
	add(err)
	switch strings.TrimSpace(d.ParseMode) {
	case "", "HTML", "Markdown", "MarkdownV2":
	default:
		add(fmt.Errorf("distribution.parse_mode: unsupported %q", d.ParseMode))
	}

	if n := cfg.Notifier; n != nil {
		_, err = ParseDurationField("notifier.retry_base", n.RetryBase)
		add(err)
		_, err = ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
		add(err)
		_, err = ParseDurationField("notifier.dedup_window", n.DedupWindow)
		add(err)
	}

	if len(cfg.ForceJoin.Channels) > 0 {
		if _, err := access.ParseChannels(cfg.ForceJoin.Channels); err != nil {
			add(fmt.Errorf("force_join.channels: %w", err))
		}
	}

	if spec := strings.TrimSpace(cfg.Reports.StatsCron); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			add(fmt.Errorf("reports.stats_cron: %w", err))
		}
	}
	if _, err := LoadLocation(cfg.Reports.Timezone); err != nil {
		add(fmt.Errorf("reports.timezone: %w", err))
	}

	return errors.Join(errs...)
}

// LoadLocation resolves a timezone name; empty means the host's local zone.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}
