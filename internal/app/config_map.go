package app

import (
	"strconv"
	"strings"
	"time"

	"kinobot/internal/bot"
	"kinobot/internal/broadcast"
	"kinobot/internal/config"
	"kinobot/internal/distribution"
	"kinobot/internal/notifier"
	"kinobot/internal/report"
	"kinobot/internal/storage"
	"kinobot/pkg/logx"
)

// The mappers below run on configs that already passed config.Validate,
// so duration errors are still returned but never expected.

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Path: strings.TrimSpace(cfg.Storage.Path), BusyTimeout: busy}, nil
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// logChatID returns the Telegram log group, or 0 when unset or malformed.
func logChatID(cfg *config.Config) int64 {
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := config.DefaultNotifier()
	if cfg.Notifier != nil {
		nc = *cfg.Notifier
	}
	retryBase, err := config.ParseDurationOrDefault("notifier.retry_base", nc.RetryBase, 500*time.Millisecond)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMax, err := config.ParseDurationOrDefault("notifier.retry_max_delay", nc.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	dedup, err := config.ParseDurationOrDefault("notifier.dedup_window", nc.DedupWindow, time.Minute)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:         nc.Enabled,
		Workers:         nc.Workers,
		QueueSize:       nc.QueueSize,
		RatePerSec:      nc.RatePerSec,
		RetryMax:        nc.RetryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMax,
		DedupWindow:     dedup,
		DedupMaxEntries: nc.DedupMaxEntries,
	}, nil
}

func mapBroadcastConfig(cfg *config.Config) (broadcast.Config, error) {
	d := cfg.Distribution
	pause, err := config.ParseDurationOrDefault("distribution.pause", d.Pause, distribution.DefaultPause)
	if err != nil {
		return broadcast.Config{}, err
	}
	sendTimeout, err := config.ParseDurationOrDefault("distribution.send_timeout", d.SendTimeout, distribution.DefaultSendTimeout)
	if err != nil {
		return broadcast.Config{}, err
	}
	return broadcast.Config{
		QueueSize:   d.QueueSize,
		ChunkSize:   d.ChunkSize,
		Pause:       pause,
		SendTimeout: sendTimeout,
		ParseMode:   d.ParseMode,
	}, nil
}

func mapBotConfig(cfg *config.Config) bot.Config {
	return bot.Config{
		ContactURL: strings.TrimSpace(cfg.Bot.ContactURL),
		ParseMode:  cfg.Distribution.ParseMode,
	}
}

func mapReportConfig(cfg *config.Config) (report.Config, error) {
	loc, err := config.LoadLocation(cfg.Reports.Timezone)
	if err != nil {
		return report.Config{}, err
	}
	return report.Config{StatsCron: cfg.Reports.StatsCron, Location: loc}, nil
}
