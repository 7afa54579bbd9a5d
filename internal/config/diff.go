package config

import (
	"reflect"
	"sort"
	"strings"

	"kinobot/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging (never includes secrets like tokens).
// Sections listed in the second result need a restart to take effect.
func SummarizeConfigChange(oldCfg, newCfg *Config) (changed []string, restart []string, attrs []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	attrs = make([]logx.Field, 0, 16)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
		)
	}
	if oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) {
		restart = append(restart, "telegram")
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		restart = append(restart, "storage")
		attrs = append(attrs,
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Content, newCfg.Content) {
		changed = append(changed, "content")
		attrs = append(attrs, logx.Int("content.source_channels", len(newCfg.Content.SourceChannels)))
	}

	if oldCfg.Distribution != newCfg.Distribution {
		changed = append(changed, "distribution")
		attrs = append(attrs,
			logx.Int("distribution.chunk_size", newCfg.Distribution.ChunkSize),
			logx.String("distribution.pause", newCfg.Distribution.Pause),
			logx.String("distribution.send_timeout", newCfg.Distribution.SendTimeout),
			logx.String("distribution.parse_mode", newCfg.Distribution.ParseMode),
		)
	}

	// Notifier may be nil (omitted). Treat nil as runtime defaults.
	oldN, newN := DefaultNotifier(), DefaultNotifier()
	if oldCfg.Notifier != nil {
		oldN = *oldCfg.Notifier
	}
	if newCfg.Notifier != nil {
		newN = *newCfg.Notifier
	}
	if oldN != newN {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newN.Enabled),
			logx.Int("notifier.workers", newN.Workers),
			logx.Int("notifier.queue_size", newN.QueueSize),
			logx.Int("notifier.rate_per_sec", newN.RatePerSec),
			logx.Int("notifier.retry_max", newN.RetryMax),
		)
	}

	// Force-join seed only matters on an empty database.
	if !reflect.DeepEqual(oldCfg.ForceJoin, newCfg.ForceJoin) {
		changed = append(changed, "force_join")
		attrs = append(attrs, logx.Int("force_join.seed_channels", len(newCfg.ForceJoin.Channels)))
	}

	if oldCfg.Reports != newCfg.Reports {
		changed = append(changed, "reports")
		attrs = append(attrs,
			logx.String("reports.stats_cron", newCfg.Reports.StatsCron),
			logx.String("reports.timezone", newCfg.Reports.Timezone),
		)
	}

	if oldCfg.Bot != newCfg.Bot {
		changed = append(changed, "bot")
	}

	sort.Strings(changed)
	sort.Strings(restart)
	return changed, restart, attrs
}
