package config

type Config struct {
	Telegram     TelegramConfig     `json:"telegram"`
	Logging      LoggingConfig      `json:"logging"`
	Storage      StorageConfig      `json:"storage"`
	Content      ContentConfig      `json:"content,omitempty"`
	Distribution DistributionConfig `json:"distribution,omitempty"`

	// Notifier may be omitted; the runtime then uses DefaultNotifier.
	Notifier  *NotifierConfig `json:"notifier,omitempty"`
	ForceJoin ForceJoinConfig `json:"force_join,omitempty"`
	Reports   ReportsConfig   `json:"reports,omitempty"`
	Bot       BotConfig       `json:"bot,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig points at the sqlite database file.
//
// Example:
//
//	"storage": { "path": "./data/kinobot.db", "busy_timeout": "5s" }
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// ContentConfig restricts which channels may feed the catalogue.
// An empty list accepts posts from any channel the bot is admin of.
type ContentConfig struct {
	SourceChannels []int64 `json:"source_channels,omitempty"`
}

// DistributionConfig shapes broadcast fan-out. Zero values fall back to
// the engine defaults (25 per chunk, 1s pause, 30s per send).
type DistributionConfig struct {
	ChunkSize   int    `json:"chunk_size,omitempty"`
	Pause       string `json:"pause,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
	ParseMode   string `json:"parse_mode,omitempty"`
	QueueSize   int    `json:"queue_size,omitempty"`
}

// NotifierConfig controls the async operator notification pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
}

// DefaultNotifier is used when the notifier section is omitted.
func DefaultNotifier() NotifierConfig {
	return NotifierConfig{
		Enabled:         true,
		Workers:         2,
		QueueSize:       512,
		RatePerSec:      3,
		RetryMax:        3,
		RetryBase:       "500ms",
		RetryMaxDelay:   "10s",
		DedupWindow:     "1m",
		DedupMaxEntries: 2000,
	}
}

// ForceJoinConfig seeds the mandatory-subscription list. Once the bot has
// saved its own state in storage, this section is ignored.
type ForceJoinConfig struct {
	Channels []string `json:"channels,omitempty"`
}

// ReportsConfig schedules the daily stats report. An empty StatsCron
// disables it.
type ReportsConfig struct {
	StatsCron string `json:"stats_cron,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
}

type BotConfig struct {
	ContactURL string `json:"contact_url,omitempty"`
}
