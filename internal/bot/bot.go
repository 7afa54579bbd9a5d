// Package bot wires the user and owner commands onto the router.
package bot

import (
	"context"
	"sync"

	"kinobot/internal/access"
	"kinobot/internal/broadcast"
	"kinobot/internal/content"
	"kinobot/internal/ingest"
	"kinobot/internal/storage"
	"kinobot/internal/transport/telegram/router"
	"kinobot/internal/watchlist"
	"kinobot/pkg/logx"
)

// Store is the persistence the handlers use.
type Store interface {
	FindByCode(ctx context.Context, code string, includeDeleted bool) (content.Record, error)
	SetDeleted(ctx context.Context, code string, deleted bool) error
	CountRecords(ctx context.Context, includeDeleted bool) (int, error)

	Recipients(ctx context.Context) ([]storage.Recipient, error)
	RecipientIDs(ctx context.Context) ([]int64, error)
	UpsertRecipient(ctx context.Context, id int64, username string) (bool, error)
	RemoveRecipient(ctx context.Context, id int64) error
	CountRecipients(ctx context.Context) (int, error)

	AppendAudit(ctx context.Context, e storage.AuditEntry) error
	RecentAudit(ctx context.Context, limit int) ([]storage.AuditEntry, error)
	SaveForceJoin(ctx context.Context, cfg access.Config) error
}

// Broadcaster queues broadcast jobs.
type Broadcaster interface {
	Submit(j broadcast.Job) (string, error)
	Status(id string) (broadcast.JobStatus, bool)
	Latest() (broadcast.JobStatus, bool)
}

type Ingester interface {
	Ingest(ctx context.Context, post ingest.Post) (ingest.Result, error)
}

type Config struct {
	ContactURL string
	ParseMode  string // broadcast parse mode
}

type Deps struct {
	Store     Store
	Gate      *access.Gate
	ForceJoin *access.ForceJoin
	Watchlist *watchlist.Service
	Broadcast Broadcaster
	Ingest    Ingester
	Logger    logx.Logger
}

type Bot struct {
	store Store
	gate  *access.Gate
	force *access.ForceJoin
	watch *watchlist.Service
	bcast Broadcaster
	ing   Ingester
	log   logx.Logger

	mu  sync.RWMutex
	cfg Config

	knownMu sync.Mutex
	known   map[int64]struct{}
}

func New(cfg Config, d Deps) *Bot {
	log := d.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	if d.ForceJoin == nil {
		d.ForceJoin = access.NewForceJoin(access.Config{})
	}
	return &Bot{
		store: d.Store,
		gate:  d.Gate,
		force: d.ForceJoin,
		watch: d.Watchlist,
		bcast: d.Broadcast,
		ing:   d.Ingest,
		log:   log.With(logx.String("comp", "bot")),
		cfg:   cfg,
		known: map[int64]struct{}{},
	}
}

// Apply swaps the hot-reloadable settings.
func (b *Bot) Apply(cfg Config) {
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()
}

func (b *Bot) config() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

// Register installs the commands, callbacks and hooks on m.
func (b *Bot) Register(m *router.CommandManager) {
	m.SetTracker(b)
	m.SetTextHandler(b.onText)
	m.SetChannelPostHandler(b.onChannelPost)
	m.SetRegistry(b.Commands(), b.Callbacks())
}

func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{Route: "start", Description: "welcome message", Usage: "/start", Handle: b.gated(b.cmdStart)},
		{Route: "help", Description: "how to use the bot", Usage: "/help", Handle: b.cmdHelp},
		{Route: "save", Description: "save a code to your watchlist", Usage: "/save <code>", Handle: b.gated(b.cmdSave)},
		{Route: "watchlist", Aliases: []string{"list"}, Description: "show your watchlist", Usage: "/watchlist", Handle: b.gated(b.cmdWatchlist)},
		{Route: "remove", Description: "remove a code from your watchlist", Usage: "/remove <code>", Handle: b.gated(b.cmdRemove)},
		{Route: "stats", Description: "user statistics", Usage: "/stats", Handle: b.cmdStats},

		{Route: "broadcast", Description: "send text or a record to every user", Usage: "/broadcast <text | code [caption]>", Access: router.AccessOwnerOnly, Handle: b.cmdBroadcast},
		{Route: "bstatus", Description: "broadcast job status", Usage: "/bstatus [job]", Access: router.AccessOwnerOnly, Handle: b.cmdBroadcastStatus},
		{Route: "forceon", Description: "require joining channels", Usage: "/forceon @channel ...", Access: router.AccessOwnerOnly, Handle: b.cmdForceOn},
		{Route: "forceoff", Description: "drop required channels", Usage: "/forceoff [@channel ...]", Access: router.AccessOwnerOnly, Handle: b.cmdForceOff},
		{Route: "disable", Description: "hide a record", Usage: "/disable <code>", Access: router.AccessOwnerOnly, Handle: b.cmdDisable},
		{Route: "enable", Description: "restore a hidden record", Usage: "/enable <code>", Access: router.AccessOwnerOnly, Handle: b.cmdEnable},
		{Route: "audit", Description: "recent owner actions", Usage: "/audit [count]", Access: router.AccessOwnerOnly, Handle: b.cmdAudit},
	}
}

func (b *Bot) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Scope: statsScope, Action: statsPageAction, Handle: b.cbStatsPage},
	}
}
