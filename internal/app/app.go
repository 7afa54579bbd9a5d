// Package app assembles kinobot's components and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kinobot/internal/access"
	"kinobot/internal/bot"
	"kinobot/internal/broadcast"
	"kinobot/internal/config"
	"kinobot/internal/distribution"
	"kinobot/internal/eventbus"
	"kinobot/internal/ingest"
	"kinobot/internal/notifier"
	"kinobot/internal/report"
	rtsup "kinobot/internal/runtime/supervisor"
	"kinobot/internal/storage"
	kit "kinobot/internal/transport"
	telegram "kinobot/internal/transport/telegram/adapter"
	"kinobot/internal/transport/telegram/router"
	"kinobot/internal/watchlist"
	"kinobot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store *storage.Store

	adapter *telegram.Adapter

	notif  *notifier.Service
	engine *distribution.Engine
	bcast  *broadcast.Service
	ingest *ingest.Pipeline
	report *report.Service
	bot    *bot.Bot
	cmdm   *router.CommandManager

	updates chan kit.Update
}

// recipientSource defers to the bot, which is built after the broadcaster.
type recipientSource func(ctx context.Context) ([]distribution.Recipient, error)

func (f recipientSource) BroadcastRecipients(ctx context.Context) ([]distribution.Recipient, error) {
	return f(ctx)
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// The Telegram sink warns when enabled without a target, so it starts
	// disabled and is switched on once the target is set.
	logCfg := mapLoggingConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	if id := logChatID(cfg); id != 0 {
		logSvc.SetTelegramTarget(id, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(logCfg)

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	a, err := build(cfgm, cfg, ad, logSvc, log, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func build(cfgm *config.ConfigManager, cfg *config.Config, ad *telegram.Adapter, logSvc *logx.Service, log logx.Logger, store *storage.Store) (*App, error) {
	fj, err := loadForceJoin(store, cfg, log)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")), bus)
	notif.SetOwners(cfg.Telegram.OwnerUserIDs)

	pipeline := ingest.New(store, notif, storage.ErrNotFound, cfg.Content.SourceChannels,
		log.With(logx.String("comp", "ingest")))

	var b *bot.Bot
	engine := distribution.New(ad, func(ctx context.Context, id int64) error {
		return b.Prune(ctx, id)
	}, log.With(logx.String("comp", "distribution")))

	bcfg, err := mapBroadcastConfig(cfg)
	if err != nil {
		return nil, err
	}
	bcast := broadcast.New(bcfg, engine, recipientSource(func(ctx context.Context) ([]distribution.Recipient, error) {
		return b.BroadcastRecipients(ctx)
	}), log.With(logx.String("comp", "broadcast")), bus)

	b = bot.New(mapBotConfig(cfg), bot.Deps{
		Store:     store,
		Gate:      access.NewGate(ad, log.With(logx.String("comp", "access"))),
		ForceJoin: fj,
		Watchlist: watchlist.New(store, storage.ErrNotFound, log.With(logx.String("comp", "watchlist"))),
		Broadcast: bcast,
		Ingest:    pipeline,
		Logger:    log.With(logx.String("comp", "bot")),
	})

	cmdm := router.NewCommandManager(log.With(logx.String("comp", "commands")), ad, cfg.Telegram.OwnerUserIDs)
	b.Register(cmdm)

	rcfg, err := mapReportConfig(cfg)
	if err != nil {
		return nil, err
	}
	rep := report.New(rcfg, store, notif, log)

	return &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		notif:   notif,
		engine:  engine,
		bcast:   bcast,
		ingest:  pipeline,
		report:  rep,
		bot:     b,
		cmdm:    cmdm,
		updates: make(chan kit.Update, 256),
	}, nil
}

// loadForceJoin prefers the state saved by the owner commands. The config
// list only seeds a fresh database.
func loadForceJoin(store *storage.Store, cfg *config.Config, log logx.Logger) (*access.ForceJoin, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	saved, ok, err := store.LoadForceJoin(ctx)
	if err != nil {
		return nil, fmt.Errorf("load force-join state: %w", err)
	}
	if ok {
		log.Info("force-join state restored", logx.Bool("active", saved.Active), logx.Strings("channels", saved.Channels))
		return access.NewForceJoin(saved), nil
	}
	if len(cfg.ForceJoin.Channels) == 0 {
		return access.NewForceJoin(access.Config{}), nil
	}
	channels, err := access.ParseChannels(cfg.ForceJoin.Channels)
	if err != nil {
		return nil, fmt.Errorf("force_join.channels: %w", err)
	}
	seed := access.Config{Active: true, Channels: channels}
	if err := store.SaveForceJoin(ctx, seed); err != nil {
		return nil, fmt.Errorf("save force-join seed: %w", err)
	}
	log.Info("force-join seeded from config", logx.Strings("channels", channels))
	return access.NewForceJoin(seed), nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	preCtx, cancel := context.WithTimeout(a.sup.Context(), 10*time.Second)
	err := a.bot.Preload(preCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("preload recipients: %w", err)
	}

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.notif.Start(a.sup.Context())
	a.bcast.Start(a.sup.Context())
	a.report.Start(a.sup.Context())

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("eventbus.log", a.logEvents)
	a.sup.Go0("config.reload", a.applyReloads)
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started")
	return nil
}

func (a *App) logEvents(ctx context.Context) {
	events, unsub := a.bus.Subscribe(64, eventbus.BroadcastFinished, eventbus.NotifierPrefix)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if st, ok := e.Data.(broadcast.JobStatus); ok {
				a.log.Info("broadcast finished",
					logx.String("job", st.ID),
					logx.String("name", st.Name),
					logx.Int("total", st.Total),
					logx.Int("sent", st.Sent),
					logx.Int("failed", st.Failed),
					logx.Int("pruned", st.Pruned),
					logx.Duration("took", st.DoneAt.Sub(st.StartedAt)),
				)
				continue
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

// applyReloads fans validated config changes out to the live components.
func (a *App) applyReloads(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// only the newest pending config matters
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					break drain
				}
			}
			a.apply(last, cfg)
			last = cfg
		}
	}
}

func (a *App) apply(prev, cfg *config.Config) {
	changed, restart, attrs := config.SummarizeConfigChange(prev, cfg)
	if len(changed) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.Strings("sections", restart))
	}

	a.logs.SetTelegramTarget(logChatID(cfg), cfg.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLoggingConfig(cfg))

	a.cmdm.SetOwners(cfg.Telegram.OwnerUserIDs)
	a.notif.SetOwners(cfg.Telegram.OwnerUserIDs)
	a.ingest.SetSources(cfg.Content.SourceChannels)
	a.bot.Apply(mapBotConfig(cfg))

	var errs []error
	if ncfg, err := mapNotifierConfig(cfg); err != nil {
		errs = append(errs, err)
	} else {
		a.notif.Apply(ncfg)
		if ncfg.Enabled {
			a.notif.Start(a.sup.Context())
		} else {
			stopCtx, cancel := context.WithTimeout(a.sup.Context(), 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		}
	}
	if bcfg, err := mapBroadcastConfig(cfg); err != nil {
		errs = append(errs, err)
	} else {
		a.bcast.Apply(bcfg)
	}
	if rcfg, err := mapReportConfig(cfg); err != nil {
		errs = append(errs, err)
	} else {
		a.report.Apply(rcfg)
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("config partially applied", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// step bounds one shutdown stage by max without extending ctx.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("report", time.Second, func(c context.Context) error { a.report.Stop(c); return nil })
	step("broadcast", 3*time.Second, func(c context.Context) error { a.bcast.Stop(c); return nil })
	step("prunes", 2*time.Second, a.engine.Wait)
	step("notifier", time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
