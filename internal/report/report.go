// Package report sends the scheduled stats summary to the owners.
package report

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"

	"kinobot/pkg/logx"
)

const runTimeout = 30 * time.Second

// Config is the report schedule. An empty StatsCron disables the report.
type Config struct {
	StatsCron string
	Location  *time.Location
}

type Stats interface {
	CountRecipients(ctx context.Context) (int, error)
	CountRecords(ctx context.Context, includeDeleted bool) (int, error)
}

type Notifier interface {
	Notify(ctx context.Context, text string)
}

type Service struct {
	mu      sync.Mutex
	cfg     Config
	c       *cron.Cron
	parser  cron.Parser
	ctx     context.Context
	running bool

	stats  Stats
	notify Notifier
	log    logx.Logger
	start  time.Time
	now    func() time.Time
}

func New(cfg Config, stats Stats, notify Notifier, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		stats:  stats,
		notify: notify,
		log:    log.With(logx.String("comp", "report")),
		start:  time.Now(),
		now:    time.Now,
	}
}

// Apply reschedules a running service when the schedule changed.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := strings.TrimSpace(cfg.StatsCron) != strings.TrimSpace(s.cfg.StatsCron) || locName(cfg.Location) != locName(s.cfg.Location)
	s.cfg = cfg
	if s.running && changed {
		s.restartLocked()
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.ctx = ctx
	s.running = true
	s.restartLocked()
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.stopCronLocked(ctx)
	s.log.Info("report scheduler stopped")
}

func (s *Service) stopCronLocked(ctx context.Context) {
	if s.c == nil {
		return
	}
	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
	}
	s.c = nil
}

func (s *Service) restartLocked() {
	s.stopCronLocked(context.Background())
	spec := strings.TrimSpace(s.cfg.StatsCron)
	if spec == "" {
		s.log.Debug("daily report disabled")
		return
	}
	loc := s.cfg.Location
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.log})))
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := c.AddFunc(spec, func() { s.run(ctx) }); err != nil {
		s.log.Warn("invalid report schedule", logx.String("spec", spec), logx.Err(err))
		return
	}
	c.Start()
	s.c = c
	s.log.Info("report scheduled", logx.String("spec", spec), logx.String("tz", loc.String()))
}

func (s *Service) run(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, runTimeout)
	defer cancel()

	text, err := s.Render(ctx)
	if err != nil {
		s.log.Warn("report failed", logx.Err(err))
		return
	}
	s.notify.Notify(ctx, text)
}

// Render builds the report text.
func (s *Service) Render(ctx context.Context) (string, error) {
	users, err := s.stats.CountRecipients(ctx)
	if err != nil {
		return "", fmt.Errorf("count recipients: %w", err)
	}
	live, err := s.stats.CountRecords(ctx, false)
	if err != nil {
		return "", fmt.Errorf("count records: %w", err)
	}
	all, err := s.stats.CountRecords(ctx, true)
	if err != nil {
		return "", fmt.Errorf("count records: %w", err)
	}

	lines := []string{
		"📊 Daily report",
		"👥 Users: " + humanize.Comma(int64(users)),
		fmt.Sprintf("🎬 Records: %s (%s disabled)", humanize.Comma(int64(live)), humanize.Comma(int64(all-live))),
		"⏱ Up for " + strings.TrimSpace(humanize.RelTime(s.start, s.now(), "", "")),
	}
	return strings.Join(lines, "\n"), nil
}

func locName(l *time.Location) string {
	if l == nil {
		return ""
	}
	return l.String()
}

// cronLogger routes cron's own messages to logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Warn("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
