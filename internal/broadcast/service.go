package broadcast

import (
	"context"
	"time"

	"github.com/google/uuid"

	"kinobot/internal/eventbus"
	rtsup "kinobot/internal/runtime/supervisor"
	"kinobot/pkg/logx"
)

func New(cfg Config, engine Distributor, source RecipientSource, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	return &Service{
		cfg:       cfg,
		engine:    engine,
		source:    source,
		bus:       bus,
		log:       log,
		newID:     func() string { return uuid.NewString()[:8] },
		queue:     make(chan job, cfg.QueueSize),
		status:    map[string]*JobStatus{},
		statusMax: 200,
		statusTTL: 24 * time.Hour,
	}
}

// Apply updates the delivery envelope for jobs that start later. The
// queue size is fixed at construction.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	cfg.QueueSize = s.cfg.QueueSize
	s.cfg = cfg
	s.mu.Unlock()
}

// Start launches the single worker. Jobs never overlap.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	s.running = true
	q := s.queue
	s.sup.GoRestart("worker", func(c context.Context) error {
		return s.worker(c, q)
	}, rtsup.WithStopOnCleanExit(true))
	s.log.Info("broadcaster started", logx.Int("queue_cap", cap(q)))
}

// Stop cancels the worker. A job in the middle of a run stops scheduling
// new chunks; queued jobs stay queued for a later Start.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.running = false
	s.mu.Unlock()
	if sup == nil {
		return
	}
	start := time.Now()
	if err := sup.Stop(ctx); err != nil && ctx.Err() != nil {
		s.log.Warn("broadcaster stop timed out", logx.Err(err))
		return
	}
	s.log.Info("broadcaster stopped", logx.Duration("took", time.Since(start)))
}

// Submit queues a job and returns its id.
func (s *Service) Submit(j Job) (string, error) {
	if len(j.Items) == 0 {
		return "", ErrNoItems
	}
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return "", ErrNotRunning
	}

	now := time.Now()
	id := s.newID()
	s.pruneStatus(now)
	s.statusMu.Lock()
	s.status[id] = &JobStatus{ID: id, Name: j.Name, CreatedAt: now}
	s.statusMu.Unlock()

	select {
	case s.queue <- job{id: id, Job: j}:
		s.log.Debug("broadcast job enqueued", logx.String("job", id), logx.String("name", j.Name), logx.Int("queue_len", len(s.queue)))
		return id, nil
	default:
		s.log.Warn("broadcast queue full; dropping job", logx.String("job", id), logx.String("name", j.Name))
		s.update(id, func(st *JobStatus) {
			st.DoneAt = time.Now()
			st.Err = ErrQueueFull.Error()
		})
		return id, ErrQueueFull
	}
}

func (s *Service) Status(id string) (JobStatus, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st, ok := s.status[id]
	if !ok {
		return JobStatus{}, false
	}
	return *st, true
}

// Latest returns the most recently created job.
func (s *Service) Latest() (JobStatus, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	var (
		best  *JobStatus
		found bool
	)
	for _, st := range s.status {
		if !found || st.CreatedAt.After(best.CreatedAt) {
			best, found = st, true
		}
	}
	if !found {
		return JobStatus{}, false
	}
	return *best, true
}

func (s *Service) update(id string, fn func(*JobStatus)) {
	s.statusMu.Lock()
	if st := s.status[id]; st != nil {
		fn(st)
	}
	s.statusMu.Unlock()
}

// pruneStatus drops finished entries older than the TTL, then the oldest
// finished entries until the map fits statusMax. Queued and running jobs stay.
func (s *Service) pruneStatus(now time.Time) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	for id, st := range s.status {
		if !st.DoneAt.IsZero() && now.Sub(st.CreatedAt) > s.statusTTL {
			delete(s.status, id)
		}
	}
	for len(s.status) >= s.statusMax {
		var (
			oldestID string
			oldest   time.Time
		)
		for id, st := range s.status {
			if st.DoneAt.IsZero() {
				continue
			}
			if oldestID == "" || st.CreatedAt.Before(oldest) {
				oldestID, oldest = id, st.CreatedAt
			}
		}
		if oldestID == "" {
			return
		}
		delete(s.status, oldestID)
	}
}

func (s *Service) publish(st JobStatus) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.BroadcastFinished, Time: st.DoneAt, Data: st})
}
