package broadcast

import (
	"context"
	"sync/atomic"
	"time"

	"kinobot/internal/distribution"
	"kinobot/pkg/logx"
)

func (s *Service) worker(ctx context.Context, queue <-chan job) error {
	for {
		// stop wins over queued work
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case j := <-queue:
			s.execJob(ctx, j)
		}
	}
}

type counters struct {
	sent, failed, pruned atomic.Int64
}

func (c *counters) Observe(r distribution.Recipient, item int, o distribution.Outcome) {
	switch o.Kind {
	case distribution.Delivered:
		c.sent.Add(1)
	case distribution.TransientFailure:
		c.failed.Add(1)
	case distribution.PermanentFailure:
		c.pruned.Add(1)
	}
}

func (s *Service) execJob(ctx context.Context, j job) {
	start := time.Now()
	log := s.log.With(logx.String("job", j.id), logx.String("name", j.Name))

	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	s.update(j.id, func(st *JobStatus) {
		st.StartedAt = start
		st.Running = true
	})

	recipients, err := s.source.BroadcastRecipients(ctx)
	if err != nil {
		log.Error("broadcast recipients unavailable", logx.Err(err))
		s.finish(j, func(st *JobStatus) { st.Err = err.Error() })
		return
	}
	s.update(j.id, func(st *JobStatus) { st.Total = len(recipients) })
	log.Info("broadcast job started", logx.Int("total", len(recipients)), logx.Int("items", len(j.Items)))

	parseMode := cfg.ParseMode
	if j.ParseMode != "" {
		parseMode = j.ParseMode
	}
	c := &counters{}
	s.engine.Distribute(ctx, j.Items, recipients, distribution.Options{
		ParseMode:   parseMode,
		ChunkSize:   cfg.ChunkSize,
		Pause:       cfg.Pause,
		SendTimeout: cfg.SendTimeout,
		Sink:        c,
	})

	st := s.finish(j, func(st *JobStatus) {
		st.Sent = int(c.sent.Load())
		st.Failed = int(c.failed.Load())
		st.Pruned = int(c.pruned.Load())
		if ctx.Err() != nil {
			st.Err = "cancelled"
		}
	})
	fields := []logx.Field{
		logx.Int("total", st.Total),
		logx.Int("sent", st.Sent),
		logx.Int("failed", st.Failed),
		logx.Int("pruned", st.Pruned),
		logx.Duration("dur", time.Since(start)),
	}
	if st.Failed > 0 {
		log.Warn("broadcast job finished with failures", fields...)
	} else {
		log.Info("broadcast job finished", fields...)
	}
}

func (s *Service) finish(j job, fn func(*JobStatus)) JobStatus {
	now := time.Now()
	var out JobStatus
	s.update(j.id, func(st *JobStatus) {
		fn(st)
		st.DoneAt = now
		st.Running = false
		out = *st
	})
	s.pruneStatus(now)
	s.publish(out)
	if j.OnDone != nil {
		j.OnDone(out)
	}
	return out
}
