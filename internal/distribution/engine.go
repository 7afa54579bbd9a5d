package distribution

import (
	"context"
	"sync"
	"time"

	"kinobot/internal/transport"
	"kinobot/pkg/logx"
)

const pruneTimeout = 10 * time.Second

type Engine struct {
	sender Sender
	prune  PruneFunc
	log    logx.Logger

	// sleep waits between chunks; tests replace it.
	sleep func(ctx context.Context, d time.Duration) error

	pruneWG sync.WaitGroup
}

func New(sender Sender, prune PruneFunc, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{sender: sender, prune: prune, log: log, sleep: sleepCtx}
}

// Distribute sends every item to every recipient. It never fails as a
// whole: per-recipient results go to the log, opts.Sink and the prune
// callback. Cancelling ctx stops further chunks from being scheduled while
// sends already issued run to completion.
func (e *Engine) Distribute(ctx context.Context, items []Item, recipients []Recipient, opts Options) {
	opts = opts.withDefaults()

	valid := make([]Item, 0, len(items))
	for i, it := range items {
		if err := it.Validate(); err != nil {
			e.log.Warn("distribution item skipped", logx.Int("item", i), logx.Err(err))
			continue
		}
		valid = append(valid, it)
	}
	if len(valid) == 0 || len(recipients) == 0 {
		e.log.Debug("distribution has nothing to do", logx.Int("items", len(valid)), logx.Int("recipients", len(recipients)))
		return
	}

	run := &run{
		engine:  e,
		items:   valid,
		opts:    opts,
		sendCtx: context.WithoutCancel(ctx),
		pruned:  map[int64]struct{}{},
	}

	start := time.Now()
	chunks := chunk(recipients, opts.ChunkSize)
	for i, c := range chunks {
		if ctx.Err() != nil {
			e.log.Warn("distribution cancelled", logx.Int("chunk", i), logx.Int("chunks", len(chunks)))
			return
		}
		run.chunk(c)
		if i == len(chunks)-1 {
			break
		}
		if err := e.sleep(ctx, opts.Pause); err != nil {
			e.log.Warn("distribution cancelled", logx.Int("chunk", i+1), logx.Int("chunks", len(chunks)))
			return
		}
	}
	e.log.Info("distribution finished",
		logx.Int("recipients", len(recipients)),
		logx.Int("items", len(valid)),
		logx.Int("chunks", len(chunks)),
		logx.Duration("dur", time.Since(start)),
	)
}

// Wait blocks until every prune started so far has returned or ctx ends.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.pruneWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type run struct {
	engine  *Engine
	items   []Item
	opts    Options
	sendCtx context.Context

	mu     sync.Mutex
	pruned map[int64]struct{}
}

func (r *run) chunk(recipients []Recipient) {
	var wg sync.WaitGroup
	wg.Add(len(recipients))
	for _, rc := range recipients {
		go func(rc Recipient) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					r.engine.log.Error("panic in distribution send", logx.Int64("recipient", rc.ID), logx.Any("panic", p))
				}
			}()
			r.serve(rc)
		}(rc)
	}
	wg.Wait()
}

// serve sends the items to one recipient in order. A permanent failure
// ends the recipient's run since later items cannot arrive either.
func (r *run) serve(rc Recipient) {
	for idx, it := range r.items {
		err := r.send(rc, it)
		o := Classify(err)
		if r.opts.Sink != nil {
			r.opts.Sink.Observe(rc, idx, o)
		}
		switch o.Kind {
		case Delivered:
		case TransientFailure:
			r.engine.log.Warn("distribution send failed",
				logx.Int64("recipient", rc.ID),
				logx.Int("item", idx),
				logx.String("reason", o.Reason),
			)
		case PermanentFailure:
			r.engine.log.Info("recipient unreachable",
				logx.Int64("recipient", rc.ID),
				logx.String("username", rc.Username),
				logx.String("reason", o.Reason),
			)
			r.pruneOnce(rc)
			return
		}
	}
}

func (r *run) send(rc Recipient, it Item) error {
	ctx, cancel := context.WithTimeout(r.sendCtx, r.opts.SendTimeout)
	defer cancel()

	to := transport.ChatTarget{ChatID: rc.ID}
	opt := &transport.SendOptions{ParseMode: r.opts.ParseMode}
	if m, ok := it.media(); ok {
		_, err := r.engine.sender.SendMedia(ctx, to, m, opt)
		return err
	}
	_, err := r.engine.sender.SendText(ctx, to, it.Text, opt)
	return err
}

func (r *run) pruneOnce(rc Recipient) {
	if r.engine.prune == nil {
		return
	}
	r.mu.Lock()
	if _, seen := r.pruned[rc.ID]; seen {
		r.mu.Unlock()
		return
	}
	r.pruned[rc.ID] = struct{}{}
	r.mu.Unlock()

	e := r.engine
	e.pruneWG.Add(1)
	go func() {
		defer e.pruneWG.Done()
		ctx, cancel := context.WithTimeout(r.sendCtx, pruneTimeout)
		defer cancel()
		if err := e.prune(ctx, rc.ID); err != nil {
			e.log.Warn("prune recipient failed", logx.Int64("recipient", rc.ID), logx.Err(err))
			return
		}
		e.log.Debug("recipient pruned", logx.Int64("recipient", rc.ID))
	}()
}

func chunk[T any](s []T, size int) [][]T {
	if size <= 0 || len(s) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(s)+size-1)/size)
	for size < len(s) {
		out = append(out, s[:size:size])
		s = s[size:]
	}
	return append(out, s)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
