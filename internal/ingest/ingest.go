// Package ingest turns channel posts into stored content records.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"kinobot/internal/content"
	"kinobot/pkg/logx"
)

// Post is a channel post reduced to what ingestion looks at.
type Post struct {
	ChatID     int64
	MessageID  int
	Caption    string
	VideoID    string
	PhotoID    string // highest-resolution size
	DocumentID string
}

type Outcome int

const (
	Stored Outcome = iota
	SkippedNoAsset
	SkippedNoCaption
	SkippedSource
	RejectedParse
	RejectedDuplicate
)

func (o Outcome) String() string {
	switch o {
	case Stored:
		return "stored"
	case SkippedNoAsset:
		return "skipped_no_asset"
	case SkippedNoCaption:
		return "skipped_no_caption"
	case SkippedSource:
		return "skipped_source"
	case RejectedParse:
		return "rejected_parse"
	case RejectedDuplicate:
		return "rejected_duplicate"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

type Result struct {
	Outcome Outcome
	Record  content.Record // Stored only
	Err     error          // parse error for RejectedParse
}

// Store is the record persistence the pipeline needs.
type Store interface {
	FindByCode(ctx context.Context, code string, includeDeleted bool) (content.Record, error)
	Create(ctx context.Context, r content.Record) (content.Record, error)
}

// Notifier delivers operator messages. It never blocks on delivery and
// swallows its own failures.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

type Pipeline struct {
	store    Store
	notify   Notifier
	log      logx.Logger
	notFound error

	mu      sync.RWMutex
	sources map[int64]struct{}
}

// New builds a pipeline. notFound is the error store lookups return for a
// missing code. An empty sources list accepts posts from any channel.
func New(store Store, notify Notifier, notFound error, sources []int64, log logx.Logger) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Pipeline{store: store, notify: notify, log: log, notFound: notFound}
	p.SetSources(sources)
	return p
}

// SetSources replaces the channel allow-list.
func (p *Pipeline) SetSources(ids []int64) {
	var set map[int64]struct{}
	if len(ids) > 0 {
		set = make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
	}
	p.mu.Lock()
	p.sources = set
	p.mu.Unlock()
}

func (p *Pipeline) acceptsChat(id int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.sources == nil {
		return true
	}
	_, ok := p.sources[id]
	return ok
}

// Ingest processes one post. Posts that are not content (no asset, no
// caption, foreign channel) are skipped silently. Defective content posts
// are rejected and reported to the operator. The returned error is set
// only when storage fails.
func (p *Pipeline) Ingest(ctx context.Context, post Post) (Result, error) {
	log := p.log.With(logx.Int64("chat_id", post.ChatID), logx.Int("message_id", post.MessageID))

	if !p.acceptsChat(post.ChatID) {
		log.Debug("post from unlisted channel ignored")
		return Result{Outcome: SkippedSource}, nil
	}

	ref, kind, ok := pickAsset(post)
	if !ok {
		log.Debug("post without asset ignored")
		return Result{Outcome: SkippedNoAsset}, nil
	}
	if post.Caption == "" {
		log.Debug("post without caption ignored")
		return Result{Outcome: SkippedNoCaption}, nil
	}

	frag, err := content.ParseCaption(post.Caption)
	if err != nil {
		log.Info("caption rejected", logx.Err(err))
		p.notifyf(ctx, "⚠️ Caption format is invalid (%s) in %s. Post not saved.", parseReason(err), postRef(post))
		return Result{Outcome: RejectedParse, Err: err}, nil
	}

	if _, err := p.store.FindByCode(ctx, frag.Code, true); err == nil {
		return p.duplicate(ctx, log, post, frag), nil
	} else if !errors.Is(err, p.notFound) {
		p.notifyf(ctx, "❌ Error: %v", err)
		return Result{}, fmt.Errorf("ingest %s: %w", frag.Code, err)
	}

	rec, err := p.store.Create(ctx, content.NewRecord(frag, ref, kind))
	if errors.Is(err, content.ErrDuplicateCode) {
		return p.duplicate(ctx, log, post, frag), nil
	}
	if err != nil {
		p.notifyf(ctx, "❌ Error: %v", err)
		return Result{}, fmt.Errorf("ingest %s: %w", frag.Code, err)
	}

	log.Info("content stored", logx.String("code", rec.Code), logx.String("kind", string(rec.PayloadKind)))
	p.notifyf(ctx, "✅ Saved #%s — %s", rec.Code, rec.Title)
	return Result{Outcome: Stored, Record: rec}, nil
}

func (p *Pipeline) duplicate(ctx context.Context, log logx.Logger, post Post, frag content.Fragment) Result {
	log.Info("duplicate code rejected", logx.String("code", frag.Code))
	p.notifyf(ctx, "⚠️ Code %s already exists (%s). Post not saved.", frag.Code, postRef(post))
	return Result{Outcome: RejectedDuplicate, Err: content.ErrDuplicateCode}
}

func (p *Pipeline) notifyf(ctx context.Context, format string, args ...any) {
	if p.notify == nil {
		return
	}
	p.notify.Notify(ctx, fmt.Sprintf(format, args...))
}

// pickAsset prefers video, then photo, then document.
func pickAsset(post Post) (string, content.PayloadKind, bool) {
	switch {
	case strings.TrimSpace(post.VideoID) != "":
		return post.VideoID, content.KindVideo, true
	case strings.TrimSpace(post.PhotoID) != "":
		return post.PhotoID, content.KindPhoto, true
	case strings.TrimSpace(post.DocumentID) != "":
		return post.DocumentID, content.KindDocument, true
	}
	return "", "", false
}

func parseReason(err error) string {
	var pe *content.ParseError
	if errors.As(err, &pe) {
		if pe.Header != "" {
			return fmt.Sprintf("%s: %q", pe.Kind, pe.Header)
		}
		return pe.Kind.String()
	}
	return err.Error()
}

// postRef names the channel post in operator messages. Reports about
// different posts must never read the same, or the notifier dedups them.
func postRef(post Post) string {
	return fmt.Sprintf("post %d of chat %d", post.MessageID, post.ChatID)
}
