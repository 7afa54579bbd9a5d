package distribution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kinobot/internal/content"
	"kinobot/internal/transport"
)

const (
	DefaultChunkSize   = 25
	DefaultPause       = time.Second
	DefaultSendTimeout = 30 * time.Second
)

var ErrEmptyItem = errors.New("distribution item has neither text nor payload")

// Item is one message sent to every recipient. Text is the body for text
// items and the caption for media items.
type Item struct {
	Text        string
	PayloadRef  string
	PayloadKind content.PayloadKind
}

func (it Item) Validate() error {
	if it.PayloadRef == "" && it.Text == "" {
		return ErrEmptyItem
	}
	if it.PayloadRef != "" {
		switch it.PayloadKind {
		case content.KindPhoto, content.KindVideo, content.KindDocument, content.KindAnimation:
		default:
			return fmt.Errorf("distribution item: unsupported payload kind %q", it.PayloadKind)
		}
	}
	return nil
}

func (it Item) media() (transport.Media, bool) {
	if it.PayloadRef == "" {
		return transport.Media{}, false
	}
	var kind transport.MediaKind
	switch it.PayloadKind {
	case content.KindPhoto:
		kind = transport.MediaPhoto
	case content.KindVideo:
		kind = transport.MediaVideo
	case content.KindDocument:
		kind = transport.MediaDocument
	case content.KindAnimation:
		kind = transport.MediaAnimation
	default:
		return transport.Media{}, false
	}
	return transport.Media{Kind: kind, FileID: it.PayloadRef, Caption: it.Text}, true
}

type Recipient struct {
	ID       int64
	Username string
}

type OutcomeKind int

const (
	Delivered OutcomeKind = iota
	TransientFailure
	PermanentFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case Delivered:
		return "delivered"
	case TransientFailure:
		return "transient"
	case PermanentFailure:
		return "permanent"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

// Classify maps a send error to an outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Outcome{Kind: Delivered}
	case errors.Is(err, transport.ErrRecipientUnreachable):
		return Outcome{Kind: PermanentFailure, Reason: err.Error()}
	default:
		return Outcome{Kind: TransientFailure, Reason: err.Error()}
	}
}

// Sender is the subset of the transport the engine needs.
type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
	SendMedia(ctx context.Context, to transport.ChatTarget, m transport.Media, opt *transport.SendOptions) (transport.MessageRef, error)
}

// PruneFunc removes a recipient that can no longer be reached. It may run
// concurrently with itself and must tolerate already-removed ids.
type PruneFunc func(ctx context.Context, recipientID int64) error

// Sink observes every per-recipient, per-item outcome. It is called from
// several goroutines at once.
type Sink interface {
	Observe(r Recipient, item int, o Outcome)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(r Recipient, item int, o Outcome)

func (f SinkFunc) Observe(r Recipient, item int, o Outcome) { f(r, item, o) }

type Options struct {
	// ParseMode applies to every item of the run ("HTML", "Markdown", or empty).
	ParseMode   string
	ChunkSize   int
	Pause       time.Duration
	SendTimeout time.Duration
	Sink        Sink
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Pause < 0 {
		o.Pause = 0
	} else if o.Pause == 0 {
		o.Pause = DefaultPause
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = DefaultSendTimeout
	}
	return o
}
