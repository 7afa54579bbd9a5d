package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"kinobot/internal/distribution"
	"kinobot/internal/eventbus"
	rtsup "kinobot/internal/runtime/supervisor"
	"kinobot/pkg/logx"
)

var (
	ErrQueueFull  = errors.New("broadcast queue full")
	ErrNotRunning = errors.New("broadcaster not running")
	ErrNoItems    = errors.New("broadcast has nothing to send")
)

type Config struct {
	QueueSize   int
	ChunkSize   int
	Pause       time.Duration
	SendTimeout time.Duration
	ParseMode   string
}

// RecipientSource lists the audience at the moment a job starts.
type RecipientSource interface {
	BroadcastRecipients(ctx context.Context) ([]distribution.Recipient, error)
}

// Distributor is the fan-out engine.
type Distributor interface {
	Distribute(ctx context.Context, items []distribution.Item, recipients []distribution.Recipient, opts distribution.Options)
}

// Job is a broadcast request. OnDone runs on the worker after the run.
type Job struct {
	Name      string
	Items     []distribution.Item
	ParseMode string // overrides Config.ParseMode when set
	OnDone    func(JobStatus)
}

// JobStatus counts sends, not recipients. Total is the audience size and
// is known once the job starts.
type JobStatus struct {
	ID        string
	Name      string
	Total     int
	Sent      int
	Failed    int
	Pruned    int
	CreatedAt time.Time
	StartedAt time.Time
	DoneAt    time.Time
	Running   bool
	Err       string
}

type job struct {
	id string
	Job
}

type Service struct {
	mu sync.Mutex

	cfg     Config
	engine  Distributor
	source  RecipientSource
	bus     eventbus.Bus
	log     logx.Logger
	newID   func() string
	queue   chan job
	sup     *rtsup.Supervisor
	running bool

	statusMu  sync.RWMutex
	status    map[string]*JobStatus
	statusMax int
	statusTTL time.Duration
}
