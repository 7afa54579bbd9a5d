package distribution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"kinobot/internal/content"
	"kinobot/internal/transport"
	"kinobot/pkg/logx"
)

type sent struct {
	chatID int64
	text   string
	media  transport.Media
	parse  string
}

type fakeSender struct {
	mu    sync.Mutex
	sends []sent
	fail  map[int64]error
}

func (f *fakeSender) record(s sent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, s)
	return f.fail[s.chatID]
}

func (f *fakeSender) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	return transport.MessageRef{ChatID: to.ChatID}, f.record(sent{chatID: to.ChatID, text: text, parse: opt.ParseMode})
}

func (f *fakeSender) SendMedia(ctx context.Context, to transport.ChatTarget, m transport.Media, opt *transport.SendOptions) (transport.MessageRef, error) {
	return transport.MessageRef{ChatID: to.ChatID}, f.record(sent{chatID: to.ChatID, media: m, parse: opt.ParseMode})
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

type pruneLog struct {
	mu  sync.Mutex
	ids []int64
}

func (p *pruneLog) prune(ctx context.Context, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
	return nil
}

func (p *pruneLog) snapshot() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := append([]int64(nil), p.ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func recipients(n int) []Recipient {
	out := make([]Recipient, n)
	for i := range out {
		out[i] = Recipient{ID: int64(i + 1)}
	}
	return out
}

func newTestEngine(s Sender, p PruneFunc) (*Engine, *[]int) {
	e := New(s, p, logx.Nop())
	var pauses []int
	if fs, ok := s.(*fakeSender); ok {
		e.sleep = func(ctx context.Context, d time.Duration) error {
			if d != DefaultPause {
				return fmt.Errorf("pause = %v, want %v", d, DefaultPause)
			}
			pauses = append(pauses, fs.count())
			return nil
		}
	}
	return e, &pauses
}

func TestDistributeChunksAndPauses(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 25, 26, 51} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			fs := &fakeSender{}
			e, pauses := newTestEngine(fs, nil)
			e.Distribute(context.Background(), []Item{{Text: "hi"}}, recipients(n), Options{})

			if fs.count() != n {
				t.Fatalf("sends = %d, want %d", fs.count(), n)
			}
			chunks := (n + DefaultChunkSize - 1) / DefaultChunkSize
			wantPauses := chunks - 1
			if chunks == 0 {
				wantPauses = 0
			}
			if len(*pauses) != wantPauses {
				t.Fatalf("pauses = %d, want %d", len(*pauses), wantPauses)
			}
			for i, seen := range *pauses {
				if want := (i + 1) * DefaultChunkSize; seen != want {
					t.Fatalf("pause %d after %d sends, want %d", i, seen, want)
				}
			}
		})
	}
}

func TestDistributePrunesBlockedRecipientOnce(t *testing.T) {
	t.Parallel()

	blocked := fmt.Errorf("telegram: Forbidden: bot was blocked by the user: %w", transport.ErrRecipientUnreachable)
	fs := &fakeSender{fail: map[int64]error{2: blocked}}
	pl := &pruneLog{}
	e, _ := newTestEngine(fs, pl.prune)

	rs := []Recipient{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 2}}
	items := []Item{{Text: "one"}, {Text: "two"}, {Text: "three"}}
	e.Distribute(context.Background(), items, rs, Options{})
	if err := e.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if got := pl.snapshot(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("pruned = %v, want [2]", got)
	}
	if got := fs.count(); got != 3+1+3+1 {
		t.Fatalf("sends = %d, want 8", got)
	}
}

func TestDistributeNeverPrunesTransientFailures(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{fail: map[int64]error{1: errors.New("Too Many Requests: retry after 3")}}
	pl := &pruneLog{}
	e, _ := newTestEngine(fs, pl.prune)

	var mu sync.Mutex
	kinds := map[OutcomeKind]int{}
	sink := SinkFunc(func(r Recipient, item int, o Outcome) {
		mu.Lock()
		kinds[o.Kind]++
		mu.Unlock()
	})
	e.Distribute(context.Background(), []Item{{Text: "a"}, {Text: "b"}}, recipients(2), Options{Sink: sink})
	_ = e.Wait(context.Background())

	if got := pl.snapshot(); len(got) != 0 {
		t.Fatalf("pruned = %v, want none", got)
	}
	if kinds[TransientFailure] != 2 || kinds[Delivered] != 2 {
		t.Fatalf("outcomes = %v", kinds)
	}
}

func TestDistributeSelectsPrimitiveByKind(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	e, _ := newTestEngine(fs, nil)
	items := []Item{
		{Text: "plain"},
		{Text: "cap", PayloadRef: "p1", PayloadKind: content.KindPhoto},
		{PayloadRef: "v1", PayloadKind: content.KindVideo},
		{PayloadRef: "d1", PayloadKind: content.KindDocument},
		{PayloadRef: "a1", PayloadKind: content.KindAnimation},
		{},
	}
	e.Distribute(context.Background(), items, recipients(1), Options{ParseMode: "HTML"})

	if len(fs.sends) != 5 {
		t.Fatalf("sends = %d, want 5 (empty item skipped)", len(fs.sends))
	}
	if fs.sends[0].text != "plain" || fs.sends[0].media.FileID != "" {
		t.Fatalf("first send = %+v, want text", fs.sends[0])
	}
	wantKinds := []transport.MediaKind{transport.MediaPhoto, transport.MediaVideo, transport.MediaDocument, transport.MediaAnimation}
	for i, k := range wantKinds {
		if got := fs.sends[i+1].media.Kind; got != k {
			t.Fatalf("send %d kind = %q, want %q", i+1, got, k)
		}
	}
	if fs.sends[1].media.Caption != "cap" {
		t.Fatalf("caption = %q", fs.sends[1].media.Caption)
	}
	for _, s := range fs.sends {
		if s.parse != "HTML" {
			t.Fatalf("parse mode = %q, want HTML", s.parse)
		}
	}
}

func TestDistributeStopsSchedulingAfterCancel(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	e := New(fs, nil, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	e.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	e.Distribute(ctx, []Item{{Text: "x"}}, recipients(60), Options{})

	if got := fs.count(); got != DefaultChunkSize {
		t.Fatalf("sends = %d, want only the first chunk", got)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	if Classify(nil).Kind != Delivered {
		t.Fatalf("nil error must be delivered")
	}
	if Classify(fmt.Errorf("x: %w", transport.ErrRecipientUnreachable)).Kind != PermanentFailure {
		t.Fatalf("wrapped unreachable must be permanent")
	}
	if o := Classify(errors.New("timeout")); o.Kind != TransientFailure || o.Reason != "timeout" {
		t.Fatalf("other error = %+v", o)
	}
}

func TestChunk(t *testing.T) {
	t.Parallel()

	got := chunk([]int{1, 2, 3, 4, 5}, 2)
	if len(got) != 3 || len(got[2]) != 1 || got[2][0] != 5 {
		t.Fatalf("chunk = %v", got)
	}
	if chunk([]int(nil), 25) != nil {
		t.Fatalf("empty input must give no chunks")
	}
}
