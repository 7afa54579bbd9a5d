package report

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"kinobot/pkg/logx"
)

type fakeStats struct{ users, live, all int }

func (f fakeStats) CountRecipients(context.Context) (int, error) { return f.users, nil }

func (f fakeStats) CountRecords(_ context.Context, includeDeleted bool) (int, error) {
	if includeDeleted {
		return f.all, nil
	}
	return f.live, nil
}

type notifyLog struct {
	mu    sync.Mutex
	texts []string
}

func (n *notifyLog) Notify(_ context.Context, text string) {
	n.mu.Lock()
	n.texts = append(n.texts, text)
	n.mu.Unlock()
}

func TestRender(t *testing.T) {
	s := New(Config{}, fakeStats{users: 12345, live: 40, all: 42}, &notifyLog{}, logx.Nop())
	s.start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return s.start.Add(3 * 24 * time.Hour) }

	text, err := s.Render(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Users: 12,345", "Records: 40 (2 disabled)", "Up for 3 days"} {
		if !strings.Contains(text, want) {
			t.Fatalf("report %q missing %q", text, want)
		}
	}
}

func TestRunNotifies(t *testing.T) {
	n := &notifyLog{}
	s := New(Config{}, fakeStats{users: 1}, n, logx.Nop())
	s.run(context.Background())
	if len(n.texts) != 1 || !strings.Contains(n.texts[0], "Users: 1") {
		t.Fatalf("notified = %q", n.texts)
	}
}

func TestScheduleLifecycle(t *testing.T) {
	s := New(Config{StatsCron: "0 9 * * *", Location: time.UTC}, fakeStats{}, &notifyLog{}, logx.Nop())
	ctx := context.Background()

	s.Start(ctx)
	if s.c == nil || len(s.c.Entries()) != 1 {
		t.Fatal("report not scheduled")
	}
	next := s.c.Entries()[0].Next
	if next.Hour() != 9 || next.Minute() != 0 {
		t.Fatalf("next run = %v", next)
	}

	s.Apply(Config{StatsCron: "", Location: time.UTC})
	if s.c != nil {
		t.Fatal("empty schedule left cron running")
	}
	s.Apply(Config{StatsCron: "bad spec"})
	if s.c != nil {
		t.Fatal("invalid schedule registered")
	}
	s.Stop(ctx)
	if s.running {
		t.Fatal("still running after Stop")
	}
}
