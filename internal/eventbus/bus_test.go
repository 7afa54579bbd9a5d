package eventbus

import "testing"

func TestSubscribeFilters(t *testing.T) {
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	notes, unsubNotes := b.Subscribe(4, NotifierPrefix)
	defer unsubNotes()
	done, unsubDone := b.Subscribe(4, BroadcastFinished)
	defer unsubDone()

	b.Publish(Event{Type: BroadcastFinished})
	b.Publish(Event{Type: "notifier.sent"})

	if len(all) != 2 || len(notes) != 1 || len(done) != 1 {
		t.Fatalf("lens all=%d notes=%d done=%d", len(all), len(notes), len(done))
	}
	if e := <-notes; e.Type != "notifier.sent" || e.Time.IsZero() {
		t.Fatalf("notes got %+v", e)
	}
}

func TestWildcardFilter(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(2, "broadcast*")
	defer unsub()
	b.Publish(Event{Type: "broadcast.finished"})
	b.Publish(Event{Type: "notifier.failed"})
	if len(ch) != 1 {
		t.Fatalf("len = %d", len(ch))
	}
}

func TestFullBufferDrops(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	if b.Dropped() != 1 {
		t.Fatalf("dropped = %d", b.Dropped())
	}
	if e := <-ch; e.Type != "a" {
		t.Fatalf("kept %q, want the first event", e.Type)
	}

	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel open after unsubscribe")
	}
	b.Publish(Event{Type: "c"})
}
