package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"kinobot/internal/access"
	"kinobot/internal/content"
	"kinobot/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "data", "kinobot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	frag, err := content.ParseCaption("12 - Title\nCategory: Action\nDescription: Line1\nExtra line2")
	if err != nil {
		t.Fatalf("ParseCaption: %v", err)
	}
	if _, err := s.Create(ctx, content.NewRecord(frag, "file-1", content.KindVideo)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.FindByCode(ctx, "12", false)
	if err != nil {
		t.Fatalf("FindByCode: %v", err)
	}
	if got.Code != "12" || got.Title != "Title" || got.Category != "Action" || got.Description != "Line1\nExtra line2" {
		t.Fatalf("record = %+v", got)
	}
	if got.PayloadRef != "file-1" || got.PayloadKind != content.KindVideo || got.IsDeleted {
		t.Fatalf("payload = %+v", got)
	}
}

func TestCreateDuplicateCode(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := content.Record{Code: "7", Title: "First", PayloadRef: "a", PayloadKind: content.KindPhoto}
	if _, err := s.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.SetDeleted(ctx, "7", true); err != nil {
		t.Fatalf("SetDeleted: %v", err)
	}

	_, err := s.Create(ctx, content.Record{Code: "7", Title: "Second", PayloadRef: "b", PayloadKind: content.KindPhoto})
	if !errors.Is(err, content.ErrDuplicateCode) {
		t.Fatalf("Create duplicate = %v, want ErrDuplicateCode", err)
	}

	got, err := s.FindByCode(ctx, "7", true)
	if err != nil {
		t.Fatalf("FindByCode: %v", err)
	}
	if got.Title != "First" || !got.IsDeleted {
		t.Fatalf("existing record changed: %+v", got)
	}
	if _, err := s.FindByCode(ctx, "7", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindByCode(deleted, false) = %v, want ErrNotFound", err)
	}
}

func TestSetDeletedAndSave(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SetDeleted(ctx, "404", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetDeleted unknown = %v, want ErrNotFound", err)
	}
	if _, err := s.Create(ctx, content.Record{Code: "1", Title: "T", PayloadRef: "x", PayloadKind: content.KindDocument}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	rec, _ := s.FindByCode(ctx, "1", false)
	rec.Title = "New"
	saved, err := s.Save(ctx, rec)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Title != "New" {
		t.Fatalf("Save title = %q", saved.Title)
	}

	n, err := s.CountRecords(ctx, false)
	if err != nil || n != 1 {
		t.Fatalf("CountRecords = %d, %v", n, err)
	}
}

func TestRecipients(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for _, id := range []int64{10, 20, 30} {
		created, err := s.UpsertRecipient(ctx, id, "")
		if err != nil || !created {
			t.Fatalf("UpsertRecipient(%d) = %v, %v", id, created, err)
		}
	}
	if created, _ := s.UpsertRecipient(ctx, 20, "again"); created {
		t.Fatalf("second upsert must not create")
	}

	rs, err := s.Recipients(ctx)
	if err != nil {
		t.Fatalf("Recipients: %v", err)
	}
	if len(rs) != 3 || rs[0].ID != 30 || rs[2].ID != 10 {
		t.Fatalf("Recipients order = %+v, want newest first", rs)
	}
	if rs[1].Username != "" {
		t.Fatalf("existing recipient was updated: %+v", rs[1])
	}

	if err := s.RemoveRecipient(ctx, 20); err != nil {
		t.Fatalf("RemoveRecipient: %v", err)
	}
	if err := s.RemoveRecipient(ctx, 20); err != nil {
		t.Fatalf("RemoveRecipient twice: %v", err)
	}
	if n, _ := s.CountRecipients(ctx); n != 2 {
		t.Fatalf("CountRecipients = %d, want 2", n)
	}
	ids, _ := s.RecipientIDs(ctx)
	if len(ids) != 2 {
		t.Fatalf("RecipientIDs = %v", ids)
	}
}

func TestWatchlist(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, code := range []string{"1", "2"} {
		if _, err := s.Create(ctx, content.Record{Code: code, Title: "T" + code, PayloadRef: "f", PayloadKind: content.KindVideo}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if added, err := s.AddWatch(ctx, 5, "1"); err != nil || !added {
		t.Fatalf("AddWatch = %v, %v", added, err)
	}
	if added, _ := s.AddWatch(ctx, 5, "1"); added {
		t.Fatalf("AddWatch twice must report existing")
	}
	_, _ = s.AddWatch(ctx, 5, "2")
	_ = s.SetDeleted(ctx, "2", true)

	list, err := s.Watchlist(ctx, 5)
	if err != nil {
		t.Fatalf("Watchlist: %v", err)
	}
	if len(list) != 1 || list[0].Code != "1" {
		t.Fatalf("Watchlist = %+v, want only code 1", list)
	}

	if removed, _ := s.RemoveWatch(ctx, 5, "1"); !removed {
		t.Fatalf("RemoveWatch must report removal")
	}
	if removed, _ := s.RemoveWatch(ctx, 5, "1"); removed {
		t.Fatalf("RemoveWatch of absent pair must report false")
	}
}

func TestForceJoinSetting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.LoadForceJoin(ctx); err != nil || ok {
		t.Fatalf("LoadForceJoin on empty db = %v, %v", ok, err)
	}
	want := access.Config{Active: true, Channels: []string{"@a", "@b"}}
	if err := s.SaveForceJoin(ctx, want); err != nil {
		t.Fatalf("SaveForceJoin: %v", err)
	}
	got, ok, err := s.LoadForceJoin(ctx)
	if err != nil || !ok {
		t.Fatalf("LoadForceJoin = %v, %v", ok, err)
	}
	if !got.Active || len(got.Channels) != 2 || got.Channels[1] != "@b" {
		t.Fatalf("LoadForceJoin = %+v", got)
	}

	if err := s.SaveForceJoin(ctx, access.Config{}); err != nil {
		t.Fatalf("SaveForceJoin empty: %v", err)
	}
	got, ok, _ = s.LoadForceJoin(ctx)
	if !ok || got.Active || len(got.Channels) != 0 {
		t.Fatalf("cleared policy = %+v, ok=%v", got, ok)
	}
}

func TestAudit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AppendAudit(ctx, AuditEntry{ActorID: 1, Action: "broadcast", Target: "12", OK: 3, Fail: 1}); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
	got, err := s.RecentAudit(ctx, 5)
	if err != nil || len(got) != 1 {
		t.Fatalf("RecentAudit = %v, %v", got, err)
	}
	if got[0].Action != "broadcast" || got[0].OK != 3 || got[0].At.IsZero() {
		t.Fatalf("audit entry = %+v", got[0])
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kinobot.db")
	s, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.UpsertRecipient(context.Background(), 1, "u"); err != nil {
		t.Fatalf("UpsertRecipient: %v", err)
	}
	_ = s.Close()

	s, err = Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if n, _ := s.CountRecipients(context.Background()); n != 1 {
		t.Fatalf("CountRecipients after reopen = %d", n)
	}
}
