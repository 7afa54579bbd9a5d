package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"kinobot/internal/access"
	"kinobot/internal/broadcast"
	"kinobot/internal/content"
	"kinobot/internal/storage"
	kit "kinobot/internal/transport"
	"kinobot/internal/transport/telegram/router"
	"kinobot/internal/watchlist"
	"kinobot/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	texts []string
	media []kit.Media
	edits []string
	opts  []*kit.SendOptions
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	f.opts = append(f.opts, opt)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.texts)}, nil
}

func (f *fakeAdapter) SendMedia(_ context.Context, to kit.ChatTarget, m kit.Media, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media = append(f.media, m)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, _ kit.MessageRef, text string, _ *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeAdapter) AnswerCallback(context.Context, string, string) error { return nil }

func (f *fakeAdapter) ChatMember(context.Context, string, int64) (kit.MemberStatus, error) {
	return kit.MemberMember, nil
}

func (f *fakeAdapter) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

type fakeOracle map[string]kit.MemberStatus

func (o fakeOracle) ChatMember(_ context.Context, channel string, _ int64) (kit.MemberStatus, error) {
	st, ok := o[channel]
	if !ok {
		return "", errors.New("chat not found")
	}
	return st, nil
}

type fakeBroadcaster struct {
	jobs []broadcast.Job
	err  error
}

func (f *fakeBroadcaster) Submit(j broadcast.Job) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.jobs = append(f.jobs, j)
	return "job1", nil
}

func (f *fakeBroadcaster) Status(id string) (broadcast.JobStatus, bool) {
	if id != "job1" || len(f.jobs) == 0 {
		return broadcast.JobStatus{}, false
	}
	return broadcast.JobStatus{ID: id, Name: f.jobs[0].Name, Total: 3, Sent: 2, Failed: 1, Pruned: 1}, true
}

func (f *fakeBroadcaster) Latest() (broadcast.JobStatus, bool) { return f.Status("job1") }

// countingStore counts upserts that reach the database.
type countingStore struct {
	*storage.Store
	mu      sync.Mutex
	upserts int
}

func (c *countingStore) UpsertRecipient(ctx context.Context, id int64, username string) (bool, error) {
	c.mu.Lock()
	c.upserts++
	c.mu.Unlock()
	return c.Store.UpsertRecipient(ctx, id, username)
}

type fixture struct {
	bot   *Bot
	store *countingStore
	ad    *fakeAdapter
	bc    *fakeBroadcaster
	force *access.ForceJoin
}

func newFixture(t *testing.T, oracle fakeOracle) *fixture {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "kinobot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cs := &countingStore{Store: st}
	fx := &fixture{
		store: cs,
		ad:    &fakeAdapter{},
		bc:    &fakeBroadcaster{},
		force: access.NewForceJoin(access.Config{}),
	}
	fx.bot = New(Config{ContactURL: "https://t.me/admin", ParseMode: "HTML"}, Deps{
		Store:     cs,
		Gate:      access.NewGate(oracle, logx.Nop()),
		ForceJoin: fx.force,
		Watchlist: watchlist.New(st, storage.ErrNotFound, logx.Nop()),
		Broadcast: fx.bc,
		Logger:    logx.Nop(),
	})
	return fx
}

func (fx *fixture) req(from int64, owner bool, argText string) *router.Request {
	return &router.Request{
		Chat:         kit.ChatTarget{ChatID: from},
		FromID:       from,
		FromUsername: "user",
		MessageID:    77,
		Args:         strings.Fields(argText),
		ArgText:      argText,
		IsOwner:      owner,
		Adapter:      fx.ad,
		Logger:       logx.Nop(),
	}
}

func (fx *fixture) addRecord(t *testing.T, caption, ref string, kind content.PayloadKind) content.Record {
	t.Helper()
	frag, err := content.ParseCaption(caption)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := fx.store.Create(context.Background(), content.NewRecord(frag, ref, kind))
	if err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestTrackUpsertsOncePerUser(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	fx.bot.Track(ctx, 1, "a")
	fx.bot.Track(ctx, 1, "a")
	fx.bot.Track(ctx, 2, "")
	if fx.store.upserts != 2 {
		t.Fatalf("upserts = %d, want 2", fx.store.upserts)
	}
	if n, _ := fx.store.CountRecipients(ctx); n != 2 {
		t.Fatalf("recipients = %d", n)
	}

	if err := fx.bot.Prune(ctx, 1); err != nil {
		t.Fatal(err)
	}
	fx.bot.Track(ctx, 1, "a")
	if fx.store.upserts != 3 {
		t.Fatalf("pruned user not re-tracked: upserts = %d", fx.store.upserts)
	}

	rs, err := fx.bot.BroadcastRecipients(ctx)
	if err != nil || len(rs) != 2 {
		t.Fatalf("recipients = %+v %v", rs, err)
	}
}

func TestPreloadSkipsKnownUsers(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	if _, err := fx.store.Store.UpsertRecipient(ctx, 9, "old"); err != nil {
		t.Fatal(err)
	}
	if err := fx.bot.Preload(ctx); err != nil {
		t.Fatal(err)
	}
	fx.bot.Track(ctx, 9, "old")
	if fx.store.upserts != 0 {
		t.Fatalf("upserts = %d, want 0", fx.store.upserts)
	}
}

func TestCodeLookup(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	fx.addRecord(t, "#12 - Heat\nCategory: Crime", "vid-12", content.KindVideo)

	if err := fx.bot.onText(ctx, fx.req(5, false, "#12")); err != nil {
		t.Fatal(err)
	}
	if len(fx.ad.media) != 1 {
		t.Fatalf("media = %+v", fx.ad.media)
	}
	m := fx.ad.media[0]
	if m.Kind != kit.MediaVideo || m.FileID != "vid-12" || !strings.Contains(m.Caption, "🎬 Heat") || !strings.Contains(m.Caption, "🏷 Crime") {
		t.Fatalf("media = %+v", m)
	}

	if err := fx.store.SetDeleted(ctx, "12", true); err != nil {
		t.Fatal(err)
	}
	if err := fx.bot.onText(ctx, fx.req(5, false, "12")); err != nil {
		t.Fatal(err)
	}
	if fx.ad.last() != msgNotFound {
		t.Fatalf("reply = %q", fx.ad.last())
	}

	if err := fx.bot.onText(ctx, fx.req(5, false, "hello")); err != nil || len(fx.ad.texts) != 1 {
		t.Fatalf("plain text answered: %v %v", err, fx.ad.texts)
	}
}

func TestGateBlocksUntilJoined(t *testing.T) {
	fx := newFixture(t, fakeOracle{"@films": kit.MemberLeft, "@series": kit.MemberMember})
	ctx := context.Background()
	fx.force.Add("@films", "@series")

	start := fx.bot.gated(fx.bot.cmdStart)
	if err := start(ctx, fx.req(5, false, "")); err != nil {
		t.Fatal(err)
	}
	got := fx.ad.last()
	if !strings.Contains(got, "@films") || strings.Contains(got, "@series") {
		t.Fatalf("blocked reply = %q", got)
	}
	if fx.ad.opts[0] == nil || fx.ad.opts[0].ReplyMarkupAdapter == nil {
		t.Fatal("join buttons missing")
	}

	fx.force.Remove("@films")
	if err := start(ctx, fx.req(5, false, "")); err != nil {
		t.Fatal(err)
	}
	if fx.ad.last() != msgWelcome {
		t.Fatalf("reply = %q", fx.ad.last())
	}
}

func TestGateSkipsNonCodeText(t *testing.T) {
	fx := newFixture(t, fakeOracle{"@films": kit.MemberLeft})
	ctx := context.Background()
	fx.force.Add("@films")

	if err := fx.bot.onText(ctx, fx.req(5, false, "hello there")); err != nil {
		t.Fatal(err)
	}
	if len(fx.ad.texts) != 0 {
		t.Fatalf("small talk answered: %q", fx.ad.texts)
	}

	if err := fx.bot.onText(ctx, fx.req(5, false, "12")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(fx.ad.last(), "@films") {
		t.Fatalf("code lookup not gated: %q", fx.ad.last())
	}
}

func TestWatchlistCommands(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	fx.addRecord(t, "3: Ran", "p3", content.KindPhoto)

	steps := []struct {
		h    router.HandlerFunc
		arg  string
		want string
	}{
		{fx.bot.cmdSave, "", "Usage: /save"},
		{fx.bot.cmdSave, "3", "saved to your watchlist"},
		{fx.bot.cmdSave, "#3", "already in your watchlist"},
		{fx.bot.cmdSave, "4", msgNotFound},
		{fx.bot.cmdWatchlist, "", "<code>#3</code> Ran"},
		{fx.bot.cmdRemove, "3", "removed from your watchlist"},
		{fx.bot.cmdRemove, "3", "is not in your watchlist"},
		{fx.bot.cmdWatchlist, "", "empty"},
	}
	for i, s := range steps {
		if err := s.h(ctx, fx.req(8, false, s.arg)); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got := fx.ad.last(); !strings.Contains(got, s.want) {
			t.Fatalf("step %d: reply %q, want %q", i, got, s.want)
		}
	}
}

func TestBroadcastRecord(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	fx.addRecord(t, "42 - Tom & Jerry", "doc-42", content.KindDocument)

	if err := fx.bot.cmdBroadcast(ctx, fx.req(1, true, "42")); err != nil {
		t.Fatal(err)
	}
	if err := fx.bot.cmdBroadcast(ctx, fx.req(1, true, "#42  <b>Tonight</b> only")); err != nil {
		t.Fatal(err)
	}
	if err := fx.bot.cmdBroadcast(ctx, fx.req(1, true, "hello <i>all</i>")); err != nil {
		t.Fatal(err)
	}
	if len(fx.bc.jobs) != 3 {
		t.Fatalf("jobs = %d", len(fx.bc.jobs))
	}

	rendered := fx.bc.jobs[0].Items[0]
	if rendered.PayloadRef != "doc-42" || rendered.PayloadKind != content.KindDocument || !strings.Contains(rendered.Text, "Tom &amp; Jerry") {
		t.Fatalf("rendered item = %+v", rendered)
	}
	if custom := fx.bc.jobs[1].Items[0]; custom.Text != "<b>Tonight</b> only" {
		t.Fatalf("custom caption = %q", custom.Text)
	}
	if text := fx.bc.jobs[2].Items[0]; text.PayloadRef != "" || text.Text != "hello <i>all</i>" {
		t.Fatalf("text item = %+v", text)
	}
	if fx.bc.jobs[0].ParseMode != "HTML" {
		t.Fatalf("parse mode = %q", fx.bc.jobs[0].ParseMode)
	}

	fx.bc.jobs[0].OnDone(broadcast.JobStatus{ID: "job1", Name: "#42", Total: 3, Sent: 2, Failed: 1, Pruned: 1})
	if got := fx.ad.last(); !strings.Contains(got, "delivered 2 • failed 1 • pruned 1 of 3") {
		t.Fatalf("done report = %q", got)
	}
	entries, err := fx.store.RecentAudit(ctx, 10)
	if err != nil || len(entries) != 4 || entries[0].Action != "broadcast.done" || entries[0].OK != 2 {
		t.Fatalf("audit = %+v %v", entries, err)
	}
}

func TestBroadcastRejectsMissingRecord(t *testing.T) {
	fx := newFixture(t, nil)
	if err := fx.bot.cmdBroadcast(context.Background(), fx.req(1, true, "404")); err != nil {
		t.Fatal(err)
	}
	if len(fx.bc.jobs) != 0 || !strings.Contains(fx.ad.last(), "not found") {
		t.Fatalf("jobs = %d reply = %q", len(fx.bc.jobs), fx.ad.last())
	}
}

func TestBroadcastStatus(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	if err := fx.bot.cmdBroadcastStatus(ctx, fx.req(1, true, "")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(fx.ad.last(), "No such") {
		t.Fatalf("reply = %q", fx.ad.last())
	}
	if err := fx.bot.cmdBroadcast(ctx, fx.req(1, true, "hi")); err != nil {
		t.Fatal(err)
	}
	if err := fx.bot.cmdBroadcastStatus(ctx, fx.req(1, true, "job1")); err != nil {
		t.Fatal(err)
	}
	if got := fx.ad.last(); !strings.Contains(got, "<b>Delivered</b>: 2") || !strings.Contains(got, "<b>Pruned</b>: 1") {
		t.Fatalf("status = %q", got)
	}
}

func TestForceJoinCommands(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	if err := fx.bot.cmdForceOn(ctx, fx.req(1, true, "@films @x!")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(fx.ad.last(), "Nothing was changed") || fx.force.Snapshot().Enforced() {
		t.Fatalf("malformed accepted: %q", fx.ad.last())
	}

	if err := fx.bot.cmdForceOn(ctx, fx.req(1, true, "@films https://t.me/series")); err != nil {
		t.Fatal(err)
	}
	saved, ok, err := fx.store.LoadForceJoin(ctx)
	if err != nil || !ok || !saved.Active || strings.Join(saved.Channels, ",") != "@films,@series" {
		t.Fatalf("saved = %+v %v %v", saved, ok, err)
	}

	if err := fx.bot.cmdForceOn(ctx, fx.req(1, true, "films")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(fx.ad.last(), "already listed") {
		t.Fatalf("reply = %q", fx.ad.last())
	}

	if err := fx.bot.cmdForceOff(ctx, fx.req(1, true, "@films @nope")); err != nil {
		t.Fatal(err)
	}
	got := fx.ad.last()
	if !strings.Contains(got, "Removed: @films") || !strings.Contains(got, "Not found (never added): @nope") || !strings.Contains(got, "Remaining channels: @series") {
		t.Fatalf("forceoff reply = %q", got)
	}

	if err := fx.bot.cmdForceOff(ctx, fx.req(1, true, "")); err != nil {
		t.Fatal(err)
	}
	saved, _, _ = fx.store.LoadForceJoin(ctx)
	if saved.Active || len(saved.Channels) != 0 {
		t.Fatalf("after clear = %+v", saved)
	}
}

func TestDisableEnable(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	fx.addRecord(t, "5 - Alien", "v5", content.KindVideo)

	if err := fx.bot.cmdDisable(ctx, fx.req(1, true, "#5")); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.store.FindByCode(ctx, "5", false); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("disabled record still visible: %v", err)
	}
	if err := fx.bot.cmdEnable(ctx, fx.req(1, true, "5")); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.store.FindByCode(ctx, "5", false); err != nil {
		t.Fatalf("enabled record hidden: %v", err)
	}
	if err := fx.bot.cmdDisable(ctx, fx.req(1, true, "99")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(fx.ad.last(), "Record 99 not found") {
		t.Fatalf("reply = %q", fx.ad.last())
	}
}

func TestAuditListsOwnerActions(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	if err := fx.bot.cmdAudit(ctx, fx.req(1, true, "")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(fx.ad.last(), "No owner actions") {
		t.Fatalf("empty audit = %q", fx.ad.last())
	}

	fx.addRecord(t, "5 - Alien", "v5", content.KindVideo)
	if err := fx.bot.cmdDisable(ctx, fx.req(1, true, "5")); err != nil {
		t.Fatal(err)
	}
	if err := fx.bot.cmdEnable(ctx, fx.req(1, true, "5")); err != nil {
		t.Fatal(err)
	}

	if err := fx.bot.cmdAudit(ctx, fx.req(1, true, "1")); err != nil {
		t.Fatal(err)
	}
	got := fx.ad.last()
	if !strings.Contains(got, "<b>enable</b> <code>5</code> by @user") || strings.Contains(got, "<b>disable</b>") {
		t.Fatalf("audit = %q", got)
	}

	if err := fx.bot.cmdAudit(ctx, fx.req(1, true, "zero")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(fx.ad.last(), "Usage: /audit") {
		t.Fatalf("bad count reply = %q", fx.ad.last())
	}
}

func TestStats(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	for i := int64(1); i <= 12; i++ {
		if _, err := fx.store.Store.UpsertRecipient(ctx, i, ""); err != nil {
			t.Fatal(err)
		}
	}

	if err := fx.bot.cmdStats(ctx, fx.req(50, false, "")); err != nil {
		t.Fatal(err)
	}
	if fx.ad.last() != "👥 Bot users: 12" {
		t.Fatalf("public stats = %q", fx.ad.last())
	}

	if err := fx.bot.cmdStats(ctx, fx.req(1, true, "")); err != nil {
		t.Fatal(err)
	}
	if got := fx.ad.last(); !strings.Contains(got, "Page 1/2") || !strings.Contains(got, "10. ") || strings.Contains(got, "11. ") {
		t.Fatalf("owner stats = %q", got)
	}
	if opt := fx.ad.opts[len(fx.ad.opts)-1]; opt == nil || opt.ReplyMarkupAdapter == nil {
		t.Fatal("pager keyboard missing")
	}

	if err := fx.bot.cbStatsPage(ctx, fx.req(1, true, ""), "1"); err != nil {
		t.Fatal(err)
	}
	if len(fx.ad.edits) != 1 || !strings.Contains(fx.ad.edits[0], "12. ") || !strings.Contains(fx.ad.edits[0], "Page 2/2") {
		t.Fatalf("edits = %q", fx.ad.edits)
	}
}
