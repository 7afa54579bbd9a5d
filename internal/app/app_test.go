package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"kinobot/internal/access"
	"kinobot/internal/config"
	"kinobot/internal/distribution"
	"kinobot/internal/storage"
	"kinobot/pkg/logx"
)

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "kino.db")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestLoadForceJoinSeedsThenRestores(t *testing.T) {
	st := openStore(t)
	cfg := &config.Config{ForceJoin: config.ForceJoinConfig{Channels: []string{"https://t.me/films", "@series"}}}

	fj, err := loadForceJoin(st, cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	snap := fj.Snapshot()
	if !snap.Active || len(snap.Channels) != 2 || snap.Channels[0] != "@films" {
		t.Fatalf("seed = %+v", snap)
	}

	if err := st.SaveForceJoin(context.Background(), access.Config{Active: false, Channels: []string{"@other"}}); err != nil {
		t.Fatal(err)
	}
	fj, err = loadForceJoin(st, cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if snap := fj.Snapshot(); snap.Active || len(snap.Channels) != 1 || snap.Channels[0] != "@other" {
		t.Fatalf("saved state not preferred: %+v", snap)
	}
}

func TestLoadForceJoinEmpty(t *testing.T) {
	fj, err := loadForceJoin(openStore(t), &config.Config{}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if fj.Snapshot().Enforced() {
		t.Fatal("empty config enforced force-join")
	}
}

func TestConfigMappers(t *testing.T) {
	cfg := &config.Config{}
	cfg.Telegram.GroupLog = " -1001234 "
	cfg.Distribution.ParseMode = "HTML"
	cfg.Reports.Timezone = "UTC"

	bc, err := mapBroadcastConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if bc.Pause != distribution.DefaultPause || bc.SendTimeout != distribution.DefaultSendTimeout || bc.ParseMode != "HTML" {
		t.Fatalf("broadcast = %+v", bc)
	}

	nc, err := mapNotifierConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !nc.Enabled || nc.RetryBase != 500*time.Millisecond || nc.DedupWindow != time.Minute {
		t.Fatalf("notifier defaults = %+v", nc)
	}

	rc, err := mapReportConfig(cfg)
	if err != nil || rc.Location != time.UTC {
		t.Fatalf("report = %+v, %v", rc, err)
	}

	if id := logChatID(cfg); id != -1001234 {
		t.Fatalf("log chat = %d", id)
	}
	cfg.Telegram.GroupLog = "logs"
	if id := logChatID(cfg); id != 0 {
		t.Fatalf("malformed log chat = %d", id)
	}
}
