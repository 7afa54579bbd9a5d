package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"kinobot/internal/access"
	"kinobot/internal/broadcast"
	"kinobot/internal/content"
	"kinobot/internal/distribution"
	"kinobot/internal/storage"
	kit "kinobot/internal/transport"
	"kinobot/internal/transport/telegram/router"
	"kinobot/pkg/logx"
	"kinobot/pkg/tgui"
)

const broadcastUsage = "⚠️ Usage:\n/broadcast <text>\n/broadcast <code>\n/broadcast <code> <custom caption>"

func (b *Bot) audit(ctx context.Context, req *router.Request, action, target string, meta any) {
	e := storage.AuditEntry{
		ActorID:       req.FromID,
		ActorUsername: req.FromUsername,
		ChatID:        req.Chat.ChatID,
		Action:        action,
		Target:        target,
	}
	if meta != nil {
		if raw, err := json.Marshal(meta); err == nil {
			e.MetaJSON = string(raw)
		}
	}
	if err := b.store.AppendAudit(ctx, e); err != nil {
		req.Logger.Warn("audit append failed", logx.String("action", action), logx.Err(err))
	}
}

func (b *Bot) cmdBroadcast(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		_, err := req.Reply(ctx, broadcastUsage, nil)
		return err
	}
	parseMode := b.config().ParseMode

	var (
		item   distribution.Item
		name   string
		target string
	)
	if code, ok := content.NormalizeCode(req.Args[0]); ok {
		rec, err := b.store.FindByCode(ctx, code, false)
		if errors.Is(err, storage.ErrNotFound) {
			_, err = req.Reply(ctx, fmt.Sprintf("❌ Record %s not found or disabled.", code), nil)
			return err
		}
		if err != nil {
			return err
		}
		caption := strings.TrimSpace(strings.TrimPrefix(req.ArgText, req.Args[0]))
		if caption == "" {
			caption = rec.Caption()
			if strings.EqualFold(parseMode, "HTML") {
				caption = html.EscapeString(caption)
			}
		}
		item = distribution.Item{Text: caption, PayloadRef: rec.PayloadRef, PayloadKind: rec.PayloadKind}
		name, target = "#"+code, code
	} else {
		item = distribution.Item{Text: req.ArgText}
		name, target = "text", "text"
	}

	chat := req.Chat
	started := time.Now()
	id, err := b.bcast.Submit(broadcast.Job{
		Name:      name,
		Items:     []distribution.Item{item},
		ParseMode: parseMode,
		OnDone: func(st broadcast.JobStatus) {
			b.broadcastDone(req, chat, st, time.Since(started))
		},
	})
	if err != nil {
		_, _ = req.Reply(ctx, "❌ Broadcast not queued: "+err.Error(), nil)
		return err
	}
	b.audit(ctx, req, "broadcast", target, map[string]string{"job": id})
	_, err = req.Reply(ctx, fmt.Sprintf("📢 Sending %s... (job %s)", name, id), nil)
	return err
}

// broadcastDone runs on the broadcaster worker after the request context
// is gone.
func (b *Bot) broadcastDone(req *router.Request, chat kit.ChatTarget, st broadcast.JobStatus, took time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	e := storage.AuditEntry{
		ActorID:       req.FromID,
		ActorUsername: req.FromUsername,
		ChatID:        chat.ChatID,
		Action:        "broadcast.done",
		Target:        st.Name,
		OK:            st.Sent,
		Fail:          st.Failed,
		Error:         st.Err,
		TookMS:        took.Milliseconds(),
		MetaJSON:      fmt.Sprintf(`{"job":%q,"pruned":%d}`, st.ID, st.Pruned),
	}
	if err := b.store.AppendAudit(ctx, e); err != nil {
		b.log.Warn("audit append failed", logx.String("action", e.Action), logx.Err(err))
	}

	text := fmt.Sprintf("✅ %s sent! (job %s)\n%s", st.Name, st.ID, statusLine(st))
	if st.Err != "" {
		text = fmt.Sprintf("❌ Broadcast %s failed: %s", st.ID, st.Err)
	}
	if _, err := req.Adapter.SendText(ctx, chat, text, nil); err != nil {
		b.log.Warn("broadcast report failed", logx.String("job", st.ID), logx.Err(err))
	}
}

func statusLine(st broadcast.JobStatus) string {
	return fmt.Sprintf("delivered %s • failed %s • pruned %s of %s recipients",
		humanize.Comma(int64(st.Sent)), humanize.Comma(int64(st.Failed)),
		humanize.Comma(int64(st.Pruned)), humanize.Comma(int64(st.Total)))
}

func (b *Bot) cmdBroadcastStatus(ctx context.Context, req *router.Request) error {
	var (
		st broadcast.JobStatus
		ok bool
	)
	if len(req.Args) > 0 {
		st, ok = b.bcast.Status(req.Args[0])
	} else {
		st, ok = b.bcast.Latest()
	}
	if !ok {
		_, err := req.Reply(ctx, "ℹ️ No such broadcast job.", nil)
		return err
	}

	state := "queued"
	switch {
	case st.Err != "":
		state = "failed: " + st.Err
	case st.Running:
		state = "running"
	case !st.DoneAt.IsZero():
		state = "done in " + st.DoneAt.Sub(st.StartedAt).Round(time.Second).String()
	}
	msg := tgui.New().
		Title("📢", "Broadcast "+st.ID).
		KV("Name", st.Name).
		KV("State", state).
		KV("Created", humanize.Time(st.CreatedAt)).
		KV("Recipients", humanize.Comma(int64(st.Total))).
		KV("Delivered", humanize.Comma(int64(st.Sent))).
		KV("Failed", humanize.Comma(int64(st.Failed))).
		KV("Pruned", humanize.Comma(int64(st.Pruned))).
		Build()
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

// saveForceJoin persists the current policy. A failure is reported but the
// in-memory change stays.
func (b *Bot) saveForceJoin(ctx context.Context, req *router.Request, action string, channels []string) {
	if err := b.store.SaveForceJoin(ctx, b.force.Snapshot()); err != nil {
		req.Logger.Error("force join save failed", logx.Err(err))
		_, _ = req.Reply(ctx, "⚠️ Change applied but not saved: "+err.Error(), nil)
	}
	b.audit(ctx, req, action, strings.Join(channels, ","), nil)
}

func (b *Bot) cmdForceOn(ctx context.Context, req *router.Request) error {
	channels, err := access.ParseChannels(req.Args)
	var ce *access.ChannelError
	if errors.As(err, &ce) {
		_, err = req.Reply(ctx, fmt.Sprintf("⚠️ Invalid channel %q: %s. Nothing was changed.", ce.Input, ce.Reason), nil)
		return err
	}
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		_, err = req.Reply(ctx, "⚠️ Usage: /forceon @channel1 @channel2 ...", nil)
		return err
	}

	added, _ := b.force.Add(channels...)
	if len(added) == 0 {
		_, err = req.Reply(ctx, "⚠️ No new channel added, all are already listed.", nil)
		return err
	}
	b.saveForceJoin(ctx, req, "forceon", added)
	_, err = req.Reply(ctx, fmt.Sprintf("✅ Force-join channels added: %s\n📌 Current list: %s",
		strings.Join(added, ", "), strings.Join(b.force.Snapshot().Channels, ", ")), nil)
	return err
}

func (b *Bot) cmdForceOff(ctx context.Context, req *router.Request) error {
	channels, err := access.ParseChannels(req.Args)
	var ce *access.ChannelError
	if errors.As(err, &ce) {
		_, err = req.Reply(ctx, fmt.Sprintf("⚠️ Invalid channel %q: %s. Nothing was changed.", ce.Input, ce.Reason), nil)
		return err
	}
	if err != nil {
		return err
	}

	if len(channels) == 0 {
		b.force.Clear()
		b.saveForceJoin(ctx, req, "forceoff", nil)
		_, err = req.Reply(ctx, "✅ Force-join fully disabled.", nil)
		return err
	}

	removed, notFound := b.force.Remove(channels...)
	if len(removed) > 0 {
		b.saveForceJoin(ctx, req, "forceoff", removed)
	}
	var lines []string
	if len(removed) > 0 {
		lines = append(lines, "🗑️ Removed: "+strings.Join(removed, ", "))
	}
	if len(notFound) > 0 {
		lines = append(lines, "⚠️ Not found (never added): "+strings.Join(notFound, ", "))
	}
	if rest := b.force.Snapshot().Channels; len(rest) > 0 {
		lines = append(lines, "📌 Remaining channels: "+strings.Join(rest, ", "))
	} else {
		lines = append(lines, "⚠️ No channel is required right now.")
	}
	_, err = req.Reply(ctx, strings.Join(lines, "\n"), nil)
	return err
}

func (b *Bot) cmdDisable(ctx context.Context, req *router.Request) error {
	return b.setDeleted(ctx, req, true)
}

func (b *Bot) cmdEnable(ctx context.Context, req *router.Request) error {
	return b.setDeleted(ctx, req, false)
}

func (b *Bot) setDeleted(ctx context.Context, req *router.Request, deleted bool) error {
	verb := "enable"
	if deleted {
		verb = "disable"
	}
	if len(req.Args) == 0 {
		_, err := req.Reply(ctx, "⚠️ Usage: /"+verb+" <code>", nil)
		return err
	}
	code, ok := content.NormalizeCode(req.Args[0])
	if !ok {
		_, err := req.Reply(ctx, "⚠️ Usage: /"+verb+" <code>", nil)
		return err
	}

	err := b.store.SetDeleted(ctx, code, deleted)
	if errors.Is(err, storage.ErrNotFound) {
		_, err = req.Reply(ctx, fmt.Sprintf("❌ Record %s not found.", code), nil)
		return err
	}
	if err != nil {
		_, _ = req.Reply(ctx, "⚠️ Error: "+err.Error(), nil)
		return err
	}
	b.audit(ctx, req, verb, code, nil)

	text := fmt.Sprintf("✅ Record #%s enabled again.", code)
	if deleted {
		text = fmt.Sprintf("🚫 Record #%s disabled.", code)
	}
	_, err = req.Reply(ctx, text, nil)
	return err
}
