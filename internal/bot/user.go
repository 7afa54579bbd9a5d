package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kinobot/internal/content"
	"kinobot/internal/ingest"
	"kinobot/internal/storage"
	kit "kinobot/internal/transport"
	"kinobot/internal/transport/telegram/router"
	"kinobot/internal/watchlist"
	"kinobot/pkg/logx"
	"kinobot/pkg/tgui"
)

const (
	msgWelcome  = "👋 Welcome! Send a code or use /help."
	msgNotFound = "❌ Not found or disabled."
	msgHelp     = "Send the code of any title to watch it.\n" +
		"Code example: 915\n\n" +
		"Use /save <code> to keep a title in your watchlist, /watchlist to see it and /remove <code> to drop one.\n" +
		"📬 If you have questions or problems, contact the admin 👇"
)

// gated runs h only for users who joined every required channel.
func (b *Bot) gated(h router.HandlerFunc) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		if b.gate == nil {
			return h(ctx, req)
		}
		d := b.gate.Check(ctx, req.FromID, b.force.Snapshot())
		if d.Allowed {
			return h(ctx, req)
		}
		kb := tgui.NewInline()
		for _, ch := range d.Missing {
			if strings.HasPrefix(ch, "@") {
				kb.Row(tgui.URLBtn("➕ "+ch, "https://t.me/"+strings.TrimPrefix(ch, "@")))
			}
		}
		msg := tgui.New().ParseMode("").
			Line("❌ You have not joined these channels yet: " + strings.Join(d.Missing, ", ")).
			Line("✅ Please join them and try again.").
			Inline(kb).
			Build()
		_, err := msg.Send(ctx, req.Adapter, req.Chat)
		return err
	}
}

func (b *Bot) cmdStart(ctx context.Context, req *router.Request) error {
	_, err := req.Reply(ctx, msgWelcome, nil)
	return err
}

func (b *Bot) cmdHelp(ctx context.Context, req *router.Request) error {
	mb := tgui.New().ParseMode("").Line(msgHelp)
	if req.IsOwner {
		mb.Blank().Line("Admin commands:")
		for _, c := range b.Commands() {
			if c.Access == router.AccessOwnerOnly {
				mb.Line("• " + c.Usage + " — " + c.Description)
			}
		}
	}
	if url := b.config().ContactURL; url != "" {
		mb.Inline(tgui.NewInline().Row(tgui.URLBtn("📩 Contact admin", url)))
	}
	_, err := mb.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

// onText treats a bare number as a code lookup. Other text is ignored.
// onText answers code lookups. Other text is ignored before the gate so
// small talk costs no membership queries.
func (b *Bot) onText(ctx context.Context, req *router.Request) error {
	code, ok := content.NormalizeCode(req.ArgText)
	if !ok {
		return nil
	}
	return b.gated(func(ctx context.Context, req *router.Request) error {
		return b.sendRecord(ctx, req, code)
	})(ctx, req)
}

func (b *Bot) sendRecord(ctx context.Context, req *router.Request, code string) error {
	rec, err := b.store.FindByCode(ctx, code, false)
	if errors.Is(err, storage.ErrNotFound) {
		_, err = req.Reply(ctx, msgNotFound, nil)
		return err
	}
	if err != nil {
		return err
	}
	media := kit.Media{Kind: kit.MediaKind(rec.PayloadKind), FileID: rec.PayloadRef, Caption: rec.Caption()}
	if _, err := req.Adapter.SendMedia(ctx, req.Chat, media, nil); err != nil {
		req.Logger.Warn("record send failed", logx.String("code", code), logx.Err(err))
		_, _ = req.Reply(ctx, "⚠️ Failed to send the file.", nil)
		return err
	}
	return nil
}

func (b *Bot) cmdSave(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		_, err := req.Reply(ctx, "⚠️ Usage: /save <code>", nil)
		return err
	}
	rec, added, err := b.watch.Add(ctx, req.FromID, req.Args[0])
	var text string
	switch {
	case errors.Is(err, watchlist.ErrInvalidCode):
		text = "⚠️ Usage: /save <code>"
	case errors.Is(err, watchlist.ErrUnknownCode):
		text = msgNotFound
	case err != nil:
		_, _ = req.Reply(ctx, "❌ Could not save.", nil)
		return err
	case added:
		text = fmt.Sprintf("✅ #%s — %s saved to your watchlist.", rec.Code, rec.Title)
	default:
		text = fmt.Sprintf("ℹ️ #%s is already in your watchlist.", rec.Code)
	}
	_, err = req.Reply(ctx, text, nil)
	return err
}

func (b *Bot) cmdWatchlist(ctx context.Context, req *router.Request) error {
	recs, err := b.watch.List(ctx, req.FromID)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		_, err = req.Reply(ctx, "📭 Your watchlist is empty.", nil)
		return err
	}
	mb := tgui.New().Title("📺", "Your watchlist")
	for _, r := range recs {
		cat := r.Category
		if cat == "" {
			cat = "Unknown"
		}
		mb.HTML(tgui.JoinH(" ", tgui.Code("#"+r.Code), tgui.Esc(r.Title), tgui.I("("+cat+")")))
	}
	_, err = mb.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (b *Bot) cmdRemove(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		_, err := req.Reply(ctx, "⚠️ Usage: /remove <code>", nil)
		return err
	}
	code, removed, err := b.watch.Remove(ctx, req.FromID, req.Args[0])
	var text string
	switch {
	case errors.Is(err, watchlist.ErrInvalidCode):
		text = "⚠️ Usage: /remove <code>"
	case err != nil:
		return err
	case removed:
		text = fmt.Sprintf("🗑️ #%s removed from your watchlist.", code)
	default:
		text = fmt.Sprintf("⚠️ #%s is not in your watchlist.", code)
	}
	_, err = req.Reply(ctx, text, nil)
	return err
}

func (b *Bot) onChannelPost(ctx context.Context, msg *kit.Message) error {
	if b.ing == nil {
		return nil
	}
	res, err := b.ing.Ingest(ctx, ingest.Post{
		ChatID:     msg.ChatID,
		MessageID:  msg.ID,
		Caption:    msg.Caption,
		VideoID:    msg.Attachments.VideoID,
		PhotoID:    msg.Attachments.PhotoID,
		DocumentID: msg.Attachments.DocumentID,
	})
	if err != nil {
		return err
	}
	b.log.Debug("channel post handled", logx.Int64("chat_id", msg.ChatID), logx.String("outcome", res.Outcome.String()))
	return nil
}
