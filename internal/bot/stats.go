package bot

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"

	kit "kinobot/internal/transport"
	"kinobot/internal/transport/telegram/router"
	"kinobot/pkg/tgui"
)

const (
	statsScope      = "stats"
	statsPageAction = "page"
	statsPageSize   = 10
)

// cmdStats shows everyone the user count. Owners get the paged list.
func (b *Bot) cmdStats(ctx context.Context, req *router.Request) error {
	if !req.IsOwner {
		n, err := b.store.CountRecipients(ctx)
		if err != nil {
			return err
		}
		_, err = req.Reply(ctx, "👥 Bot users: "+humanize.Comma(int64(n)), nil)
		return err
	}
	msg, err := b.statsPage(ctx, 0)
	if err != nil {
		return err
	}
	_, err = msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (b *Bot) cbStatsPage(ctx context.Context, req *router.Request, payload string) error {
	page, err := strconv.Atoi(payload)
	if err != nil {
		return nil
	}
	msg, err := b.statsPage(ctx, page)
	if err != nil {
		return err
	}
	return msg.Edit(ctx, req.Adapter, kit.MessageRef{ChatID: req.Chat.ChatID, ThreadID: req.Chat.ThreadID, MessageID: req.MessageID})
}

func (b *Bot) statsPage(ctx context.Context, page int) (tgui.Message, error) {
	users, err := b.store.Recipients(ctx)
	if err != nil {
		return tgui.Message{}, err
	}
	if len(users) == 0 {
		return tgui.New().Line("⚠️ No users yet.").Build(), nil
	}
	records, err := b.store.CountRecords(ctx, false)
	if err != nil {
		return tgui.Message{}, err
	}

	sub, p := tgui.PaginateSlice(users, page, statsPageSize)
	mb := tgui.New().
		Title("📊", "Total users: "+humanize.Comma(int64(len(users)))).
		Line(fmt.Sprintf("🎬 Records: %s • %s", humanize.Comma(int64(records)), p.Label())).
		Blank()
	for i, u := range sub {
		name := strconv.FormatInt(u.ID, 10)
		if u.Username != "" {
			name = "@" + u.Username
		}
		mb.Line(fmt.Sprintf("%d. %s", p.From+i+1, name))
	}
	mb.Inline(tgui.NewInline().Row(tgui.PagerRow(statsScope, statsPageAction, p)...))
	return mb.Build(), nil
}
