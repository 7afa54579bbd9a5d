package bot

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"

	"kinobot/internal/storage"
	"kinobot/internal/transport/telegram/router"
	"kinobot/pkg/tgui"
)

const (
	auditDefault = 10
	auditMax     = 50
)

func (b *Bot) cmdAudit(ctx context.Context, req *router.Request) error {
	limit := auditDefault
	if len(req.Args) > 0 {
		n, err := strconv.Atoi(req.Args[0])
		if err != nil || n <= 0 {
			_, err = req.Reply(ctx, "⚠️ Usage: /audit [count]", nil)
			return err
		}
		limit = min(n, auditMax)
	}

	entries, err := b.store.RecentAudit(ctx, limit)
	if err != nil {
		_, _ = req.Reply(ctx, "⚠️ Error: "+err.Error(), nil)
		return err
	}
	mb := tgui.New().Title("🧾", "Audit log")
	if len(entries) == 0 {
		mb.Line("No owner actions recorded yet.")
	}
	for _, e := range entries {
		mb.HTML(auditLine(e))
	}
	_, err = mb.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

// auditLine renders one entry, e.g.
// "• 2 minutes ago <b>disable</b> <code>5</code> by @owner".
func auditLine(e storage.AuditEntry) tgui.H {
	actor := "@" + e.ActorUsername
	if e.ActorUsername == "" {
		actor = strconv.FormatInt(e.ActorID, 10)
	}
	parts := []tgui.H{tgui.Esc("• " + humanize.Time(e.At)), tgui.B(e.Action)}
	if e.Target != "" {
		parts = append(parts, tgui.Code(e.Target))
	}
	parts = append(parts, tgui.Esc("by "+actor))
	if e.OK > 0 || e.Fail > 0 {
		parts = append(parts, tgui.Esc(fmt.Sprintf("(%s ok, %s failed)", humanize.Comma(int64(e.OK)), humanize.Comma(int64(e.Fail)))))
	}
	if e.Error != "" {
		parts = append(parts, tgui.I(e.Error))
	}
	return tgui.JoinH(" ", parts...)
}
