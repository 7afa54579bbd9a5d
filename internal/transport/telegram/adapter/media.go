package adapter

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v4"

	kit "kinobot/internal/transport"
	"kinobot/pkg/tgui"
)

var (
	_ kit.Adapter            = (*Adapter)(nil)
	_ kit.CommandMenuUpdater = (*Adapter)(nil)
)

// SendMedia re-sends a stored file by its Telegram file id. Captions over
// Telegram's limit are truncated.
func (a *Adapter) SendMedia(ctx context.Context, to kit.ChatTarget, m kit.Media, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	caption := truncateCaption(m.Caption)

	var what tele.Sendable
	file := tele.File{FileID: m.FileID}
	switch m.Kind {
	case kit.MediaPhoto:
		what = &tele.Photo{File: file, Caption: caption}
	case kit.MediaVideo:
		what = &tele.Video{File: file, Caption: caption}
	case kit.MediaDocument:
		what = &tele.Document{File: file, Caption: caption}
	case kit.MediaAnimation:
		what = &tele.Animation{File: file, Caption: caption}
	default:
		return kit.MessageRef{}, fmt.Errorf("telegram: unsupported media kind %q", m.Kind)
	}

	sendOpt := &tele.SendOptions{
		ParseMode: opt.ParseMode,
		ThreadID:  to.ThreadID,
	}
	if rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup); ok {
		sendOpt.ReplyMarkup = rm
	}

	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, what, sendOpt)
	if err != nil {
		return kit.MessageRef{}, classifySendError(err)
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

// chatRef addresses a chat by "@username" or numeric id string.
type chatRef string

func (c chatRef) Recipient() string { return string(c) }

// ChatMember asks Telegram for userID's status in channel. The bot must be
// an administrator of the channel for this to work.
func (a *Adapter) ChatMember(ctx context.Context, channel string, userID int64) (kit.MemberStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	type result struct {
		m   *tele.ChatMember
		err error
	}
	// telebot calls are not context aware; give up waiting when ctx ends
	ch := make(chan result, 1)
	go func() {
		m, err := a.bot.ChatMemberOf(chatRef(channel), &tele.User{ID: userID})
		ch <- result{m, err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("chat member %s/%d: %w", channel, userID, r.err)
		}
		return kit.MemberStatus(r.m.Role), nil
	}
}

const telegramCaptionLimit = 1024

func truncateCaption(s string) string {
	return tgui.TruncRunes(s, telegramCaptionLimit)
}
