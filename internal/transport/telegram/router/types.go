package router

import (
	"context"
	"time"

	kit "kinobot/internal/transport"
	"kinobot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	Route       string   // single token, e.g. "broadcast"
	Aliases     []string // extra names, e.g. ["b"]
	Description string
	Usage       string
	Access      Access

	// Hidden keeps the command out of /help and the Telegram menu.
	Hidden  bool
	Timeout time.Duration // optional per-command override
	Handle  HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackAccess controls who can trigger an inline-button callback.
// The zero value is owner-only; public buttons must opt in.
type CallbackAccess int

const (
	CallbackAccessOwnerOnly CallbackAccess = iota
	CallbackAccessEveryone
)

// CallbackRoute handles callback data of the form "scope:action:payload".
type CallbackRoute struct {
	Scope   string
	Action  string
	Access  CallbackAccess
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

type Request struct {
	Update       kit.Update
	Chat         kit.ChatTarget
	FromID       int64
	FromUsername string
	MessageID    int
	Command      string   // route, "cb:scope:action", or "text"
	Args         []string // whitespace separated arguments
	ArgText      string   // everything after the command word, trimmed
	Payload      string   // callback payload
	CallbackID   string
	IsOwner      bool
	ReqID        string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends text to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return r.Adapter.SendText(ctx, r.Chat, text, opt)
}

// Tracker observes every user that talks to the bot.
type Tracker interface {
	Track(ctx context.Context, userID int64, username string)
}

// ChannelPostHandler receives channel posts.
type ChannelPostHandler func(ctx context.Context, msg *kit.Message) error
