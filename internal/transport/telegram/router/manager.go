package router

import (
	"context"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "kinobot/internal/runtime/supervisor"
	kit "kinobot/internal/transport"
	"kinobot/pkg/logx"
)

type CommandManager struct {
	mu       sync.RWMutex
	commands map[string]*Command // route and aliases -> command
	ordered  []Command
	owners   []int64

	cbMu      sync.RWMutex
	callbacks map[string]map[string]CallbackRoute // scope -> action -> route

	hookMu      sync.RWMutex
	text        HandlerFunc
	channelPost ChannelPostHandler
	tracker     Tracker

	log     logx.Logger
	adapter kit.Adapter

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, owners []int64) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandManager{
		commands:  map[string]*Command{},
		callbacks: map[string]map[string]CallbackRoute{},
		owners:    append([]int64(nil), owners...),
		log:       log,
		adapter:   adapter,
		jobs:      make(chan func(), 256),
	}
}

// Supervisor returns the dispatcher's supervisor (nil if not running).
func (m *CommandManager) Supervisor() *rtsup.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

func (m *CommandManager) setSupervisor(sup *rtsup.Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being closed).
func (m *CommandManager) tryEnqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// SetOwners updates the owner list used for AccessOwnerOnly checks.
// Safe to call during hot-reload.
func (m *CommandManager) SetOwners(owners []int64) {
	ownCopy := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owners = ownCopy
	m.mu.Unlock()
}

func (m *CommandManager) ownersSnapshot() []int64 {
	m.mu.RLock()
	cp := append([]int64(nil), m.owners...)
	m.mu.RUnlock()
	return cp
}

// IsOwner reports whether id is in the current owner list.
func (m *CommandManager) IsOwner(id int64) bool {
	return isOwner(id, m.ownersSnapshot())
}

// SetTextHandler sets the handler for plain (non-command) messages.
func (m *CommandManager) SetTextHandler(h HandlerFunc) {
	m.hookMu.Lock()
	m.text = h
	m.hookMu.Unlock()
}

func (m *CommandManager) SetChannelPostHandler(h ChannelPostHandler) {
	m.hookMu.Lock()
	m.channelPost = h
	m.hookMu.Unlock()
}

func (m *CommandManager) SetTracker(t Tracker) {
	m.hookMu.Lock()
	m.tracker = t
	m.hookMu.Unlock()
}

// SetRegistry replaces the command and callback tables. A built-in help
// command is added unless cmds already has one.
func (m *CommandManager) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	hasHelp := false
	for _, c := range cmds {
		if strings.EqualFold(strings.TrimSpace(c.Route), "help") {
			hasHelp = true
		}
	}
	if !hasHelp {
		cmds = append(cmds, Command{
			Route:       "help",
			Description: "show help",
			Usage:       "/help",
			Handle: func(ctx context.Context, req *Request) error {
				_, err := req.Reply(ctx, m.HelpText(req.IsOwner), &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
				return err
			},
		})
	}

	table := map[string]*Command{}
	ordered := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		route := strings.ToLower(strings.TrimSpace(c.Route))
		if route == "" || strings.Contains(route, " ") || c.Handle == nil {
			continue
		}
		cc := c
		cc.Route = route
		table[route] = &cc
		ordered = append(ordered, cc)
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			if _, exists := table[a]; !exists {
				table[a] = &cc
			}
			if sa := sanitizeTelegramCommand(a); sa != "" {
				if _, exists := table[sa]; !exists {
					table[sa] = &cc
				}
			}
		}
	}

	cb := map[string]map[string]CallbackRoute{}
	for _, r := range cbs {
		sc := strings.TrimSpace(r.Scope)
		ac := strings.TrimSpace(r.Action)
		if sc == "" || ac == "" || r.Handle == nil {
			continue
		}
		if cb[sc] == nil {
			cb[sc] = map[string]CallbackRoute{}
		}
		cb[sc][ac] = r
	}

	m.mu.Lock()
	m.commands = table
	m.ordered = ordered
	m.mu.Unlock()

	m.cbMu.Lock()
	m.callbacks = cb
	m.cbMu.Unlock()

	if sup := m.Supervisor(); sup != nil {
		sup.Go0("telegram.menu.update", m.pushMenu)
	}
}

func (m *CommandManager) pushMenu(ctx context.Context) {
	up, ok := m.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	m.mu.RLock()
	menu := buildTelegramMenuCommands(m.ordered)
	m.mu.RUnlock()

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := up.UpdateMenuCommands(cctx, menu); err != nil {
		m.log.Warn("menu update failed", logx.Err(err))
	}
}

// DispatchLoop routes updates to a bounded worker pool until ctx ends or
// updates is closed.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	sup := rtsup.New(ctx, rtsup.WithLogger(m.log), rtsup.WithCancelOnError(false))
	m.setSupervisor(sup, true)
	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))
	sup.Go0("telegram.menu.update", m.pushMenu)

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			// not running before close so enqueue degrades gracefully
			m.setSupervisor(sup, false)
			close(m.jobs)
		})
	}

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					if job != nil {
						job()
					}
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.setSupervisor(nil, false)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.routeUpdate(ctx, up)
		}
	}
}

func (m *CommandManager) routeUpdate(root context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		m.routeMessage(root, up)
	case kit.UpdateCallback:
		m.routeCallback(root, up)
	case kit.UpdateChannelPost:
		m.routeChannelPost(root, up)
	}
}

func (m *CommandManager) track(ctx context.Context, id int64, username string) {
	m.hookMu.RLock()
	t := m.tracker
	m.hookMu.RUnlock()
	if t != nil && id != 0 {
		t.Track(ctx, id, username)
	}
}

// trackLater records the sender on a worker for messages that reach no handler.
func (m *CommandManager) trackLater(root context.Context, msg *kit.Message) {
	id, username := msg.FromID, msg.FromUsername
	_ = m.tryEnqueue(func() { m.track(root, id, username) })
}

func (m *CommandManager) routeMessage(root context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		m.trackLater(root, msg)
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	if !strings.HasPrefix(text, "/") {
		m.hookMu.RLock()
		h := m.text
		m.hookMu.RUnlock()
		if h == nil {
			m.trackLater(root, msg)
			return
		}
		m.enqueue(root, up, Command{Route: "text", Handle: h}, nil, text)
		return
	}

	word, args, rest := splitArgs(text)
	m.mu.RLock()
	cmd := m.commands[word]
	m.mu.RUnlock()
	if cmd == nil {
		m.trackLater(root, msg)
		if !msg.IsGroup {
			_, _ = m.adapter.SendText(root, chat, "Unknown command. Try /help", nil)
		}
		return
	}
	m.enqueue(root, up, *cmd, args, rest)
}

func (m *CommandManager) enqueue(root context.Context, up kit.Update, cmd Command, args []string, rest string) {
	msg := up.Message
	owner := m.IsOwner(msg.FromID)
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if cmd.Access == AccessOwnerOnly && !owner {
		m.trackLater(root, msg)
		_, _ = m.adapter.SendText(root, chat, "⛔ This command is for admins only.", nil)
		return
	}

	rid := newReqID()
	reqLog := m.log.With(
		logx.String("rid", rid),
		logx.Int64("chat_id", msg.ChatID),
		logx.Int64("from_id", msg.FromID),
		logx.String("cmd", cmd.Route),
	)
	req := &Request{
		Update:       up,
		Chat:         chat,
		FromID:       msg.FromID,
		FromUsername: msg.FromUsername,
		MessageID:    msg.ID,
		Command:      cmd.Route,
		Args:         args,
		ArgText:      rest,
		IsOwner:      owner,
		ReqID:        rid,
		Adapter:      m.adapter,
		Logger:       reqLog,
	}

	final := Chain(
		cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(cmd.Timeout),
	)
	if !m.tryEnqueue(func() {
		m.track(root, msg.FromID, msg.FromUsername)
		_ = final(root, req)
	}) {
		_, _ = m.adapter.SendText(root, chat, "Busy, try again in a moment.", nil)
	}
}

func (m *CommandManager) routeCallback(root context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	parts := strings.SplitN(strings.TrimSpace(cb.Data), ":", 3)
	if len(parts) < 2 {
		return
	}
	scope, action := parts[0], parts[1]
	payload := ""
	if len(parts) == 3 {
		payload = parts[2]
	}

	m.cbMu.RLock()
	route, ok := m.callbacks[scope][action]
	m.cbMu.RUnlock()
	if !ok {
		_ = m.adapter.AnswerCallback(root, cb.ID, "")
		return
	}

	owner := m.IsOwner(cb.FromID)
	if route.Access == CallbackAccessOwnerOnly && !owner {
		_ = m.adapter.AnswerCallback(root, cb.ID, "forbidden")
		return
	}
	rid := newReqID()
	name := "cb:" + scope + ":" + action
	reqLog := m.log.With(
		logx.String("rid", rid),
		logx.Int64("chat_id", cb.ChatID),
		logx.Int64("from_id", cb.FromID),
		logx.String("cmd", name),
	)
	req := &Request{
		Update:       up,
		Chat:         kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
		FromID:       cb.FromID,
		FromUsername: cb.FromUsername,
		MessageID:    cb.MessageID,
		Command:      name,
		Payload:      payload,
		CallbackID:   cb.ID,
		IsOwner:      owner,
		ReqID:        rid,
		Adapter:      m.adapter,
		Logger:       reqLog,
	}

	h := func(ctx context.Context, r *Request) error { return route.Handle(ctx, r, payload) }
	final := Chain(
		h,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(route.Timeout),
	)
	if !m.tryEnqueue(func() {
		m.track(root, cb.FromID, cb.FromUsername)
		_ = final(root, req)
		// stop the client's loading indicator
		_ = m.adapter.AnswerCallback(root, cb.ID, "")
	}) {
		_ = m.adapter.AnswerCallback(root, cb.ID, "busy")
	}
}

func (m *CommandManager) routeChannelPost(root context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	m.hookMu.RLock()
	h := m.channelPost
	m.hookMu.RUnlock()
	if h == nil {
		return
	}
	if !m.tryEnqueue(func() {
		defer func() {
			if r := recover(); r != nil {
				m.log.Error("panic in channel post handler", logx.Any("panic", r))
			}
		}()
		if err := h(root, msg); err != nil {
			m.log.Warn("channel post failed", logx.Int64("chat_id", msg.ChatID), logx.Int("message_id", msg.ID), logx.Err(err))
		}
	}) {
		m.log.Warn("channel post dropped (queue full)", logx.Int64("chat_id", msg.ChatID), logx.Int("message_id", msg.ID))
	}
}

func isOwner(id int64, owners []int64) bool {
	for _, o := range owners {
		if o == id {
			return true
		}
	}
	return false
}
