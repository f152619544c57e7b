package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

// Access decides who may run a command or trigger a callback.
type Access int

const (
	// AccessAllowed admits owners and the allow list; an empty allow list admits everyone.
	AccessAllowed Access = iota
	AccessEveryone
	AccessOwnerOnly
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

// CallbackRoute handles inline-button data "namespace:action[:payload]".
type CallbackRoute struct {
	Namespace string
	Action    string
	Access    Access
	Timeout   time.Duration
	Handle    HandlerFunc
}

type Request struct {
	Update       kit.Update
	Chat         kit.ChatTarget
	FromID       int64
	FromUsername string
	Command      string // command name or "cb:<namespace>:<action>"
	// ArgText is the raw text after the command word.
	ArgText   string
	Args      []string
	RawArgs   []string
	Flags     map[string]string
	BoolFlags map[string]bool
	Payload   string // callback payload
	// Answer is shown as the callback toast once the handler returns.
	Answer string
	ReqID  string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends text to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, opt)
	return err
}

// ReplyHTML sends safe HTML without link previews.
func (r *Request) ReplyHTML(ctx context.Context, text tgui.H, buttons [][]kit.Button) error {
	return r.Reply(ctx, text.String(), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true, Buttons: buttons})
}

// Manager routes updates to commands and callbacks on a bounded worker pool.
type Manager struct {
	mu       sync.RWMutex
	commands map[string]*Command // name and aliases
	ordered  []*Command
	cbs      map[string]CallbackRoute // "namespace:action"
	owners   []int64
	allowed  []int64

	log     logx.Logger
	adapter kit.Adapter

	runMu sync.Mutex
	sup   *rtsup.Supervisor

	jobs    chan func()
	workers int
	// DefaultTimeout bounds handlers without their own Timeout.
	DefaultTimeout time.Duration
}

func New(log logx.Logger, adapter kit.Adapter) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		commands:       map[string]*Command{},
		cbs:            map[string]CallbackRoute{},
		log:            log.With(logx.String("comp", "telegram.router")),
		adapter:        adapter,
		jobs:           make(chan func(), 256),
		workers:        max(runtime.NumCPU(), 2),
		DefaultTimeout: 30 * time.Second,
	}
}

// SetAccess replaces the owner and allow lists. Safe to call during hot-reload.
func (m *Manager) SetAccess(owners, allowed []int64) {
	m.mu.Lock()
	m.owners = slices.Clone(owners)
	m.allowed = slices.Clone(allowed)
	m.mu.Unlock()
}

func (m *Manager) allows(a Access, userID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch a {
	case AccessEveryone:
		return true
	case AccessOwnerOnly:
		return slices.Contains(m.owners, userID)
	default:
		return len(m.allowed) == 0 || slices.Contains(m.owners, userID) || slices.Contains(m.allowed, userID)
	}
}

// SetRegistry installs the command and callback tables. A /help command is always added.
func (m *Manager) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	cmds = append(slices.Clone(cmds), Command{
		Name:        "help",
		Aliases:     []string{"start", "h"},
		Description: "show this help",
		Usage:       "/help [command]",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			return req.ReplyHTML(ctx, m.helpText(req.Args), nil)
		},
	})

	table := map[string]*Command{}
	ordered := make([]*Command, 0, len(cmds))
	for i := range cmds {
		c := &cmds[i]
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		table[name] = c
		ordered = append(ordered, c)
	}
	// Aliases never shadow a real command name.
	for _, c := range ordered {
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" {
				continue
			}
			if _, exists := table[a]; !exists {
				table[a] = c
			}
		}
	}
	slices.SortFunc(ordered, func(a, b *Command) int { return strings.Compare(a.Name, b.Name) })

	cbTable := map[string]CallbackRoute{}
	for _, r := range cbs {
		ns, act := strings.TrimSpace(r.Namespace), strings.TrimSpace(r.Action)
		if ns == "" || act == "" || r.Handle == nil {
			continue
		}
		cbTable[ns+":"+act] = r
	}

	m.mu.Lock()
	m.commands = table
	m.ordered = ordered
	m.cbs = cbTable
	m.mu.Unlock()
}

// SyncMenu pushes the command list to the adapter's menu if supported.
func (m *Manager) SyncMenu(ctx context.Context) error {
	up, ok := m.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	m.mu.RLock()
	menu := buildMenu(m.ordered)
	m.mu.RUnlock()
	return up.UpdateMenuCommands(ctx, menu)
}

func (m *Manager) Supervisor() *rtsup.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.sup
}

// DispatchLoop consumes updates until ctx is done or updates is closed, then drains
// queued jobs for a short grace period.
func (m *Manager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(m.log), rtsup.WithCancelOnError(false))
	m.runMu.Lock()
	m.sup = sup
	m.runMu.Unlock()

	jobs := m.jobs
	for i := 0; i < m.workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					m.runJob(idx, job)
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	m.log.Info("command dispatcher started", logx.Int("workers", m.workers), logx.Int("job_queue_cap", cap(jobs)))

	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		m.runMu.Lock()
		m.sup = nil
		m.runMu.Unlock()
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
			m.Route(ctx, up)
		}
	}
}

func (m *Manager) runJob(worker int, job func()) {
	// Middleware already recovers; keep the worker alive regardless.
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	job()
}

func (m *Manager) enqueue(fn func()) bool {
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// Route dispatches one update. Exported for tests and for adapters that push directly.
func (m *Manager) Route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		m.routeMessage(ctx, up)
	case kit.UpdateCallback:
		m.routeCallback(ctx, up)
	}
}

func (m *Manager) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	word, rest, _ := strings.Cut(text, " ")
	word = strings.ToLower(strings.TrimPrefix(word, "/"))
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	rest = strings.TrimSpace(rest)
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	m.mu.RLock()
	cmd, ok := m.commands[word]
	m.mu.RUnlock()
	if !ok {
		_, _ = m.adapter.SendText(ctx, chat, "Unknown command. Try /help", nil)
		return
	}
	if !m.allows(cmd.Access, msg.FromID) {
		_, _ = m.adapter.SendText(ctx, chat, "Sorry, you are not allowed to use this bot.", nil)
		return
	}

	raw := tokenizeCommandLine(rest)
	pos, flags, bools := parseFlags(raw)
	rid := newReqID()
	req := &Request{
		Update:       up,
		Chat:         chat,
		FromID:       msg.FromID,
		FromUsername: msg.FromUsername,
		Command:      cmd.Name,
		ArgText:      rest,
		Args:         pos,
		RawArgs:      raw,
		Flags:        flags,
		BoolFlags:    bools,
		ReqID:        rid,
		Adapter:      m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}
	final := Chain(cmd.Handle, MWPanicRecover(m.log), MWRequestLog(m.log), MWTimeout(m.timeout(cmd.Timeout)))
	if !m.enqueue(func() { _ = final(ctx, req) }) {
		_, _ = m.adapter.SendText(ctx, chat, "Busy, try again in a moment.", nil)
	}
}

func (m *Manager) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	ns, action, payload, ok := tgui.ParseData(cb.Data)
	if !ok {
		return
	}
	m.mu.RLock()
	route, ok := m.cbs[ns+":"+action]
	m.mu.RUnlock()
	if !ok {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	if !m.allows(route.Access, cb.FromID) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "forbidden")
		return
	}

	rid := newReqID()
	name := "cb:" + ns + ":" + action
	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
		FromID:  cb.FromID,
		Command: name,
		Payload: payload,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", cb.ChatID),
			logx.Int64("from_id", cb.FromID),
			logx.String("cmd", name),
		),
	}
	final := Chain(route.Handle, MWPanicRecover(m.log), MWRequestLog(m.log), MWTimeout(m.timeout(route.Timeout)))
	if !m.enqueue(func() {
		_ = final(ctx, req)
		// Always answer so the client stops its loading indicator.
		_ = m.adapter.AnswerCallback(ctx, cb.ID, req.Answer)
	}) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "busy")
	}
}

func (m *Manager) timeout(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return m.DefaultTimeout
}
