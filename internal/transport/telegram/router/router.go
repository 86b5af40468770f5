// Package router turns bot messages into chat-linking commands.
package router

import (
	"context"
	"strings"
	"time"

	"taskpilot/internal/eventbus"
	"taskpilot/internal/model"
	kit "taskpilot/internal/transport"
	logx "taskpilot/pkg/logx"
	"taskpilot/pkg/tgui"
)

// LinkStore is the storage the commands need.
type LinkStore interface {
	ConnectChat(ctx context.Context, code string, chatID int64, username string, now time.Time) (model.ChatLink, error)
	SetChatEnabled(ctx context.Context, chatID int64, enabled bool) (model.ChatLink, error)
	ChatLinkForChat(ctx context.Context, chatID int64) (model.ChatLink, bool, error)
	GetOwner(ctx context.Context, id string) (model.Owner, error)
}

// Replier sends a reply into a chat.
type Replier interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

type Command struct {
	Name        string
	Usage       string
	Description string
	Handle      HandlerFunc
}

type Request struct {
	Msg     *kit.Message
	Chat    kit.ChatTarget
	Command string
	Args    []string
	Logger  logx.Logger
}

type Router struct {
	store LinkStore
	reply Replier
	bus   eventbus.Bus
	log   logx.Logger
	now   func() time.Time

	timeout time.Duration
	cmds    map[string]Command
	order   []string
}

// New builds the router. bus may be nil.
func New(store LinkStore, reply Replier, bus eventbus.Bus, log logx.Logger) *Router {
	if bus == nil {
		bus = eventbus.Discard
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		store:   store,
		reply:   reply,
		bus:     bus,
		log:     log,
		now:     time.Now,
		timeout: 15 * time.Second,
		cmds:    map[string]Command{},
	}
	for _, c := range r.commands() {
		r.cmds[c.Name] = c
		r.order = append(r.order, c.Name)
	}
	return r
}

// Menu lists the commands for the bot's command menu.
func (r *Router) Menu() []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, kit.BotCommand{Command: name, Description: r.cmds[name].Description})
	}
	return out
}

// Run handles updates until ctx is done or updates is closed.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	r.log.Info("command dispatcher started", logx.Int("commands", len(r.cmds)))
	defer r.log.Info("command dispatcher stopped")
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			_ = r.Handle(ctx, up)
		}
	}
}

// Handle dispatches one update. Text that is not a known command is ignored.
func (r *Router) Handle(ctx context.Context, up kit.Update) error {
	msg := up.Message
	if msg == nil {
		return nil
	}
	name, args, ok := parseCommand(msg.Text)
	if !ok {
		return nil
	}
	cmd, ok := r.cmds[name]
	if !ok {
		return nil
	}

	req := &Request{
		Msg:     msg,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		Command: name,
		Args:    args,
		Logger: r.log.With(
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", name),
		),
	}
	h := Chain(cmd.Handle, MWPanicRecover(), MWRequestLog(), MWTimeout(r.timeout))
	err := h(ctx, req)
	if err != nil {
		r.send(ctx, req, tgui.Esc("Something went wrong, try again later."))
	}
	return err
}

func (r *Router) send(ctx context.Context, req *Request, text tgui.H) {
	_, err := r.reply.SendText(ctx, req.Chat, text.String(), &kit.SendOptions{ParseMode: tgui.ParseModeHTML, DisablePreview: true})
	if err != nil {
		req.Logger.Warn("reply failed", logx.Err(err))
	}
}

// parseCommand splits "/name@bot arg ..." into name and args.
func parseCommand(text string) (string, []string, bool) {
	parts := strings.Fields(strings.TrimSpace(text))
	if len(parts) == 0 || !strings.HasPrefix(parts[0], "/") {
		return "", nil, false
	}
	name := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), parts[1:], true
}
