package router

import (
	"context"
	"errors"
	"fmt"

	"taskpilot/internal/eventbus"
	"taskpilot/internal/model"
	"taskpilot/internal/storage"
	logx "taskpilot/pkg/logx"
	"taskpilot/pkg/tgui"
)

func (r *Router) commands() []Command {
	return []Command{
		{Name: "start", Description: "What this bot does", Handle: r.cmdStart},
		{Name: "connect", Usage: "/connect CODE", Description: "Link this chat to your TaskPilot account", Handle: r.cmdConnect},
		{Name: "disconnect", Description: "Stop reminders in this chat", Handle: r.cmdDisconnect},
		{Name: "status", Description: "Show the link for this chat", Handle: r.cmdStatus},
	}
}

func (r *Router) cmdStart(ctx context.Context, req *Request) error {
	lines := []tgui.H{
		tgui.B("TaskPilot reminders"),
		tgui.Esc("This bot delivers task due reminders and summaries."),
		"",
	}
	for _, name := range r.order {
		c := r.cmds[name]
		usage := c.Usage
		if usage == "" {
			usage = "/" + name
		}
		lines = append(lines, tgui.Code(usage)+" "+tgui.Esc(c.Description))
	}
	lines = append(lines, "", tgui.I("Get a code with: taskpilot link code --owner ID"))
	r.send(ctx, req, joinLines(lines))
	return nil
}

// cmdConnect redeems a link code. Without a code it re-enables an existing
// link for this chat.
func (r *Router) cmdConnect(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		link, ok, err := r.store.ChatLinkForChat(ctx, req.Chat.ChatID)
		if err != nil {
			return err
		}
		if !ok {
			r.send(ctx, req, tgui.Esc("Usage: ")+tgui.Code("/connect CODE"))
			return nil
		}
		if !link.Enabled {
			if link, err = r.store.SetChatEnabled(ctx, req.Chat.ChatID, true); err != nil {
				return err
			}
			r.publishLink(eventbus.TypeChatLinked, link)
		}
		r.send(ctx, req, tgui.Esc("Reminders are on for this chat."))
		return nil
	}

	link, err := r.store.ConnectChat(ctx, req.Args[0], req.Chat.ChatID, req.Msg.FromUsername, r.now())
	if errors.Is(err, storage.ErrLinkCodeInvalid) {
		r.send(ctx, req, tgui.Esc("That code is invalid or expired. Issue a new one and try again."))
		return nil
	}
	if err != nil {
		return fmt.Errorf("connect chat: %w", err)
	}
	req.Logger.Info("chat linked", logx.String("owner", link.OwnerID))
	r.publishLink(eventbus.TypeChatLinked, link)
	r.send(ctx, req, tgui.Esc("Linked to ")+tgui.B(r.ownerLabel(ctx, link.OwnerID))+tgui.Esc(". Reminders will arrive here."))
	return nil
}

func (r *Router) cmdDisconnect(ctx context.Context, req *Request) error {
	link, err := r.store.SetChatEnabled(ctx, req.Chat.ChatID, false)
	if errors.Is(err, storage.ErrNotFound) {
		r.send(ctx, req, tgui.Esc("This chat is not linked."))
		return nil
	}
	if err != nil {
		return fmt.Errorf("disconnect chat: %w", err)
	}
	req.Logger.Info("chat unlinked", logx.String("owner", link.OwnerID))
	r.publishLink(eventbus.TypeChatUnlinked, link)
	r.send(ctx, req, tgui.Esc("Reminders are off for this chat. Send /connect to turn them back on."))
	return nil
}

func (r *Router) cmdStatus(ctx context.Context, req *Request) error {
	link, ok, err := r.store.ChatLinkForChat(ctx, req.Chat.ChatID)
	if err != nil {
		return err
	}
	if !ok {
		r.send(ctx, req, tgui.Esc("This chat is not linked. Use ")+tgui.Code("/connect CODE")+tgui.Esc("."))
		return nil
	}
	state := "on"
	if !link.Enabled {
		state = "off"
	}
	r.send(ctx, req, joinLines([]tgui.H{
		tgui.Esc("Owner: ") + tgui.B(r.ownerLabel(ctx, link.OwnerID)),
		tgui.Esc("Reminders: ") + tgui.B(state),
		tgui.Esc("Linked: ") + tgui.Esc(link.LinkedAt.Format("2006-01-02 15:04")),
	}))
	return nil
}

func (r *Router) ownerLabel(ctx context.Context, id string) string {
	o, err := r.store.GetOwner(ctx, id)
	if err != nil || o.Name == "" {
		return id
	}
	return tgui.TruncRunes(o.Name, 64)
}

func (r *Router) publishLink(typ string, link model.ChatLink) {
	r.bus.Publish(eventbus.Event{Type: typ, Data: eventbus.LinkData{Owner: link.OwnerID, ChatID: link.ChatID}})
}

func joinLines(lines []tgui.H) tgui.H {
	var out tgui.H
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
