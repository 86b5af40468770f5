// Package notify turns tasks and custom entries into channel-ready messages.
//
// Every function here is pure. A Message carries both a plain-text rendering
// (desktop notifications) and a Telegram-HTML rendering (bot messages); a
// channel picks the one its transport understands. Absent optional fields
// (description, due date) are omitted, never rendered as placeholders.
package notify

import (
	"strings"
	"time"

	"taskpilot/internal/model"
	"taskpilot/pkg/tgui"
)

// DueLayout is the display format for due timestamps.
const DueLayout = "Mon, 02 Jan 2006 15:04"

// EmptyDigest is the sentence used when a digest has no tasks.
const EmptyDigest = "No tasks due."

const maxTitleRunes = 200

// Message is a formatted notification.
type Message struct {
	Title string
	Text  string
	HTML  tgui.H
}

// FormatTask renders a single task-due reminder.
func FormatTask(t model.Task) Message {
	title := "Task due: " + tgui.TruncRunes(strings.TrimSpace(t.Title), maxTitleRunes)

	lines := []string{strings.TrimSpace(t.Title)}
	html := []tgui.H{tgui.B(strings.TrimSpace(t.Title))}
	if d := strings.TrimSpace(t.Description); d != "" {
		lines = append(lines, d)
		html = append(html, tgui.Esc(d))
	}
	if t.HasDue() {
		due := "Due: " + t.DueAt.Format(DueLayout)
		lines = append(lines, due)
		html = append(html, tgui.I(due))
	}
	if t.Priority != "" {
		p := "Priority: " + string(t.Priority)
		lines = append(lines, p)
		html = append(html, tgui.Esc(p))
	}

	return Message{
		Title: title,
		Text:  strings.Join(lines, "\n"),
		HTML:  tgui.JoinH("\n", append([]tgui.H{tgui.B("⏰ Task reminder")}, html...)...),
	}
}

// FormatDigest renders a summary: a header followed by one line per task.
func FormatDigest(title string, tasks []model.Task) Message {
	title = strings.TrimSpace(title)
	if len(tasks) == 0 {
		return Message{
			Title: title,
			Text:  EmptyDigest,
			HTML:  tgui.JoinH("\n", tgui.B(title), tgui.Esc(EmptyDigest)),
		}
	}

	lines := make([]string, 0, len(tasks))
	html := make([]tgui.H, 0, len(tasks)+1)
	html = append(html, tgui.B(title))
	for _, t := range tasks {
		name := tgui.TruncRunes(strings.TrimSpace(t.Title), maxTitleRunes)
		line := "• " + name
		h := tgui.Esc("• " + name)
		if t.HasDue() {
			due := t.DueAt.Format(DueLayout)
			line += " (" + due + ")"
			h = tgui.JoinH(" ", h, tgui.I("("+due+")"))
		}
		lines = append(lines, line)
		html = append(html, h)
	}
	return Message{
		Title: title,
		Text:  strings.Join(lines, "\n"),
		HTML:  tgui.JoinH("\n", html...),
	}
}

// FormatCustom renders a custom notification's literal payload.
func FormatCustom(c model.CustomNotification) Message {
	title := strings.TrimSpace(c.Title)
	body := strings.TrimSpace(c.Message)
	return Message{
		Title: title,
		Text:  body,
		HTML:  tgui.JoinH("\n", tgui.B(title), tgui.Esc(body)),
	}
}

// DigestTitle names a summary kind for a given day.
func DigestTitle(kind string, now time.Time) string {
	switch kind {
	case "daily":
		return "Daily summary · " + now.Format("Mon 02 Jan")
	case "weekly":
		return "Weekly summary · week of " + now.Format("02 Jan")
	case "monthly":
		return "Monthly summary · " + now.Format("January 2006")
	default:
		return "Summary"
	}
}
