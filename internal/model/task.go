// Package model holds the TaskPilot domain types shared by storage, the
// reminder scheduler and the delivery channels.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Priority is a task's priority tag.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority accepts low/medium/high (case-insensitive). Empty means medium.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	default:
		return "", fmt.Errorf("invalid priority %q (use low, medium or high)", s)
	}
}

// Task is a single to-do item. The reminder scheduler only reads tasks.
type Task struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	DueAt       *time.Time
	Completed   bool
	Priority    Priority
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasDue reports whether the task carries a due timestamp.
func (t Task) HasDue() bool { return t.DueAt != nil && !t.DueAt.IsZero() }

// TaskQuery filters tasks for one owner. Zero bounds are open.
type TaskQuery struct {
	Completed *bool
	DueAfter  time.Time
	DueBefore time.Time
}

// Owner is a TaskPilot user.
type Owner struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// ChatLink binds an owner to a Telegram chat.
type ChatLink struct {
	OwnerID  string
	ChatID   int64
	Username string
	Enabled  bool
	LinkedAt time.Time
}
