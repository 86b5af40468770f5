package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	MinLeadMinutes     = 5
	MaxLeadMinutes     = 60
	DefaultLeadMinutes = 15
	defaultSummaryTime = "09:00"
)

// NotificationSettings is the per-owner notification configuration.
type NotificationSettings struct {
	TaskDue        TaskDueSettings        `json:"task_due"`
	DailySummary   DailySummarySettings   `json:"daily_summary"`
	WeeklySummary  WeeklySummarySettings  `json:"weekly_summary"`
	MonthlySummary MonthlySummarySettings `json:"monthly_summary"`
	Custom         []CustomNotification   `json:"custom_notifications"`

	// Unreadable names stored sections (or "custom_notifications[i]"
	// entries) that could not be decoded. Their checks are skipped.
	Unreadable []string `json:"-"`
}

// Section names as stored.
const (
	SectionTaskDue = "task_due"
	SectionDaily   = "daily_summary"
	SectionWeekly  = "weekly_summary"
	SectionMonthly = "monthly_summary"
	SectionCustom  = "custom_notifications"
)

// UnreadableIn returns the Unreadable entries that belong to section.
func (s NotificationSettings) UnreadableIn(section string) []string {
	var out []string
	for _, u := range s.Unreadable {
		if u == section || strings.HasPrefix(u, section+"[") {
			out = append(out, u)
		}
	}
	return out
}

type TaskDueSettings struct {
	Enabled     bool `json:"enabled"`
	LeadMinutes int  `json:"lead_minutes"`
}

type DailySummarySettings struct {
	Enabled bool   `json:"enabled"`
	Time    string `json:"time"`
}

type WeeklySummarySettings struct {
	Enabled   bool   `json:"enabled"`
	DayOfWeek int    `json:"day_of_week"` // 0=Sunday
	Time      string `json:"time"`
}

type MonthlySummarySettings struct {
	Enabled    bool   `json:"enabled"`
	DayOfMonth int    `json:"day_of_month"` // 1..28
	Time       string `json:"time"`
}

// CustomNotification fires once per calendar day at Time with a literal payload.
type CustomNotification struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Time    string `json:"time"`
}

// DefaultSettings is what an owner gets before saving anything: task-due
// reminders at a 15 minute lead, every summary off, no custom entries.
func DefaultSettings() NotificationSettings {
	return NotificationSettings{
		TaskDue:        TaskDueSettings{Enabled: true, LeadMinutes: DefaultLeadMinutes},
		DailySummary:   DailySummarySettings{Time: defaultSummaryTime},
		WeeklySummary:  WeeklySummarySettings{DayOfWeek: int(time.Monday), Time: defaultSummaryTime},
		MonthlySummary: MonthlySummarySettings{DayOfMonth: 1, Time: defaultSummaryTime},
		Custom:         []CustomNotification{},
	}
}

// ErrInvalidSettings wraps every validation failure.
var ErrInvalidSettings = errors.New("invalid notification settings")

// Validate checks ranges and time formats. It is applied on write; readers
// tolerate malformed values and skip only the affected check.
func (s NotificationSettings) Validate() error {
	var errs []error
	if s.TaskDue.LeadMinutes < MinLeadMinutes || s.TaskDue.LeadMinutes > MaxLeadMinutes {
		errs = append(errs, fmt.Errorf("task_due.lead_minutes must be %d..%d, got %d", MinLeadMinutes, MaxLeadMinutes, s.TaskDue.LeadMinutes))
	}
	if _, err := ParseClock(s.DailySummary.Time); err != nil {
		errs = append(errs, fmt.Errorf("daily_summary.time: %w", err))
	}
	if s.WeeklySummary.DayOfWeek < 0 || s.WeeklySummary.DayOfWeek > 6 {
		errs = append(errs, fmt.Errorf("weekly_summary.day_of_week must be 0..6, got %d", s.WeeklySummary.DayOfWeek))
	}
	if _, err := ParseClock(s.WeeklySummary.Time); err != nil {
		errs = append(errs, fmt.Errorf("weekly_summary.time: %w", err))
	}
	if s.MonthlySummary.DayOfMonth < 1 || s.MonthlySummary.DayOfMonth > 28 {
		errs = append(errs, fmt.Errorf("monthly_summary.day_of_month must be 1..28, got %d", s.MonthlySummary.DayOfMonth))
	}
	if _, err := ParseClock(s.MonthlySummary.Time); err != nil {
		errs = append(errs, fmt.Errorf("monthly_summary.time: %w", err))
	}
	seen := make(map[string]bool, len(s.Custom))
	for i, c := range s.Custom {
		if strings.TrimSpace(c.ID) == "" {
			errs = append(errs, fmt.Errorf("custom_notifications[%d].id required", i))
		} else if seen[c.ID] {
			errs = append(errs, fmt.Errorf("custom_notifications[%d].id %q duplicated", i, c.ID))
		}
		seen[c.ID] = true
		if strings.TrimSpace(c.Title) == "" {
			errs = append(errs, fmt.Errorf("custom_notifications[%d].title required", i))
		}
		if _, err := ParseClock(c.Time); err != nil {
			errs = append(errs, fmt.Errorf("custom_notifications[%d].time: %w", i, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(errs...))
}

// Clock is a local wall-clock HH:MM.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// On returns the instant at this clock time on day's calendar date, in day's location.
func (c Clock) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, day.Location())
}

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[1]) != 2 {
		return Clock{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}
