package reminder

import (
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"taskpilot/internal/model"
)

// Upcoming is the next firing of one periodic check.
type Upcoming struct {
	Kind  string
	Label string
	At    time.Time
}

// Preview lists the next firing after now of every enabled periodic check,
// earliest first. Task-due reminders depend on task data and are not listed.
// Malformed entries are left out.
func Preview(s model.NotificationSettings, now time.Time) []Upcoming {
	var out []Upcoming
	add := func(kind, label, at, dom, dow string) {
		c, err := model.ParseClock(at)
		if err != nil {
			return
		}
		sched, err := cron.ParseStandard(fmt.Sprintf("%d %d %s * %s", c.Minute, c.Hour, dom, dow))
		if err != nil {
			return
		}
		out = append(out, Upcoming{Kind: kind, Label: label, At: sched.Next(now)})
	}

	if d := s.DailySummary; d.Enabled {
		add(KindDaily, "Daily summary", d.Time, "*", "*")
	}
	if w := s.WeeklySummary; w.Enabled && w.DayOfWeek >= 0 && w.DayOfWeek <= 6 {
		add(KindWeekly, "Weekly summary", w.Time, "*", fmt.Sprint(w.DayOfWeek))
	}
	if m := s.MonthlySummary; m.Enabled && m.DayOfMonth >= 1 && m.DayOfMonth <= 28 {
		add(KindMonthly, "Monthly summary", m.Time, fmt.Sprint(m.DayOfMonth), "*")
	}
	for _, c := range s.Custom {
		add(KindCustom, c.Title, c.Time, "*", "*")
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}
