package reminder

import (
	"fmt"
	"time"

	"taskpilot/internal/model"
)

const dateLayout = "2006-01-02"

func dueKey(owner, taskID string, due time.Time) string {
	return fmt.Sprintf("due:%s:%s:%d", owner, taskID, due.Unix())
}

func dailyKey(owner string, now time.Time) string {
	return "daily:" + owner + ":" + now.Format(dateLayout)
}

// weeklyKey buckets by floor(day/7) within the month, not ISO week.
func weeklyKey(owner string, now time.Time) string {
	return fmt.Sprintf("weekly:%s:%s:%d", owner, now.Format("2006-01"), now.Day()/7)
}

func monthlyKey(owner string, now time.Time) string {
	return "monthly:" + owner + ":" + now.Format("2006-01")
}

func customKey(owner, id string, now time.Time) string {
	return "custom:" + owner + ":" + id + ":" + now.Format(dateLayout)
}

// minuteMatch reports whether a periodic check at clock c is due at now.
// Exact mode wants the same HH:MM; catch-up mode accepts any instant at or
// after c on now's date.
func minuteMatch(now time.Time, c model.Clock, catchUp bool) bool {
	if catchUp {
		return !now.Before(c.On(now))
	}
	return now.Hour() == c.Hour && now.Minute() == c.Minute
}
