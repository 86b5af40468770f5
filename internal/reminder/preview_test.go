package reminder

import (
	"testing"
	"time"

	"taskpilot/internal/model"
)

func TestPreviewOrdersEnabledChecks(t *testing.T) {
	s := model.DefaultSettings()
	s.DailySummary = model.DailySummarySettings{Enabled: true, Time: "09:00"}
	s.WeeklySummary = model.WeeklySummarySettings{Enabled: true, DayOfWeek: 0, Time: "10:30"}
	s.MonthlySummary = model.MonthlySummarySettings{Enabled: true, DayOfMonth: 1, Time: "09:00"}
	s.Custom = []model.CustomNotification{
		{ID: "a", Title: "Water", Time: "07:00"},
		{ID: "b", Title: "Broken", Time: "7"},
	}

	got := Preview(s, at(2024, 6, 3, 8, 0))
	want := []struct {
		kind string
		at   time.Time
	}{
		{KindDaily, at(2024, 6, 3, 9, 0)},
		{KindCustom, at(2024, 6, 4, 7, 0)},
		{KindWeekly, at(2024, 6, 9, 10, 30)},
		{KindMonthly, at(2024, 7, 1, 9, 0)},
	}
	if len(got) != len(want) {
		t.Fatalf("Preview = %+v", got)
	}
	for i, w := range want {
		if got[i].Kind != w.kind || !got[i].At.Equal(w.at) {
			t.Fatalf("[%d] = %s %s, want %s %s", i, got[i].Kind, got[i].At, w.kind, w.at)
		}
	}
}

func TestPreviewSkipsDisabled(t *testing.T) {
	if got := Preview(model.DefaultSettings(), at(2024, 6, 3, 8, 0)); len(got) != 0 {
		t.Fatalf("Preview = %+v, want none", got)
	}
}
