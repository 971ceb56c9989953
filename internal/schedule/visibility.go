package schedule

import (
	"time"

	"backbeat/internal/domain"
)

// VisibleTasks projects the full task list down to what one viewer may see.
// Events are calendar-only and dropped unconditionally. Unassigned tasks
// are visible only to administrators; assigned tasks only to their assignee
// and to administrators. The input slice is never mutated and any input,
// including nil, yields a non-nil result.
func VisibleTasks(tasks []domain.TeamTask, viewerID string, isAdmin bool) []domain.TeamTask {
	out := make([]domain.TeamTask, 0, len(tasks))
	for _, t := range tasks {
		if t.Category == "event" {
			continue
		}
		if t.AssignedTo == nil {
			if isAdmin {
				out = append(out, t)
			}
			continue
		}
		if isAdmin || *t.AssignedTo == viewerID {
			out = append(out, t)
		}
	}
	return out
}

var weekdayNames = map[string]time.Weekday{
	"Sunday":    time.Sunday,
	"Monday":    time.Monday,
	"Tuesday":   time.Tuesday,
	"Wednesday": time.Wednesday,
	"Thursday":  time.Thursday,
	"Friday":    time.Friday,
	"Saturday":  time.Saturday,
}

// ParseWeekdays converts weekday names into time.Weekday values, silently
// skipping names it does not recognize. Config validation rejects unknown
// names at the boundary; profiles coming from free-text extraction may
// still carry junk, and a bad day must not sink the whole schedule.
func ParseWeekdays(names []string) []time.Weekday {
	var days []time.Weekday
	for _, n := range names {
		if d, ok := weekdayNames[n]; ok {
			days = append(days, d)
		}
	}
	return days
}
