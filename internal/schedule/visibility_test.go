package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backbeat/internal/domain"
	"backbeat/internal/schedule"
)

func strPtr(s string) *string { return &s }

func TestVisibleTasks(t *testing.T) {
	tasks := []domain.TeamTask{
		{ID: "t1", Category: "task"},                               // unassigned
		{ID: "t2", Category: "task", AssignedTo: strPtr("ruby")},   // assigned to ruby
		{ID: "t3", Category: "task", AssignedTo: strPtr("sam")},    // assigned to sam
		{ID: "e1", Category: "event", AssignedTo: strPtr("ruby")},  // calendar event
	}

	admin := schedule.VisibleTasks(tasks, "boss", true)
	assert.Equal(t, []string{"t1", "t2", "t3"}, ids(admin))

	ruby := schedule.VisibleTasks(tasks, "ruby", false)
	assert.Equal(t, []string{"t2"}, ids(ruby))

	stranger := schedule.VisibleTasks(tasks, "nobody", false)
	assert.Empty(t, stranger)
	assert.NotNil(t, stranger)
}

func TestVisibleTasksNilInput(t *testing.T) {
	got := schedule.VisibleTasks(nil, "ruby", false)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestVisibleTasksDoesNotMutateInput(t *testing.T) {
	tasks := []domain.TeamTask{
		{ID: "t1", Category: "task", AssignedTo: strPtr("ruby")},
		{ID: "t2", Category: "event"},
	}
	_ = schedule.VisibleTasks(tasks, "ruby", false)
	assert.Equal(t, "t1", tasks[0].ID)
	assert.Equal(t, "event", tasks[1].Category)
}

func TestParseWeekdays(t *testing.T) {
	got := schedule.ParseWeekdays([]string{"Saturday", "Funday", "Monday"})
	assert.Equal(t, []time.Weekday{time.Saturday, time.Monday}, got)
	assert.Nil(t, schedule.ParseWeekdays(nil))
}
