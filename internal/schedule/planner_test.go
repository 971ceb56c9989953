package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backbeat/internal/schedule"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPlanDeadlinesOffsets(t *testing.T) {
	got := schedule.PlanDeadlines(date(2026, 3, 15), date(2026, 2, 1), schedule.PlannerOffsets{})
	assert.Equal(t, "2026-03-15", got.PostingDate)
	assert.Equal(t, "2026-03-08", got.ShootDate)
	assert.Equal(t, "2026-03-13", got.EditDeadline)
	assert.Equal(t, "2026-03-05", got.ShotListDeadline)
	assert.Equal(t, "2026-03-01", got.TreatmentDeadline)
	assert.Empty(t, got.Late)
}

func TestPlanDeadlinesFlagsLateStages(t *testing.T) {
	got := schedule.PlanDeadlines(date(2026, 3, 15), date(2026, 3, 6), schedule.PlannerOffsets{})
	// Treatment (03-01) and shot list (03-05) already passed; shoot and
	// edit are still ahead.
	assert.Equal(t, []string{"treatment", "shot_list"}, got.Late)
}

func TestPlanDeadlinesAllLate(t *testing.T) {
	got := schedule.PlanDeadlines(date(2026, 3, 15), date(2026, 4, 1), schedule.PlannerOffsets{})
	require.Len(t, got.Late, 4)
	assert.Equal(t, []string{"treatment", "shot_list", "shoot", "edit"}, got.Late)
}

func TestPlanDeadlinesCustomOffsets(t *testing.T) {
	got := schedule.PlanDeadlines(date(2026, 3, 15), date(2026, 1, 1), schedule.PlannerOffsets{
		ShootDays: 10, EditDays: 1, ShotListDays: 2, TreatmentDays: 3,
	})
	assert.Equal(t, "2026-03-05", got.ShootDate)
	assert.Equal(t, "2026-03-14", got.EditDeadline)
	assert.Equal(t, "2026-03-03", got.ShotListDeadline)
	assert.Equal(t, "2026-02-28", got.TreatmentDeadline)
}
