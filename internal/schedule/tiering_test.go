package schedule_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backbeat/internal/domain"
	"backbeat/internal/schedule"
)

func TestTierFor(t *testing.T) {
	assert.Equal(t, schedule.TierContentReady, schedule.TierFor(domain.ContentProfile{EditedClipCount: 10}))
	assert.Equal(t, schedule.TierContentReady, schedule.TierFor(domain.ContentProfile{EditedClipCount: 25, RawFootage: "a phone full"}))
	assert.Equal(t, schedule.TierRawFootage, schedule.TierFor(domain.ContentProfile{EditedClipCount: 9, RawFootage: "about 30 clips from tour"}))
	assert.Equal(t, schedule.TierContentLight, schedule.TierFor(domain.ContentProfile{RawFootage: "   "}))
	assert.Equal(t, schedule.TierContentLight, schedule.TierFor(domain.ContentProfile{}))
}

func ids(tasks []domain.TeamTask) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestDefaultTasksContentReady(t *testing.T) {
	p := domain.ContentProfile{
		GalaxyID:        "g1",
		EditedClipCount: 12,
		Roster: []domain.Collaborator{
			{Name: "Sam", Role: "manager"},
			{Name: "Ruby", Role: "videographer & editor"},
		},
	}
	chain := schedule.DefaultTasks(p)
	assert.Equal(t, []string{"default-upload-edits", "default-send-notes", "default-finalize"}, ids(chain))
	assert.Equal(t, "Send notes to Ruby", chain[1].Title)
	for _, task := range chain {
		assert.True(t, task.Synthetic())
		assert.Equal(t, "g1", task.GalaxyID)
		assert.Equal(t, "pending", task.Status)
	}
}

func TestDefaultTasksContentReadyNoEditor(t *testing.T) {
	p := domain.ContentProfile{
		EditedClipCount: 15,
		Roster:          []domain.Collaborator{{Name: "Sam", Role: "manager"}},
	}
	chain := schedule.DefaultTasks(p)
	assert.Equal(t, []string{"default-upload-edits", "default-finalize"}, ids(chain))
}

func TestDefaultTasksRawFootageCapsClipCount(t *testing.T) {
	p := domain.ContentProfile{
		RawFootage: "roughly 47 clips on my phone",
		Roster:     []domain.Collaborator{{Name: "Ruby", Role: "editor"}},
	}
	chain := schedule.DefaultTasks(p)
	require.Equal(t, []string{"default-review-footage", "default-first-batch"}, ids(chain))
	assert.Contains(t, chain[0].Description, "top 10 clips")
	assert.Equal(t, "Send the first batch to Ruby", chain[1].Title)
}

func TestDefaultTasksRawFootageSelfEdit(t *testing.T) {
	p := domain.ContentProfile{
		RawFootage: "a few takes",
		Roster:     []domain.Collaborator{{Name: "Sam", Role: "manager"}},
	}
	chain := schedule.DefaultTasks(p)
	require.Len(t, chain, 2)
	assert.Equal(t, "Self-edit the first batch", chain[1].Title)
}

func TestDefaultTasksContentLight(t *testing.T) {
	p := domain.ContentProfile{Roster: []domain.Collaborator{{Name: "Ruby", Role: "Videographer"}}}
	chain := schedule.DefaultTasks(p)
	assert.Equal(t, []string{"default-brainstorm", "default-plan-shoot"}, ids(chain))
	assert.Equal(t, "Plan a shoot day with Ruby", chain[1].Title)
}

func TestDefaultTasksEmptyRosterPrependsInvite(t *testing.T) {
	chain := schedule.DefaultTasks(domain.ContentProfile{})
	require.NotEmpty(t, chain)
	assert.Equal(t, "default-invite", chain[0].ID)
	assert.Equal(t, []string{"default-invite", "default-brainstorm", "default-plan-shoot"}, ids(chain))
}

func TestParseClipCount(t *testing.T) {
	assert.Equal(t, 30, schedule.ParseClipCount("about 30 clips from tour"))
	assert.Equal(t, 7, schedule.ParseClipCount("7"))
	assert.Equal(t, 3, schedule.ParseClipCount("3 or 4 rough cuts"))
	assert.Equal(t, schedule.DefaultClipCount, schedule.ParseClipCount("a phone full of footage"))
	assert.Equal(t, schedule.DefaultClipCount, schedule.ParseClipCount(""))
}
