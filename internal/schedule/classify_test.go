package schedule_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backbeat/internal/domain"
	"backbeat/internal/schedule"
)

func slotsOn(dates ...string) []domain.ScheduleSlot {
	out := make([]domain.ScheduleSlot, len(dates))
	for i, d := range dates {
		out[i] = domain.ScheduleSlot{Date: d}
	}
	return out
}

func typesOf(slots []domain.ScheduleSlot) []domain.PostType {
	out := make([]domain.PostType, len(slots))
	for i, s := range slots {
		out[i] = s.PostType
	}
	return out
}

func TestClassifyAroundUnreleasedRelease(t *testing.T) {
	releases := []domain.Release{{Name: "Now You Got It", Date: "2026-03-15"}}
	slots := slotsOn(
		"2026-02-28", // day before the teaser window opens
		"2026-03-01", // exactly 14 days out
		"2026-03-14", // the day before release
		"2026-03-15", // release day itself
		"2026-04-14", // release + 30
		"2026-04-15", // past the promo window
	)
	got, err := schedule.ClassifySlots(slots, releases, schedule.ClassifyOptions{})
	require.NoError(t, err)
	assert.Equal(t, []domain.PostType{
		domain.PostAudienceBuilder,
		domain.PostTeaser,
		domain.PostTeaser,
		domain.PostPromo,
		domain.PostPromo,
		domain.PostAudienceBuilder,
	}, typesOf(got))
}

func TestClassifyReleasedSkipsTeaser(t *testing.T) {
	releases := []domain.Release{{Name: "Out Now", Date: "2026-03-15", Released: true}}
	got, err := schedule.ClassifySlots(slotsOn("2026-03-10", "2026-03-20"), releases, schedule.ClassifyOptions{})
	require.NoError(t, err)
	// Before a released release there is nothing to tease; after it, promo.
	assert.Equal(t, []domain.PostType{domain.PostAudienceBuilder, domain.PostPromo}, typesOf(got))
}

func TestClassifyFirstReleaseWins(t *testing.T) {
	releases := []domain.Release{
		{Name: "First", Date: "2026-03-10"},
		{Name: "Second", Date: "2026-03-20"},
	}
	got, err := schedule.ClassifySlots(slotsOn("2026-03-08"), releases, schedule.ClassifyOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.PostTeaser, got[0].PostType)
}

func TestClassifyNoReleases(t *testing.T) {
	got, err := schedule.ClassifySlots(slotsOn("2026-03-08", "2026-05-01"), nil, schedule.ClassifyOptions{})
	require.NoError(t, err)
	assert.Equal(t, []domain.PostType{domain.PostAudienceBuilder, domain.PostAudienceBuilder}, typesOf(got))
}

func TestClassifyRejectsInvalidReleaseDate(t *testing.T) {
	releases := []domain.Release{{Name: "Broken", Date: "soon"}}
	_, err := schedule.ClassifySlots(slotsOn("2026-03-08"), releases, schedule.ClassifyOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Broken")

	_, err = schedule.ClassifySlots(slotsOn("2026-03-08"), []domain.Release{{Name: "Undated"}}, schedule.ClassifyOptions{})
	require.Error(t, err)
}

func TestSignalsSparsePromotion(t *testing.T) {
	assert.True(t, schedule.SignalsSparsePromotion("I want to promote sparingly, mostly vibes"))
	assert.True(t, schedule.SignalsSparsePromotion("Not Too Promotional please"))
	assert.False(t, schedule.SignalsSparsePromotion("promote everything, all the time"))
	assert.False(t, schedule.SignalsSparsePromotion(""))
}

func TestSparsePromoOverride(t *testing.T) {
	slots := make([]domain.ScheduleSlot, 9)
	for i := range slots {
		slots[i] = domain.ScheduleSlot{Date: "2026-06-01", PostType: domain.PostAudienceBuilder}
	}
	slots[2].PostType = domain.PostTeaser

	got := schedule.ApplySparsePromoOverride(slots, "keep promo sparingly")
	// Every fourth audience-builder slot flips; teaser untouched.
	var promos int
	for i, s := range got {
		if s.PostType == domain.PostPromo {
			promos++
			assert.NotEqual(t, 2, i)
		}
	}
	assert.Equal(t, 2, promos)
	assert.Equal(t, domain.PostTeaser, got[2].PostType)
	// Input never mutated.
	assert.Equal(t, domain.PostAudienceBuilder, slots[0].PostType)
}

func TestSparsePromoOverrideNoSignal(t *testing.T) {
	slots := []domain.ScheduleSlot{
		{Date: "2026-06-01", PostType: domain.PostAudienceBuilder},
		{Date: "2026-06-02", PostType: domain.PostAudienceBuilder},
		{Date: "2026-06-03", PostType: domain.PostAudienceBuilder},
		{Date: "2026-06-04", PostType: domain.PostAudienceBuilder},
	}
	got := schedule.ApplySparsePromoOverride(slots, "post more, grow the audience")
	assert.Equal(t, slots, got)
}
