package schedule

import (
	"time"

	"backbeat/internal/domain"
)

// PlannerOffsets are the fixed day offsets for backward planning. Zero
// values fall back to the contract defaults.
type PlannerOffsets struct {
	ShootDays     int
	EditDays      int
	ShotListDays  int
	TreatmentDays int
}

func (o PlannerOffsets) normalized() PlannerOffsets {
	if o.ShootDays <= 0 {
		o.ShootDays = 7
	}
	if o.EditDays <= 0 {
		o.EditDays = 2
	}
	if o.ShotListDays <= 0 {
		o.ShotListDays = 3
	}
	if o.TreatmentDays <= 0 {
		o.TreatmentDays = 4
	}
	return o
}

// PlanDeadlines derives shoot, edit, shot-list, and treatment dates from a
// posting date by fixed offsets. It never consults store state. Stages that
// land before today are flagged in Late rather than dropped, so callers can
// decide whether an already-late plan is still worth creating.
func PlanDeadlines(postingDate, today time.Time, offsets PlannerOffsets) domain.Deadlines {
	offsets = offsets.normalized()
	posting := truncateDay(postingDate)
	now := truncateDay(today)

	shoot := posting.AddDate(0, 0, -offsets.ShootDays)
	edit := posting.AddDate(0, 0, -offsets.EditDays)
	shotList := shoot.AddDate(0, 0, -offsets.ShotListDays)
	treatment := shotList.AddDate(0, 0, -offsets.TreatmentDays)

	d := domain.Deadlines{
		PostingDate:       posting.Format(domain.DateLayout),
		ShootDate:         shoot.Format(domain.DateLayout),
		EditDeadline:      edit.Format(domain.DateLayout),
		ShotListDeadline:  shotList.Format(domain.DateLayout),
		TreatmentDeadline: treatment.Format(domain.DateLayout),
	}
	for _, stage := range []struct {
		name string
		date time.Time
	}{
		{"treatment", treatment},
		{"shot_list", shotList},
		{"shoot", shoot},
		{"edit", edit},
	} {
		if stage.date.Before(now) {
			d.Late = append(d.Late, stage.name)
		}
	}
	return d
}
