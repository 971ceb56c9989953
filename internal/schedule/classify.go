package schedule

import (
	"fmt"
	"strings"
	"time"

	"backbeat/internal/domain"
)

const (
	DefaultTeaserDays = 14
	DefaultPromoDays  = 30
)

// ClassifyOptions bound the teaser and promo windows around release dates.
type ClassifyOptions struct {
	TeaserDays int
	PromoDays  int
}

func (o ClassifyOptions) normalized() ClassifyOptions {
	if o.TeaserDays <= 0 {
		o.TeaserDays = DefaultTeaserDays
	}
	if o.PromoDays <= 0 {
		o.PromoDays = DefaultPromoDays
	}
	return o
}

type parsedRelease struct {
	date     time.Time
	released bool
}

// parseReleases validates release dates up front. A release without a
// parseable date is a malformed-profile error, surfaced immediately rather
// than defaulted away, because the dates feed classification math.
func parseReleases(releases []domain.Release) ([]parsedRelease, error) {
	parsed := make([]parsedRelease, 0, len(releases))
	for i, r := range releases {
		if strings.TrimSpace(r.Date) == "" {
			return nil, fmt.Errorf("release %q (index %d) has no date", r.Name, i)
		}
		d, err := time.Parse(domain.DateLayout, r.Date)
		if err != nil {
			return nil, fmt.Errorf("release %q has invalid date %q: %w", r.Name, r.Date, err)
		}
		parsed = append(parsed, parsedRelease{date: truncateDay(d), released: r.Released})
	}
	return parsed, nil
}

// ClassifySlots tags each slot with its post type. Precedence: teaser when
// the date falls within the teaser window strictly before an unreleased
// release, else promo when within the promo window after any release, else
// audience builder. The first matching release in list order wins; no
// proximity disambiguation is attempted.
func ClassifySlots(slots []domain.ScheduleSlot, releases []domain.Release, opts ClassifyOptions) ([]domain.ScheduleSlot, error) {
	opts = opts.normalized()
	parsed, err := parseReleases(releases)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ScheduleSlot, len(slots))
	for i, s := range slots {
		d, err := time.Parse(domain.DateLayout, s.Date)
		if err != nil {
			return nil, fmt.Errorf("slot date %q: %w", s.Date, err)
		}
		s.PostType = classify(truncateDay(d), parsed, opts)
		out[i] = s
	}
	return out, nil
}

func classify(d time.Time, releases []parsedRelease, opts ClassifyOptions) domain.PostType {
	for _, r := range releases {
		if r.released {
			continue
		}
		if d.Before(r.date) && !d.Before(r.date.AddDate(0, 0, -opts.TeaserDays)) {
			return domain.PostTeaser
		}
	}
	for _, r := range releases {
		if !d.Before(r.date) && !d.After(r.date.AddDate(0, 0, opts.PromoDays)) {
			return domain.PostPromo
		}
	}
	return domain.PostAudienceBuilder
}

// sparseSignals are the free-text phrases read as a promote-sparingly
// intent. This is a heuristic over unstructured strategy commentary, kept
// deliberately dumb.
var sparseSignals = []string{
	"sparingly",
	"not too promotional",
	"don't want to promote",
	"do not want to promote",
	"low-key promotion",
}

// SignalsSparsePromotion reports whether free-text strategy notes express a
// promote-sparingly style intent.
func SignalsSparsePromotion(notes string) bool {
	lowered := strings.ToLower(notes)
	for _, sig := range sparseSignals {
		if strings.Contains(lowered, sig) {
			return true
		}
	}
	return false
}

// ApplySparsePromoOverride reclassifies one in four audience-builder slots
// as promo when the strategy notes signal sparse promotion. It is a
// post-processing step over the primary classification, isolated here so it
// can be swapped or removed without touching the core rule; teaser and
// promo slots are never touched. The input slice is not mutated.
func ApplySparsePromoOverride(slots []domain.ScheduleSlot, strategyNotes string) []domain.ScheduleSlot {
	out := make([]domain.ScheduleSlot, len(slots))
	copy(out, slots)
	if !SignalsSparsePromotion(strategyNotes) {
		return out
	}
	seen := 0
	for i, s := range out {
		if s.PostType != domain.PostAudienceBuilder {
			continue
		}
		seen++
		if seen%4 == 0 {
			out[i].PostType = domain.PostPromo
		}
	}
	return out
}
