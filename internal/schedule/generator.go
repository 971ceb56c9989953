// Package schedule holds the pure planning core: slot generation, post
// classification, backward deadline planning, readiness tiering, and the
// per-viewer visibility projection. Nothing in this package touches the
// store; every function is deterministic for identical inputs, which is
// what makes event synchronization idempotent.
package schedule

import (
	"sort"
	"time"

	"backbeat/internal/domain"
)

const (
	DefaultWindowWeeks  = 4
	DefaultPostsPerWeek = 3
)

// GeneratorOptions control slot generation. Zero values fall back to the
// contract defaults; an empty preferred-day set means weekends.
type GeneratorOptions struct {
	WindowWeeks   int
	PostsPerWeek  int
	PreferredDays []time.Weekday
}

func (o GeneratorOptions) normalized() GeneratorOptions {
	if o.WindowWeeks <= 0 {
		o.WindowWeeks = DefaultWindowWeeks
	}
	if o.PostsPerWeek <= 0 {
		o.PostsPerWeek = DefaultPostsPerWeek
	}
	if len(o.PreferredDays) == 0 {
		o.PreferredDays = []time.Weekday{time.Saturday, time.Sunday}
	}
	return o
}

// GenerateSlots partitions the rolling window into week buckets starting at
// today. Within each bucket candidate days are ordered preferred-first with
// natural weekday order as tie-break, then picked alternately (every other
// visited day) until the per-week quota is met or days run out.
func GenerateSlots(today time.Time, opts GeneratorOptions) []domain.ScheduleSlot {
	opts = opts.normalized()
	preferred := make(map[time.Weekday]bool, len(opts.PreferredDays))
	for _, d := range opts.PreferredDays {
		preferred[d] = true
	}
	start := truncateDay(today)

	var slots []domain.ScheduleSlot
	for week := 0; week < opts.WindowWeeks; week++ {
		bucket := make([]time.Time, 0, 7)
		weekStart := start.AddDate(0, 0, 7*week)
		for i := 0; i < 7; i++ {
			bucket = append(bucket, weekStart.AddDate(0, 0, i))
		}
		sort.SliceStable(bucket, func(i, j int) bool {
			pi, pj := preferred[bucket[i].Weekday()], preferred[bucket[j].Weekday()]
			if pi != pj {
				return pi
			}
			return bucket[i].Weekday() < bucket[j].Weekday()
		})
		taken := 0
		for i := 0; i < len(bucket) && taken < opts.PostsPerWeek; i += 2 {
			slots = append(slots, domain.ScheduleSlot{
				Date: bucket[i].Format(domain.DateLayout),
				Week: week,
			})
			taken++
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Date < slots[j].Date })
	return slots
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
