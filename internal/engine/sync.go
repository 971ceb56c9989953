package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"backbeat/internal/domain"
	"backbeat/internal/events"
)

// SyncResult reports what one synchronization pass did to the shared
// calendar.
type SyncResult struct {
	Created   int `json:"created"`
	Repaired  int `json:"repaired"`
	Unchanged int `json:"unchanged"`
}

func (r SyncResult) dirty() bool { return r.Created > 0 || r.Repaired > 0 }

// SyncEvents reconciles the persisted calendar events of a galaxy with a
// freshly generated schedule. Repair runs before creation inside one
// transaction: duplicate events sharing a date are collapsed to the oldest
// row first, and only then are events created for generated dates that
// still have no survivor. A pass that finds nothing to do writes nothing,
// not even a log entry, so repeated syncs against a settled calendar are
// pure reads.
//
// Admin-only. Non-admins either fail the invariant check or, in degraded
// mode, get a zero result back with the store untouched.
func (e Engine) SyncEvents(ctx context.Context, v Viewer, galaxyID string, slots []domain.ScheduleSlot) (SyncResult, error) {
	if err := e.requireAdmin(v, "events.sync"); err != nil {
		if errors.Is(err, errDegraded) {
			return SyncResult{}, nil
		}
		return SyncResult{}, err
	}
	teamID, err := e.Repo.GetGalaxy(ctx, galaxyID)
	if err != nil {
		return SyncResult{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return SyncResult{}, err
	}
	defer tx.Rollback()

	existing, err := e.Repo.ListEventsTx(ctx, tx, galaxyID)
	if err != nil {
		return SyncResult{}, err
	}

	var res SyncResult
	// Oldest row per date survives; ListEventsTx orders by date, created_at,
	// id, so the first occurrence is the keeper.
	survivors := make(map[string]domain.TeamTask, len(existing))
	for _, ev := range existing {
		if _, ok := survivors[ev.Date]; !ok {
			survivors[ev.Date] = ev
			continue
		}
		if err := e.Repo.DeleteTask(ctx, tx, ev.ID); err != nil {
			return SyncResult{}, err
		}
		res.Repaired++
	}

	now := e.now().UTC().Format(time.RFC3339)
	for _, slot := range slots {
		if _, ok := survivors[slot.Date]; ok {
			res.Unchanged++
			continue
		}
		ev := domain.TeamTask{
			ID:          uuid.New().String(),
			TeamID:      teamID,
			GalaxyID:    galaxyID,
			Category:    "event",
			Type:        "post",
			Title:       eventTitle(slot.PostType),
			Description: fmt.Sprintf("Week %d posting slot", slot.Week),
			Date:        slot.Date,
			Status:      "pending",
			PostStatus:  "unlinked",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := e.Repo.InsertTask(ctx, tx, ev); err != nil {
			return SyncResult{}, err
		}
		survivors[slot.Date] = ev
		res.Created++
	}

	if !res.dirty() {
		return res, nil
	}
	if err := e.audit().Append(ctx, tx, "events.synced", galaxyID, "galaxy", galaxyID, v.ViewerID, events.EventPayload{
		"created":  res.Created,
		"repaired": res.Repaired,
	}); err != nil {
		return SyncResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return SyncResult{}, err
	}
	return res, nil
}

func eventTitle(postType domain.PostType) string {
	switch postType {
	case domain.PostTeaser:
		return "Teaser post"
	case domain.PostPromo:
		return "Promo post"
	default:
		return "Audience builder post"
	}
}
