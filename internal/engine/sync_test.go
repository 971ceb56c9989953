package engine_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"backbeat/internal/domain"
	"backbeat/internal/engine"
	"backbeat/internal/repo"
)

func generateTestSlots(t *testing.T, env testEnv) []domain.ScheduleSlot {
	t.Helper()
	profile := seedProfile(t, env, domain.ContentProfile{
		Releases: []domain.Release{{Name: "Now You Got It", Date: "2026-03-15"}},
	})
	slots, err := env.Engine.GenerateSchedule(profile, 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return slots
}

func TestSyncEventsCreatesThenSettles(t *testing.T) {
	env := newTestEnv(t)
	slots := generateTestSlots(t, env)

	res, err := env.Engine.SyncEvents(env.Ctx, admin, testGalaxy, slots)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if res.Created != len(slots) || res.Repaired != 0 || res.Unchanged != 0 {
		t.Fatalf("first sync: want %d created, got %+v", len(slots), res)
	}

	events, err := env.Engine.EventsForGalaxy(env.Ctx, testGalaxy)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != len(slots) {
		t.Fatalf("want %d events, got %d", len(slots), len(events))
	}
	for _, ev := range events {
		if ev.Category != "event" || ev.Type != "post" {
			t.Fatalf("unexpected event row %+v", ev)
		}
	}

	mark, err := env.Engine.Repo.LatestEventID(env.Ctx, testGalaxy)
	if err != nil {
		t.Fatalf("latest log id: %v", err)
	}

	// A settled calendar syncs as a pure read: no rows, no log entry.
	res, err = env.Engine.SyncEvents(env.Ctx, admin, testGalaxy, slots)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if res.Created != 0 || res.Repaired != 0 || res.Unchanged != len(slots) {
		t.Fatalf("second sync should be all unchanged, got %+v", res)
	}
	after, err := env.Engine.Repo.LatestEventID(env.Ctx, testGalaxy)
	if err != nil {
		t.Fatalf("latest log id: %v", err)
	}
	if after != mark {
		t.Fatalf("clean sync appended to the log: %d -> %d", mark, after)
	}
}

func TestSyncEventsRepairsDuplicates(t *testing.T) {
	env := newTestEnv(t)
	slots := generateTestSlots(t, env)
	if _, err := env.Engine.SyncEvents(env.Ctx, admin, testGalaxy, slots); err != nil {
		t.Fatalf("seed sync: %v", err)
	}

	// Inject a duplicate row for the first slot date behind the engine's back.
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	dup := domain.TeamTask{
		ID:        uuid.New().String(),
		TeamID:    testTeam,
		GalaxyID:  testGalaxy,
		Category:  "event",
		Type:      "post",
		Title:     "Teaser post",
		Date:      slots[0].Date,
		Status:    "pending",
		CreatedAt: "2026-03-02T12:00:00Z",
		UpdatedAt: "2026-03-02T12:00:00Z",
	}
	if err := env.Engine.Repo.InsertTask(env.Ctx, tx, dup); err != nil {
		t.Fatalf("insert duplicate: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	res, err := env.Engine.SyncEvents(env.Ctx, admin, testGalaxy, slots)
	if err != nil {
		t.Fatalf("repair sync: %v", err)
	}
	if res.Repaired != 1 || res.Created != 0 || res.Unchanged != len(slots) {
		t.Fatalf("want one repair, got %+v", res)
	}

	// The injected newer row is the one collapsed; the original survives.
	if _, err := env.Engine.Repo.GetTask(env.Ctx, dup.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("duplicate should be gone, got %v", err)
	}
	events, err := env.Engine.EventsForGalaxy(env.Ctx, testGalaxy)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	seen := map[string]bool{}
	for _, ev := range events {
		if seen[ev.Date] {
			t.Fatalf("date %s still duplicated", ev.Date)
		}
		seen[ev.Date] = true
	}
}

func TestSyncEventsAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	slots := generateTestSlots(t, env)

	var ve engine.InvariantError
	if _, err := env.Engine.SyncEvents(env.Ctx, member, testGalaxy, slots); !errors.As(err, &ve) {
		t.Fatalf("want InvariantError, got %v", err)
	}

	relaxed := env.Engine
	cfg := *env.Engine.Config
	cfg.Features.StrictInvariants = false
	relaxed.Config = &cfg

	res, err := relaxed.SyncEvents(env.Ctx, member, testGalaxy, slots)
	if err != nil {
		t.Fatalf("degraded sync: %v", err)
	}
	if res != (engine.SyncResult{}) {
		t.Fatalf("degraded sync should report nothing, got %+v", res)
	}
	events, err := env.Engine.EventsForGalaxy(env.Ctx, testGalaxy)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("degraded sync must not write, got %d events", len(events))
	}
}
