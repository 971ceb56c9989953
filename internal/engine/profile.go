package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backbeat/internal/domain"
	"backbeat/internal/events"
	"backbeat/internal/schedule"
)

// SaveProfile validates and stores a galaxy's content profile. Admin-only;
// the profile drives scheduling for the whole team, so members read it but
// never write it.
func (e Engine) SaveProfile(ctx context.Context, v Viewer, p domain.ContentProfile) (domain.ContentProfile, error) {
	if err := e.requireAdmin(v, "profile.save"); err != nil {
		if errors.Is(err, errDegraded) {
			return domain.ContentProfile{}, nil
		}
		return domain.ContentProfile{}, err
	}
	if p.GalaxyID == "" {
		return domain.ContentProfile{}, InputError{Reason: "galaxy is required"}
	}
	for i, r := range p.Releases {
		if r.Name == "" {
			return domain.ContentProfile{}, InputError{Reason: fmt.Sprintf("releases[%d].name is required", i)}
		}
		if _, err := time.Parse(domain.DateLayout, r.Date); err != nil {
			return domain.ContentProfile{}, InputError{Reason: fmt.Sprintf("releases[%d] has invalid date %q", i, r.Date)}
		}
	}
	teamID, err := e.Repo.GetGalaxy(ctx, p.GalaxyID)
	if err != nil {
		return domain.ContentProfile{}, err
	}
	p.TeamID = teamID
	if p.Version == 0 {
		p.Version = 1
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ContentProfile{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertProfile(ctx, tx, p); err != nil {
		return domain.ContentProfile{}, err
	}
	if err := e.audit().Append(ctx, tx, "profile.saved", p.GalaxyID, "profile", p.GalaxyID, v.ViewerID, events.EventPayload{
		"releases": len(p.Releases),
		"tier":     string(schedule.TierFor(p)),
	}); err != nil {
		return domain.ContentProfile{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ContentProfile{}, err
	}
	return p, nil
}
