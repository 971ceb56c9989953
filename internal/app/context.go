package app

import (
	"context"
	"errors"
	"fmt"

	"backbeat/internal/config"
	"backbeat/internal/repo"
)

// ResolveGalaxyAndConfig picks the active galaxy and ensures a galaxy +
// config exist in the DB, seeding defaults if missing. It prefers the
// override, then the single-galaxy shortcut. A missing galaxy is created
// on the fly with the caller as administrator.
func ResolveGalaxyAndConfig(ctx context.Context, galaxyOverride, viewerID string, r repo.Repo, create func(ctx context.Context, teamID, galaxyID, name, viewerID string) error) (string, *config.Config, error) {
	galaxyID := galaxyOverride
	if galaxyID == "" {
		id, _, err := r.SingleGalaxy(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("galaxy not specified; use --galaxy")
		}
		galaxyID = id
	}
	seedCfg := config.Default(galaxyID)

	if _, err := r.GetGalaxy(ctx, galaxyID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if viewerID == "" {
			viewerID = "local-user"
		}
		if err := create(ctx, galaxyID+"-team", galaxyID, galaxyID, viewerID); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetGalaxyConfig(ctx, galaxyID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertGalaxyConfig(ctx, galaxyID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed galaxy config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Galaxy.ID = galaxyID
	return galaxyID, cfg, nil
}
