package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"backbeat/internal/domain"
)

// GetProfile returns the structured content profile for a galaxy. The
// profile is produced by the external extraction assistant and is read-only
// to the planning core.
func (r Repo) GetProfile(ctx context.Context, galaxyID string) (domain.ContentProfile, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT profile_json FROM content_profiles WHERE galaxy_id=?`, galaxyID).Scan(&payload)
	if err == sql.ErrNoRows {
		return domain.ContentProfile{}, ErrNotFound
	}
	if err != nil {
		return domain.ContentProfile{}, err
	}
	var p domain.ContentProfile
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return domain.ContentProfile{}, fmt.Errorf("decode profile for galaxy %s: %w", galaxyID, err)
	}
	if p.GalaxyID == "" {
		p.GalaxyID = galaxyID
	}
	return p, nil
}

// UpsertProfile stores a new profile version. This is the single boundary
// where external profile payloads enter the system.
func (r Repo) UpsertProfile(ctx context.Context, tx *sql.Tx, p domain.ContentProfile) error {
	if p.GalaxyID == "" {
		return fmt.Errorf("profile galaxy_id required")
	}
	if p.Version <= 0 {
		p.Version = 1
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, `INSERT INTO content_profiles(galaxy_id,version,profile_json,created_at,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(galaxy_id) DO UPDATE SET version=excluded.version, profile_json=excluded.profile_json, updated_at=excluded.updated_at`,
		p.GalaxyID, p.Version, string(payload), now, now)
	return err
}
