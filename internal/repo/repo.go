package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backbeat/internal/config"
	"backbeat/internal/domain"
)

// Repo is the store adapter over the shared persistent store. Every call is
// an I/O boundary: writes may fail transiently and failures always surface
// to the caller, never get swallowed.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertGalaxy(ctx context.Context, tx *sql.Tx, id, teamID, name, createdAt string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO galaxies(id,team_id,name,created_at) VALUES (?,?,?,?)`,
		id, teamID, nullable(name), createdAt)
	return err
}

func (r Repo) GetGalaxy(ctx context.Context, id string) (teamID string, err error) {
	err = r.DB.QueryRowContext(ctx, `SELECT team_id FROM galaxies WHERE id=?`, id).Scan(&teamID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return teamID, err
}

// SingleGalaxy returns the only galaxy in the store. ErrNotFound when the
// store is empty or holds more than one.
func (r Repo) SingleGalaxy(ctx context.Context) (id, teamID string, err error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, team_id FROM galaxies LIMIT 2`)
	if err != nil {
		return "", "", err
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		count++
		if count > 1 {
			return "", "", ErrNotFound
		}
		if err := rows.Scan(&id, &teamID); err != nil {
			return "", "", err
		}
	}
	if err := rows.Err(); err != nil {
		return "", "", err
	}
	if count == 0 {
		return "", "", ErrNotFound
	}
	return id, teamID, nil
}

func (r Repo) DeleteGalaxy(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM galaxies WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpsertGalaxyConfig(ctx context.Context, galaxyID string, cfg *config.Config) error {
	return upsertGalaxyConfig(ctx, r.DB, nil, galaxyID, cfg)
}

func (r Repo) UpsertGalaxyConfigTx(ctx context.Context, tx *sql.Tx, galaxyID string, cfg *config.Config) error {
	return upsertGalaxyConfig(ctx, nil, tx, galaxyID, cfg)
}

func upsertGalaxyConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, galaxyID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Galaxy.ID = galaxyID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO galaxy_configs(galaxy_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(galaxy_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, galaxyID, string(payload), now, now)
	return err
}

func (r Repo) GetGalaxyConfig(ctx context.Context, galaxyID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM galaxy_configs WHERE galaxy_id=?`, galaxyID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Galaxy.ID == "" {
		cfg.Galaxy.ID = galaxyID
	}
	return &cfg, cfg.Validate()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, galaxyID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, galaxyID, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, galaxyID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if galaxyID != "" {
		clauses = append(clauses, "galaxy_id=?")
		args = append(args, galaxyID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + joinAnd(clauses)
	query := fmt.Sprintf(`SELECT id,ts,type,galaxy_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var galaxy, entity, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &galaxy, &e.EntityKind, &entity, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		e.GalaxyID = galaxy.String
		e.EntityID = entity.String
		e.Payload = payload.String
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, galaxyID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if galaxyID != "" {
		clauses = append(clauses, "galaxy_id=?")
		args = append(args, galaxyID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + joinAnd(clauses)
	query := fmt.Sprintf(`SELECT id,ts,type,galaxy_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var galaxy, entity, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &galaxy, &e.EntityKind, &entity, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		e.GalaxyID = galaxy.String
		e.EntityID = entity.String
		e.Payload = payload.String
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID for a galaxy.
func (r Repo) LatestEventID(ctx context.Context, galaxyID string) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE galaxy_id=?`, galaxyID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func joinAnd(clauses []string) string {
	out := ""
	for i, c := range clauses {
		if i > 0 {
			out += " AND "
		}
		out += c
	}
	return out
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
