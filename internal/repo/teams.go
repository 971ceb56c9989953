package repo

import (
	"context"
	"database/sql"

	"backbeat/internal/domain"
)

func (r Repo) EnsureTeam(ctx context.Context, tx *sql.Tx, id, name, now string) error {
	if name == "" {
		name = id
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO teams(id, name, created_at) VALUES (?,?,?)`, id, name, now)
	return err
}

func (r Repo) GetTeam(ctx context.Context, id string) (domain.Team, error) {
	var t domain.Team
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM teams WHERE id=?`, id).
		Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) UpsertMember(ctx context.Context, tx *sql.Tx, m domain.Member) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO members(team_id, viewer_id, name, role, admin) VALUES (?,?,?,?,?)
ON CONFLICT(team_id, viewer_id) DO UPDATE SET name=excluded.name, role=excluded.role, admin=excluded.admin`,
		m.TeamID, m.ViewerID, nullable(m.Name), nullable(m.Role), boolToInt(m.Admin))
	return err
}

func (r Repo) RemoveMember(ctx context.Context, tx *sql.Tx, teamID, viewerID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM members WHERE team_id=? AND viewer_id=?`, teamID, viewerID)
	return err
}

func (r Repo) ListMembers(ctx context.Context, teamID string) ([]domain.Member, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT team_id, viewer_id, COALESCE(name,''), COALESCE(role,''), admin FROM members WHERE team_id=? ORDER BY viewer_id`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Member
	for rows.Next() {
		var m domain.Member
		var admin int
		if err := rows.Scan(&m.TeamID, &m.ViewerID, &m.Name, &m.Role, &admin); err != nil {
			return nil, err
		}
		m.Admin = admin != 0
		res = append(res, m)
	}
	return res, rows.Err()
}

// IsAdmin reports whether the viewer holds administrator permission on the
// team. Unknown viewers are plain non-admins, not errors.
func (r Repo) IsAdmin(ctx context.Context, teamID, viewerID string) (bool, error) {
	var admin int
	err := r.DB.QueryRowContext(ctx, `SELECT admin FROM members WHERE team_id=? AND viewer_id=?`, teamID, viewerID).Scan(&admin)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return admin != 0, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
