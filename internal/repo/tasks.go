package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"backbeat/internal/domain"
)

const taskColumns = `id,team_id,galaxy_id,category,type,title,description,date,start_time,end_time,status,post_status,assigned_to,assigned_by,video_ref,notes,caption,hashtags_json,created_at,updated_at,completed_at`

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.TeamTask) error {
	if t.Synthetic() {
		return fmt.Errorf("refusing to persist synthetic task id %s", t.ID)
	}
	hashtags, err := marshalHashtags(t.Hashtags)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.TeamID, t.GalaxyID, t.Category, t.Type, t.Title, nullable(t.Description),
		nullable(t.Date), nullable(t.StartTime), nullable(t.EndTime), t.Status, nullable(t.PostStatus),
		nullableStringPtr(t.AssignedTo), nullableStringPtr(t.AssignedBy), nullable(t.VideoRef),
		nullable(t.Notes), nullable(t.Caption), hashtags, t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.CompletedAt))
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.TeamTask) error {
	if t.Synthetic() {
		return fmt.Errorf("refusing to update synthetic task id %s", t.ID)
	}
	hashtags, err := marshalHashtags(t.Hashtags)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET category=?, type=?, title=?, description=?, date=?, start_time=?, end_time=?, status=?, post_status=?, assigned_to=?, assigned_by=?, video_ref=?, notes=?, caption=?, hashtags_json=?, updated_at=?, completed_at=? WHERE id=?`,
		t.Category, t.Type, t.Title, nullable(t.Description), nullable(t.Date), nullable(t.StartTime),
		nullable(t.EndTime), t.Status, nullable(t.PostStatus), nullableStringPtr(t.AssignedTo),
		nullableStringPtr(t.AssignedBy), nullable(t.VideoRef), nullable(t.Notes), nullable(t.Caption),
		hashtags, t.UpdatedAt, nullableStringPtr(t.CompletedAt), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.TeamTask, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.TeamTask, error) {
	return scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TaskFilters narrow task listings. Empty fields match everything.
type TaskFilters struct {
	TeamID     string
	GalaxyID   string
	Category   string
	Type       string
	AssignedTo string
	Date       string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.TeamTask, error) {
	var clauses []string
	var args []any
	if f.TeamID != "" {
		clauses = append(clauses, "team_id=?")
		args = append(args, f.TeamID)
	}
	if f.GalaxyID != "" {
		clauses = append(clauses, "galaxy_id=?")
		args = append(args, f.GalaxyID)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	if f.Date != "" {
		clauses = append(clauses, "date=?")
		args = append(args, f.Date)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY date ASC, created_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TeamTask
	for rows.Next() {
		t, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ListEventsTx lists category=event rows for a galaxy inside a transaction;
// the synchronizer relies on this so duplicate repair is observed before
// the create step reads "existing events".
func (r Repo) ListEventsTx(ctx context.Context, tx *sql.Tx, galaxyID string) ([]domain.TeamTask, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE galaxy_id=? AND category='event' ORDER BY date ASC, created_at ASC, id ASC`, galaxyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TeamTask
	for rows.Next() {
		t, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) CountTasks(ctx context.Context, galaxyID, category string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM tasks WHERE galaxy_id=? AND category=?`, galaxyID, category).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row *sql.Row) (domain.TeamTask, error) {
	t, err := scanTaskRow(row)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func scanTaskRow(row rowScanner) (domain.TeamTask, error) {
	var t domain.TeamTask
	var description, date, startTime, endTime, postStatus, assignedTo, assignedBy sql.NullString
	var videoRef, notes, caption, hashtags, completedAt sql.NullString
	err := row.Scan(&t.ID, &t.TeamID, &t.GalaxyID, &t.Category, &t.Type, &t.Title, &description,
		&date, &startTime, &endTime, &t.Status, &postStatus, &assignedTo, &assignedBy,
		&videoRef, &notes, &caption, &hashtags, &t.CreatedAt, &t.UpdatedAt, &completedAt)
	if err != nil {
		return t, err
	}
	t.Description = description.String
	t.Date = date.String
	t.StartTime = startTime.String
	t.EndTime = endTime.String
	t.PostStatus = postStatus.String
	if assignedTo.Valid {
		t.AssignedTo = &assignedTo.String
	}
	if assignedBy.Valid {
		t.AssignedBy = &assignedBy.String
	}
	t.VideoRef = videoRef.String
	t.Notes = notes.String
	t.Caption = caption.String
	if hashtags.Valid && hashtags.String != "" {
		if err := json.Unmarshal([]byte(hashtags.String), &t.Hashtags); err != nil {
			return t, fmt.Errorf("decode hashtags for task %s: %w", t.ID, err)
		}
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.String
	}
	return t, nil
}

func marshalHashtags(in []string) (any, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
