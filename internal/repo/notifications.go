package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"backbeat/internal/domain"
)

func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	if n.ID == "" {
		return errors.New("notification id required")
	}
	if n.RecipientID == "" {
		return errors.New("notification recipient required")
	}
	if n.CreatedAt == "" {
		n.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO notifications(id,recipient_id,team_id,kind,title,body,metadata_json,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		n.ID, n.RecipientID, n.TeamID, n.Kind, n.Title, nullable(n.Body), nullable(n.MetadataJSON), n.CreatedAt)
	return err
}

func (r Repo) ListNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,recipient_id,team_id,kind,title,COALESCE(body,''),COALESCE(metadata_json,''),created_at,delivered_at,read_at
FROM notifications WHERE recipient_id=? ORDER BY created_at DESC, id DESC LIMIT ?`, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNotifications(rows)
}

// ListUndelivered returns notifications the webhook dispatcher has not
// pushed out yet, oldest first.
func (r Repo) ListUndelivered(ctx context.Context, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,recipient_id,team_id,kind,title,COALESCE(body,''),COALESCE(metadata_json,''),created_at,delivered_at,read_at
FROM notifications WHERE delivered_at IS NULL ORDER BY created_at ASC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNotifications(rows)
}

func (r Repo) MarkDelivered(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET delivered_at=? WHERE id=? AND delivered_at IS NULL`, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) MarkRead(ctx context.Context, id, recipientID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read_at=? WHERE id=? AND recipient_id=?`, now, id, recipientID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func collectNotifications(rows *sql.Rows) ([]domain.Notification, error) {
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var delivered, read sql.NullString
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.TeamID, &n.Kind, &n.Title, &n.Body, &n.MetadataJSON, &n.CreatedAt, &delivered, &read); err != nil {
			return nil, err
		}
		if delivered.Valid {
			n.DeliveredAt = &delivered.String
		}
		if read.Valid {
			n.ReadAt = &read.String
		}
		res = append(res, n)
	}
	return res, rows.Err()
}
