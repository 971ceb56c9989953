package server

import (
	"backbeat/internal/domain"
	"backbeat/internal/engine"
)

type CreateGalaxyRequest struct {
	ID     string `json:"id" example:"ruby-moon"`
	TeamID string `json:"team_id" example:"ruby-moon-team"`
	Name   string `json:"name,omitempty" example:"Ruby Moon"`
}

type GalaxyResponse struct {
	ID     string `json:"id"`
	TeamID string `json:"team_id"`
}

// ScheduleResponse carries the computed slots plus the outcome of the
// calendar sync. Saved is false when the viewer could not or did not
// persist the slots; the schedule itself is always present.
type ScheduleResponse struct {
	GalaxyID string                `json:"galaxy_id"`
	Slots    []domain.ScheduleSlot `json:"slots"`
	Saved    bool                  `json:"saved"`
	Sync     *engine.SyncResult    `json:"sync,omitempty"`
	Warning  string                `json:"warning,omitempty" example:"store_unavailable"`
}

type CreateTaskRequest struct {
	Category    string `json:"category,omitempty" enum:"task,event"`
	Type        string `json:"type,omitempty" example:"prep"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Date        string `json:"date,omitempty" example:"2026-03-14"`
	StartTime   string `json:"start_time,omitempty" example:"10:00"`
	EndTime     string `json:"end_time,omitempty" example:"12:00"`
	AssignedTo  string `json:"assigned_to,omitempty"`
}

type AssignTaskRequest struct {
	AssigneeID string `json:"assignee_id"`
}

type RescheduleTaskRequest struct {
	Date      string `json:"date,omitempty" example:"2026-03-14"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
}

type UpdateTaskRequest struct {
	Status     string   `json:"status,omitempty" enum:"pending,in_progress,completed"`
	PostStatus string   `json:"post_status,omitempty" enum:"linked,analyzed,caption_written,approved,revision_requested,posted"`
	Notes      *string  `json:"notes,omitempty"`
	Caption    *string  `json:"caption,omitempty"`
	Hashtags   []string `json:"hashtags,omitempty"`
	VideoRef   *string  `json:"video_ref,omitempty"`
}

type UpsertMemberRequest struct {
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	Admin bool   `json:"admin"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
