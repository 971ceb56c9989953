package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"backbeat/internal/config"
	"backbeat/internal/domain"
	"backbeat/internal/events"
	"backbeat/internal/repo"
	"backbeat/internal/schedule"
)

// Engine orchestrates the pure scheduling core against the shared store.
// All date/classification/tiering/projection logic stays in
// internal/schedule; the engine owns transactions, the event log, and the
// permission checks around them.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Log    zerolog.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config, log zerolog.Logger) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Log:    log,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// audit returns the event-log writer stamped with the engine clock, so an
// injected clock drives audit timestamps as well as entity timestamps.
func (e Engine) audit() events.Writer {
	w := e.Events
	if e.Now != nil {
		w.Now = e.Now
	}
	return w
}

// Viewer is the explicit session context threaded into every stateful call:
// who is asking, for which team, and whether they hold administrator
// permission there. Nothing in the engine reads ambient state.
type Viewer struct {
	TeamID   string
	ViewerID string
	Admin    bool
}

// InputError marks a malformed profile or request surfaced at the boundary.
type InputError struct {
	Reason string
}

func (e InputError) Error() string { return e.Reason }

// InvariantError marks a programming-contract violation: a non-admin path
// reaching an admin-only operation, or duplicate events surviving repair.
// In strict mode these fail loudly; otherwise they degrade to a logged
// no-op and never corrupt shared state.
type InvariantError struct {
	Reason string
}

func (e InvariantError) Error() string { return e.Reason }

func (e Engine) strict() bool {
	return e.Config == nil || e.Config.Features.StrictInvariants
}

// requireAdmin guards admin-only operations. In non-strict mode the caller
// receives errDegraded and must turn the operation into a no-op.
var errDegraded = errors.New("degraded to no-op")

func (e Engine) requireAdmin(v Viewer, op string) error {
	if v.Admin {
		return nil
	}
	if e.strict() {
		return InvariantError{Reason: fmt.Sprintf("%s requires administrator permission", op)}
	}
	e.Log.Warn().Str("op", op).Str("viewer", v.ViewerID).Str("team", v.TeamID).
		Msg("non-admin reached admin-only operation; ignoring")
	return errDegraded
}

// InitGalaxy creates a team, a galaxy under it, seeds the default config,
// and registers the creating viewer as administrator.
func (e Engine) InitGalaxy(ctx context.Context, teamID, galaxyID, name, viewerID string) error {
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.EnsureTeam(ctx, tx, teamID, name, now); err != nil {
		return fmt.Errorf("ensure team: %w", err)
	}
	if err := e.Repo.InsertGalaxy(ctx, tx, galaxyID, teamID, name, now); err != nil {
		return fmt.Errorf("insert galaxy: %w", err)
	}
	if err := e.Repo.UpsertGalaxyConfigTx(ctx, tx, galaxyID, config.Default(galaxyID)); err != nil {
		return fmt.Errorf("seed galaxy config: %w", err)
	}
	if viewerID != "" {
		if err := e.Repo.UpsertMember(ctx, tx, domain.Member{TeamID: teamID, ViewerID: viewerID, Admin: true}); err != nil {
			return fmt.Errorf("seed admin member: %w", err)
		}
	}
	if err := e.audit().Append(ctx, tx, "galaxy.init", galaxyID, "galaxy", galaxyID, viewerID, events.EventPayload{"team_id": teamID}); err != nil {
		return err
	}
	return tx.Commit()
}

// GenerateSchedule runs the pure pipeline: slot generation from the
// profile's preferred days, release-anchored classification, then the
// sparse-promo override when the feature flag is on. Store state is never
// consulted, so repeated calls with the same inputs yield identical slots.
func (e Engine) GenerateSchedule(profile domain.ContentProfile, windowWeeks int) ([]domain.ScheduleSlot, error) {
	genOpts := schedule.GeneratorOptions{
		WindowWeeks:   windowWeeks,
		PreferredDays: schedule.ParseWeekdays(profile.PreferredDays),
	}
	clsOpts := schedule.ClassifyOptions{}
	sparse := true
	if e.Config != nil {
		if windowWeeks <= 0 {
			genOpts.WindowWeeks = e.Config.Scheduling.WindowWeeks
		}
		genOpts.PostsPerWeek = e.Config.Scheduling.PostsPerWeek
		if len(genOpts.PreferredDays) == 0 {
			genOpts.PreferredDays = schedule.ParseWeekdays(e.Config.Scheduling.PreferredDays)
		}
		clsOpts.TeaserDays = e.Config.Scheduling.TeaserDays
		clsOpts.PromoDays = e.Config.Scheduling.PromoDays
		sparse = e.Config.Features.SparsePromos
	}
	slots := schedule.GenerateSlots(e.now(), genOpts)
	slots, err := schedule.ClassifySlots(slots, profile.Releases, clsOpts)
	if err != nil {
		return nil, InputError{Reason: err.Error()}
	}
	if sparse {
		slots = schedule.ApplySparsePromoOverride(slots, profile.StrategyNotes)
	}
	return slots, nil
}

// PlanDeadlines derives the production deadlines for a posting date.
func (e Engine) PlanDeadlines(postingDate string) (domain.Deadlines, error) {
	d, err := time.Parse(domain.DateLayout, postingDate)
	if err != nil {
		return domain.Deadlines{}, InputError{Reason: fmt.Sprintf("invalid posting date %q", postingDate)}
	}
	offsets := schedule.PlannerOffsets{}
	if e.Config != nil {
		offsets = schedule.PlannerOffsets{
			ShootDays:     e.Config.Deadlines.ShootOffsetDays,
			EditDays:      e.Config.Deadlines.EditOffsetDays,
			ShotListDays:  e.Config.Deadlines.ShotListOffsetDays,
			TreatmentDays: e.Config.Deadlines.TreatmentOffsetDays,
		}
	}
	return schedule.PlanDeadlines(d, e.now(), offsets), nil
}

// TasksForViewer lists the tasks one viewer may see. When the store holds
// zero tasks for the galaxy and the viewer is an administrator, the
// readiness-tier default chain is synthesized in memory; a non-admin with
// nothing visible simply gets an empty list, never synthetic tasks.
func (e Engine) TasksForViewer(ctx context.Context, v Viewer, galaxyID string) ([]domain.TeamTask, error) {
	all, err := e.Repo.ListTasks(ctx, repo.TaskFilters{GalaxyID: galaxyID})
	if err != nil {
		return nil, err
	}
	visible := schedule.VisibleTasks(all, v.ViewerID, v.Admin)
	if !v.Admin {
		return visible, nil
	}
	persisted, err := e.Repo.CountTasks(ctx, galaxyID, "task")
	if err != nil {
		return nil, err
	}
	if persisted > 0 {
		return visible, nil
	}
	profile, err := e.Repo.GetProfile(ctx, galaxyID)
	if errors.Is(err, repo.ErrNotFound) {
		return visible, nil
	}
	if err != nil {
		return nil, err
	}
	return append(visible, schedule.DefaultTasks(profile)...), nil
}

// EventsForGalaxy lists the persisted calendar events.
func (e Engine) EventsForGalaxy(ctx context.Context, galaxyID string) ([]domain.TeamTask, error) {
	return e.Repo.ListTasks(ctx, repo.TaskFilters{GalaxyID: galaxyID, Category: "event"})
}

// TaskCreateOptions are parameters for creating a durable task.
type TaskCreateOptions struct {
	GalaxyID    string
	Category    string
	Type        string
	Title       string
	Description string
	Date        string
	StartTime   string
	EndTime     string
	AssignedTo  string
}

// CreateTask persists a new task. Only administrators may create
// unassigned tasks; tasks pre-assigned to the caller are allowed for any
// member.
func (e Engine) CreateTask(ctx context.Context, v Viewer, opts TaskCreateOptions) (domain.TeamTask, error) {
	if opts.Title == "" {
		return domain.TeamTask{}, InputError{Reason: "title is required"}
	}
	if opts.GalaxyID == "" {
		return domain.TeamTask{}, InputError{Reason: "galaxy is required"}
	}
	if opts.Category == "" {
		opts.Category = "task"
	}
	if opts.Category != "task" && opts.Category != "event" {
		return domain.TeamTask{}, InputError{Reason: fmt.Sprintf("invalid category %q", opts.Category)}
	}
	if opts.AssignedTo == "" || opts.AssignedTo != v.ViewerID || opts.Category == "event" {
		if err := e.requireAdmin(v, "task.create"); err != nil {
			if errors.Is(err, errDegraded) {
				return domain.TeamTask{}, nil
			}
			return domain.TeamTask{}, err
		}
	}
	if _, err := e.Repo.GetGalaxy(ctx, opts.GalaxyID); err != nil {
		return domain.TeamTask{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.TeamTask{
		ID:          uuid.New().String(),
		TeamID:      v.TeamID,
		GalaxyID:    opts.GalaxyID,
		Category:    opts.Category,
		Type:        defaultString(opts.Type, "prep"),
		Title:       opts.Title,
		Description: opts.Description,
		Date:        opts.Date,
		StartTime:   opts.StartTime,
		EndTime:     opts.EndTime,
		Status:      "pending",
		AssignedBy:  optionalString(v.ViewerID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.Type == "post" {
		t.PostStatus = "unlinked"
	}
	if opts.AssignedTo != "" {
		t.AssignedTo = &opts.AssignedTo
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TeamTask{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.TeamTask{}, err
	}
	if err := e.audit().Append(ctx, tx, "task.created", t.GalaxyID, "task", t.ID, v.ViewerID, events.EventPayload{"title": t.Title, "category": t.Category}); err != nil {
		return domain.TeamTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TeamTask{}, err
	}
	return t, nil
}

// AssignTask assigns a task to a team member, materializing synthetic
// default tasks transparently: a "default-" id is resolved against the
// current default chain, persisted under a freshly issued durable id, and
// only then assigned. The new assignee is notified in the same transaction
// as the assignment, so a failed write produces neither.
func (e Engine) AssignTask(ctx context.Context, v Viewer, galaxyID, taskID, assigneeID string) (domain.TeamTask, error) {
	if err := e.requireAdmin(v, "task.assign"); err != nil {
		if errors.Is(err, errDegraded) {
			return domain.TeamTask{}, nil
		}
		return domain.TeamTask{}, err
	}
	if assigneeID == "" {
		return domain.TeamTask{}, InputError{Reason: "assignee is required"}
	}
	var t domain.TeamTask
	var err error
	if isSynthetic(taskID) {
		t, err = e.resolveSynthetic(ctx, galaxyID, taskID)
		if err != nil {
			return domain.TeamTask{}, err
		}
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TeamTask{}, err
	}
	defer tx.Rollback()

	if t.Synthetic() {
		t.ID = uuid.New().String()
		t.CreatedAt = now
		t.UpdatedAt = now
		t.AssignedTo = &assigneeID
		t.AssignedBy = optionalString(v.ViewerID)
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return domain.TeamTask{}, err
		}
		if err := e.audit().Append(ctx, tx, "task.materialized", t.GalaxyID, "task", t.ID, v.ViewerID, events.EventPayload{"from": taskID}); err != nil {
			return domain.TeamTask{}, err
		}
	} else {
		// Read inside the transaction so the assignment writes against
		// current state, not a row fetched before the tx opened.
		t, err = e.Repo.GetTaskTx(ctx, tx, taskID)
		if err != nil {
			return domain.TeamTask{}, err
		}
		t.AssignedTo = &assigneeID
		t.AssignedBy = optionalString(v.ViewerID)
		t.UpdatedAt = now
		if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
			return domain.TeamTask{}, err
		}
	}
	meta, _ := json.Marshal(map[string]string{"task_id": t.ID, "galaxy_id": t.GalaxyID, "date": t.Date})
	n := domain.Notification{
		ID:           uuid.New().String(),
		RecipientID:  assigneeID,
		TeamID:       v.TeamID,
		Kind:         "task.assigned",
		Title:        "New task: " + t.Title,
		Body:         t.Description,
		MetadataJSON: string(meta),
		CreatedAt:    now,
	}
	if err := e.Repo.InsertNotification(ctx, tx, n); err != nil {
		return domain.TeamTask{}, err
	}
	if err := e.audit().Append(ctx, tx, "task.assigned", t.GalaxyID, "task", t.ID, v.ViewerID, events.EventPayload{"assignee": assigneeID}); err != nil {
		return domain.TeamTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TeamTask{}, err
	}
	return t, nil
}

// resolveSynthetic finds a synthetic id in the galaxy's current default
// chain. The chain only exists while the store holds zero tasks, so a
// stale id is a plain not-found.
func (e Engine) resolveSynthetic(ctx context.Context, galaxyID, syntheticID string) (domain.TeamTask, error) {
	profile, err := e.Repo.GetProfile(ctx, galaxyID)
	if err != nil {
		return domain.TeamTask{}, err
	}
	for _, t := range schedule.DefaultTasks(profile) {
		if t.ID == syntheticID {
			return t, nil
		}
	}
	return domain.TeamTask{}, repo.ErrNotFound
}

// Reschedule changes a task's date and times, nothing else. Admins may
// reschedule anything; members only tasks assigned to them.
func (e Engine) Reschedule(ctx context.Context, v Viewer, taskID, date, startTime, endTime string) (domain.TeamTask, error) {
	if isSynthetic(taskID) {
		return domain.TeamTask{}, InputError{Reason: "synthetic tasks must be assigned before rescheduling"}
	}
	if date != "" {
		if _, err := time.Parse(domain.DateLayout, date); err != nil {
			return domain.TeamTask{}, InputError{Reason: fmt.Sprintf("invalid date %q", date)}
		}
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.TeamTask{}, err
	}
	if !v.Admin && (t.AssignedTo == nil || *t.AssignedTo != v.ViewerID) {
		return domain.TeamTask{}, InvariantError{Reason: "only the assignee or an administrator may reschedule"}
	}
	if date != "" {
		t.Date = date
	}
	t.StartTime = startTime
	t.EndTime = endTime
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TeamTask{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.TeamTask{}, err
	}
	if err := e.audit().Append(ctx, tx, "task.rescheduled", t.GalaxyID, "task", t.ID, v.ViewerID, events.EventPayload{"date": t.Date, "start": t.StartTime, "end": t.EndTime}); err != nil {
		return domain.TeamTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TeamTask{}, err
	}
	return t, nil
}

// TaskUpdateOptions are the mutable fields a member can touch on a task
// assigned to them.
type TaskUpdateOptions struct {
	Status     string
	PostStatus string
	Notes      *string
	Caption    *string
	Hashtags   []string
	VideoRef   *string
}

// UpdateTask applies status transitions and post-pipeline updates.
func (e Engine) UpdateTask(ctx context.Context, v Viewer, taskID string, opts TaskUpdateOptions) (domain.TeamTask, error) {
	if isSynthetic(taskID) {
		return domain.TeamTask{}, InputError{Reason: "synthetic tasks must be assigned before updating"}
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.TeamTask{}, err
	}
	if !v.Admin && (t.AssignedTo == nil || *t.AssignedTo != v.ViewerID) {
		return domain.TeamTask{}, InvariantError{Reason: "only the assignee or an administrator may update this task"}
	}
	if opts.Status != "" && opts.Status != t.Status {
		if err := ensureStatusTransition(t.Status, opts.Status); err != nil {
			return domain.TeamTask{}, InputError{Reason: err.Error()}
		}
		t.Status = opts.Status
		if t.Status == "completed" {
			now := e.now().UTC().Format(time.RFC3339)
			t.CompletedAt = &now
		}
	}
	if opts.PostStatus != "" && opts.PostStatus != t.PostStatus {
		if t.Type != "post" {
			return domain.TeamTask{}, InputError{Reason: "post status applies to post tasks only"}
		}
		if err := ensurePostTransition(t.PostStatus, opts.PostStatus); err != nil {
			return domain.TeamTask{}, InputError{Reason: err.Error()}
		}
		t.PostStatus = opts.PostStatus
	}
	if opts.Notes != nil {
		t.Notes = *opts.Notes
	}
	if opts.Caption != nil {
		t.Caption = *opts.Caption
	}
	if opts.Hashtags != nil {
		t.Hashtags = opts.Hashtags
	}
	if opts.VideoRef != nil {
		t.VideoRef = *opts.VideoRef
		if t.Type == "post" && t.PostStatus == "unlinked" && *opts.VideoRef != "" {
			t.PostStatus = "linked"
		}
	}
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TeamTask{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.TeamTask{}, err
	}
	if err := e.audit().Append(ctx, tx, "task.updated", t.GalaxyID, "task", t.ID, v.ViewerID, events.EventPayload{"status": t.Status, "post_status": t.PostStatus}); err != nil {
		return domain.TeamTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TeamTask{}, err
	}
	return t, nil
}

// CompleteTask marks a task completed.
func (e Engine) CompleteTask(ctx context.Context, v Viewer, taskID string) (domain.TeamTask, error) {
	return e.UpdateTask(ctx, v, taskID, TaskUpdateOptions{Status: "completed"})
}

// DeleteTask removes a task. Admin-only; duplicate repair uses the
// transactional path inside the synchronizer instead.
func (e Engine) DeleteTask(ctx context.Context, v Viewer, taskID string) error {
	if err := e.requireAdmin(v, "task.delete"); err != nil {
		if errors.Is(err, errDegraded) {
			return nil
		}
		return err
	}
	if isSynthetic(taskID) {
		return InputError{Reason: "synthetic tasks are not persisted"}
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, taskID); err != nil {
		return err
	}
	if err := e.audit().Append(ctx, tx, "task.deleted", t.GalaxyID, "task", t.ID, v.ViewerID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func ensureStatusTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case "pending":
		if newStatus == "in_progress" || newStatus == "completed" {
			return nil
		}
	case "in_progress":
		if newStatus == "completed" || newStatus == "pending" {
			return nil
		}
	}
	return fmt.Errorf("invalid status transition %s -> %s", oldStatus, newStatus)
}

func ensurePostTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case "", "unlinked":
		if newStatus == "linked" {
			return nil
		}
	case "linked":
		if newStatus == "analyzed" {
			return nil
		}
	case "analyzed":
		if newStatus == "caption_written" {
			return nil
		}
	case "caption_written":
		if newStatus == "approved" || newStatus == "revision_requested" {
			return nil
		}
	case "revision_requested":
		if newStatus == "caption_written" {
			return nil
		}
	case "approved":
		if newStatus == "posted" {
			return nil
		}
	}
	return fmt.Errorf("invalid post status transition %s -> %s", oldStatus, newStatus)
}

func isSynthetic(id string) bool {
	return domain.TeamTask{ID: id}.Synthetic()
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
