package domain

// DateLayout is the wall-clock day format used everywhere in the planner.
// No timezone conversion happens in this core; dates and times are stored
// exactly as entered and interpreted by the shared store.
const DateLayout = "2006-01-02"

// SyntheticIDPrefix marks an ephemeral default task that has never been
// persisted. Such ids must never reach a store write; they are materialized
// into a fresh durable id first.
const SyntheticIDPrefix = "default-"

type PostType string

const (
	PostTeaser          PostType = "teaser"
	PostPromo           PostType = "promo"
	PostAudienceBuilder PostType = "audience_builder"
)

type Release struct {
	Name     string `json:"name" yaml:"name"`
	Date     string `json:"date" yaml:"date"`
	Released bool   `json:"released" yaml:"released"`
}

type Collaborator struct {
	Name string `json:"name" yaml:"name"`
	Role string `json:"role" yaml:"role"`
}

// ContentProfile is the read-only structured profile produced by the
// external extraction assistant. This core never mutates it.
type ContentProfile struct {
	TeamID           string         `json:"team_id" yaml:"team_id"`
	GalaxyID         string         `json:"galaxy_id" yaml:"galaxy_id"`
	Version          int            `json:"version" yaml:"version"`
	Genre            string         `json:"genre,omitempty" yaml:"genre"`
	Releases         []Release      `json:"releases,omitempty" yaml:"releases"`
	PostingFrequency string         `json:"posting_frequency,omitempty" yaml:"posting_frequency" enum:"none,weekly,several_weekly,daily"`
	DesiredFrequency string         `json:"desired_frequency,omitempty" yaml:"desired_frequency" enum:"none,weekly,several_weekly,daily"`
	PreferredDays    []string       `json:"preferred_days,omitempty" yaml:"preferred_days"`
	EditedClipCount  int            `json:"edited_clip_count" yaml:"edited_clip_count"`
	RawFootage       string         `json:"raw_footage,omitempty" yaml:"raw_footage"`
	StrategyNotes    string         `json:"strategy_notes,omitempty" yaml:"strategy_notes"`
	Roster           []Collaborator `json:"roster,omitempty" yaml:"roster"`
}

// ScheduleSlot is a candidate posting date. Slots are recomputed on every
// schedule request and never stored; synchronization realizes them into
// category=event tasks.
type ScheduleSlot struct {
	Date     string   `json:"date"`
	Week     int      `json:"week"`
	PostType PostType `json:"post_type" enum:"teaser,promo,audience_builder"`
}

// TeamTask is the single persisted unit of work or calendar entry.
// Category "event" rows are calendar-only and never appear in todo lists.
type TeamTask struct {
	ID          string   `json:"id"`
	TeamID      string   `json:"team_id"`
	GalaxyID    string   `json:"galaxy_id"`
	Category    string   `json:"category" enum:"task,event"`
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Date        string   `json:"date,omitempty"`
	StartTime   string   `json:"start_time,omitempty"`
	EndTime     string   `json:"end_time,omitempty"`
	Status      string   `json:"status" enum:"pending,in_progress,completed"`
	PostStatus  string   `json:"post_status,omitempty" enum:"unlinked,linked,analyzed,caption_written,approved,revision_requested,posted"`
	AssignedTo  *string  `json:"assigned_to,omitempty"`
	AssignedBy  *string  `json:"assigned_by,omitempty"`
	VideoRef    string   `json:"video_ref,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	Caption     string   `json:"caption,omitempty"`
	Hashtags    []string `json:"hashtags,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
	CompletedAt *string  `json:"completed_at,omitempty" format:"date-time"`
}

// Synthetic reports whether the task is an ephemeral default that was never
// persisted.
func (t TeamTask) Synthetic() bool {
	return len(t.ID) >= len(SyntheticIDPrefix) && t.ID[:len(SyntheticIDPrefix)] == SyntheticIDPrefix
}

// Deadlines are the backward-planned production dates for a posting date.
// Late lists the stages whose date already passed when the plan was made.
type Deadlines struct {
	PostingDate       string   `json:"posting_date"`
	ShootDate         string   `json:"shoot_date"`
	EditDeadline      string   `json:"edit_deadline"`
	ShotListDeadline  string   `json:"shot_list_deadline"`
	TreatmentDeadline string   `json:"treatment_deadline"`
	Late              []string `json:"late,omitempty"`
}

type Notification struct {
	ID           string  `json:"id"`
	RecipientID  string  `json:"recipient_id"`
	TeamID       string  `json:"team_id"`
	Kind         string  `json:"kind"`
	Title        string  `json:"title"`
	Body         string  `json:"body,omitempty"`
	MetadataJSON string  `json:"metadata_json,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	DeliveredAt  *string `json:"delivered_at,omitempty" format:"date-time"`
	ReadAt       *string `json:"read_at,omitempty" format:"date-time"`
}

type Team struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Member struct {
	TeamID   string `json:"team_id"`
	ViewerID string `json:"viewer_id"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
	Admin    bool   `json:"admin"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	GalaxyID   string `json:"galaxy_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ViewerID  string `json:"viewer_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
