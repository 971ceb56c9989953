package schedule

import (
	"fmt"
	"strings"

	"backbeat/internal/domain"
)

type Tier string

const (
	TierContentReady Tier = "content_ready"
	TierRawFootage   Tier = "raw_footage"
	TierContentLight Tier = "content_light"
)

// contentReadyThreshold is the edited-clip count at which a creator is
// considered to have a publishable backlog.
const contentReadyThreshold = 10

// maxReviewClips caps the clip count shown in the footage-review step.
const maxReviewClips = 10

// TierFor classifies how much usable content the creator already has.
// Tiers are evaluated in order: enough edited clips, else raw footage on
// hand, else starting from scratch.
func TierFor(p domain.ContentProfile) Tier {
	if p.EditedClipCount >= contentReadyThreshold {
		return TierContentReady
	}
	if strings.TrimSpace(p.RawFootage) != "" {
		return TierRawFootage
	}
	return TierContentLight
}

// DefaultTasks synthesizes the tier's default task chain. Every task gets a
// synthetic id and is never persisted as-is; assignment materializes it
// with a durable id first. Callers must only surface these to
// administrators, and only when the store holds zero tasks for the galaxy.
func DefaultTasks(p domain.ContentProfile) []domain.TeamTask {
	editor := firstEditor(p.Roster)
	var chain []domain.TeamTask
	if len(p.Roster) == 0 {
		chain = append(chain, synthetic(p, "invite", "invite",
			"Invite team members",
			"Add your collaborators so work can be assigned."))
	}
	switch TierFor(p) {
	case TierContentReady:
		chain = append(chain, synthetic(p, "upload-edits", "edit",
			"Upload post edits to the content library",
			fmt.Sprintf("You already have %d edited clips; get them staged for posting.", p.EditedClipCount)))
		if editor != nil {
			chain = append(chain, synthetic(p, "send-notes", "review",
				fmt.Sprintf("Send notes to %s", editor.Name),
				"Share direction and revision notes on the uploaded edits."))
		}
		chain = append(chain, synthetic(p, "finalize", "review",
			"Finalize and approve edits",
			"Lock the first batch so it can be captioned and scheduled."))
	case TierRawFootage:
		clips := ParseClipCount(p.RawFootage)
		if clips > maxReviewClips {
			clips = maxReviewClips
		}
		chain = append(chain, synthetic(p, "review-footage", "review",
			"Review & organize existing footage",
			fmt.Sprintf("Pick the best takes from your footage and group the top %d clips.", clips)))
		if editor != nil {
			chain = append(chain, synthetic(p, "first-batch", "edit",
				fmt.Sprintf("Send the first batch to %s", editor.Name),
				"Hand off the organized footage for a first editing pass."))
		} else {
			chain = append(chain, synthetic(p, "first-batch", "edit",
				"Self-edit the first batch",
				"Cut a first pass from the organized footage yourself."))
		}
	default:
		chain = append(chain, synthetic(p, "brainstorm", "brainstorm",
			"Brainstorm content ideas",
			"Collect concepts worth filming before booking a shoot."))
		if editor != nil {
			chain = append(chain, synthetic(p, "plan-shoot", "prep",
				fmt.Sprintf("Plan a shoot day with %s", editor.Name),
				"Pick a date and location, and rough out the shot list."))
		} else {
			chain = append(chain, synthetic(p, "plan-shoot", "prep",
				"Plan a shoot day",
				"Pick a date and location, and rough out the shot list."))
		}
	}
	return chain
}

func synthetic(p domain.ContentProfile, slug, taskType, title, description string) domain.TeamTask {
	return domain.TeamTask{
		ID:          domain.SyntheticIDPrefix + slug,
		TeamID:      p.TeamID,
		GalaxyID:    p.GalaxyID,
		Category:    "task",
		Type:        taskType,
		Title:       title,
		Description: description,
		Status:      "pending",
	}
}

func firstEditor(roster []domain.Collaborator) *domain.Collaborator {
	for i, c := range roster {
		role := strings.ToLower(c.Role)
		if strings.Contains(role, "editor") || strings.Contains(role, "videographer") {
			return &roster[i]
		}
	}
	return nil
}
