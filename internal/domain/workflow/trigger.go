package workflow

import "github.com/garyjia/coop-approvals/internal/domain/entity"

// Trigger is an event that can cause a state transition
type Trigger string

const (
	TriggerReview       Trigger = "REVIEW"
	TriggerMarkReviewed Trigger = "MARK_REVIEWED"
	TriggerApprove      Trigger = "APPROVE"
	TriggerComplete     Trigger = "COMPLETE"
	TriggerReject       Trigger = "REJECT"
	TriggerCancel       Trigger = "CANCEL"
)

var actionTriggers = map[entity.Action]Trigger{
	entity.ActionReview:       TriggerReview,
	entity.ActionMarkReviewed: TriggerMarkReviewed,
	entity.ActionApprove:      TriggerApprove,
	entity.ActionComplete:     TriggerComplete,
	entity.ActionReject:       TriggerReject,
	entity.ActionCancel:       TriggerCancel,
}

// TriggerFor maps a caller-facing action to its trigger
func TriggerFor(a entity.Action) (Trigger, bool) {
	t, ok := actionTriggers[a]
	return t, ok
}

func (t Trigger) String() string {
	return string(t)
}
