package workflow

import (
	"github.com/garyjia/coop-approvals/internal/domain/entity"
	domainwf "github.com/garyjia/coop-approvals/internal/domain/workflow"
)

// BuildRequestStateMachine creates a state machine configured for the request lifecycle
func BuildRequestStateMachine(initialState domainwf.State) domainwf.StateMachine {
	builder := domainwf.NewBuilder()

	// PENDING state transitions
	builder.Configure(domainwf.StatePending).
		Permit(domainwf.TriggerReview, domainwf.StateInReview).
		Permit(domainwf.TriggerReject, domainwf.StateRejected).
		Permit(domainwf.TriggerCancel, domainwf.StateCancelled)

	// IN_REVIEW state transitions
	builder.Configure(domainwf.StateInReview).
		Permit(domainwf.TriggerMarkReviewed, domainwf.StateReviewed).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	// REVIEWED state transitions
	builder.Configure(domainwf.StateReviewed).
		Permit(domainwf.TriggerApprove, domainwf.StateApproved).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	// APPROVED state transitions
	builder.Configure(domainwf.StateApproved).
		Permit(domainwf.TriggerComplete, domainwf.StateCompleted)

	// REJECTED, COMPLETED and CANCELLED are terminal states - no outgoing transitions

	return builder.Build(initialState)
}

var triggerActions = func() map[domainwf.Trigger]entity.Action {
	out := make(map[domainwf.Trigger]entity.Action, len(entity.Actions))
	for _, a := range entity.Actions {
		if t, ok := domainwf.TriggerFor(a); ok {
			out[t] = a
		}
	}
	return out
}()

// AvailableActions maps the permitted triggers of status back to actions
func AvailableActions(status entity.RequestStatus) []entity.Action {
	state := domainwf.StateOf(status)
	if !state.IsValid() {
		return []entity.Action{}
	}
	triggers := BuildRequestStateMachine(state).PermittedTriggers()
	out := make([]entity.Action, 0, len(triggers))
	for _, t := range triggers {
		out = append(out, triggerActions[t])
	}
	return out
}
