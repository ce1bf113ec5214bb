package workflow

import "github.com/garyjia/coop-approvals/internal/domain/entity"

// State is a node of the request lifecycle graph
type State string

const (
	StatePending   State = State(entity.StatusPending)
	StateInReview  State = State(entity.StatusInReview)
	StateReviewed  State = State(entity.StatusReviewed)
	StateApproved  State = State(entity.StatusApproved)
	StateRejected  State = State(entity.StatusRejected)
	StateCompleted State = State(entity.StatusCompleted)
	StateCancelled State = State(entity.StatusCancelled)
)

// StateOf converts a request status into a machine state
func StateOf(s entity.RequestStatus) State {
	return State(s)
}

// Status converts the state back to a request status
func (s State) Status() entity.RequestStatus {
	return entity.RequestStatus(s)
}

// IsTerminal returns true if no transition can leave the state
func (s State) IsTerminal() bool {
	return s.Status().IsTerminal()
}

func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known request status
func (s State) IsValid() bool {
	return s.Status().Valid()
}
