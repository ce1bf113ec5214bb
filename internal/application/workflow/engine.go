package workflow

import (
	"context"

	"github.com/garyjia/coop-approvals/internal/domain/entity"
)

// TransitionCommand asks the engine to perform one action on a request
type TransitionCommand struct {
	RequestID string
	Action    entity.Action
	ActorID   string
	Notes     string
	// Reason is mandatory for reject
	Reason string
	// ExpectedStatus, when set, is the status the caller last saw. A request
	// that has moved since fails with StaleState.
	ExpectedStatus entity.RequestStatus
}

// WorkflowEngine orchestrates request transitions
type WorkflowEngine interface {
	// Transition validates and executes one action. The request, its linked
	// domain record and its history change together or not at all.
	Transition(ctx context.Context, cmd TransitionCommand) (*entity.Request, error)

	// Reconcile heals the stored status of a domain-backed request from its
	// domain record and returns the current request
	Reconcile(ctx context.Context, req *entity.Request) (*entity.Request, error)

	// ReconcileAll reconciles up to batch open domain-backed requests and
	// returns how many were healed
	ReconcileAll(ctx context.Context, batch int) (int, error)

	// AvailableActions lists the actions whose edge exists from status
	AvailableActions(status entity.RequestStatus) []entity.Action
}
