package port

import (
	"context"
	"encoding/json"

	"github.com/garyjia/coop-approvals/internal/domain/entity"
)

// DomainState is a domain record's native status and its request mapping.
// Mapped is false for out-of-band statuses with no request equivalent.
type DomainState struct {
	Native entity.DomainStatus
	Status entity.RequestStatus
	Mapped bool
}

// TransitionCommand asks an adapter to move its record in step with a request
type TransitionCommand struct {
	EntityID string
	From     entity.RequestStatus
	Target   entity.RequestStatus
	Actor    entity.RoleApprovalProfile
	Notes    string
}

// TransitionResult is the pair of statuses after a domain transition
type TransitionResult struct {
	DomainStatus  entity.DomainStatus
	RequestStatus entity.RequestStatus
}

// DomainAdapter keeps one domain module's records in step with the requests
// linked to them. The domain record's status is authoritative.
type DomainAdapter interface {
	Module() entity.Module

	// RequestTypes lists the request types this adapter backs
	RequestTypes() []entity.RequestType

	// Open creates the domain record described by content and returns its id
	Open(ctx context.Context, reqType entity.RequestType, content json.RawMessage) (string, error)

	StatusFor(ctx context.Context, reqType entity.RequestType, entityID string) (DomainState, error)

	// CanApply checks the matching domain transition is legal without
	// mutating anything
	CanApply(ctx context.Context, reqType entity.RequestType, cmd TransitionCommand) error

	// ApplyTransition performs the domain transition. It must run inside the
	// caller's transaction and leave the record untouched on error.
	ApplyTransition(ctx context.Context, reqType entity.RequestType, cmd TransitionCommand) (TransitionResult, error)

	// Aliases maps native status names accepted in filters to request statuses
	Aliases() map[string]entity.RequestStatus
}

// AdapterRegistry resolves adapters by request type
type AdapterRegistry interface {
	ForType(t entity.RequestType) (DomainAdapter, bool)
	ForModule(m entity.Module) (DomainAdapter, bool)
	// TranslateStatus turns a filter value, including native aliases, into a
	// request status. An alias resolved without t also returns the request
	// types it belongs to.
	TranslateStatus(t entity.RequestType, raw string) (entity.RequestStatus, []entity.RequestType, bool)
}
