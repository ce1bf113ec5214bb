package port

import (
	"context"
	"time"

	"github.com/garyjia/coop-approvals/internal/domain/entity"
)

// TransactionManager runs fn in one transaction carried by the context.
// Nested calls join the outer transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// StatusUpdate is the full set of fields a transition may change
type StatusUpdate struct {
	Status               entity.RequestStatus
	ApprovalSteps        []entity.ApprovalStep
	CurrentApprovalLevel int
	UpdatedAt            time.Time
}

// RequestRepository persists requests
type RequestRepository interface {
	Create(ctx context.Context, req *entity.Request) error

	// GetByID returns a NotFound error for unknown ids
	GetByID(ctx context.Context, id string) (*entity.Request, error)

	// List returns one page of matching requests and the total match count
	List(ctx context.Context, q entity.RequestQuery) ([]*entity.Request, int, error)

	// CompareAndSwapStatus writes update only if the stored status still
	// equals expected, and bumps the version. A lost race is a StaleState error.
	CompareAndSwapStatus(ctx context.Context, id string, expected entity.RequestStatus, update StatusUpdate) error

	// Delete hard-removes a PENDING request
	Delete(ctx context.Context, id string) error

	// ListDomainBacked returns domain-backed requests in the given statuses
	ListDomainBacked(ctx context.Context, statuses []entity.RequestStatus, limit int) ([]*entity.Request, error)

	CountByStatus(ctx context.Context, filter entity.RequestFilter) (map[entity.RequestStatus]int, error)

	// CountByApprovalLevel counts open requests per current approval level
	CountByApprovalLevel(ctx context.Context, filter entity.RequestFilter) (map[int]int, error)
}

// HistoryRepository persists the append-only request history
type HistoryRepository interface {
	// Append assigns the entry's id and next sequence number
	Append(ctx context.Context, entry *entity.HistoryEntry) error
	ListByRequestID(ctx context.Context, requestID string) ([]entity.HistoryEntry, error)
	CountByRequestID(ctx context.Context, requestID string) (int, error)
}

// RoleRepository persists roles and actor assignments
type RoleRepository interface {
	UpsertRole(ctx context.Context, role *entity.Role) error
	GetRole(ctx context.Context, name string) (*entity.Role, error)
	AssignActor(ctx context.Context, actorID, roleName string) error
	GetActorRole(ctx context.Context, actorID string) (*entity.Role, error)
}
