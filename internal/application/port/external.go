package port

import (
	"context"

	"github.com/garyjia/coop-approvals/internal/domain/entity"
)

// Logger is the minimal logging dependency of application services
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// IdentityProvider resolves an actor to its current role profile
type IdentityProvider interface {
	GetActorRoleProfile(ctx context.Context, actorID string) (entity.RoleApprovalProfile, error)
}

// Recipient addresses a notification to one actor or to everyone in a role
type Recipient struct {
	ActorID string `json:"actorId,omitempty"`
	Role    string `json:"role,omitempty"`
}

func (r Recipient) String() string {
	if r.ActorID != "" {
		return "actor:" + r.ActorID
	}
	return "role:" + r.Role
}

// Notifier delivers best-effort notifications
type Notifier interface {
	Notify(ctx context.Context, to Recipient, eventType string, payload map[string]any) error
}

// MetricsCache stores dashboard count projections
type MetricsCache interface {
	// Get reports ok=false on a miss
	Get(ctx context.Context, key string) (counts map[string]int, ok bool, err error)
	Set(ctx context.Context, key string, counts map[string]int) error
	Invalidate(ctx context.Context) error
}
