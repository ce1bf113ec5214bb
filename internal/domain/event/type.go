package event

// Type identifies the type of domain event
type Type string

const (
	TypeRequestCreated      Type = "request.created"
	TypeRequestTransitioned Type = "request.transitioned"
	TypeRequestReconciled   Type = "request.reconciled"
	TypeRequestDeleted      Type = "request.deleted"
)

func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeRequestCreated, TypeRequestTransitioned, TypeRequestReconciled, TypeRequestDeleted:
		return true
	default:
		return false
	}
}

// Payload keys
const (
	KeyRequestType  = "request_type"
	KeyInitiatorID  = "initiator_id"
	KeyActorID      = "actor_id"
	KeyAction       = "action"
	KeyFromStatus   = "from_status"
	KeyToStatus     = "to_status"
	KeyLevel        = "approval_level"
	KeyNextRole     = "next_role"
	KeyNotes        = "notes"
	KeyDomainStatus = "domain_status"
)
