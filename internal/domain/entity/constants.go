package entity

// RequestStatus is the generic lifecycle status of a Request
type RequestStatus string

const (
	StatusPending   RequestStatus = "PENDING"
	StatusInReview  RequestStatus = "IN_REVIEW"
	StatusReviewed  RequestStatus = "REVIEWED"
	StatusApproved  RequestStatus = "APPROVED"
	StatusRejected  RequestStatus = "REJECTED"
	StatusCompleted RequestStatus = "COMPLETED"
	StatusCancelled RequestStatus = "CANCELLED"
)

// AllStatuses lists every RequestStatus in lifecycle order
var AllStatuses = []RequestStatus{
	StatusPending, StatusInReview, StatusReviewed, StatusApproved,
	StatusCompleted, StatusRejected, StatusCancelled,
}

// OpenStatuses are the statuses still awaiting action
var OpenStatuses = []RequestStatus{StatusPending, StatusInReview, StatusReviewed, StatusApproved}

// Valid reports whether s is a known status
func (s RequestStatus) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition can leave s
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

// RequestType identifies what a Request asks for
type RequestType string

const (
	TypeLoanApplication           RequestType = "LOAN_APPLICATION"
	TypeSavingsWithdrawal         RequestType = "SAVINGS_WITHDRAWAL"
	TypePersonalSavingsCreation   RequestType = "PERSONAL_SAVINGS_CREATION"
	TypePersonalSavingsWithdrawal RequestType = "PERSONAL_SAVINGS_WITHDRAWAL"
	TypeBiodataApproval           RequestType = "BIODATA_APPROVAL"
	TypeAccountCreation           RequestType = "ACCOUNT_CREATION"
	TypeAccountUpdate             RequestType = "ACCOUNT_UPDATE"
)

// Module names a domain module of the back office
type Module string

const (
	ModuleLoans           Module = "loans"
	ModuleSavings         Module = "savings"
	ModulePersonalSavings Module = "personal_savings"
	ModuleAccounts        Module = "accounts"

	// ModuleRoles gates role administration; no request type belongs to it
	ModuleRoles Module = "roles"
)

// Valid reports whether m is role administration or owns a request type
func (m Module) Valid() bool {
	if m == ModuleRoles {
		return true
	}
	for _, v := range homeModules {
		if v == m {
			return true
		}
	}
	return false
}

// homeModules maps each known request type to the module that owns it.
// New types are registered with RegisterType.
var homeModules = map[RequestType]Module{
	TypeLoanApplication:           ModuleLoans,
	TypeSavingsWithdrawal:         ModuleSavings,
	TypePersonalSavingsCreation:   ModulePersonalSavings,
	TypePersonalSavingsWithdrawal: ModulePersonalSavings,
	TypeBiodataApproval:           ModuleAccounts,
	TypeAccountCreation:           ModuleAccounts,
	TypeAccountUpdate:             ModuleAccounts,
}

// RegisterType adds a request type owned by module. It is meant to be called
// during startup, before requests are served.
func RegisterType(t RequestType, module Module) {
	homeModules[t] = module
}

// Valid reports whether t is a registered type
func (t RequestType) Valid() bool {
	_, ok := homeModules[t]
	return ok
}

// HomeModule returns the module that owns requests of type t
func (t RequestType) HomeModule() Module {
	return homeModules[t]
}

// Priority orders requests for display. It never gates a transition.
type Priority string

const (
	PriorityNormal Priority = "NORMAL"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Rank is the sort key stored next to the priority
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	return p == PriorityNormal || p == PriorityMedium || p == PriorityHigh
}

// Action is a caller-facing transition command
type Action string

const (
	ActionReview       Action = "review"
	ActionMarkReviewed Action = "markReviewed"
	ActionApprove      Action = "approve"
	ActionComplete     Action = "complete"
	ActionReject       Action = "reject"
	ActionCancel       Action = "cancel"

	// ActionReconcile marks history entries written when a stored status is
	// healed from the linked domain record.
	ActionReconcile Action = "reconcile"
)

// Actions lists the caller-facing actions
var Actions = []Action{
	ActionReview, ActionMarkReviewed, ActionApprove, ActionComplete, ActionReject, ActionCancel,
}

// Valid reports whether a is a caller-facing action
func (a Action) Valid() bool {
	for _, v := range Actions {
		if v == a {
			return true
		}
	}
	return false
}

// SystemActorID is recorded as the actor of reconciliation entries
const SystemActorID = "system"
