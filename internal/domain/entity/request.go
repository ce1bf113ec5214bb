package entity

import (
	"encoding/json"
	"time"
)

// LinkedEntity points at the domain record that owns a Request's status
type LinkedEntity struct {
	Module   Module `json:"domainModule" validate:"required"`
	EntityID string `json:"domainEntityId" validate:"required"`
}

// StepStatus is the state of one approval step
type StepStatus string

const (
	StepPending  StepStatus = "PENDING"
	StepDone     StepStatus = "DONE"
	StepRejected StepStatus = "REJECTED"
)

// ApprovalStep is one stage in the configured chain of a request type
type ApprovalStep struct {
	Level        int        `json:"level"`
	ApproverRole string     `json:"approverRole"`
	Status       StepStatus `json:"status"`
	ActedBy      string     `json:"actedBy,omitempty"`
	ActedAt      *time.Time `json:"actedAt,omitempty"`
}

// Request is the generic approvable unit
type Request struct {
	ID                   string          `json:"id"`
	Type                 RequestType     `json:"type"`
	Status               RequestStatus   `json:"status"`
	InitiatorID          string          `json:"initiatorId"`
	LinkedEntity         *LinkedEntity   `json:"linkedEntity,omitempty"`
	Content              json.RawMessage `json:"content"`
	Priority             Priority        `json:"priority"`
	ApprovalSteps        []ApprovalStep  `json:"approvalSteps"`
	CurrentApprovalLevel int             `json:"currentApprovalLevel"`
	History              []HistoryEntry  `json:"history,omitempty"`
	Version              int64           `json:"version"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// IsDomainBacked reports whether the Request's status is owned by a domain record
func (r *Request) IsDomainBacked() bool {
	return r.LinkedEntity != nil && r.LinkedEntity.EntityID != ""
}

// Module returns the module gating this request: the linked module when
// domain-backed, otherwise the type's home module.
func (r *Request) Module() Module {
	if r.IsDomainBacked() {
		return r.LinkedEntity.Module
	}
	return r.Type.HomeModule()
}

// CurrentStep returns the chain step expecting action, if any.
// CurrentApprovalLevel is the 1-based position of that step in the chain.
func (r *Request) CurrentStep() *ApprovalStep {
	i := r.CurrentApprovalLevel - 1
	if i < 0 || i >= len(r.ApprovalSteps) {
		return nil
	}
	return &r.ApprovalSteps[i]
}

// HistoryEntry is one append-only record of a status change
type HistoryEntry struct {
	ID            string        `json:"id"`
	RequestID     string        `json:"requestId"`
	Seq           int           `json:"seq"`
	FromStatus    RequestStatus `json:"fromStatus"`
	ToStatus      RequestStatus `json:"toStatus"`
	Action        Action        `json:"action"`
	ActorID       string        `json:"actorId"`
	ApprovalLevel int           `json:"approvalLevel"`
	Notes         string        `json:"notes,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// RequestFilter narrows request queries. Zero values mean "any".
type RequestFilter struct {
	Type RequestType
	// Types restricts matches to a set of types, as when a status alias
	// belongs to one module
	Types   []RequestType
	Status  RequestStatus
	ActorID string
}

// Sort fields accepted by request queries
const (
	SortByCreatedAt = "createdAt"
	SortByUpdatedAt = "updatedAt"
	SortByPriority  = "priority"
	SortByStatus    = "status"
	SortByType      = "type"
)

// RequestQuery is a filtered, sorted, paginated request listing
type RequestQuery struct {
	RequestFilter
	Page      int
	Limit     int
	SortBy    string
	SortOrder string // asc or desc
}

// PageMeta describes one page of a listing
type PageMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// NewPageMeta computes the page count for total items
func NewPageMeta(total, page, limit int) PageMeta {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return PageMeta{Total: total, Page: page, Limit: limit, TotalPages: pages}
}
