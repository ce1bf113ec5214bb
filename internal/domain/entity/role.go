package entity

import "time"

// Well-known permission names checked by the approval policy
const (
	PermissionCreate       = "requests.create"
	PermissionReview       = "requests.review"
	PermissionMarkReviewed = "requests.mark_reviewed"
	PermissionApprove      = "requests.approve"
	PermissionComplete     = "requests.complete"
	PermissionReject       = "requests.reject"
	PermissionManageRoles  = "roles.manage"
)

// Approval levels are bounded integers
const (
	MinApprovalLevel = 0
	MaxApprovalLevel = 5
)

// Permission is a named grant, optionally demanding a minimum level of its own
type Permission struct {
	Name                  string `json:"name" validate:"required"`
	RequiredApprovalLevel *int   `json:"requiredApprovalLevel,omitempty" validate:"omitempty,min=0,max=5"`
}

// Role is an administratively managed set of approval attributes
type Role struct {
	Name          string       `json:"name"`
	ApprovalLevel int          `json:"approvalLevel"`
	CanApprove    bool         `json:"canApprove"`
	ModuleAccess  []Module     `json:"moduleAccess"`
	Permissions   []Permission `json:"permissions"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// RoleApprovalProfile is the view of an actor's role consumed by the policy
type RoleApprovalProfile struct {
	ActorID       string       `json:"actorId"`
	Role          string       `json:"role"`
	ApprovalLevel int          `json:"approvalLevel"`
	CanApprove    bool         `json:"canApprove"`
	ModuleAccess  []Module     `json:"moduleAccess"`
	Permissions   []Permission `json:"permissions"`
}

// Profile binds the role to an actor
func (r *Role) Profile(actorID string) RoleApprovalProfile {
	return RoleApprovalProfile{
		ActorID:       actorID,
		Role:          r.Name,
		ApprovalLevel: r.ApprovalLevel,
		CanApprove:    r.CanApprove,
		ModuleAccess:  r.ModuleAccess,
		Permissions:   r.Permissions,
	}
}

// HasModule reports whether m is in the profile's module access set
func (p RoleApprovalProfile) HasModule(m Module) bool {
	for _, v := range p.ModuleAccess {
		if v == m {
			return true
		}
	}
	return false
}

// Permission looks up a permission by name
func (p RoleApprovalProfile) Permission(name string) (Permission, bool) {
	for _, v := range p.Permissions {
		if v.Name == name {
			return v, true
		}
	}
	return Permission{}, false
}
