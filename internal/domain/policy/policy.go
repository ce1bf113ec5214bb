// Package policy decides whether an actor's role may perform an approval
// action. It is a pure lookup: no I/O, no state.
package policy

import (
	"fmt"

	"github.com/garyjia/coop-approvals/internal/domain/entity"
)

// Action is a gated operation
type Action struct {
	Permission       string
	Module           entity.Module
	MinApprovalLevel int
	// Approval actions additionally require canApprove
	Approval bool
}

// Decision explains a policy outcome
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Evaluate applies the rule: canApprove (for approval actions), module
// access, permission grant, and approvalLevel >= the effective minimum. The
// effective minimum is the larger of the action's level and the permission's
// own requiredApprovalLevel. Every clause must hold; any failing clause denies.
func Evaluate(profile entity.RoleApprovalProfile, action Action) Decision {
	if profile.ApprovalLevel < entity.MinApprovalLevel || profile.ApprovalLevel > entity.MaxApprovalLevel {
		return deny("approval level %d outside %d-%d", profile.ApprovalLevel, entity.MinApprovalLevel, entity.MaxApprovalLevel)
	}
	if action.Approval && !profile.CanApprove {
		return deny("role %s cannot approve", profile.Role)
	}
	if action.Module != "" && !profile.HasModule(action.Module) {
		return deny("role %s has no access to module %s", profile.Role, action.Module)
	}

	perm, ok := profile.Permission(action.Permission)
	if !ok {
		return deny("role %s lacks permission %s", profile.Role, action.Permission)
	}

	required := action.MinApprovalLevel
	if perm.RequiredApprovalLevel != nil && *perm.RequiredApprovalLevel > required {
		required = *perm.RequiredApprovalLevel
	}
	if profile.ApprovalLevel < required {
		return deny("%s requires approval level %d, role %s has %d", action.Permission, required, profile.Role, profile.ApprovalLevel)
	}
	return allow()
}

// CanPerform is Evaluate without the explanation
func CanPerform(profile entity.RoleApprovalProfile, action Action) bool {
	return Evaluate(profile, action).Allowed
}
