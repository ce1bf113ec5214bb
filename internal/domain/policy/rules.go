package policy

import "github.com/garyjia/coop-approvals/internal/domain/entity"

// Rule is the fixed permission and minimum level of one workflow action
type Rule struct {
	Permission       string
	MinApprovalLevel int
}

// Each transition checks its own level exactly; holding a higher level does
// not let an actor skip a stage, because the state machine still demands the
// stage order.
var rules = map[entity.Action]Rule{
	entity.ActionReview:       {Permission: entity.PermissionReview, MinApprovalLevel: 1},
	entity.ActionMarkReviewed: {Permission: entity.PermissionMarkReviewed, MinApprovalLevel: 2},
	entity.ActionApprove:      {Permission: entity.PermissionApprove, MinApprovalLevel: 3},
	entity.ActionComplete:     {Permission: entity.PermissionComplete, MinApprovalLevel: 2},
	entity.ActionReject:       {Permission: entity.PermissionReject, MinApprovalLevel: 1},
}

// RuleFor returns the rule of a policy-gated action. Cancel is not gated by
// the policy; it is reserved to the initiator.
func RuleFor(a entity.Action) (Rule, bool) {
	r, ok := rules[a]
	return r, ok
}

// ForCreate is the gated action of opening a request of type t. Members
// create without approval authority.
func ForCreate(t entity.RequestType) Action {
	return Action{Permission: entity.PermissionCreate, Module: t.HomeModule()}
}

// ForRequest builds the gated action for performing a on req
func ForRequest(a entity.Action, req *entity.Request) (Action, bool) {
	r, ok := rules[a]
	if !ok {
		return Action{}, false
	}
	return Action{
		Permission:       r.Permission,
		Module:           req.Module(),
		MinApprovalLevel: r.MinApprovalLevel,
		Approval:         true,
	}, true
}
