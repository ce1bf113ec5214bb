package workflow

import (
	"time"

	"github.com/garyjia/coop-approvals/internal/domain/entity"
)

// ChainStep is one configured approval stage
type ChainStep struct {
	Level int
	Role  string
}

// DefaultChain applies to every request type without its own chain
var DefaultChain = []ChainStep{
	{Level: 1, Role: "SECRETARY"},
	{Level: 2, Role: "TREASURER"},
	{Level: 3, Role: "PRESIDENT"},
}

// Chains holds the approval chain of each request type
type Chains struct {
	fallback []ChainStep
	byType   map[entity.RequestType][]ChainStep
}

// NewChains uses DefaultChain when fallback is empty
func NewChains(fallback []ChainStep, byType map[entity.RequestType][]ChainStep) Chains {
	if len(fallback) == 0 {
		fallback = DefaultChain
	}
	if byType == nil {
		byType = map[entity.RequestType][]ChainStep{}
	}
	return Chains{fallback: fallback, byType: byType}
}

// For returns the chain configured for t
func (c Chains) For(t entity.RequestType) []ChainStep {
	if chain, ok := c.byType[t]; ok && len(chain) > 0 {
		return chain
	}
	if len(c.fallback) == 0 {
		return DefaultChain
	}
	return c.fallback
}

// Steps materializes the chain of t with every step pending
func (c Chains) Steps(t entity.RequestType) []entity.ApprovalStep {
	chain := c.For(t)
	steps := make([]entity.ApprovalStep, len(chain))
	for i, s := range chain {
		steps[i] = entity.ApprovalStep{Level: s.Level, ApproverRole: s.Role, Status: entity.StepPending}
	}
	return steps
}

// advanceChain returns the steps and level after action succeeds. Advancing
// actions mark the current step done and move to the next one; reject marks
// it rejected; complete and cancel leave both untouched. A step that is no
// longer pending keeps its record, so a chain shorter than the stages keeps
// the first actor of its last step.
func advanceChain(req *entity.Request, action entity.Action, actorID string, at time.Time) ([]entity.ApprovalStep, int) {
	steps := make([]entity.ApprovalStep, len(req.ApprovalSteps))
	copy(steps, req.ApprovalSteps)
	level := req.CurrentApprovalLevel

	i := level - 1
	if i < 0 || i >= len(steps) || steps[i].Status != entity.StepPending {
		return steps, level
	}

	acted := at
	switch action {
	case entity.ActionReview, entity.ActionMarkReviewed, entity.ActionApprove:
		steps[i].Status = entity.StepDone
		steps[i].ActedBy = actorID
		steps[i].ActedAt = &acted
		if level < len(steps) {
			level++
		}
	case entity.ActionReject:
		steps[i].Status = entity.StepRejected
		steps[i].ActedBy = actorID
		steps[i].ActedAt = &acted
	}
	return steps, level
}
