package policy

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/coop-approvals/internal/domain/entity"
)

func allPermissions() []entity.Permission {
	return []entity.Permission{
		{Name: entity.PermissionReview},
		{Name: entity.PermissionMarkReviewed},
		{Name: entity.PermissionApprove},
		{Name: entity.PermissionComplete},
		{Name: entity.PermissionReject},
	}
}

func profile(level int) entity.RoleApprovalProfile {
	return entity.RoleApprovalProfile{
		ActorID:       "actor",
		Role:          fmt.Sprintf("L%d", level),
		ApprovalLevel: level,
		CanApprove:    true,
		ModuleAccess:  []entity.Module{entity.ModuleLoans},
		Permissions:   allPermissions(),
	}
}

func intPtr(v int) *int { return &v }

func TestEvaluate(t *testing.T) {
	review := Action{Permission: entity.PermissionReview, Module: entity.ModuleLoans, MinApprovalLevel: 1, Approval: true}

	tests := []struct {
		name    string
		profile func() entity.RoleApprovalProfile
		action  Action
		allowed bool
	}{
		{"level 1 reviews", func() entity.RoleApprovalProfile { return profile(1) }, review, true},
		{"level 0 denied", func() entity.RoleApprovalProfile { return profile(0) }, review, false},
		{"cannot approve", func() entity.RoleApprovalProfile {
			p := profile(5)
			p.CanApprove = false
			return p
		}, review, false},
		{"non approval action ignores canApprove", func() entity.RoleApprovalProfile {
			p := profile(1)
			p.CanApprove = false
			return p
		}, Action{Permission: entity.PermissionReview, Module: entity.ModuleLoans, MinApprovalLevel: 1}, true},
		{"missing module", func() entity.RoleApprovalProfile {
			p := profile(5)
			p.ModuleAccess = []entity.Module{entity.ModuleSavings}
			return p
		}, review, false},
		{"missing permission", func() entity.RoleApprovalProfile {
			p := profile(5)
			p.Permissions = []entity.Permission{{Name: entity.PermissionApprove}}
			return p
		}, review, false},
		{"permission demands higher level", func() entity.RoleApprovalProfile {
			p := profile(2)
			p.Permissions = []entity.Permission{{Name: entity.PermissionReview, RequiredApprovalLevel: intPtr(3)}}
			return p
		}, review, false},
		{"permission lower level does not relax action", func() entity.RoleApprovalProfile {
			p := profile(1)
			p.Permissions = []entity.Permission{{Name: entity.PermissionApprove, RequiredApprovalLevel: intPtr(0)}}
			return p
		}, Action{Permission: entity.PermissionApprove, Module: entity.ModuleLoans, MinApprovalLevel: 3, Approval: true}, false},
		{"level out of range", func() entity.RoleApprovalProfile { return profile(6) }, review, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.profile(), tt.action)
			assert.Equal(t, tt.allowed, d.Allowed, d.Reason)
			if !d.Allowed {
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}

// An actor at level L can perform every action requiring <= L and none
// requiring > L, and any false flag denies regardless of level.
func TestEvaluate_LevelMonotonicity(t *testing.T) {
	for level := entity.MinApprovalLevel; level <= entity.MaxApprovalLevel; level++ {
		for required := entity.MinApprovalLevel; required <= entity.MaxApprovalLevel; required++ {
			action := Action{Permission: entity.PermissionApprove, Module: entity.ModuleLoans, MinApprovalLevel: required, Approval: true}

			p := profile(level)
			assert.Equal(t, level >= required, CanPerform(p, action), "level=%d required=%d", level, required)

			noApprove := profile(level)
			noApprove.CanApprove = false
			assert.False(t, CanPerform(noApprove, action))

			noModule := profile(level)
			noModule.ModuleAccess = nil
			assert.False(t, CanPerform(noModule, action))
		}
	}
}

func TestForRequest(t *testing.T) {
	req := &entity.Request{Type: entity.TypeBiodataApproval}

	action, ok := ForRequest(entity.ActionApprove, req)
	require.True(t, ok)
	assert.Equal(t, entity.ModuleAccounts, action.Module)
	assert.Equal(t, 3, action.MinApprovalLevel)
	assert.True(t, action.Approval)

	_, ok = ForRequest(entity.ActionCancel, req)
	assert.False(t, ok)

	linked := &entity.Request{
		Type:         entity.TypeLoanApplication,
		LinkedEntity: &entity.LinkedEntity{Module: entity.ModuleLoans, EntityID: "l1"},
	}
	action, ok = ForRequest(entity.ActionReview, linked)
	require.True(t, ok)
	assert.Equal(t, entity.ModuleLoans, action.Module)
}

func TestForCreate(t *testing.T) {
	action := ForCreate(entity.TypeLoanApplication)
	assert.Equal(t, entity.PermissionCreate, action.Permission)
	assert.Equal(t, entity.ModuleLoans, action.Module)
	assert.False(t, action.Approval)

	member := entity.RoleApprovalProfile{
		Role:         "MEMBER",
		ModuleAccess: []entity.Module{entity.ModuleLoans},
		Permissions:  []entity.Permission{{Name: entity.PermissionCreate}},
	}
	assert.True(t, CanPerform(member, action))

	member.Permissions = nil
	assert.False(t, CanPerform(member, action))
}
