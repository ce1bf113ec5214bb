package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestStatus_IsTerminal(t *testing.T) {
	terminal := map[RequestStatus]bool{
		StatusCompleted: true,
		StatusRejected:  true,
		StatusCancelled: true,
	}
	for _, s := range AllStatuses {
		assert.Equal(t, terminal[s], s.IsTerminal(), s)
	}
	assert.False(t, RequestStatus("DISBURSED").Valid())
}

func TestRequest_Module(t *testing.T) {
	plain := &Request{Type: TypeBiodataApproval}
	assert.False(t, plain.IsDomainBacked())
	assert.Equal(t, ModuleAccounts, plain.Module())

	linked := &Request{
		Type:         TypeLoanApplication,
		LinkedEntity: &LinkedEntity{Module: ModuleLoans, EntityID: "loan-1"},
	}
	assert.True(t, linked.IsDomainBacked())
	assert.Equal(t, ModuleLoans, linked.Module())
}

func TestRequest_CurrentStep(t *testing.T) {
	r := &Request{
		CurrentApprovalLevel: 2,
		ApprovalSteps: []ApprovalStep{
			{Level: 1, ApproverRole: "SECRETARY"},
			{Level: 2, ApproverRole: "TREASURER"},
		},
	}
	step := r.CurrentStep()
	if assert.NotNil(t, step) {
		assert.Equal(t, "TREASURER", step.ApproverRole)
	}

	r.CurrentApprovalLevel = 9
	assert.Nil(t, r.CurrentStep())

	r.CurrentApprovalLevel = 0
	assert.Nil(t, r.CurrentStep())
}

func TestNewPageMeta(t *testing.T) {
	assert.Equal(t, PageMeta{Total: 0, Page: 1, Limit: 20, TotalPages: 0}, NewPageMeta(0, 1, 20))
	assert.Equal(t, PageMeta{Total: 41, Page: 2, Limit: 20, TotalPages: 3}, NewPageMeta(41, 2, 20))
}

func TestPriority_Rank(t *testing.T) {
	assert.Greater(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Greater(t, PriorityMedium.Rank(), PriorityNormal.Rank())
	assert.Equal(t, 0, Priority("").Rank())
}
