package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/coop-approvals/internal/domain/entity"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StatePending, false},
		{StateInReview, false},
		{StateReviewed, false},
		{StateApproved, false},
		{StateRejected, true},
		{StateCompleted, true},
		{StateCancelled, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.IsTerminal())
		})
	}
}

func TestState_IsValid(t *testing.T) {
	assert.True(t, StatePending.IsValid())
	assert.False(t, State("DISBURSED").IsValid())
	assert.False(t, State("").IsValid())
	assert.Equal(t, entity.StatusReviewed, StateOf(entity.StatusReviewed).Status())
}

func TestTriggerFor(t *testing.T) {
	for _, a := range entity.Actions {
		_, ok := TriggerFor(a)
		assert.True(t, ok, a)
	}
	_, ok := TriggerFor(entity.ActionReconcile)
	assert.False(t, ok)
}

func TestBuilder_PanicsOnInvalidState(t *testing.T) {
	b := NewBuilder()
	assert.Panics(t, func() { b.Configure(State("NOPE")) })
	assert.Panics(t, func() { b.Configure(StatePending).Permit(TriggerReview, State("NOPE")) })
	assert.Panics(t, func() { b.Build(State("NOPE")) })
}

func TestStateMachine_Fire(t *testing.T) {
	b := NewBuilder()
	b.Configure(StatePending).Permit(TriggerReview, StateInReview)
	b.Configure(StateInReview).Permit(TriggerMarkReviewed, StateReviewed)

	m := b.Build(StatePending)
	require.True(t, m.CanFire(TriggerReview))
	assert.False(t, m.CanFire(TriggerApprove))

	target, ok := m.Target(TriggerReview)
	require.True(t, ok)
	assert.Equal(t, StateInReview, target)
	assert.Equal(t, StatePending, m.State(), "Target must not move the machine")

	require.NoError(t, m.Fire(context.Background(), TriggerReview))
	assert.Equal(t, StateInReview, m.State())

	err := m.Fire(context.Background(), TriggerReview)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStateMachine_Guards(t *testing.T) {
	allow := false
	b := NewBuilder()
	b.Configure(StatePending).PermitIf(TriggerReview, StateInReview, func(context.Context) bool { return allow })

	m := b.Build(StatePending)
	err := m.Fire(context.Background(), TriggerReview)
	assert.ErrorIs(t, err, ErrGuardFailed)
	assert.Equal(t, StatePending, m.State())

	allow = true
	require.NoError(t, m.Fire(context.Background(), TriggerReview))
	assert.Equal(t, StateInReview, m.State())
}

func TestBuild_IsolatedFromLaterConfiguration(t *testing.T) {
	b := NewBuilder()
	b.Configure(StatePending).Permit(TriggerReview, StateInReview)
	m := b.Build(StatePending)

	b.Configure(StatePending).Permit(TriggerCancel, StateCancelled)

	assert.False(t, m.CanFire(TriggerCancel))
	assert.Equal(t, []Trigger{TriggerReview}, m.PermittedTriggers())
}
