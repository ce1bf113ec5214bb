package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestType_IsValid(t *testing.T) {
	assert.True(t, TypeRequestTransitioned.IsValid())
	assert.True(t, TypeRequestDeleted.IsValid())
	assert.False(t, Type("instance.created").IsValid())
	assert.Equal(t, "request.created", TypeRequestCreated.String())
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(TypeRequestCreated, "req-1", map[string]any{KeyActorID: "alice"})

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, e.ID, e.CorrelationID)
	assert.Equal(t, "req-1", e.RequestID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, "alice", e.GetPayloadString(KeyActorID))
}

func TestWithPayload_DoesNotMutateOriginal(t *testing.T) {
	e := NewEvent(TypeRequestTransitioned, "req-1", map[string]any{KeyLevel: 1})
	e2 := e.WithPayload(KeyLevel, 2)

	assert.Equal(t, int64(1), e.GetPayloadInt(KeyLevel))
	assert.Equal(t, int64(2), e2.GetPayloadInt(KeyLevel))
	assert.Equal(t, e.ID, e2.ID)
}

type stringer string

func (s stringer) String() string { return string(s) }

func TestGetPayload_Conversions(t *testing.T) {
	e := NewEvent(TypeRequestTransitioned, "r", map[string]any{
		KeyToStatus: stringer("IN_REVIEW"),
		KeyLevel:    float64(3),
		KeyNotes:    42,
	})

	assert.Equal(t, "IN_REVIEW", e.GetPayloadString(KeyToStatus))
	assert.Equal(t, int64(3), e.GetPayloadInt(KeyLevel))
	assert.Equal(t, "", e.GetPayloadString(KeyNotes))
	assert.Equal(t, int64(0), e.GetPayloadInt("missing"))
}
