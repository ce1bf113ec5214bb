package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Type   string `json:"type" validate:"required,oneof=A B"`
	Amount int64  `json:"amount" validate:"gt=0"`
}

func TestValidationMessage(t *testing.T) {
	v := NewValidator()

	err := v.Struct(sample{Type: "C"})
	require.Error(t, err)

	msg := ValidationMessage(err)
	assert.Contains(t, msg, "type must be one of [A B]")
	assert.Contains(t, msg, "amount must be greater than 0")
}

func TestValidationMessage_PlainError(t *testing.T) {
	assert.Equal(t, "boom", ValidationMessage(errors.New("boom")))
}

func TestValidator_Passes(t *testing.T) {
	assert.NoError(t, NewValidator().Struct(sample{Type: "A", Amount: 10}))
}
