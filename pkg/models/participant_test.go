package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestValidPIN(t *testing.T) {
	valid := []string{"0000", "1234", "9999"}
	for _, pin := range valid {
		assert.True(t, ValidPIN(pin), pin)
	}

	invalid := []string{"", "123", "12345", "abcd", "12a4", " 1234", "1234 ", "12.4", "-123"}
	for _, pin := range invalid {
		assert.False(t, ValidPIN(pin), pin)
	}
}

func TestHasAssignment(t *testing.T) {
	p := Participant{ID: uuid.New()}
	assert.False(t, p.HasAssignment())

	target := uuid.New()
	p.TargetID = &target
	assert.True(t, p.HasAssignment())
}
