package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidRoomCode(t *testing.T) {
	valid := []string{"abcd", "ABCD", "Ab3d", "abcdefgh1234"}
	for _, code := range valid {
		assert.True(t, ValidRoomCode(code), "expected %q to be valid", code)
	}

	invalid := []string{"", "abc", "abcdefghij123", "ab-d", "ab d", "abc!", "żółć"}
	for _, code := range invalid {
		assert.False(t, ValidRoomCode(code), "expected %q to be invalid", code)
	}
}

func TestGetOrCreateIsCaseInsensitive(t *testing.T) {
	manager := NewRoomManager(newFakeScheduler(), newMemoryStore(), nil, 8)

	a := manager.GetOrCreate("PaRtY1")
	b := manager.GetOrCreate("party1")
	assert.Same(t, a, b)
	assert.Equal(t, 1, manager.Count())

	c := manager.GetOrCreate("party2")
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, manager.Count())
}
