package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHasherRoundTrip(t *testing.T) {
	h := NewPasswordHasher()

	hash, err := h.Hash("p1")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, "p1", hash)

	assert.True(t, h.Verify("p1", hash))
	assert.False(t, h.Verify("wrong", hash))
	assert.False(t, h.Verify("p1", "not-a-hash"))
}
