package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessageLimiterWindow(t *testing.T) {
	rl := NewMessageLimiter(3, 50*time.Millisecond)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("p1"), "attempt %d should pass", i)
	}
	assert.False(t, rl.Allow("p1"))

	// other participants have their own budget
	assert.True(t, rl.Allow("p2"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, rl.Allow("p1"), "window slid, budget restored")
}

func TestMessageLimiterForget(t *testing.T) {
	rl := NewMessageLimiter(1, time.Hour)

	assert.True(t, rl.Allow("p1"))
	assert.False(t, rl.Allow("p1"))

	rl.Forget("p1")
	assert.True(t, rl.Allow("p1"))
}
