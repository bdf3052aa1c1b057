package log

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottledAllowsOncePerInterval(t *testing.T) {
	th := NewThrottled(50 * time.Millisecond)
	assert.True(t, th.Allow("blend-error"))
	assert.False(t, th.Allow("blend-error"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, th.Allow("blend-error"))
}

func TestThrottledClassesAreIndependent(t *testing.T) {
	th := NewThrottled(time.Second)
	assert.True(t, th.Allow("a"))
	assert.True(t, th.Allow("b"))
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Init("not-a-level"))
}
