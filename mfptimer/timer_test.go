package mfptimer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimerExpiresAndReloads(t *testing.T) {
	tm := NewTimer(4)
	expired := 0
	for i := 0; i < 16; i++ {
		if tm.Clock() {
			expired++
		}
	}
	assert.Equal(t, 4, expired)
}

func TestTimerZeroPeriodTreatedAsOne(t *testing.T) {
	tm := NewTimer(0)
	assert.Equal(t, 1, tm.Period())
	assert.True(t, tm.Clock())
}

func TestStoppedTimerNeverExpires(t *testing.T) {
	tm := NewTimer(1)
	tm.Stop()
	for i := 0; i < 10; i++ {
		assert.False(t, tm.Clock())
	}
}
