package tui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickEvery_ProducesTickMsg(t *testing.T) {
	t.Parallel()

	cmd := TickEvery(time.Millisecond)
	require.NotNil(t, cmd)

	msg := cmd()
	tick, ok := msg.(TickMsg)
	require.True(t, ok, "command must produce a TickMsg")
	assert.WithinDuration(t, time.Now(), tick.Time, time.Second)
}
