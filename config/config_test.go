package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromEnv_DefaultsWhenUnset(t *testing.T) {
	t.Parallel()

	c := FromEnv()
	require.Equal(t, Default(), c)
}

func TestFromEnv_AppliesOverrides(t *testing.T) {
	t.Setenv("WORLDFORGE_MAX_APPROVAL_ITERATIONS", "3")
	t.Setenv("WORLDFORGE_IDLE_STREAM_TIMEOUT", "15s")
	t.Setenv("WORLDFORGE_TRAJECTORY_CAPTURE_ENABLED", "false")

	c := FromEnv()
	require.Equal(t, 3, c.MaxApprovalIterations)
	require.Equal(t, 15*time.Second, c.IdleStreamTimeout)
	require.False(t, c.TrajectoryCaptureEnabled)
	require.Equal(t, Default().ToolTimeout, c.ToolTimeout)
}

func TestFromEnv_IgnoresMalformedOverrides(t *testing.T) {
	t.Setenv("WORLDFORGE_CANVAS_QUEUE_DEPTH", "not-a-number")

	c := FromEnv()
	require.Equal(t, Default().CanvasQueueDepth, c.CanvasQueueDepth)
}
