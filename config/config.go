// Package config holds the orchestration core's runtime-tunable knobs: loop
// iteration caps, timeouts, and canvas/session bookkeeping limits. Values are
// loaded from the process environment, mirroring how the teacher's cmd/
// binaries and integration_tests/framework wire up their runners from
// os.Getenv rather than a config-file library. No config-loading library
// appears anywhere in the retrieved example sources (spf13/viper and
// spf13/cobra show up only as unused transitive entries in a handful of
// go.mod files, never imported by any example's Go code), so FromEnv reads
// directly off the environment rather than reaching for an unvalidated
// ecosystem dependency.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the tunables for the orchestrator, router, canvas session
// manager, and tool executors (spec §5, §9). Within this module only
// ToolTimeout and ImageToolTimeout are applied (by tools.NewDefaultRegistry);
// the orchestrator and canvas.Manager take their iteration cap, queue depths,
// and idle threshold from their own fields and options, not from Config, and
// no idle stream timeout is enforced.
type Config struct {
	// MaxApprovalIterations bounds how many tool-call/approval round trips a
	// single Turn may take before the orchestrator gives up with TurnDiverged.
	MaxApprovalIterations int
	// IdleStreamTimeout bounds how long the orchestrator waits for the next
	// chunk from the agent runtime before treating the stream as stalled.
	IdleStreamTimeout time.Duration
	// ToolTimeout bounds a single tool executor invocation.
	ToolTimeout time.Duration
	// ImageToolTimeout bounds image_generator specifically: image synthesis
	// routinely runs longer than the other tool executors' default budget.
	ImageToolTimeout time.Duration
	// CanvasQueueDepth bounds how many buffered CanvasOps a CanvasSession
	// keeps before the oldest are dropped for slow subscribers.
	CanvasQueueDepth int
	// SessionIdleGC is how long a CanvasSession may sit unsubscribed before
	// the session manager reclaims it.
	SessionIdleGC time.Duration
	// TrajectoryCaptureEnabled toggles whether completed turns are persisted
	// via the trajectory.Sink.
	TrajectoryCaptureEnabled bool
}

// Default returns the baseline configuration used when no environment
// overrides are present.
func Default() Config {
	return Config{
		MaxApprovalIterations:    8,
		IdleStreamTimeout:        90 * time.Second,
		ToolTimeout:              60 * time.Second,
		ImageToolTimeout:         180 * time.Second,
		CanvasQueueDepth:         256,
		SessionIdleGC:            15 * time.Minute,
		TrajectoryCaptureEnabled: true,
	}
}

// FromEnv builds a Config starting from Default and applying overrides found
// in the process environment. Recognized variables:
//
//	WORLDFORGE_MAX_APPROVAL_ITERATIONS
//	WORLDFORGE_IDLE_STREAM_TIMEOUT   (Go duration string, e.g. "90s")
//	WORLDFORGE_TOOL_TIMEOUT          (Go duration string)
//	WORLDFORGE_IMAGE_TOOL_TIMEOUT    (Go duration string)
//	WORLDFORGE_CANVAS_QUEUE_DEPTH
//	WORLDFORGE_SESSION_IDLE_GC       (Go duration string)
//	WORLDFORGE_TRAJECTORY_CAPTURE_ENABLED (bool, e.g. "false")
//
// A malformed override is ignored and the default value is kept; FromEnv
// never fails, matching the teacher's preference for permissive startup over
// a hard config-validation gate.
func FromEnv() Config {
	c := Default()
	if v, ok := lookupInt("WORLDFORGE_MAX_APPROVAL_ITERATIONS"); ok {
		c.MaxApprovalIterations = v
	}
	if v, ok := lookupDuration("WORLDFORGE_IDLE_STREAM_TIMEOUT"); ok {
		c.IdleStreamTimeout = v
	}
	if v, ok := lookupDuration("WORLDFORGE_TOOL_TIMEOUT"); ok {
		c.ToolTimeout = v
	}
	if v, ok := lookupDuration("WORLDFORGE_IMAGE_TOOL_TIMEOUT"); ok {
		c.ImageToolTimeout = v
	}
	if v, ok := lookupInt("WORLDFORGE_CANVAS_QUEUE_DEPTH"); ok {
		c.CanvasQueueDepth = v
	}
	if v, ok := lookupDuration("WORLDFORGE_SESSION_IDLE_GC"); ok {
		c.SessionIdleGC = v
	}
	if v, ok := lookupBool("WORLDFORGE_TRAJECTORY_CAPTURE_ENABLED"); ok {
		c.TrajectoryCaptureEnabled = v
	}
	return c
}

func lookupInt(key string) (int, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func lookupDuration(key string) (time.Duration, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func lookupBool(key string) (bool, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
