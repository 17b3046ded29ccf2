// Package trajectory implements Trajectory Capture (spec §4.6): the
// best-effort, structured record written once per completed orchestrator
// run. The record shape is supplemented (SPEC_FULL.md §4.6) with the
// per-tool success/failure counters and DurationMs field present in
// comparable ATIF-style trajectory records in the pack (see
// other_examples/8c6fab75_..._trajectory_types.go), translated into this
// core's own Turn/ToolCall vocabulary rather than adopted verbatim.
package trajectory

import (
	"context"
	"time"

	"github.com/worldforge/core/ids"
)

// ExecutionStatus classifies how an orchestrator run ended (spec §4.6).
type ExecutionStatus string

const (
	StatusCompleted ExecutionStatus = "completed"
	StatusIncomplete ExecutionStatus = "incomplete"
	StatusFailed     ExecutionStatus = "failed"
	StatusError      ExecutionStatus = "error"
)

// Outcome is the heuristic success classification derived from
// ExecutionStatus and tool-failure counts (spec §4.6).
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomePartialSuccess Outcome = "partial_success"
	OutcomeFailure        Outcome = "failure"
)

// maxFieldBytes bounds per-field verbatim capture (spec §4.6's "subject to
// a per-field truncation cap; field-level truncation is marked").
const maxFieldBytes = 16 * 1024

// ToolCallRecord is one tool invocation captured verbatim within a turn's
// batch, subject to per-field truncation.
type ToolCallRecord struct {
	ToolCallID      ids.ToolCallID
	ToolName        string
	ArgumentsJSON   string
	ArgumentsTruncated bool
	ResultJSON      string
	ResultTruncated bool
	Error           string
	Succeeded       bool
}

// TurnRecord is one {inbound chunk set, tool-call batch, result batch}
// entry within a Trajectory's ordered turns list (spec §4.6).
type TurnRecord struct {
	TurnID        ids.TurnID
	InboundText   string
	ToolCalls     []ToolCallRecord
	StopReason    string
	ApprovalBatch int
}

// Metadata captures aggregate statistics about the run (spec §4.6).
type Metadata struct {
	StartedAt        time.Time
	EndedAt          time.Time
	DurationMs       int64
	ApprovalBatches  int
	ToolNamesInvoked []string
	ToolSuccessCount map[string]int
	ToolFailureCount map[string]int
}

// Trajectory is the persisted record of one completed orchestrator run
// (spec §3, §4.6).
type Trajectory struct {
	TrajectoryID    ids.TrajectoryID
	AgentID         ids.AgentID
	ExecutionStatus ExecutionStatus
	Metadata        Metadata
	Turns           []TurnRecord
	Outcome         Outcome
	Confidence      float64
	CreatedAt       time.Time
}

// Builder accumulates turn records over the course of an orchestrator run
// and produces a Trajectory at the end, per spec §4.6's construction
// algorithm.
type Builder struct {
	agentID   ids.AgentID
	startedAt time.Time
	turns     []TurnRecord
	toolOK    map[string]int
	toolFail  map[string]int
	toolNames map[string]bool
}

// NewBuilder starts accumulating a Trajectory for agentID, stamping
// startedAt as the run's start time.
func NewBuilder(agentID ids.AgentID, startedAt time.Time) *Builder {
	return &Builder{
		agentID:   agentID,
		startedAt: startedAt,
		toolOK:    make(map[string]int),
		toolFail:  make(map[string]int),
		toolNames: make(map[string]bool),
	}
}

// AddTurn records one approval-batch's worth of turn activity.
func (b *Builder) AddTurn(t TurnRecord) {
	for _, tc := range t.ToolCalls {
		b.toolNames[tc.ToolName] = true
		if tc.Succeeded {
			b.toolOK[tc.ToolName]++
		} else {
			b.toolFail[tc.ToolName]++
		}
	}
	b.turns = append(b.turns, t)
}

// Build finalizes the Trajectory with the given terminal status and end
// time. The outcome/confidence pairing follows spec §4.6: completed maps
// to success (confidence 1.0) when no tool call failed and the last stop
// reason is end_turn, otherwise to partial_success with confidence 1.0
// minus 0.1 per failed tool call and 0.1 for another stop reason, floored
// at 0.5; incomplete maps to partial_success at 0.4; failed and error map
// to failure at 0.0.
func (b *Builder) Build(status ExecutionStatus, endedAt time.Time, lastStopReason string) Trajectory {
	names := make([]string, 0, len(b.toolNames))
	for name := range b.toolNames {
		names = append(names, name)
	}

	totalFailures := 0
	for _, n := range b.toolFail {
		totalFailures += n
	}

	outcome, confidence := classify(status, lastStopReason, totalFailures)

	return Trajectory{
		TrajectoryID:    ids.NewTrajectoryID(),
		AgentID:         b.agentID,
		ExecutionStatus: status,
		Metadata: Metadata{
			StartedAt:        b.startedAt,
			EndedAt:          endedAt,
			DurationMs:       endedAt.Sub(b.startedAt).Milliseconds(),
			ApprovalBatches:  len(b.turns),
			ToolNamesInvoked: names,
			ToolSuccessCount: b.toolOK,
			ToolFailureCount: b.toolFail,
		},
		Turns:      b.turns,
		Outcome:    outcome,
		Confidence: confidence,
		CreatedAt:  endedAt,
	}
}

func classify(status ExecutionStatus, stopReason string, totalFailures int) (Outcome, float64) {
	switch status {
	case StatusCompleted:
		confidence := 1.0 - 0.1*float64(totalFailures)
		if stopReason != "end_turn" {
			confidence -= 0.1
		}
		if confidence < 0.5 {
			confidence = 0.5
		}
		if totalFailures == 0 && stopReason == "end_turn" {
			return OutcomeSuccess, 1.0
		}
		return OutcomePartialSuccess, confidence
	case StatusIncomplete:
		return OutcomePartialSuccess, 0.4
	default:
		return OutcomeFailure, 0.0
	}
}

// TruncateField applies the per-field truncation cap, reporting whether
// truncation occurred.
func TruncateField(s string) (value string, truncated bool) {
	if len(s) <= maxFieldBytes {
		return s, false
	}
	return s[:maxFieldBytes], true
}

// Sink persists a completed Trajectory. Writing is best-effort: callers
// log and discard Sink errors rather than fail the user turn (spec §4.6,
// §7: "Trajectory-capture errors are logged only").
type Sink interface {
	Write(ctx context.Context, t Trajectory) error
}
