// Package agentruntime defines the protocol the orchestrator consumes from
// the external agent runtime (spec §6) and a concrete implementation backed
// by the Anthropic Messages API. It is grounded directly on the teacher's
// features/model/anthropic package, which adapts
// github.com/anthropics/anthropic-sdk-go's streaming Messages client onto
// goa-ai's generic model.Client/model.Streamer contracts; this package
// narrows that same adaptation to the three chunk kinds spec §6 names
// (assistant_text, approval_request_message, stop_reason) instead of the
// teacher's richer chunk vocabulary (thinking, tool-call deltas keyed by
// content-block index, token usage).
package agentruntime

import (
	"context"
)

// ChunkType discriminates the three chunk shapes the consumed protocol emits.
type ChunkType string

const (
	// ChunkAssistantText carries plain assistant output text.
	ChunkAssistantText ChunkType = "assistant_text"
	// ChunkApprovalRequest carries a (possibly partial) client-tool invocation
	// request. ToolName may be empty on non-first chunks for the same
	// ToolCallID; ArgumentsDelta fragments concatenate in arrival order.
	ChunkApprovalRequest ChunkType = "approval_request_message"
	// ChunkStopReason carries the terminal reason for the current stream.
	ChunkStopReason ChunkType = "stop_reason"
)

// StopReason enumerates the terminal reasons a stream can report.
type StopReason string

const (
	// StopRequiresApproval means the agent has requested one or more tool
	// calls and is waiting for their results before continuing.
	StopRequiresApproval StopReason = "requires_approval"
	// StopEndTurn means the agent has produced a final response for this turn.
	StopEndTurn StopReason = "end_turn"
)

// Chunk is one element of the agent runtime's streaming protocol (spec §6).
type Chunk struct {
	Type ChunkType

	// Set when Type == ChunkAssistantText.
	Text string

	// Set when Type == ChunkApprovalRequest.
	ToolCallID     string
	ToolName       string
	ArgumentsDelta string

	// Set when Type == ChunkStopReason.
	StopReason StopReason
}

// ClientTool describes one caller-executed tool offered to the agent runtime
// for this stream (spec §6's client_tools list).
type ClientTool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ApprovalResult is one element of the `{type:"approval", approvals:[...]}`
// input posted back to the agent runtime after tool execution (spec §6).
type ApprovalResult struct {
	ToolCallID string
	Status     string // "ok" or "error"
	Result     any
}

// Stream is a single open messages.create call's event source.
type Stream interface {
	// Recv returns the next Chunk, or an error (including io.EOF-equivalent
	// stream-closed conditions surfaced as a ChunkStopReason chunk per the
	// teacher's model.Streamer convention of signaling completion via a
	// terminal chunk rather than only via Recv's error return).
	Recv(ctx context.Context) (Chunk, error)
	Close() error
}

// Input is either the initial user message or a subsequent approval bundle
// posted back into the same conversation (spec §6).
type Input struct {
	Message     string           // set for the first call in a turn
	Approvals   []ApprovalResult // set when resuming after tool execution
	ClientTools []ClientTool
}

// Runtime is the consumed agent runtime protocol (spec §6): open a streaming
// call for an agent, passing either the initial user message or an
// approval-result bundle.
type Runtime interface {
	CreateMessage(ctx context.Context, agentID string, input Input) (Stream, error)
}
