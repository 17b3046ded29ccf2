package hooks

import (
	"time"

	"github.com/worldforge/core/errs"
)

type (
	// TurnStartedEvent fires when the orchestrator begins processing a
	// sendMessage invocation.
	TurnStartedEvent struct {
		baseEvent
		UserID  string
		Message string
	}

	// TurnStateChangedEvent fires on every orchestrator state-machine
	// transition (spec §9's Streaming/AwaitingApprovals/Done states).
	TurnStateChangedEvent struct {
		baseEvent
		From string
		To   string
	}

	// ToolCallDispatchedEvent fires when a tool call is handed to the executor.
	ToolCallDispatchedEvent struct {
		baseEvent
		ToolCallID string
		ToolName   string
		Arguments  any
	}

	// ToolCallCompletedEvent fires when a tool executor returns.
	ToolCallCompletedEvent struct {
		baseEvent
		ToolCallID string
		ToolName   string
		Duration   time.Duration
		Result     any
		Error      *errs.Error
	}

	// AssistantTextAppendedEvent fires on each assistant_text chunk received
	// from the agent runtime.
	AssistantTextAppendedEvent struct {
		baseEvent
		Text string
	}

	// MemoryReconciledEvent fires after the memory reconciler writes block
	// updates for an agent.
	MemoryReconciledEvent struct {
		baseEvent
		BlocksWritten int
	}

	// CanvasOpPublishedEvent fires when a CanvasOp is appended to a session.
	CanvasOpPublishedEvent struct {
		baseEvent
		SessionID string
		OpKind    string
	}

	// CanvasSessionGCedEvent fires when the canvas session manager reclaims
	// idle sessions.
	CanvasSessionGCedEvent struct {
		baseEvent
		RemovedCount int
	}

	// TurnCompletedEvent fires when the orchestrator reaches the Done state.
	TurnCompletedEvent struct {
		baseEvent
		Iterations int
	}

	// TurnDivergedEvent fires when the approval loop exceeds its iteration cap.
	TurnDivergedEvent struct {
		baseEvent
		Iterations int
		Cap        int
	}
)

func now() int64 { return time.Now().UnixMilli() }

// NewTurnStartedEvent constructs a TurnStartedEvent stamped with the current time.
func NewTurnStartedEvent(turnID, agentID, userID, message string) *TurnStartedEvent {
	return &TurnStartedEvent{baseEvent: newBaseEvent(turnID, agentID, now), UserID: userID, Message: message}
}

// NewTurnStateChangedEvent constructs a TurnStateChangedEvent.
func NewTurnStateChangedEvent(turnID, agentID, from, to string) *TurnStateChangedEvent {
	return &TurnStateChangedEvent{baseEvent: newBaseEvent(turnID, agentID, now), From: from, To: to}
}

// NewToolCallDispatchedEvent constructs a ToolCallDispatchedEvent.
func NewToolCallDispatchedEvent(turnID, agentID, toolCallID, toolName string, args any) *ToolCallDispatchedEvent {
	return &ToolCallDispatchedEvent{
		baseEvent:  newBaseEvent(turnID, agentID, now),
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Arguments:  args,
	}
}

// NewToolCallCompletedEvent constructs a ToolCallCompletedEvent. err is nil on success.
func NewToolCallCompletedEvent(turnID, agentID, toolCallID, toolName string, d time.Duration, result any, err *errs.Error) *ToolCallCompletedEvent {
	return &ToolCallCompletedEvent{
		baseEvent:  newBaseEvent(turnID, agentID, now),
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Duration:   d,
		Result:     result,
		Error:      err,
	}
}

// NewAssistantTextAppendedEvent constructs an AssistantTextAppendedEvent.
func NewAssistantTextAppendedEvent(turnID, agentID, text string) *AssistantTextAppendedEvent {
	return &AssistantTextAppendedEvent{baseEvent: newBaseEvent(turnID, agentID, now), Text: text}
}

// NewMemoryReconciledEvent constructs a MemoryReconciledEvent.
func NewMemoryReconciledEvent(turnID, agentID string, blocksWritten int) *MemoryReconciledEvent {
	return &MemoryReconciledEvent{baseEvent: newBaseEvent(turnID, agentID, now), BlocksWritten: blocksWritten}
}

// NewCanvasOpPublishedEvent constructs a CanvasOpPublishedEvent.
func NewCanvasOpPublishedEvent(turnID, agentID, sessionID, opKind string) *CanvasOpPublishedEvent {
	return &CanvasOpPublishedEvent{baseEvent: newBaseEvent(turnID, agentID, now), SessionID: sessionID, OpKind: opKind}
}

// NewCanvasSessionGCedEvent constructs a CanvasSessionGCedEvent.
func NewCanvasSessionGCedEvent(removedCount int) *CanvasSessionGCedEvent {
	return &CanvasSessionGCedEvent{baseEvent: newBaseEvent("", "", now), RemovedCount: removedCount}
}

// NewTurnCompletedEvent constructs a TurnCompletedEvent.
func NewTurnCompletedEvent(turnID, agentID string, iterations int) *TurnCompletedEvent {
	return &TurnCompletedEvent{baseEvent: newBaseEvent(turnID, agentID, now), Iterations: iterations}
}

// NewTurnDivergedEvent constructs a TurnDivergedEvent.
func NewTurnDivergedEvent(turnID, agentID string, iterations, cap int) *TurnDivergedEvent {
	return &TurnDivergedEvent{baseEvent: newBaseEvent(turnID, agentID, now), Iterations: iterations, Cap: cap}
}

func (e *TurnStartedEvent) Type() EventType          { return TurnStarted }
func (e *TurnStateChangedEvent) Type() EventType     { return TurnStateChanged }
func (e *ToolCallDispatchedEvent) Type() EventType   { return ToolCallDispatched }
func (e *ToolCallCompletedEvent) Type() EventType    { return ToolCallCompleted }
func (e *AssistantTextAppendedEvent) Type() EventType { return AssistantTextAppended }
func (e *MemoryReconciledEvent) Type() EventType     { return MemoryReconciled }
func (e *CanvasOpPublishedEvent) Type() EventType    { return CanvasOpPublished }
func (e *CanvasSessionGCedEvent) Type() EventType    { return CanvasSessionGCed }
func (e *TurnCompletedEvent) Type() EventType        { return TurnCompleted }
func (e *TurnDivergedEvent) Type() EventType         { return TurnDiverged }
