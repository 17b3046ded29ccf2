// Package hooks implements a fan-out event bus on which the orchestrator and
// the canvas session manager publish lifecycle events for observers such as
// telemetry. Memory reconciliation and trajectory capture are not driven by
// the bus: the orchestrator calls them directly. Modeled directly on the teacher's
// agents/runtime/hooks package (Bus/Event/Subscriber/Subscription), narrowed
// to the event vocabulary this core actually emits (spec §4.1, §4.6).
package hooks

import (
	"context"
	"errors"
	"sync"
)

type (
	// Event is the interface every hook event implements. Concrete event
	// types carry typed payloads; subscribers type-switch on them.
	Event interface {
		Type() EventType
		TurnID() string
		AgentID() string
		Timestamp() int64
	}

	// Subscriber receives published events. Implementations must not block
	// the publisher for long; slow subscribers should hand off to their own
	// goroutine.
	Subscriber interface {
		HandleEvent(ctx context.Context, event Event) error
	}

	// SubscriberFunc adapts a plain function to Subscriber.
	SubscriberFunc func(ctx context.Context, event Event) error

	// Subscription is a handle returned by Register, used to unregister.
	Subscription interface {
		Close() error
	}

	// Bus publishes events to every registered Subscriber.
	Bus interface {
		Register(sub Subscriber) (Subscription, error)
		Publish(ctx context.Context, event Event) error
	}
)

// HandleEvent implements Subscriber by invoking the function.
func (fn SubscriberFunc) HandleEvent(ctx context.Context, event Event) error {
	return fn(ctx, event)
}

// EventType enumerates the events the orchestration core broadcasts.
type EventType string

const (
	// TurnStarted fires when the orchestrator begins processing a sendMessage call.
	TurnStarted EventType = "turn_started"
	// TurnStateChanged fires on every transition of the approval-loop state
	// machine (Streaming / AwaitingApprovals / Done, spec §9).
	TurnStateChanged EventType = "turn_state_changed"
	// ToolCallDispatched fires when a tool call is handed to the executor.
	ToolCallDispatched EventType = "tool_call_dispatched"
	// ToolCallCompleted fires when a tool executor returns a result or error.
	ToolCallCompleted EventType = "tool_call_completed"
	// AssistantTextAppended fires on each assistant_text chunk from the agent runtime.
	AssistantTextAppended EventType = "assistant_text_appended"
	// MemoryReconciled fires after the memory reconciler writes block updates.
	MemoryReconciled EventType = "memory_reconciled"
	// CanvasOpPublished fires when a CanvasOp is appended to a session's log.
	CanvasOpPublished EventType = "canvas_op_published"
	// CanvasSessionGCed fires when the canvas session manager reclaims idle sessions.
	CanvasSessionGCed EventType = "canvas_session_gced"
	// TurnCompleted fires when the orchestrator reaches the Done state.
	TurnCompleted EventType = "turn_completed"
	// TurnDiverged fires when the approval loop hits its iteration cap.
	TurnDiverged EventType = "turn_diverged"
)

type baseEvent struct {
	turnID    string
	agentID   string
	timestamp int64
}

func (e baseEvent) TurnID() string    { return e.turnID }
func (e baseEvent) AgentID() string   { return e.agentID }
func (e baseEvent) Timestamp() int64  { return e.timestamp }

func newBaseEvent(turnID, agentID string, now func() int64) baseEvent {
	var ts int64
	if now != nil {
		ts = now()
	}
	return baseEvent{turnID: turnID, agentID: agentID, timestamp: ts}
}

// bus is the default in-process Bus implementation: a mutex-guarded map of
// subscribers keyed by registration id, fanned out synchronously on Publish
// as the teacher's bus does (see bus_test.go's close-stops-delivery
// semantics). Each subscriber sees events in publish order; the order in
// which different subscribers are called for one event is not defined.
type bus struct {
	mu   sync.RWMutex
	subs map[int]Subscriber
	next int
}

// NewBus constructs an empty in-process event bus.
func NewBus() Bus {
	return &bus{subs: make(map[int]Subscriber)}
}

func (b *bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("hooks: cannot register nil subscriber")
	}
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()
	return &subscription{bus: b, id: id}, nil
}

func (b *bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	var firstErr error
	for _, s := range subs {
		if err := s.HandleEvent(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type subscription struct {
	bus *bus
	id  int
}

func (s *subscription) Close() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	return nil
}
