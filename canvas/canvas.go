// Package canvas implements the Canvas Session Manager: a per-user
// multiplexer between tool-issued component-tree operations and the browser
// client's interaction events. Grounded on the teacher's Pulse stream
// wrapper (features/stream/pulse/clients/pulse/client.go) for the
// publish/subscribe/session shape, adapted from a durable multi-consumer
// stream down to an in-process FIFO queue per spec §4.4 ("single-threaded
// cooperative scheduling is sufficient").
package canvas

import (
	"context"
	"sync"
	"time"

	"github.com/worldforge/core/hooks"
	"github.com/worldforge/core/ids"
	"github.com/worldforge/core/telemetry"
)

// OpKind enumerates canvas_ui's operation vocabulary (spec §4.3).
type OpKind string

const (
	OpRender OpKind = "render"
	OpUpdate OpKind = "update"
	OpRemove OpKind = "remove"
	OpLayout OpKind = "layout"
)

// Op is one outbound component-tree operation destined for the browser.
type Op struct {
	Kind        OpKind
	ComponentID string
	Definition  map[string]any
}

// Interaction is one inbound browser event (click, input change, etc.).
type Interaction struct {
	ComponentID string
	Kind        string
	Data        map[string]any
	At          time.Time
}

// Suggestion is a lightweight envelope delivered alongside the component
// tree (spec §4.3's send_suggestion), distinct from an Op.
type Suggestion struct {
	Title    string
	Body     string
	ActionID string
}

// Sink is a one-way delivery callable a subscriber registers to receive
// outbound Ops and Suggestions in publish order.
type Sink interface {
	DeliverOp(Op)
	DeliverSuggestion(Suggestion)
}

// SinkFunc adapts two plain functions to the Sink interface.
type SinkFunc struct {
	Op          func(Op)
	SuggestionF func(Suggestion)
}

func (f SinkFunc) DeliverOp(op Op)                 { f.Op(op) }
func (f SinkFunc) DeliverSuggestion(s Suggestion)  { f.SuggestionF(s) }

// Unsubscribe removes a previously registered Sink.
type Unsubscribe func()

const (
	defaultBacklogDepth = 256
	defaultInboundDepth = 256
	defaultIdleGC       = 30 * time.Minute
)

// session holds one user's outbound backlog, inbound queue, and subscribers.
type session struct {
	mu             sync.Mutex
	outboundOps    []Op
	outboundSug    []Suggestion
	inbound        []Interaction
	subscribers    map[int]Sink
	nextSubID      int
	lastActivityAt time.Time
}

func newSession(now time.Time) *session {
	return &session{subscribers: make(map[int]Sink), lastActivityAt: now}
}

// Manager implements spec §4.4's CanvasSessionManager contract: publish,
// ingest, subscribe, drain, and idle-session garbage collection.
type Manager struct {
	mu       sync.Mutex
	sessions map[ids.UserID]*session

	backlogDepth int
	inboundDepth int
	idleGC       time.Duration
	now          func() time.Time
	logger       telemetry.Logger
	mirror       Mirror
	hooks        hooks.Bus
}

// Option configures a Manager.
type Option func(*Manager)

// WithBacklogDepth overrides the default outbound backlog depth (256).
func WithBacklogDepth(n int) Option { return func(m *Manager) { m.backlogDepth = n } }

// WithInboundDepth overrides the default inbound queue depth (256).
func WithInboundDepth(n int) Option { return func(m *Manager) { m.inboundDepth = n } }

// WithIdleGC overrides the default idle-session threshold (30m).
func WithIdleGC(d time.Duration) Option { return func(m *Manager) { m.idleGC = d } }

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithLogger attaches a telemetry.Logger for backlog/inbound drop warnings.
func WithLogger(l telemetry.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithMirror attaches an optional fan-out mirror (e.g. Redis) for
// multi-instance deployments. The in-memory path remains authoritative;
// the mirror never gates publish/ingest/subscribe/drain semantics.
func WithMirror(mirror Mirror) Option { return func(m *Manager) { m.mirror = mirror } }

// WithHooks attaches an optional hooks.Bus. When set, the Manager publishes
// a CanvasOpPublishedEvent for every Op appended to a session and a
// CanvasSessionGCedEvent whenever GC removes sessions (SPEC_FULL.md's
// canvas hook-event supplement), in addition to the backlog/inbound overflow
// warnings it always logs via telemetry.Logger.
func WithHooks(bus hooks.Bus) Option { return func(m *Manager) { m.hooks = bus } }

// NewManager constructs a Manager with the given options.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions:     make(map[ids.UserID]*session),
		backlogDepth: defaultBacklogDepth,
		inboundDepth: defaultInboundDepth,
		idleGC:       defaultIdleGC,
		now:          time.Now,
		logger:       telemetry.NoopLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) sessionFor(userID ids.UserID) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		s = newSession(m.now())
		m.sessions[userID] = s
	}
	return s
}

// Publish appends op to userID's outbound backlog and delivers it to every
// registered subscriber in registration order. If the backlog exceeds its
// configured depth, the oldest entry is dropped and logged.
func (m *Manager) Publish(ctx context.Context, userID ids.UserID, op Op) {
	s := m.sessionFor(userID)
	s.mu.Lock()
	s.lastActivityAt = m.now()
	s.outboundOps = append(s.outboundOps, op)
	if len(s.outboundOps) > m.backlogDepth {
		dropped := len(s.outboundOps) - m.backlogDepth
		s.outboundOps = s.outboundOps[dropped:]
		m.logger.Warn(ctx, "canvas outbound backlog overflow, dropping oldest ops", "userId", string(userID), "dropped", dropped)
	}
	subs := m.snapshotSubscribers(s)
	s.mu.Unlock()

	for _, sink := range subs {
		sink.DeliverOp(op)
	}
	if m.mirror != nil {
		m.mirror.MirrorOp(ctx, userID, op)
	}
	if m.hooks != nil {
		_ = m.hooks.Publish(ctx, hooks.NewCanvasOpPublishedEvent("", string(userID), string(userID), string(op.Kind)))
	}
}

// PublishSuggestion delivers a Suggestion alongside the component tree,
// using the same subscriber set and backlog discipline as Publish.
func (m *Manager) PublishSuggestion(ctx context.Context, userID ids.UserID, sug Suggestion) {
	s := m.sessionFor(userID)
	s.mu.Lock()
	s.lastActivityAt = m.now()
	s.outboundSug = append(s.outboundSug, sug)
	if len(s.outboundSug) > m.backlogDepth {
		dropped := len(s.outboundSug) - m.backlogDepth
		s.outboundSug = s.outboundSug[dropped:]
		m.logger.Warn(ctx, "canvas suggestion backlog overflow, dropping oldest", "userId", string(userID), "dropped", dropped)
	}
	subs := m.snapshotSubscribers(s)
	s.mu.Unlock()

	for _, sink := range subs {
		sink.DeliverSuggestion(sug)
	}
	if m.mirror != nil {
		m.mirror.MirrorSuggestion(ctx, userID, sug)
	}
}

func (m *Manager) snapshotSubscribers(s *session) []Sink {
	out := make([]Sink, 0, len(s.subscribers))
	for id := 0; id < s.nextSubID; id++ {
		if sink, ok := s.subscribers[id]; ok {
			out = append(out, sink)
		}
	}
	return out
}

// Ingest appends an Interaction to userID's inbound queue. If the queue is
// at capacity, the oldest Interaction is dropped and logged.
func (m *Manager) Ingest(ctx context.Context, userID ids.UserID, interaction Interaction) {
	s := m.sessionFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActivityAt = m.now()
	s.inbound = append(s.inbound, interaction)
	if len(s.inbound) > m.inboundDepth {
		dropped := len(s.inbound) - m.inboundDepth
		s.inbound = s.inbound[dropped:]
		m.logger.Warn(ctx, "canvas inbound queue overflow, dropping oldest interactions", "userId", string(userID), "dropped", dropped)
	}
}

// Subscribe registers sink to receive future outbound Ops/Suggestions, first
// replaying the current backlog in order, then returns an Unsubscribe.
func (m *Manager) Subscribe(userID ids.UserID, sink Sink) Unsubscribe {
	s := m.sessionFor(userID)
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = sink
	backlogOps := append([]Op(nil), s.outboundOps...)
	backlogSug := append([]Suggestion(nil), s.outboundSug...)
	s.lastActivityAt = m.now()
	s.mu.Unlock()

	for _, op := range backlogOps {
		sink.DeliverOp(op)
	}
	for _, sug := range backlogSug {
		sink.DeliverSuggestion(sug)
	}

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Drain removes and returns up to max items from the front of userID's
// inbound queue, in FIFO order. Returns an empty slice if none are present.
func (m *Manager) Drain(userID ids.UserID, max int) []Interaction {
	s := m.sessionFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if max <= 0 || len(s.inbound) == 0 {
		return nil
	}
	s.lastActivityAt = m.now()
	n := max
	if n > len(s.inbound) {
		n = len(s.inbound)
	}
	out := append([]Interaction(nil), s.inbound[:n]...)
	s.inbound = s.inbound[n:]
	return out
}

// GC removes sessions that have no active subscribers, both queues empty,
// and whose lastActivityAt is older than the configured idle threshold. If
// any sessions were removed and a hooks.Bus is attached, it publishes a
// CanvasSessionGCedEvent (SPEC_FULL.md's canvas hook-event supplement).
func (m *Manager) GC(ctx context.Context) int {
	m.mu.Lock()
	now := m.now()
	removed := 0
	for userID, s := range m.sessions {
		s.mu.Lock()
		idle := len(s.subscribers) == 0 && len(s.outboundOps) == 0 && len(s.outboundSug) == 0 &&
			len(s.inbound) == 0 && now.Sub(s.lastActivityAt) >= m.idleGC
		s.mu.Unlock()
		if idle {
			delete(m.sessions, userID)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 && m.hooks != nil {
		_ = m.hooks.Publish(ctx, hooks.NewCanvasSessionGCedEvent(removed))
	}
	return removed
}

// Mirror fans canvas traffic out to a secondary transport (e.g. Redis
// streams) for multi-instance deployments. It is never the source of
// truth: Publish/Ingest/Subscribe/Drain semantics hold with or without a
// Mirror attached.
type Mirror interface {
	MirrorOp(ctx context.Context, userID ids.UserID, op Op)
	MirrorSuggestion(ctx context.Context, userID ids.UserID, sug Suggestion)
}
