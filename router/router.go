// Package router implements the agent router (spec §4.2): it maintains the
// (userId, worldId?, storyId?) -> agentId mapping, drives lazy agent
// creation, and writes the current_story memory block (SetStoryContext); the
// other memory blocks are reconciled by the orchestrator. There is no single teacher file that matches
// this shape directly (goa-ai's Runtime.RegisterAgent/Agent registers static
// design-time agents rather than creating them lazily per conversational
// context); this package instead follows the teacher's general registration
// idiom — a mutex-guarded map plus a narrow lookup-or-create method,
// mirrored from agents/runtime/runtime.go's RegisterAgent/Agent/Toolset
// locking pattern — applied to the spec's per-context-key creation semantics.
package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/worldforge/core/errs"
	"github.com/worldforge/core/ids"
	"github.com/worldforge/core/memory"
)

// Kind distinguishes the three agent identities the core creates (spec §3).
type Kind string

const (
	// User is the persistent per-user agent used for world-authoring chat.
	User Kind = "user"
	// World is the per-(user, world) agent scoped to one world's authoring.
	World Kind = "world"
	// Experience is the shared, per-user agent exposing live-story tools.
	Experience Kind = "experience"
)

// Agent is the router's view of an agent identity (spec §3).
type Agent struct {
	AgentID     ids.AgentID
	OwnerUserID ids.UserID
	Kind        Kind
	WorldID     ids.WorldID
	StoryID     ids.StoryID
}

func contextKey(kind Kind, userID ids.UserID, worldID ids.WorldID) string {
	return fmt.Sprintf("%s|%s|%s", kind, userID, worldID)
}

// Mapping persists the contextKey -> agentId association so a crash-restart
// sees the same agent (spec §4.2 invariant). DB-backed implementations live
// in package store; a process-local implementation is provided here for
// tests and single-instance deployments.
type Mapping interface {
	Lookup(ctx context.Context, key string) (ids.AgentID, bool, error)
	Store(ctx context.Context, key string, agentID ids.AgentID) error
}

// InMemoryMapping is a process-local Mapping backed by a map.
type InMemoryMapping struct {
	mu   sync.RWMutex
	data map[string]ids.AgentID
}

// NewInMemoryMapping constructs an empty InMemoryMapping.
func NewInMemoryMapping() *InMemoryMapping {
	return &InMemoryMapping{data: make(map[string]ids.AgentID)}
}

func (m *InMemoryMapping) Lookup(_ context.Context, key string) (ids.AgentID, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.data[key]
	return id, ok, nil
}

func (m *InMemoryMapping) Store(_ context.Context, key string, agentID ids.AgentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = agentID
	return nil
}

// WorldOwnership checks whether userID owns worldID, used to enforce
// getOrCreateWorldAgent's NotAuthorized invariant. Backed by package store
// in production.
type WorldOwnership interface {
	IsOwner(ctx context.Context, userID ids.UserID, worldID ids.WorldID) (bool, error)
}

// StorySummary resolves the title and recent segment excerpts for
// setStoryContext's current_story block, or reports storyID not found.
type StorySummary interface {
	Summarize(ctx context.Context, storyID ids.StoryID, maxSegments int) (title string, excerpt string, err error)
}

// Router implements §4.2's three getOrCreate operations plus setStoryContext.
// Creation is serialized per context key (via a per-key mutex) so concurrent
// first-use requests cannot race into duplicate agents, matching the
// teacher's RegisterAgent/StartAgent locking discipline in
// agents/runtime/runtime.go.
type Router struct {
	mapping   Mapping
	memory    *memory.Reconciler
	ownership WorldOwnership
	stories   StorySummary

	keyLocks sync.Map // map[string]*sync.Mutex
}

// New constructs a Router. ownership and stories may be nil only in tests
// that never call getOrCreateWorldAgent/setStoryContext.
func New(mapping Mapping, reconciler *memory.Reconciler, ownership WorldOwnership, stories StorySummary) *Router {
	return &Router{mapping: mapping, memory: reconciler, ownership: ownership, stories: stories}
}

func (r *Router) lockFor(key string) *sync.Mutex {
	actual, _ := r.keyLocks.LoadOrStore(key, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// GetOrCreateUserAgent returns the persistent User-kind agent for userID,
// creating it on first call. It writes no memory blocks; the persona and
// user_preferences blocks are reconciled by the orchestrator on each turn.
func (r *Router) GetOrCreateUserAgent(ctx context.Context, userID ids.UserID) (ids.AgentID, error) {
	key := contextKey(User, userID, "")
	return r.getOrCreate(ctx, key, userID, User, "")
}

// GetOrCreateWorldAgent returns the World-kind agent scoped to (userID,
// worldID), failing with NotAuthorized unless userID owns worldID.
func (r *Router) GetOrCreateWorldAgent(ctx context.Context, userID ids.UserID, worldID ids.WorldID) (ids.AgentID, error) {
	if r.ownership != nil {
		owner, err := r.ownership.IsOwner(ctx, userID, worldID)
		if err != nil {
			return "", errs.Wrap(errs.Internal, "check world ownership", err)
		}
		if !owner {
			return "", errs.Newf(errs.NotAuthorized, "user %s does not own world %s", userID, worldID)
		}
	}
	key := contextKey(World, userID, worldID)
	return r.getOrCreate(ctx, key, userID, World, worldID)
}

// GetOrCreateExperienceAgent returns the shared Experience-kind agent for userID.
func (r *Router) GetOrCreateExperienceAgent(ctx context.Context, userID ids.UserID) (ids.AgentID, error) {
	key := contextKey(Experience, userID, "")
	return r.getOrCreate(ctx, key, userID, Experience, "")
}

func (r *Router) getOrCreate(ctx context.Context, key string, userID ids.UserID, kind Kind, worldID ids.WorldID) (ids.AgentID, error) {
	lock := r.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if id, ok, err := r.mapping.Lookup(ctx, key); err != nil {
		return "", errs.Wrap(errs.Internal, "lookup agent mapping", err)
	} else if ok {
		return id, nil
	}

	agentID := ids.NewAgentID()
	if err := r.mapping.Store(ctx, key, agentID); err != nil {
		return "", errs.Wrap(errs.Internal, "persist agent mapping", err)
	}
	return agentID, nil
}

// maxRecentSegments bounds how many trailing segments are embedded in the
// current_story memory block (spec §4.2's "most recent segments, capped").
const maxRecentSegments = 5

// SetStoryContext writes the story summary into agentID's current_story
// memory block, or clears it when storyID is empty. Returns the number of
// blocks actually written (0 or 1), matching memory.Reconciler.Reconcile.
func (r *Router) SetStoryContext(ctx context.Context, agentID ids.AgentID, storyID ids.StoryID) (int, error) {
	empty := ""
	if storyID == "" {
		return r.memory.Reconcile(ctx, string(agentID), memory.Desired{memory.CurrentStory: &empty})
	}

	title, excerpt, err := r.stories.Summarize(ctx, storyID, maxRecentSegments)
	if err != nil {
		return 0, errs.Wrap(errs.Internal, "summarize story for memory block", err)
	}
	content := fmt.Sprintf("%s\n\n%s", title, excerpt)
	return r.memory.Reconcile(ctx, string(agentID), memory.Desired{memory.CurrentStory: &content})
}
