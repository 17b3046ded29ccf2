// Package memory implements the agent's MemoryBlockSet and the reconciler
// that keeps it synchronized with application state (spec §3, §4.5). Unlike
// the teacher's agents/runtime/memory package — which persists a
// chronological event log (Store.AppendEvents/LoadRun) for planner replay —
// this core's memory is a small set of named, whole-value blocks
// (persona, current_world, current_story, user_preferences,
// experience_capabilities) that are overwritten wholesale on each
// reconciliation. The Reconciler below still follows the teacher's Store
// shape (ctx-first methods, explicit BlockSet value type) but trades the
// append-only log for last-writer-wins block storage, matching spec §3's
// MemoryBlockSet invariants.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/worldforge/core/errs"
)

// Label identifies one of the canonical memory block slots recognized by the
// core (spec §3).
type Label string

const (
	// Persona carries the agent's persona/system description.
	Persona Label = "persona"
	// CurrentWorld carries a compact world summary (title, pillars, last-updated).
	CurrentWorld Label = "current_world"
	// CurrentStory carries the active story's title and recent segment excerpts.
	CurrentStory Label = "current_story"
	// UserPreferences carries serialized user-level preferences.
	UserPreferences Label = "user_preferences"
	// ExperienceCapabilities carries the list of tool capabilities available
	// to an experience-kind agent.
	ExperienceCapabilities Label = "experience_capabilities"
)

// maxBlockBytes enforces the 8 KiB per-block size invariant from spec §3.
const maxBlockBytes = 8 * 1024

// BlockSet is a mapping from block label to free-form text content,
// addressed by AgentID. Labels are always canonical lowercase (spec §3
// invariant i); Reconcile rejects any label that is not lowercase.
type BlockSet struct {
	AgentID string
	Blocks  map[Label]string
}

// Store persists an agent's MemoryBlockSet, mirroring the ctx-first,
// explicit-snapshot shape of the teacher's memory.Store (LoadRun/AppendEvents)
// adapted to whole-block last-writer-wins semantics.
type Store interface {
	// Load returns the current BlockSet for agentID, or an empty set (not an
	// error) if none exists yet.
	Load(ctx context.Context, agentID string) (BlockSet, error)
	// Save persists the given BlockSet, replacing any prior content for its labels.
	Save(ctx context.Context, set BlockSet) error
}

// InMemoryStore is a process-local Store backed by a map, suitable for tests
// and single-instance deployments without a database dependency.
type InMemoryStore struct {
	data map[string]BlockSet
}

// NewInMemoryStore constructs an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string]BlockSet)}
}

func (s *InMemoryStore) Load(_ context.Context, agentID string) (BlockSet, error) {
	if set, ok := s.data[agentID]; ok {
		return cloneBlockSet(set), nil
	}
	return BlockSet{AgentID: agentID, Blocks: map[Label]string{}}, nil
}

func (s *InMemoryStore) Save(_ context.Context, set BlockSet) error {
	s.data[set.AgentID] = cloneBlockSet(set)
	return nil
}

func cloneBlockSet(set BlockSet) BlockSet {
	blocks := make(map[Label]string, len(set.Blocks))
	for k, v := range set.Blocks {
		blocks[k] = v
	}
	return BlockSet{AgentID: set.AgentID, Blocks: blocks}
}

// Reconciler computes and applies the minimal set of block writes needed to
// bring an agent's stored MemoryBlockSet in line with desired application
// state, skipping writes whose content is unchanged (spec §4.5's idempotence
// requirement, tested by property §8 "Memory idempotence").
type Reconciler struct {
	store Store
}

// NewReconciler constructs a Reconciler backed by the given Store.
func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store}
}

// Desired is the application-state-derived content the reconciler should
// ensure is reflected in the agent's memory blocks. A nil value for a label
// means "leave the existing block untouched"; an empty non-nil string means
// "clear the block" (used when setStoryContext(agentId, null) clears
// current_story per spec §4.2).
type Desired map[Label]*string

// Reconcile loads the agent's current blocks, diffs them against desired,
// and writes back only the blocks whose content hash changed. It returns the
// number of blocks actually written.
func (r *Reconciler) Reconcile(ctx context.Context, agentID string, desired Desired) (int, error) {
	for label, value := range desired {
		if string(label) != strings.ToLower(string(label)) {
			return 0, errs.Newf(errs.ValidationError, "memory block label %q is not canonical lowercase", label)
		}
		if value != nil && len(*value) > maxBlockBytes {
			return 0, errs.Newf(errs.ValidationError, "memory block %q exceeds %d bytes", label, maxBlockBytes)
		}
	}

	current, err := r.store.Load(ctx, agentID)
	if err != nil {
		return 0, errs.Wrap(errs.Internal, "load memory blocks", err)
	}

	next := cloneBlockSet(current)
	if next.Blocks == nil {
		next.Blocks = map[Label]string{}
	}
	next.AgentID = agentID

	written := 0
	for label, value := range desired {
		if value == nil {
			continue
		}
		if contentHash(current.Blocks[label]) == contentHash(*value) {
			continue
		}
		next.Blocks[label] = *value
		written++
	}

	if written == 0 {
		return 0, nil
	}
	if err := r.store.Save(ctx, next); err != nil {
		return 0, errs.Wrap(errs.Internal, "save memory blocks", err)
	}
	return written, nil
}

func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
