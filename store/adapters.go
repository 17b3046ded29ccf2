package store

import (
	"context"

	"github.com/worldforge/core/ids"
	"github.com/worldforge/core/router"
)

// MappingAdapter adapts a DB's agent-mapping methods onto router.Mapping, so
// a store.DB can be passed directly to router.New without the router
// package depending on store (avoiding an import cycle: store imports
// router for these interfaces, and router stays storage-agnostic).
type MappingAdapter struct{ DB DB }

func (a MappingAdapter) Lookup(ctx context.Context, key string) (ids.AgentID, bool, error) {
	return a.DB.LookupAgentMapping(ctx, key)
}

func (a MappingAdapter) Store(ctx context.Context, key string, agentID ids.AgentID) error {
	return a.DB.StoreAgentMapping(ctx, key, agentID)
}

// OwnershipAdapter adapts DB.IsWorldOwner onto router.WorldOwnership.
type OwnershipAdapter struct{ DB DB }

func (a OwnershipAdapter) IsOwner(ctx context.Context, userID ids.UserID, worldID ids.WorldID) (bool, error) {
	return a.DB.IsWorldOwner(ctx, userID, worldID)
}

// StorySummaryAdapter adapts DB's story/segment reads onto router.StorySummary.
type StorySummaryAdapter struct{ DB DB }

func (a StorySummaryAdapter) Summarize(ctx context.Context, storyID ids.StoryID, maxSegments int) (string, string, error) {
	story, segments, err := a.DB.LoadStory(ctx, storyID)
	if err != nil {
		return "", "", err
	}
	if len(segments) > maxSegments {
		segments = segments[len(segments)-maxSegments:]
	}
	excerpt := ""
	for i, seg := range segments {
		if i > 0 {
			excerpt += "\n---\n"
		}
		excerpt += seg.Text
	}
	return story.Title, excerpt, nil
}

var (
	_ router.Mapping        = MappingAdapter{}
	_ router.WorldOwnership = OwnershipAdapter{}
	_ router.StorySummary   = StorySummaryAdapter{}
)
