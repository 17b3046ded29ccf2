// Package store defines the narrow persistence capabilities the core
// consumes (spec §3, §6): DB for relational/document state (worlds,
// stories, segments, assets, preferences, agent mapping), Blob for
// object storage, and ImageProvider for external image generation. Concrete
// implementations (mongo.go, s3.go) are grounded on the teacher's
// collection-wrapper pattern in features/{memory,run,runlog}/mongo/clients/mongo.
package store

import (
	"context"
	"time"

	"github.com/worldforge/core/errs"
	"github.com/worldforge/core/ids"
)

// World is the persisted world document (spec §3). Foundation is a
// tree-shaped document addressed by dot-notation paths from world_manager's
// update operation.
type World struct {
	WorldID     ids.WorldID
	OwnerUserID ids.UserID
	Foundation  map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Story is the persisted story document (spec §3). Segments are loaded
// separately, ordered ascending by Order.
type Story struct {
	StoryID   ids.StoryID
	WorldID   ids.WorldID
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Segment is one unit of story text (spec §3). Order is assigned as
// max(existing.Order)+1 at insertion and never reused.
type Segment struct {
	SegmentID ids.SegmentID
	StoryID   ids.StoryID
	Order     int
	Text      string
	CreatedAt time.Time
}

// StoryListItem is the summarized shape story_manager's list operation returns.
type StoryListItem struct {
	StoryID      ids.StoryID
	Title        string
	SegmentCount int
	UpdatedAt    time.Time
}

// Asset is a blob-backed generated artifact (spec §3).
type Asset struct {
	AssetID     ids.AssetID
	OwnerUserID ids.UserID
	Mime        string
	Size        int64
	BlobKey     string
	CreatedAt   time.Time
}

// DB is the narrow persistence capability injected into every ToolContext
// (spec §4.3). It covers worlds, stories, segments, user preferences,
// assets, and the agent context-key mapping.
type DB interface {
	SaveWorld(ctx context.Context, world World) (World, error)
	LoadWorld(ctx context.Context, worldID ids.WorldID) (World, error)
	IsWorldOwner(ctx context.Context, userID ids.UserID, worldID ids.WorldID) (bool, error)
	ListWorlds(ctx context.Context, userID ids.UserID) ([]World, error)

	CreateStory(ctx context.Context, worldID ids.WorldID, title string) (Story, error)
	SaveSegment(ctx context.Context, storyID ids.StoryID, text string) (Segment, error)
	LoadStory(ctx context.Context, storyID ids.StoryID) (Story, []Segment, error)
	ListStories(ctx context.Context, worldID ids.WorldID) ([]StoryListItem, error)
	StoryWorldID(ctx context.Context, storyID ids.StoryID) (ids.WorldID, error)

	GetUserPreference(ctx context.Context, userID ids.UserID, key string) (string, bool, error)
	SetUserPreference(ctx context.Context, userID ids.UserID, key, value string) error

	CreateAsset(ctx context.Context, asset Asset) error
	GetAsset(ctx context.Context, assetID ids.AssetID) (Asset, error)
	DeleteAsset(ctx context.Context, assetID ids.AssetID) error

	LookupAgentMapping(ctx context.Context, key string) (ids.AgentID, bool, error)
	StoreAgentMapping(ctx context.Context, key string, agentID ids.AgentID) error
}

// Blob is the narrow object-storage capability injected into ToolContext.
type Blob interface {
	Put(ctx context.Context, key string, data []byte, mime string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	URL(ctx context.Context, key string) (string, error)
}

// ImageProvider generates image bytes for a prompt (spec §4.3's
// image_generator tool).
type ImageProvider interface {
	Name() string
	Generate(ctx context.Context, prompt, size, mime string) (data []byte, resolvedMime string, err error)
}

// ErrNotFound is a generic NotFound *errs.Error. The DB/Blob implementations
// in this package do not return it; they build their own NotFound errors
// with errs.Newf, so callers test for missing entities with
// errs.Is(err, errs.NotFound).
var ErrNotFound = errs.New(errs.NotFound, "not found")
