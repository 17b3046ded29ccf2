package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/worldforge/core/errs"
	"github.com/worldforge/core/ids"
)

// MemoryDB is a process-local DB backed by maps, for tests and
// single-instance deployments without a Mongo dependency.
type MemoryDB struct {
	mu sync.Mutex

	worlds      map[ids.WorldID]World
	stories     map[ids.StoryID]Story
	segments    map[ids.StoryID][]Segment
	preferences map[ids.UserID]map[string]string
	assets      map[ids.AssetID]Asset
	agentMap    map[string]ids.AgentID
}

// NewMemoryDB constructs an empty MemoryDB.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		worlds:      make(map[ids.WorldID]World),
		stories:     make(map[ids.StoryID]Story),
		segments:    make(map[ids.StoryID][]Segment),
		preferences: make(map[ids.UserID]map[string]string),
		assets:      make(map[ids.AssetID]Asset),
		agentMap:    make(map[string]ids.AgentID),
	}
}

func (db *MemoryDB) SaveWorld(_ context.Context, world World) (World, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if world.WorldID == "" {
		world.WorldID = ids.NewWorldID()
		world.CreatedAt = time.Now().UTC()
	} else if existing, ok := db.worlds[world.WorldID]; ok {
		world.CreatedAt = existing.CreatedAt
	}
	world.UpdatedAt = time.Now().UTC()
	world.Foundation = cloneMap(world.Foundation)
	db.worlds[world.WorldID] = world
	return cloneWorld(world), nil
}

func (db *MemoryDB) LoadWorld(_ context.Context, worldID ids.WorldID) (World, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	w, ok := db.worlds[worldID]
	if !ok {
		return World{}, errs.Newf(errs.NotFound, "world %s not found", worldID)
	}
	return cloneWorld(w), nil
}

func (db *MemoryDB) IsWorldOwner(_ context.Context, userID ids.UserID, worldID ids.WorldID) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	w, ok := db.worlds[worldID]
	if !ok {
		return false, nil
	}
	return w.OwnerUserID == userID, nil
}

func (db *MemoryDB) ListWorlds(_ context.Context, userID ids.UserID) ([]World, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []World
	for _, w := range db.worlds {
		if w.OwnerUserID == userID {
			out = append(out, cloneWorld(w))
		}
	}
	return out, nil
}

func (db *MemoryDB) CreateStory(_ context.Context, worldID ids.WorldID, title string) (Story, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	now := time.Now().UTC()
	s := Story{StoryID: ids.NewStoryID(), WorldID: worldID, Title: title, CreatedAt: now, UpdatedAt: now}
	db.stories[s.StoryID] = s
	return s, nil
}

func (db *MemoryDB) SaveSegment(_ context.Context, storyID ids.StoryID, text string) (Segment, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	story, ok := db.stories[storyID]
	if !ok {
		return Segment{}, errs.Newf(errs.NotFound, "story %s not found", storyID)
	}
	maxOrder := -1
	for _, seg := range db.segments[storyID] {
		if seg.Order > maxOrder {
			maxOrder = seg.Order
		}
	}
	seg := Segment{SegmentID: ids.NewSegmentID(), StoryID: storyID, Order: maxOrder + 1, Text: text, CreatedAt: time.Now().UTC()}
	db.segments[storyID] = append(db.segments[storyID], seg)
	story.UpdatedAt = time.Now().UTC()
	db.stories[storyID] = story
	return seg, nil
}

func (db *MemoryDB) LoadStory(_ context.Context, storyID ids.StoryID) (Story, []Segment, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	story, ok := db.stories[storyID]
	if !ok {
		return Story{}, nil, errs.Newf(errs.NotFound, "story %s not found", storyID)
	}
	segs := append([]Segment(nil), db.segments[storyID]...)
	return story, segs, nil
}

func (db *MemoryDB) ListStories(_ context.Context, worldID ids.WorldID) ([]StoryListItem, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []StoryListItem
	for _, s := range db.stories {
		if s.WorldID != worldID {
			continue
		}
		out = append(out, StoryListItem{
			StoryID:      s.StoryID,
			Title:        s.Title,
			SegmentCount: len(db.segments[s.StoryID]),
			UpdatedAt:    s.UpdatedAt,
		})
	}
	return out, nil
}

func (db *MemoryDB) StoryWorldID(_ context.Context, storyID ids.StoryID) (ids.WorldID, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	s, ok := db.stories[storyID]
	if !ok {
		return "", errs.Newf(errs.NotFound, "story %s not found", storyID)
	}
	return s.WorldID, nil
}

func (db *MemoryDB) GetUserPreference(_ context.Context, userID ids.UserID, key string) (string, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	prefs, ok := db.preferences[userID]
	if !ok {
		return "", false, nil
	}
	v, ok := prefs[key]
	return v, ok, nil
}

func (db *MemoryDB) SetUserPreference(_ context.Context, userID ids.UserID, key, value string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	prefs, ok := db.preferences[userID]
	if !ok {
		prefs = make(map[string]string)
		db.preferences[userID] = prefs
	}
	prefs[key] = value
	return nil
}

func (db *MemoryDB) CreateAsset(_ context.Context, asset Asset) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now().UTC()
	}
	db.assets[asset.AssetID] = asset
	return nil
}

func (db *MemoryDB) GetAsset(_ context.Context, assetID ids.AssetID) (Asset, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	a, ok := db.assets[assetID]
	if !ok {
		return Asset{}, errs.Newf(errs.NotFound, "asset %s not found", assetID)
	}
	return a, nil
}

func (db *MemoryDB) DeleteAsset(_ context.Context, assetID ids.AssetID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.assets[assetID]; !ok {
		return errs.Newf(errs.NotFound, "asset %s not found", assetID)
	}
	delete(db.assets, assetID)
	return nil
}

func (db *MemoryDB) LookupAgentMapping(_ context.Context, key string) (ids.AgentID, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	id, ok := db.agentMap[key]
	return id, ok, nil
}

func (db *MemoryDB) StoreAgentMapping(_ context.Context, key string, agentID ids.AgentID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.agentMap[key] = agentID
	return nil
}

func cloneWorld(w World) World {
	w.Foundation = cloneMap(w.Foundation)
	return w
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneMap(nested)
		} else {
			out[k] = v
		}
	}
	return out
}

// MemoryBlob is a process-local Blob backed by a map.
type MemoryBlob struct {
	mu   sync.Mutex
	data map[string][]byte
	mime map[string]string
}

// NewMemoryBlob constructs an empty MemoryBlob.
func NewMemoryBlob() *MemoryBlob {
	return &MemoryBlob{data: make(map[string][]byte), mime: make(map[string]string)}
}

func (b *MemoryBlob) Put(_ context.Context, key string, data []byte, mime string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = append([]byte(nil), data...)
	b.mime[key] = mime
	return nil
}

func (b *MemoryBlob) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[key]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "blob %s not found", key)
	}
	return append([]byte(nil), data...), nil
}

func (b *MemoryBlob) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	delete(b.mime, key)
	return nil
}

func (b *MemoryBlob) URL(_ context.Context, key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.data[key]; !ok {
		return "", errs.Newf(errs.NotFound, "blob %s not found", key)
	}
	return fmt.Sprintf("memory://blob/%s", key), nil
}
