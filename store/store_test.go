package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/worldforge/core/errs"
	"github.com/worldforge/core/ids"
)

func TestMemoryDB_WorldSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	owner := ids.NewUserID()

	saved, err := db.SaveWorld(ctx, World{OwnerUserID: owner, Foundation: map[string]any{"name": "Aelindra"}})
	require.NoError(t, err)
	require.NotEmpty(t, saved.WorldID)

	loaded, err := db.LoadWorld(ctx, saved.WorldID)
	require.NoError(t, err)
	require.Equal(t, saved.WorldID, loaded.WorldID)
	require.Equal(t, "Aelindra", loaded.Foundation["name"])
}

func TestMemoryDB_LoadWorld_NotFound(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()

	_, err := db.LoadWorld(ctx, ids.WorldID("missing"))
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.NotFound))
}

func TestMemoryDB_IsWorldOwner(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	owner := ids.NewUserID()
	other := ids.NewUserID()

	world, err := db.SaveWorld(ctx, World{OwnerUserID: owner})
	require.NoError(t, err)

	ok, err := db.IsWorldOwner(ctx, owner, world.WorldID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = db.IsWorldOwner(ctx, other, world.WorldID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryDB_CreateStoryListStoriesRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	world, err := db.SaveWorld(ctx, World{OwnerUserID: ids.NewUserID()})
	require.NoError(t, err)

	story, err := db.CreateStory(ctx, world.WorldID, "The Long Winter")
	require.NoError(t, err)

	_, err = db.SaveSegment(ctx, story.StoryID, "It began with snow.")
	require.NoError(t, err)
	_, err = db.SaveSegment(ctx, story.StoryID, "Then the wolves came.")
	require.NoError(t, err)

	list, err := db.ListStories(ctx, world.WorldID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 2, list[0].SegmentCount)
}

func TestMemoryDB_SaveSegment_OrderIsMonotonic(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	world, err := db.SaveWorld(ctx, World{OwnerUserID: ids.NewUserID()})
	require.NoError(t, err)
	story, err := db.CreateStory(ctx, world.WorldID, "Untitled")
	require.NoError(t, err)

	var lastOrder = -1
	for i := 0; i < 5; i++ {
		seg, err := db.SaveSegment(ctx, story.StoryID, "segment")
		require.NoError(t, err)
		require.Greater(t, seg.Order, lastOrder)
		lastOrder = seg.Order
	}

	_, segs, err := db.LoadStory(ctx, story.StoryID)
	require.NoError(t, err)
	require.Len(t, segs, 5)
	for i, seg := range segs {
		require.Equal(t, i, seg.Order)
	}
}

func TestMemoryDB_UserPreferenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	user := ids.NewUserID()

	_, ok, err := db.GetUserPreference(ctx, user, "tone")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, db.SetUserPreference(ctx, user, "tone", "whimsical"))

	v, ok, err := db.GetUserPreference(ctx, user, "tone")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "whimsical", v)
}

func TestMemoryDB_AssetCreateGetDelete(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	asset := Asset{AssetID: ids.NewAssetID(), OwnerUserID: ids.NewUserID(), Mime: "image/png", BlobKey: "k1"}

	require.NoError(t, db.CreateAsset(ctx, asset))

	got, err := db.GetAsset(ctx, asset.AssetID)
	require.NoError(t, err)
	require.Equal(t, asset.BlobKey, got.BlobKey)

	require.NoError(t, db.DeleteAsset(ctx, asset.AssetID))

	_, err = db.GetAsset(ctx, asset.AssetID)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.NotFound))
}

func TestMemoryDB_AgentMappingRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	agentID := ids.NewAgentID()

	_, ok, err := db.LookupAgentMapping(ctx, "user|u1|")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, db.StoreAgentMapping(ctx, "user|u1|", agentID))

	got, ok, err := db.LookupAgentMapping(ctx, "user|u1|")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, agentID, got)
}

func TestMemoryBlob_PutGetDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	blob := NewMemoryBlob()

	require.NoError(t, blob.Put(ctx, "k1", []byte("hello"), "text/plain"))

	data, err := blob.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)

	url, err := blob.URL(ctx, "k1")
	require.NoError(t, err)
	require.Contains(t, url, "k1")

	require.NoError(t, blob.Delete(ctx, "k1"))
	_, err = blob.Get(ctx, "k1")
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.NotFound))
}

func TestMemoryDB_WorldFoundationIsDefensivelyCloned(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()

	foundation := map[string]any{"name": "Aelindra"}
	saved, err := db.SaveWorld(ctx, World{OwnerUserID: ids.NewUserID(), Foundation: foundation})
	require.NoError(t, err)

	foundation["name"] = "mutated"

	loaded, err := db.LoadWorld(ctx, saved.WorldID)
	require.NoError(t, err)
	require.Equal(t, "Aelindra", loaded.Foundation["name"])
}
