package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/worldforge/core/canvas"
	"github.com/worldforge/core/config"
	"github.com/worldforge/core/errs"
	"github.com/worldforge/core/ids"
	"github.com/worldforge/core/router"
	"github.com/worldforge/core/store"
)

type fakeTextProvider struct {
	drafts []WorldDraft
	err    error
}

func (f fakeTextProvider) GenerateDrafts(context.Context, string, string, int) ([]WorldDraft, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.drafts, nil
}

type fakeImageProvider struct {
	name string
	data []byte
	mime string
	err  error
}

func (f fakeImageProvider) Name() string { return f.name }
func (f fakeImageProvider) Generate(context.Context, string, string, string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.data, f.mime, nil
}

func newTestContext(t *testing.T) (Context, store.DB) {
	t.Helper()
	db := store.NewMemoryDB()
	blob := store.NewMemoryBlob()
	images := NewImageProviders(fakeImageProvider{name: "gemini", data: []byte("pixels"), mime: "image/png"})
	mgr := canvas.NewManager()
	return Context{
		UserID: ids.NewUserID(),
		DB:     db,
		Blob:   blob,
		Images: images,
		Canvas: mgr,
	}, db
}

func argsJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestRegistry_DispatchUnknownTool(t *testing.T) {
	r := NewRegistry()
	tc, _ := newTestContext(t)
	_, err := r.Dispatch(context.Background(), tc, "nonexistent", nil)
	require.Error(t, err)
	require.Equal(t, errs.ValidationError, errs.KindOf(err))
}

func TestRegistry_DispatchEnforcesPerToolTimeout(t *testing.T) {
	r := NewRegistry()
	tc, _ := newTestContext(t)

	blocked := make(chan struct{})
	err := r.RegisterWithTimeout("slow_tool", router.User, "blocks until its context is canceled", `{"type":"object"}`, 10*time.Millisecond,
		func(ctx context.Context, _ Context, _ json.RawMessage) (any, error) {
			<-ctx.Done()
			close(blocked)
			return nil, ctx.Err()
		})
	require.NoError(t, err)

	_, err = r.Dispatch(context.Background(), tc, "slow_tool", argsJSON(t, map[string]any{}))
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("executor never observed context cancellation")
	}
}

func TestRegistry_DispatchWithoutTimeoutNeverCancels(t *testing.T) {
	r := NewRegistry()
	tc, _ := newTestContext(t)

	err := r.Register("untimed_tool", router.User, "has no deadline", `{"type":"object"}`,
		func(ctx context.Context, _ Context, _ json.RawMessage) (any, error) {
			require.NoError(t, ctx.Err())
			_, hasDeadline := ctx.Deadline()
			require.False(t, hasDeadline)
			return "ok", nil
		})
	require.NoError(t, err)

	result, err := r.Dispatch(context.Background(), tc, "untimed_tool", argsJSON(t, map[string]any{}))
	require.NoError(t, err)
	require.Equal(t, "ok", result)
}

func TestRegistry_DispatchValidatesArguments(t *testing.T) {
	r, err := NewDefaultRegistry(fakeTextProvider{}, config.Default())
	require.NoError(t, err)
	tc, _ := newTestContext(t)

	_, err = r.Dispatch(context.Background(), tc, "world_draft_generator", argsJSON(t, map[string]any{}))
	require.Error(t, err)
	require.Equal(t, errs.ValidationError, errs.KindOf(err))
}

func TestWorldDraftGenerator_ReturnsDrafts(t *testing.T) {
	provider := fakeTextProvider{drafts: []WorldDraft{{Title: "Aelindra"}, {Title: "Kethros"}, {Title: "Voss"}}}
	exec := NewWorldDraftGenerator(provider)
	tc, _ := newTestContext(t)

	result, err := exec(context.Background(), tc, argsJSON(t, map[string]any{"prompt": "neon-noir"}))
	require.NoError(t, err)
	out := result.(map[string]any)
	require.Len(t, out["drafts"], 3)
}

func TestWorldDraftGenerator_RejectsEmptyPrompt(t *testing.T) {
	exec := NewWorldDraftGenerator(fakeTextProvider{})
	tc, _ := newTestContext(t)

	_, err := exec(context.Background(), tc, argsJSON(t, map[string]any{"prompt": ""}))
	require.Error(t, err)
	require.Equal(t, errs.ValidationError, errs.KindOf(err))
}

func TestWorldManager_SaveLoadRoundTrip(t *testing.T) {
	tc, _ := newTestContext(t)

	saveResult, err := WorldManager(context.Background(), tc, argsJSON(t, map[string]any{
		"operation": "save",
		"data":      map[string]any{"title": "Aethel"},
	}))
	require.NoError(t, err)
	worldID := saveResult.(map[string]any)["worldId"].(ids.WorldID)

	loadResult, err := WorldManager(context.Background(), tc, argsJSON(t, map[string]any{
		"operation": "load",
		"worldId":   worldID,
	}))
	require.NoError(t, err)
	foundation := loadResult.(map[string]any)["foundation"].(map[string]any)
	require.Equal(t, "Aethel", foundation["title"])
}

func TestWorldManager_Update_AutoVivifiesPath(t *testing.T) {
	tc, _ := newTestContext(t)

	saveResult, err := WorldManager(context.Background(), tc, argsJSON(t, map[string]any{"operation": "save", "data": map[string]any{}}))
	require.NoError(t, err)
	worldID := saveResult.(map[string]any)["worldId"].(ids.WorldID)

	updateResult, err := WorldManager(context.Background(), tc, argsJSON(t, map[string]any{
		"operation": "update",
		"worldId":   worldID,
		"updates": []map[string]any{
			{"path": "geography.continents.0", "value": "Aelterra"},
		},
	}))
	require.NoError(t, err)
	foundation := updateResult.(map[string]any)["foundation"].(map[string]any)
	geography := foundation["geography"].(map[string]any)
	continents := geography["continents"].(map[string]any)
	require.Equal(t, "Aelterra", continents["0"])
}

func TestWorldManager_Update_RejectsPrototypePath(t *testing.T) {
	tc, _ := newTestContext(t)
	saveResult, err := WorldManager(context.Background(), tc, argsJSON(t, map[string]any{"operation": "save", "data": map[string]any{}}))
	require.NoError(t, err)
	worldID := saveResult.(map[string]any)["worldId"].(ids.WorldID)

	_, err = WorldManager(context.Background(), tc, argsJSON(t, map[string]any{
		"operation": "update",
		"worldId":   worldID,
		"updates":   []map[string]any{{"path": "__proto__.polluted", "value": true}},
	}))
	require.Error(t, err)
	require.Equal(t, errs.PathInvalid, errs.KindOf(err))
}

func TestWorldManager_Load_RejectsNonOwner(t *testing.T) {
	tc, _ := newTestContext(t)
	saveResult, err := WorldManager(context.Background(), tc, argsJSON(t, map[string]any{"operation": "save", "data": map[string]any{}}))
	require.NoError(t, err)
	worldID := saveResult.(map[string]any)["worldId"].(ids.WorldID)

	intruder := tc
	intruder.UserID = ids.NewUserID()
	_, err = WorldManager(context.Background(), intruder, argsJSON(t, map[string]any{"operation": "load", "worldId": worldID}))
	require.Error(t, err)
	require.Equal(t, errs.NotAuthorized, errs.KindOf(err))
}

func TestStoryManager_CreateSaveSegmentListRoundTrip(t *testing.T) {
	tc, _ := newTestContext(t)
	saveResult, err := WorldManager(context.Background(), tc, argsJSON(t, map[string]any{"operation": "save", "data": map[string]any{}}))
	require.NoError(t, err)
	worldID := saveResult.(map[string]any)["worldId"].(ids.WorldID)

	createResult, err := StoryManager(context.Background(), tc, argsJSON(t, map[string]any{
		"operation": "create", "worldId": worldID, "title": "Chapter One",
	}))
	require.NoError(t, err)
	storyID := createResult.(map[string]any)["storyId"].(ids.StoryID)

	_, err = StoryManager(context.Background(), tc, argsJSON(t, map[string]any{
		"operation": "save_segment", "storyId": storyID, "text": "It began with snow.",
	}))
	require.NoError(t, err)

	listResult, err := StoryManager(context.Background(), tc, argsJSON(t, map[string]any{
		"operation": "list", "worldId": worldID,
	}))
	require.NoError(t, err)
	stories := listResult.(map[string]any)["stories"].([]store.StoryListItem)
	require.Len(t, stories, 1)
	require.Equal(t, 1, stories[0].SegmentCount)
}

func TestImageGeneratorAssetManager_GenerateGetURLDelete(t *testing.T) {
	tc, _ := newTestContext(t)

	genResult, err := ImageGenerator(context.Background(), tc, argsJSON(t, map[string]any{"prompt": "a brass sextant"}))
	require.NoError(t, err)
	assetID := genResult.(map[string]any)["assetId"].(ids.AssetID)

	urlResult, err := AssetManager(context.Background(), tc, argsJSON(t, map[string]any{"operation": "get_url", "assetId": assetID}))
	require.NoError(t, err)
	require.NotEmpty(t, urlResult.(map[string]any)["url"])

	_, err = AssetManager(context.Background(), tc, argsJSON(t, map[string]any{"operation": "delete", "assetId": assetID}))
	require.NoError(t, err)

	_, err = AssetManager(context.Background(), tc, argsJSON(t, map[string]any{"operation": "get_url", "assetId": assetID}))
	require.Error(t, err)
	require.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestCanvasUI_GetCanvasInteractions_Roundtrip(t *testing.T) {
	tc, _ := newTestContext(t)

	_, err := CanvasUI(context.Background(), tc, argsJSON(t, map[string]any{
		"operation": "render", "componentId": "c1",
		"definition": map[string]any{"type": "Card"},
	}))
	require.NoError(t, err)

	tc.Canvas.Ingest(context.Background(), tc.UserID, canvas.Interaction{ComponentID: "c1", Kind: "click"})

	result, err := GetCanvasInteractions(context.Background(), tc, argsJSON(t, map[string]any{"max": 10}))
	require.NoError(t, err)
	interactions := result.(map[string]any)["interactions"].([]canvas.Interaction)
	require.Len(t, interactions, 1)
	require.Equal(t, "c1", interactions[0].ComponentID)

	result, err = GetCanvasInteractions(context.Background(), tc, argsJSON(t, map[string]any{"max": 10}))
	require.NoError(t, err)
	require.Empty(t, result.(map[string]any)["interactions"])
}
