package tools

import (
	"github.com/worldforge/core/config"
	"github.com/worldforge/core/router"
)

// NewDefaultRegistry builds the Registry named by spec §4.3's kind-scoped
// tool sets: User-kind (world_draft_generator, list_worlds,
// user_preferences), World-kind (world_manager, story_manager), and
// Experience-kind (image_generator, asset_manager, canvas_ui,
// get_canvas_interactions, send_suggestion). Every tool is registered with
// cfg.ToolTimeout as its per-invocation deadline, except image_generator,
// which routinely runs long and uses cfg.ImageToolTimeout instead
// (SPEC_FULL.md's per-tool timeout enforcement).
func NewDefaultRegistry(draftGenerator TextProvider, cfg config.Config) (*Registry, error) {
	r := NewRegistry()

	if err := r.RegisterWithTimeout("world_draft_generator", router.User,
		"Propose 3-4 candidate world concepts from a free-form prompt.",
		worldDraftGeneratorSchema, cfg.ToolTimeout, NewWorldDraftGenerator(draftGenerator)); err != nil {
		return nil, err
	}
	if err := r.RegisterWithTimeout("list_worlds", router.User,
		"List the worlds owned by the current user.",
		listWorldsSchema, cfg.ToolTimeout, ListWorlds); err != nil {
		return nil, err
	}
	if err := r.RegisterWithTimeout("user_preferences", router.User,
		"Read or write a user-level preference.",
		userPreferencesSchema, cfg.ToolTimeout, UserPreferences); err != nil {
		return nil, err
	}

	if err := r.RegisterWithTimeout("world_manager", router.World,
		"Save, load, or update a world's foundation document.",
		worldManagerSchema, cfg.ToolTimeout, WorldManager); err != nil {
		return nil, err
	}
	if err := r.RegisterWithTimeout("story_manager", router.World,
		"Create stories, append segments, and load or list story state.",
		storyManagerSchema, cfg.ToolTimeout, StoryManager); err != nil {
		return nil, err
	}

	if err := r.RegisterWithTimeout("image_generator", router.Experience,
		"Generate an image from a prompt and store it as an asset.",
		imageGeneratorSchema, cfg.ImageToolTimeout, ImageGenerator); err != nil {
		return nil, err
	}
	if err := r.RegisterWithTimeout("asset_manager", router.Experience,
		"Retrieve a download URL for an asset, or delete it.",
		assetManagerSchema, cfg.ToolTimeout, AssetManager); err != nil {
		return nil, err
	}
	if err := r.RegisterWithTimeout("canvas_ui", router.Experience,
		"Render, update, remove, or re-layout a canvas component.",
		canvasUISchema, cfg.ToolTimeout, CanvasUI); err != nil {
		return nil, err
	}
	if err := r.RegisterWithTimeout("get_canvas_interactions", router.Experience,
		"Dequeue pending browser interaction events.",
		getCanvasInteractionsSchema, cfg.ToolTimeout, GetCanvasInteractions); err != nil {
		return nil, err
	}
	if err := r.RegisterWithTimeout("send_suggestion", router.Experience,
		"Send a lightweight suggestion envelope to the browser.",
		sendSuggestionSchema, cfg.ToolTimeout, SendSuggestion); err != nil {
		return nil, err
	}

	return r, nil
}
