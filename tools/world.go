package tools

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/worldforge/core/errs"
	"github.com/worldforge/core/ids"
	"github.com/worldforge/core/store"
)

// TextProvider generates draft world concepts from a free-form prompt. It is
// the text-generation analogue of store.ImageProvider, used only by
// world_draft_generator.
type TextProvider interface {
	GenerateDrafts(ctx context.Context, prompt, tone string, count int) ([]WorldDraft, error)
}

// WorldDraft is one candidate world concept (spec §4.3's
// `{title, premise, pillars}`).
type WorldDraft struct {
	Title   string   `json:"title"`
	Premise string   `json:"premise"`
	Pillars []string `json:"pillars"`
}

const (
	worldDraftGeneratorSchema = `{
		"type": "object",
		"properties": {
			"prompt": {"type": "string", "minLength": 1},
			"count": {"type": "integer", "minimum": 3, "maximum": 4},
			"tone": {"type": "string"}
		},
		"required": ["prompt"],
		"additionalProperties": false
	}`

	listWorldsSchema = `{"type": "object", "additionalProperties": false}`

	userPreferencesSchema = `{
		"type": "object",
		"properties": {
			"operation": {"type": "string", "enum": ["get", "set"]},
			"key": {"type": "string"},
			"value": {"type": "string"}
		},
		"required": ["operation", "key"],
		"additionalProperties": false
	}`

	worldManagerSchema = `{
		"type": "object",
		"properties": {
			"operation": {"type": "string", "enum": ["save", "load", "update"]},
			"worldId": {"type": "string"},
			"data": {"type": "object"},
			"updates": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"path": {"type": "string", "minLength": 1},
						"value": {}
					},
					"required": ["path", "value"]
				}
			}
		},
		"required": ["operation"],
		"additionalProperties": false
	}`
)

// NewWorldDraftGenerator builds the world_draft_generator Executor backed
// by the given TextProvider (spec §4.3).
func NewWorldDraftGenerator(provider TextProvider) Executor {
	return func(ctx context.Context, tc Context, raw json.RawMessage) (any, error) {
		var args struct {
			Prompt string `json:"prompt"`
			Count  int    `json:"count"`
			Tone   string `json:"tone"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, errs.Wrap(errs.ValidationError, "world_draft_generator: malformed arguments", err)
		}
		if strings.TrimSpace(args.Prompt) == "" {
			return nil, errs.New(errs.ValidationError, "world_draft_generator: prompt must not be empty")
		}
		count := args.Count
		if count == 0 {
			count = 3
		}
		if count < 3 {
			count = 3
		}
		if count > 4 {
			count = 4
		}

		drafts, err := provider.GenerateDrafts(ctx, args.Prompt, args.Tone, count)
		if err != nil {
			return nil, errs.Wrap(errs.ProviderUnavailable, "world_draft_generator: draft generation failed", err)
		}
		return map[string]any{"drafts": drafts}, nil
	}
}

// ListWorlds implements list_worlds (spec §4.3).
func ListWorlds(ctx context.Context, tc Context, _ json.RawMessage) (any, error) {
	worlds, err := tc.DB.ListWorlds(ctx, tc.UserID)
	if err != nil {
		return nil, err
	}
	type item struct {
		WorldID   ids.WorldID `json:"worldId"`
		Title     string      `json:"title"`
		UpdatedAt string      `json:"updatedAt"`
	}
	out := make([]item, 0, len(worlds))
	for _, w := range worlds {
		title, _ := w.Foundation["title"].(string)
		out = append(out, item{WorldID: w.WorldID, Title: title, UpdatedAt: w.UpdatedAt.Format(timeLayout)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	return map[string]any{"worlds": out}, nil
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// UserPreferences implements user_preferences (spec §4.3): scoped
// get/set of a per-user preference key.
func UserPreferences(ctx context.Context, tc Context, raw json.RawMessage) (any, error) {
	var args struct {
		Operation string `json:"operation"`
		Key       string `json:"key"`
		Value     string `json:"value"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, errs.Wrap(errs.ValidationError, "user_preferences: malformed arguments", err)
	}
	switch args.Operation {
	case "get":
		value, ok, err := tc.DB.GetUserPreference(ctx, tc.UserID, args.Key)
		if err != nil {
			return nil, err
		}
		return map[string]any{"key": args.Key, "value": value, "found": ok}, nil
	case "set":
		if err := tc.DB.SetUserPreference(ctx, tc.UserID, args.Key, args.Value); err != nil {
			return nil, err
		}
		return map[string]any{"key": args.Key, "value": args.Value}, nil
	default:
		return nil, errs.Newf(errs.ValidationError, "user_preferences: unknown operation %q", args.Operation)
	}
}

// maxPathSegments bounds dot-notation depth on world_manager's update
// operation, a defensive cap against pathologically deep update requests.
const maxPathSegments = 32

// WorldManager implements world_manager's save/load/update operations
// (spec §4.3).
func WorldManager(ctx context.Context, tc Context, raw json.RawMessage) (any, error) {
	var args struct {
		Operation string         `json:"operation"`
		WorldID   ids.WorldID    `json:"worldId"`
		Data      map[string]any `json:"data"`
		Updates   []struct {
			Path  string `json:"path"`
			Value any    `json:"value"`
		} `json:"updates"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, errs.Wrap(errs.ValidationError, "world_manager: malformed arguments", err)
	}

	switch args.Operation {
	case "save":
		if args.WorldID != "" {
			if err := requireOwner(ctx, tc, args.WorldID); err != nil {
				return nil, err
			}
		}
		world := store.World{WorldID: args.WorldID, OwnerUserID: tc.UserID, Foundation: deepCloneMap(args.Data)}
		saved, err := tc.DB.SaveWorld(ctx, world)
		if err != nil {
			return nil, err
		}
		return map[string]any{"worldId": saved.WorldID}, nil

	case "load":
		if err := requireOwner(ctx, tc, args.WorldID); err != nil {
			return nil, err
		}
		world, err := tc.DB.LoadWorld(ctx, args.WorldID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"foundation": world.Foundation}, nil

	case "update":
		if err := requireOwner(ctx, tc, args.WorldID); err != nil {
			return nil, err
		}
		world, err := tc.DB.LoadWorld(ctx, args.WorldID)
		if err != nil {
			return nil, err
		}
		foundation := deepCloneMap(world.Foundation)
		if foundation == nil {
			foundation = make(map[string]any)
		}
		for _, u := range args.Updates {
			if err := applyPath(foundation, u.Path, u.Value); err != nil {
				return nil, err
			}
		}
		world.Foundation = foundation
		saved, err := tc.DB.SaveWorld(ctx, world)
		if err != nil {
			return nil, err
		}
		return map[string]any{"worldId": saved.WorldID, "foundation": saved.Foundation}, nil

	default:
		return nil, errs.Newf(errs.ValidationError, "world_manager: unknown operation %q", args.Operation)
	}
}

func requireOwner(ctx context.Context, tc Context, worldID ids.WorldID) error {
	if worldID == "" {
		return errs.New(errs.ValidationError, "worldId is required")
	}
	ok, err := tc.DB.IsWorldOwner(ctx, tc.UserID, worldID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Newf(errs.NotAuthorized, "user is not the owner of world %s", worldID)
	}
	return nil
}

// blockedPathSegments guards against prototype-pollution-style path
// segments when auto-vivifying map nodes (spec §9's REDESIGN FLAGS note on
// treating the foundation tree as untrusted user input).
var blockedPathSegments = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// applyPath writes value into foundation at the dot-notation path,
// auto-creating intermediate map nodes as needed. Rejects paths containing
// blocked segments or exceeding maxPathSegments with PathInvalid.
func applyPath(foundation map[string]any, path string, value any) error {
	if path == "" {
		return errs.New(errs.PathInvalid, "update path must not be empty")
	}
	segments := strings.Split(path, ".")
	if len(segments) == 0 || len(segments) > maxPathSegments {
		return errs.Newf(errs.PathInvalid, "update path %q has an invalid number of segments", path)
	}
	node := foundation
	for i, seg := range segments {
		if seg == "" || blockedPathSegments[seg] {
			return errs.Newf(errs.PathInvalid, "update path %q contains an invalid segment %q", path, seg)
		}
		if i == len(segments)-1 {
			node[seg] = value
			return nil
		}
		next, ok := node[seg]
		if !ok {
			created := make(map[string]any)
			node[seg] = created
			node = created
			continue
		}
		nextMap, ok := next.(map[string]any)
		if !ok {
			return errs.Newf(errs.PathInvalid, "update path %q traverses a non-object value at %q", path, seg)
		}
		node = nextMap
	}
	return nil
}

func deepCloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch vv := v.(type) {
		case map[string]any:
			out[k] = deepCloneMap(vv)
		case []any:
			cloned := make([]any, len(vv))
			for i, elem := range vv {
				if nested, ok := elem.(map[string]any); ok {
					cloned[i] = deepCloneMap(nested)
				} else {
					cloned[i] = elem
				}
			}
			out[k] = cloned
		default:
			out[k] = v
		}
	}
	return out
}
