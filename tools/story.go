package tools

import (
	"context"
	"encoding/json"

	"github.com/worldforge/core/errs"
	"github.com/worldforge/core/ids"
)

const storyManagerSchema = `{
	"type": "object",
	"properties": {
		"operation": {"type": "string", "enum": ["create", "save_segment", "load", "list"]},
		"worldId": {"type": "string"},
		"storyId": {"type": "string"},
		"title": {"type": "string"},
		"text": {"type": "string"}
	},
	"required": ["operation"],
	"additionalProperties": false
}`

// StoryManager implements story_manager's create/save_segment/load/list
// operations (spec §4.3).
func StoryManager(ctx context.Context, tc Context, raw json.RawMessage) (any, error) {
	var args struct {
		Operation string      `json:"operation"`
		WorldID   ids.WorldID `json:"worldId"`
		StoryID   ids.StoryID `json:"storyId"`
		Title     string      `json:"title"`
		Text      string      `json:"text"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, errs.Wrap(errs.ValidationError, "story_manager: malformed arguments", err)
	}

	switch args.Operation {
	case "create":
		if err := requireOwner(ctx, tc, args.WorldID); err != nil {
			return nil, err
		}
		story, err := tc.DB.CreateStory(ctx, args.WorldID, args.Title)
		if err != nil {
			return nil, err
		}
		return map[string]any{"storyId": story.StoryID}, nil

	case "save_segment":
		if err := requireStoryOwner(ctx, tc, args.StoryID); err != nil {
			return nil, err
		}
		seg, err := tc.DB.SaveSegment(ctx, args.StoryID, args.Text)
		if err != nil {
			return nil, err
		}
		return map[string]any{"segmentId": seg.SegmentID, "order": seg.Order}, nil

	case "load":
		if err := requireStoryOwner(ctx, tc, args.StoryID); err != nil {
			return nil, err
		}
		story, segments, err := tc.DB.LoadStory(ctx, args.StoryID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"story": story, "segments": segments}, nil

	case "list":
		if err := requireOwner(ctx, tc, args.WorldID); err != nil {
			return nil, err
		}
		stories, err := tc.DB.ListStories(ctx, args.WorldID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"stories": stories}, nil

	default:
		return nil, errs.Newf(errs.ValidationError, "story_manager: unknown operation %q", args.Operation)
	}
}

func requireStoryOwner(ctx context.Context, tc Context, storyID ids.StoryID) error {
	if storyID == "" {
		return errs.New(errs.ValidationError, "storyId is required")
	}
	worldID, err := tc.DB.StoryWorldID(ctx, storyID)
	if err != nil {
		return err
	}
	return requireOwner(ctx, tc, worldID)
}
