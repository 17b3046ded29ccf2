package tools

import (
	"context"
	"encoding/json"

	canvaspkg "github.com/worldforge/core/canvas"
	"github.com/worldforge/core/errs"
)

const (
	canvasUISchema = `{
		"type": "object",
		"properties": {
			"operation": {"type": "string", "enum": ["render", "update", "remove", "layout"]},
			"componentId": {"type": "string", "minLength": 1},
			"definition": {"type": "object"}
		},
		"required": ["operation", "componentId"],
		"additionalProperties": false
	}`

	getCanvasInteractionsSchema = `{
		"type": "object",
		"properties": {
			"since": {"type": "integer"},
			"max": {"type": "integer", "minimum": 1}
		},
		"additionalProperties": false
	}`

	sendSuggestionSchema = `{
		"type": "object",
		"properties": {
			"title": {"type": "string", "minLength": 1},
			"body": {"type": "string"},
			"actionId": {"type": "string"}
		},
		"required": ["title", "body"],
		"additionalProperties": false
	}`
)

const defaultDrainMax = 50

var canvasOpKindByOperation = map[string]canvaspkg.OpKind{
	"render": canvaspkg.OpRender,
	"update": canvaspkg.OpUpdate,
	"remove": canvaspkg.OpRemove,
	"layout": canvaspkg.OpLayout,
}

// CanvasUI implements canvas_ui (spec §4.3): enqueues a CanvasOp onto the
// user's outbound queue and returns immediately.
func CanvasUI(ctx context.Context, tc Context, raw json.RawMessage) (any, error) {
	var args struct {
		Operation   string         `json:"operation"`
		ComponentID string         `json:"componentId"`
		Definition  map[string]any `json:"definition"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, errs.Wrap(errs.ValidationError, "canvas_ui: malformed arguments", err)
	}
	kind, ok := canvasOpKindByOperation[args.Operation]
	if !ok {
		return nil, errs.Newf(errs.ValidationError, "canvas_ui: unknown operation %q", args.Operation)
	}

	tc.Canvas.Publish(ctx, tc.UserID, canvaspkg.Op{
		Kind:        kind,
		ComponentID: args.ComponentID,
		Definition:  args.Definition,
	})
	return map[string]any{"enqueued": true}, nil
}

// GetCanvasInteractions implements get_canvas_interactions (spec §4.3):
// dequeues up to max Interaction items in FIFO order, never blocking.
func GetCanvasInteractions(ctx context.Context, tc Context, raw json.RawMessage) (any, error) {
	var args struct {
		Since int64 `json:"since"`
		Max   int   `json:"max"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, errs.Wrap(errs.ValidationError, "get_canvas_interactions: malformed arguments", err)
	}
	max := args.Max
	if max <= 0 {
		max = defaultDrainMax
	}

	interactions := tc.Canvas.Drain(tc.UserID, max)
	if args.Since > 0 {
		interactions = filterSince(interactions, args.Since)
	}
	if interactions == nil {
		interactions = []canvaspkg.Interaction{}
	}
	return map[string]any{"interactions": interactions}, nil
}

func filterSince(interactions []canvaspkg.Interaction, sinceUnixMilli int64) []canvaspkg.Interaction {
	out := interactions[:0:0]
	for _, i := range interactions {
		if i.At.UnixMilli() >= sinceUnixMilli {
			out = append(out, i)
		}
	}
	return out
}

// SendSuggestion implements send_suggestion (spec §4.3): enqueues a
// lightweight suggestion envelope alongside the component tree.
func SendSuggestion(ctx context.Context, tc Context, raw json.RawMessage) (any, error) {
	var args struct {
		Title    string `json:"title"`
		Body     string `json:"body"`
		ActionID string `json:"actionId"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, errs.Wrap(errs.ValidationError, "send_suggestion: malformed arguments", err)
	}
	if args.Title == "" {
		return nil, errs.New(errs.ValidationError, "send_suggestion: title must not be empty")
	}

	tc.Canvas.PublishSuggestion(ctx, tc.UserID, canvaspkg.Suggestion{
		Title:    args.Title,
		Body:     args.Body,
		ActionID: args.ActionID,
	})
	return map[string]any{"enqueued": true}, nil
}
