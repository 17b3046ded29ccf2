package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/worldforge/core/errs"
	"github.com/worldforge/core/ids"
	"github.com/worldforge/core/store"
)

const (
	imageGeneratorSchema = `{
		"type": "object",
		"properties": {
			"prompt": {"type": "string", "minLength": 1},
			"provider": {"type": "string", "enum": ["gemini", "openai"]},
			"size": {"type": "string"},
			"mime": {"type": "string"}
		},
		"required": ["prompt"],
		"additionalProperties": false
	}`

	assetManagerSchema = `{
		"type": "object",
		"properties": {
			"operation": {"type": "string", "enum": ["get_url", "delete"]},
			"assetId": {"type": "string", "minLength": 1}
		},
		"required": ["operation", "assetId"],
		"additionalProperties": false
	}`
)

// ImageGenerator implements image_generator (spec §4.3): generates image
// bytes via the selected ImageProvider, stores them blob-side under a
// freshly minted key, and records an Asset row.
func ImageGenerator(ctx context.Context, tc Context, raw json.RawMessage) (any, error) {
	var args struct {
		Prompt   string `json:"prompt"`
		Provider string `json:"provider"`
		Size     string `json:"size"`
		Mime     string `json:"mime"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, errs.Wrap(errs.ValidationError, "image_generator: malformed arguments", err)
	}
	if args.Prompt == "" {
		return nil, errs.New(errs.ValidationError, "image_generator: prompt must not be empty")
	}

	provider, err := tc.Images.Select(args.Provider)
	if err != nil {
		return nil, err
	}

	data, resolvedMime, err := provider.Generate(ctx, args.Prompt, args.Size, args.Mime)
	if err != nil {
		return nil, errs.Wrap(errs.ProviderUnavailable, "image_generator: generation failed", err)
	}

	assetID := ids.NewAssetID()
	blobKey := fmt.Sprintf("assets/%s/%s", tc.UserID, assetID)
	if err := tc.Blob.Put(ctx, blobKey, data, resolvedMime); err != nil {
		return nil, err
	}

	asset := store.Asset{
		AssetID:     assetID,
		OwnerUserID: tc.UserID,
		Mime:        resolvedMime,
		Size:        int64(len(data)),
		BlobKey:     blobKey,
		CreatedAt:   tc.now(),
	}
	if err := tc.DB.CreateAsset(ctx, asset); err != nil {
		return nil, err
	}
	return map[string]any{"assetId": assetID}, nil
}

// AssetManager implements asset_manager's get_url/delete operations
// (spec §4.3). Ownership is verified against the asset's OwnerUserID.
func AssetManager(ctx context.Context, tc Context, raw json.RawMessage) (any, error) {
	var args struct {
		Operation string      `json:"operation"`
		AssetID   ids.AssetID `json:"assetId"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, errs.Wrap(errs.ValidationError, "asset_manager: malformed arguments", err)
	}

	asset, err := tc.DB.GetAsset(ctx, args.AssetID)
	if err != nil {
		return nil, err
	}
	if asset.OwnerUserID != tc.UserID {
		return nil, errs.Newf(errs.NotAuthorized, "user is not the owner of asset %s", args.AssetID)
	}

	switch args.Operation {
	case "get_url":
		url, err := tc.Blob.URL(ctx, asset.BlobKey)
		if err != nil {
			return nil, err
		}
		return map[string]any{"url": url}, nil

	case "delete":
		if err := tc.DB.DeleteAsset(ctx, args.AssetID); err != nil {
			return nil, err
		}
		// Best-effort: blob removal failure does not fail the tool call, the
		// DB row (the authoritative record) is already gone.
		_ = tc.Blob.Delete(ctx, asset.BlobKey)
		return map[string]any{"deleted": true}, nil

	default:
		return nil, errs.Newf(errs.ValidationError, "asset_manager: unknown operation %q", args.Operation)
	}
}
