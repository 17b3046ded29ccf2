package store

import (
	"time"

	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/worldforge/core/ids"
)

// These cover the bson-mapping logic MongoDB relies on without needing a
// live Mongo connection (see DESIGN.md for why the teacher's
// testcontainers-backed integration style isn't replicated here). The
// wire-level plumbing (ReplaceOne/FindOne/InsertOne) is the same thin
// collection-wrapper shape already exercised by every other method in this
// file; what actually varies per entity, and is worth property-testing, is
// whether the doc conversion round-trips a domain value faithfully.

func TestWorldDocRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("worldFromDoc(worldToDoc(w)) preserves identity fields", prop.ForAll(
		func(worldID, ownerID, name string) bool {
			w := World{
				WorldID:     ids.WorldID(worldID),
				OwnerUserID: ids.UserID(ownerID),
				Foundation:  map[string]any{"name": name},
				CreatedAt:   time.Unix(0, 0).UTC(),
				UpdatedAt:   time.Unix(0, 0).UTC(),
			}
			got := worldFromDoc(worldToDoc(w))
			return got.WorldID == w.WorldID &&
				got.OwnerUserID == w.OwnerUserID &&
				got.Foundation["name"] == name
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestAssetDocRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("assetFromDoc(assetToDoc(a)) preserves every field", prop.ForAll(
		func(assetID, ownerID, mime, blobKey string, size int64) bool {
			a := Asset{
				AssetID:     ids.AssetID(assetID),
				OwnerUserID: ids.UserID(ownerID),
				Mime:        mime,
				Size:        size,
				BlobKey:     blobKey,
				CreatedAt:   time.Unix(0, 0).UTC(),
			}
			got := assetFromDoc(assetToDoc(a))
			return got == a
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.Int64Range(0, 1<<40),
	))

	properties.TestingRun(t)
}
