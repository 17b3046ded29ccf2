package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/worldforge/core/errs"
	"github.com/worldforge/core/ids"
)

// MongoOptions configures MongoDB (spec §6's "persisted state" backend).
// Grounded on features/{memory,run,runlog}/mongo/clients/mongo.Options;
// collection names are split per entity instead of the teacher's single
// per-store collection, since this core persists six distinct entity
// shapes (worlds, stories, segments, assets, user preferences, agent
// mapping) rather than one
// append-only event log.
type MongoOptions struct {
	Client              *mongodriver.Client
	Database            string
	Timeout             time.Duration
	WorldsCollection     string
	StoriesCollection    string
	SegmentsCollection   string
	AssetsCollection     string
	PreferencesCollection string
	AgentMapCollection   string
}

const defaultMongoTimeout = 5 * time.Second

func (o MongoOptions) withDefaults() MongoOptions {
	if o.Timeout <= 0 {
		o.Timeout = defaultMongoTimeout
	}
	if o.WorldsCollection == "" {
		o.WorldsCollection = "worlds"
	}
	if o.StoriesCollection == "" {
		o.StoriesCollection = "stories"
	}
	if o.SegmentsCollection == "" {
		o.SegmentsCollection = "segments"
	}
	if o.AssetsCollection == "" {
		o.AssetsCollection = "assets"
	}
	if o.PreferencesCollection == "" {
		o.PreferencesCollection = "user_preferences"
	}
	if o.AgentMapCollection == "" {
		o.AgentMapCollection = "agent_mapping"
	}
	return o
}

// MongoDB implements DB on top of MongoDB, following the teacher's
// collection-wrapper-plus-timeout-context discipline.
type MongoDB struct {
	opts MongoOptions

	worlds      *mongodriver.Collection
	stories     *mongodriver.Collection
	segments    *mongodriver.Collection
	assets      *mongodriver.Collection
	preferences *mongodriver.Collection
	agentMap    *mongodriver.Collection

	// segmentOrderMu serializes SaveSegment's read-max-then-insert sequence
	// (one mutex shared by all stories), since Mongo has no atomic "append with computed order"
	// primitive without a transaction; spec §8's segment-ordering
	// monotonicity invariant depends on this.
	segmentOrderMu sync.Mutex
}

// NewMongoDB constructs a MongoDB-backed DB and ensures required indexes exist.
func NewMongoDB(ctx context.Context, opts MongoOptions) (*MongoDB, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("store: mongo client is required")
	}
	if opts.Database == "" {
		return nil, fmt.Errorf("store: database name is required")
	}
	opts = opts.withDefaults()
	db := opts.Client.Database(opts.Database)

	m := &MongoDB{
		opts:        opts,
		worlds:      db.Collection(opts.WorldsCollection),
		stories:     db.Collection(opts.StoriesCollection),
		segments:    db.Collection(opts.SegmentsCollection),
		assets:      db.Collection(opts.AssetsCollection),
		preferences: db.Collection(opts.PreferencesCollection),
		agentMap:    db.Collection(opts.AgentMapCollection),
	}
	if err := m.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MongoDB) ensureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	_, err := m.segments.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "story_id", Value: 1}, {Key: "order", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("store: create segments index: %w", err)
	}
	_, err = m.agentMap.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("store: create agent mapping index: %w", err)
	}
	return nil
}

func (m *MongoDB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.opts.Timeout)
}

type worldDoc struct {
	WorldID     string         `bson:"_id"`
	OwnerUserID string         `bson:"owner_user_id"`
	Foundation  map[string]any `bson:"foundation"`
	CreatedAt   time.Time      `bson:"created_at"`
	UpdatedAt   time.Time      `bson:"updated_at"`
}

// worldToDoc and worldFromDoc are pure, so the bson-mapping they implement
// can be property-tested without a live Mongo connection (see
// mongo_conversion_test.go).
func worldToDoc(world World) worldDoc {
	return worldDoc{
		WorldID:     string(world.WorldID),
		OwnerUserID: string(world.OwnerUserID),
		Foundation:  world.Foundation,
		CreatedAt:   world.CreatedAt,
		UpdatedAt:   world.UpdatedAt,
	}
}

func worldFromDoc(doc worldDoc) World {
	return World{
		WorldID:     ids.WorldID(doc.WorldID),
		OwnerUserID: ids.UserID(doc.OwnerUserID),
		Foundation:  doc.Foundation,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}

func (m *MongoDB) SaveWorld(ctx context.Context, world World) (World, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	if world.WorldID == "" {
		world.WorldID = ids.NewWorldID()
		world.CreatedAt = time.Now().UTC()
	}
	world.UpdatedAt = time.Now().UTC()

	doc := worldToDoc(world)
	_, err := m.worlds.ReplaceOne(ctx, bson.M{"_id": doc.WorldID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return World{}, errs.Wrap(errs.Internal, "save world", err)
	}
	return world, nil
}

func (m *MongoDB) LoadWorld(ctx context.Context, worldID ids.WorldID) (World, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var doc worldDoc
	err := m.worlds.FindOne(ctx, bson.M{"_id": string(worldID)}).Decode(&doc)
	if err == mongodriver.ErrNoDocuments {
		return World{}, errs.Newf(errs.NotFound, "world %s not found", worldID)
	}
	if err != nil {
		return World{}, errs.Wrap(errs.Internal, "load world", err)
	}
	return worldFromDoc(doc), nil
}

func (m *MongoDB) IsWorldOwner(ctx context.Context, userID ids.UserID, worldID ids.WorldID) (bool, error) {
	world, err := m.LoadWorld(ctx, worldID)
	if errs.Is(err, errs.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return world.OwnerUserID == userID, nil
}

func (m *MongoDB) ListWorlds(ctx context.Context, userID ids.UserID) ([]World, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	cur, err := m.worlds.Find(ctx, bson.M{"owner_user_id": string(userID)})
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "list worlds", err)
	}
	defer cur.Close(ctx)

	var out []World
	for cur.Next(ctx) {
		var doc worldDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, errs.Wrap(errs.Internal, "decode world", err)
		}
		out = append(out, worldFromDoc(doc))
	}
	return out, cur.Err()
}

type storyDoc struct {
	StoryID   string    `bson:"_id"`
	WorldID   string    `bson:"world_id"`
	Title     string    `bson:"title"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type segmentDoc struct {
	SegmentID string    `bson:"_id"`
	StoryID   string    `bson:"story_id"`
	Order     int       `bson:"order"`
	Text      string    `bson:"text"`
	CreatedAt time.Time `bson:"created_at"`
}

func (m *MongoDB) CreateStory(ctx context.Context, worldID ids.WorldID, title string) (Story, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	doc := storyDoc{StoryID: string(ids.NewStoryID()), WorldID: string(worldID), Title: title, CreatedAt: now, UpdatedAt: now}
	if _, err := m.stories.InsertOne(ctx, doc); err != nil {
		return Story{}, errs.Wrap(errs.Internal, "create story", err)
	}
	return Story{StoryID: ids.StoryID(doc.StoryID), WorldID: worldID, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

func (m *MongoDB) SaveSegment(ctx context.Context, storyID ids.StoryID, text string) (Segment, error) {
	m.segmentOrderMu.Lock()
	defer m.segmentOrderMu.Unlock()

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var latest segmentDoc
	err := m.segments.FindOne(ctx, bson.M{"story_id": string(storyID)}, options.FindOne().SetSort(bson.D{{Key: "order", Value: -1}})).Decode(&latest)
	nextOrder := 0
	if err == nil {
		nextOrder = latest.Order + 1
	} else if err != mongodriver.ErrNoDocuments {
		return Segment{}, errs.Wrap(errs.Internal, "find latest segment", err)
	}

	doc := segmentDoc{SegmentID: string(ids.NewSegmentID()), StoryID: string(storyID), Order: nextOrder, Text: text, CreatedAt: time.Now().UTC()}
	if _, err := m.segments.InsertOne(ctx, doc); err != nil {
		return Segment{}, errs.Wrap(errs.Internal, "insert segment", err)
	}
	_, err = m.stories.UpdateOne(ctx, bson.M{"_id": string(storyID)}, bson.M{"$set": bson.M{"updated_at": time.Now().UTC()}})
	if err != nil {
		return Segment{}, errs.Wrap(errs.Internal, "bump story updated_at", err)
	}
	return Segment{SegmentID: ids.SegmentID(doc.SegmentID), StoryID: storyID, Order: doc.Order, Text: text, CreatedAt: doc.CreatedAt}, nil
}

func (m *MongoDB) LoadStory(ctx context.Context, storyID ids.StoryID) (Story, []Segment, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var sdoc storyDoc
	if err := m.stories.FindOne(ctx, bson.M{"_id": string(storyID)}).Decode(&sdoc); err != nil {
		if err == mongodriver.ErrNoDocuments {
			return Story{}, nil, errs.Newf(errs.NotFound, "story %s not found", storyID)
		}
		return Story{}, nil, errs.Wrap(errs.Internal, "load story", err)
	}

	cur, err := m.segments.Find(ctx, bson.M{"story_id": string(storyID)}, options.Find().SetSort(bson.D{{Key: "order", Value: 1}}))
	if err != nil {
		return Story{}, nil, errs.Wrap(errs.Internal, "load segments", err)
	}
	defer cur.Close(ctx)

	var segs []Segment
	for cur.Next(ctx) {
		var doc segmentDoc
		if err := cur.Decode(&doc); err != nil {
			return Story{}, nil, errs.Wrap(errs.Internal, "decode segment", err)
		}
		segs = append(segs, Segment{SegmentID: ids.SegmentID(doc.SegmentID), StoryID: storyID, Order: doc.Order, Text: doc.Text, CreatedAt: doc.CreatedAt})
	}
	story := Story{StoryID: ids.StoryID(sdoc.StoryID), WorldID: ids.WorldID(sdoc.WorldID), Title: sdoc.Title, CreatedAt: sdoc.CreatedAt, UpdatedAt: sdoc.UpdatedAt}
	return story, segs, cur.Err()
}

func (m *MongoDB) ListStories(ctx context.Context, worldID ids.WorldID) ([]StoryListItem, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	cur, err := m.stories.Find(ctx, bson.M{"world_id": string(worldID)})
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "list stories", err)
	}
	defer cur.Close(ctx)

	var out []StoryListItem
	for cur.Next(ctx) {
		var doc storyDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, errs.Wrap(errs.Internal, "decode story", err)
		}
		count, err := m.segments.CountDocuments(ctx, bson.M{"story_id": doc.StoryID})
		if err != nil {
			return nil, errs.Wrap(errs.Internal, "count segments", err)
		}
		out = append(out, StoryListItem{StoryID: ids.StoryID(doc.StoryID), Title: doc.Title, SegmentCount: int(count), UpdatedAt: doc.UpdatedAt})
	}
	return out, cur.Err()
}

func (m *MongoDB) StoryWorldID(ctx context.Context, storyID ids.StoryID) (ids.WorldID, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var doc storyDoc
	if err := m.stories.FindOne(ctx, bson.M{"_id": string(storyID)}).Decode(&doc); err != nil {
		if err == mongodriver.ErrNoDocuments {
			return "", errs.Newf(errs.NotFound, "story %s not found", storyID)
		}
		return "", errs.Wrap(errs.Internal, "load story world id", err)
	}
	return ids.WorldID(doc.WorldID), nil
}

type preferenceDoc struct {
	UserID string `bson:"user_id"`
	Key    string `bson:"key"`
	Value  string `bson:"value"`
}

func (m *MongoDB) GetUserPreference(ctx context.Context, userID ids.UserID, key string) (string, bool, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var doc preferenceDoc
	err := m.preferences.FindOne(ctx, bson.M{"user_id": string(userID), "key": key}).Decode(&doc)
	if err == mongodriver.ErrNoDocuments {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.Wrap(errs.Internal, "get user preference", err)
	}
	return doc.Value, true, nil
}

func (m *MongoDB) SetUserPreference(ctx context.Context, userID ids.UserID, key, value string) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	_, err := m.preferences.ReplaceOne(ctx,
		bson.M{"user_id": string(userID), "key": key},
		preferenceDoc{UserID: string(userID), Key: key, Value: value},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return errs.Wrap(errs.Internal, "set user preference", err)
	}
	return nil
}

type assetDoc struct {
	AssetID     string    `bson:"_id"`
	OwnerUserID string    `bson:"owner_user_id"`
	Mime        string    `bson:"mime"`
	Size        int64     `bson:"size"`
	BlobKey     string    `bson:"blob_key"`
	CreatedAt   time.Time `bson:"created_at"`
}

func assetToDoc(asset Asset) assetDoc {
	return assetDoc{
		AssetID:     string(asset.AssetID),
		OwnerUserID: string(asset.OwnerUserID),
		Mime:        asset.Mime,
		Size:        asset.Size,
		BlobKey:     asset.BlobKey,
		CreatedAt:   asset.CreatedAt,
	}
}

func assetFromDoc(doc assetDoc) Asset {
	return Asset{
		AssetID:     ids.AssetID(doc.AssetID),
		OwnerUserID: ids.UserID(doc.OwnerUserID),
		Mime:        doc.Mime,
		Size:        doc.Size,
		BlobKey:     doc.BlobKey,
		CreatedAt:   doc.CreatedAt,
	}
}

func (m *MongoDB) CreateAsset(ctx context.Context, asset Asset) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now().UTC()
	}
	_, err := m.assets.InsertOne(ctx, assetToDoc(asset))
	if err != nil {
		return errs.Wrap(errs.Internal, "create asset", err)
	}
	return nil
}

func (m *MongoDB) GetAsset(ctx context.Context, assetID ids.AssetID) (Asset, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var doc assetDoc
	err := m.assets.FindOne(ctx, bson.M{"_id": string(assetID)}).Decode(&doc)
	if err == mongodriver.ErrNoDocuments {
		return Asset{}, errs.Newf(errs.NotFound, "asset %s not found", assetID)
	}
	if err != nil {
		return Asset{}, errs.Wrap(errs.Internal, "get asset", err)
	}
	return assetFromDoc(doc), nil
}

func (m *MongoDB) DeleteAsset(ctx context.Context, assetID ids.AssetID) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	res, err := m.assets.DeleteOne(ctx, bson.M{"_id": string(assetID)})
	if err != nil {
		return errs.Wrap(errs.Internal, "delete asset", err)
	}
	if res.DeletedCount == 0 {
		return errs.Newf(errs.NotFound, "asset %s not found", assetID)
	}
	return nil
}

type agentMappingDoc struct {
	Key     string `bson:"key"`
	AgentID string `bson:"agent_id"`
}

func (m *MongoDB) LookupAgentMapping(ctx context.Context, key string) (ids.AgentID, bool, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var doc agentMappingDoc
	err := m.agentMap.FindOne(ctx, bson.M{"key": key}).Decode(&doc)
	if err == mongodriver.ErrNoDocuments {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.Wrap(errs.Internal, "lookup agent mapping", err)
	}
	return ids.AgentID(doc.AgentID), true, nil
}

func (m *MongoDB) StoreAgentMapping(ctx context.Context, key string, agentID ids.AgentID) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	_, err := m.agentMap.UpdateOne(ctx,
		bson.M{"key": key},
		bson.M{"$setOnInsert": agentMappingDoc{Key: key, AgentID: string(agentID)}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return errs.Wrap(errs.Internal, "store agent mapping", err)
	}
	return nil
}

var _ DB = (*MongoDB)(nil)
