package trajectory

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
)

// MongoSinkOptions configures MongoSink.
type MongoSinkOptions struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

func (o MongoSinkOptions) withDefaults() MongoSinkOptions {
	if o.Collection == "" {
		o.Collection = "trajectories"
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	return o
}

// MongoSink persists Trajectory records to MongoDB, grounded on
// features/runlog/mongo/clients/mongo/client.go's collection-wrapper
// pattern: a thin struct holding a *mongo.Collection plus a per-call
// timeout, with a bson-tagged document shape mirroring the domain type.
type MongoSink struct {
	collection *mongodriver.Collection
	timeout    time.Duration
}

// NewMongoSink constructs a MongoSink and ensures its index exists.
func NewMongoSink(ctx context.Context, opts MongoSinkOptions) (*MongoSink, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("trajectory: mongo client is required")
	}
	if opts.Database == "" {
		return nil, fmt.Errorf("trajectory: database name is required")
	}
	opts = opts.withDefaults()
	collection := opts.Client.Database(opts.Database).Collection(opts.Collection)

	indexCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	_, err := collection.Indexes().CreateOne(indexCtx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "agent_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return nil, fmt.Errorf("trajectory: create index: %w", err)
	}
	return &MongoSink{collection: collection, timeout: opts.Timeout}, nil
}

type toolCallDoc struct {
	ToolCallID         string `bson:"tool_call_id"`
	ToolName           string `bson:"tool_name"`
	ArgumentsJSON      string `bson:"arguments_json"`
	ArgumentsTruncated bool   `bson:"arguments_truncated"`
	ResultJSON         string `bson:"result_json"`
	ResultTruncated    bool   `bson:"result_truncated"`
	Error              string `bson:"error,omitempty"`
	Succeeded          bool   `bson:"succeeded"`
}

type turnDoc struct {
	TurnID        string        `bson:"turn_id"`
	InboundText   string        `bson:"inbound_text"`
	ToolCalls     []toolCallDoc `bson:"tool_calls"`
	StopReason    string        `bson:"stop_reason"`
	ApprovalBatch int           `bson:"approval_batch"`
}

type trajectoryDoc struct {
	TrajectoryID     string            `bson:"_id"`
	AgentID          string            `bson:"agent_id"`
	ExecutionStatus  string            `bson:"execution_status"`
	StartedAt        time.Time         `bson:"started_at"`
	EndedAt          time.Time         `bson:"ended_at"`
	DurationMs       int64             `bson:"duration_ms"`
	ApprovalBatches  int               `bson:"approval_batches"`
	ToolNamesInvoked []string          `bson:"tool_names_invoked"`
	ToolSuccessCount map[string]int    `bson:"tool_success_count"`
	ToolFailureCount map[string]int    `bson:"tool_failure_count"`
	Turns            []turnDoc         `bson:"turns"`
	Outcome          string            `bson:"outcome"`
	Confidence       float64           `bson:"confidence"`
	CreatedAt        time.Time         `bson:"created_at"`
}

// toTrajectoryDoc is pure, so the bson-mapping it implements can be
// property-tested without a live Mongo connection (see mongo_sink_test.go).
func toTrajectoryDoc(t Trajectory) trajectoryDoc {
	turns := make([]turnDoc, 0, len(t.Turns))
	for _, turn := range t.Turns {
		calls := make([]toolCallDoc, 0, len(turn.ToolCalls))
		for _, tc := range turn.ToolCalls {
			calls = append(calls, toolCallDoc{
				ToolCallID:         string(tc.ToolCallID),
				ToolName:           tc.ToolName,
				ArgumentsJSON:      tc.ArgumentsJSON,
				ArgumentsTruncated: tc.ArgumentsTruncated,
				ResultJSON:         tc.ResultJSON,
				ResultTruncated:    tc.ResultTruncated,
				Error:              tc.Error,
				Succeeded:          tc.Succeeded,
			})
		}
		turns = append(turns, turnDoc{
			TurnID:        string(turn.TurnID),
			InboundText:   turn.InboundText,
			ToolCalls:     calls,
			StopReason:    turn.StopReason,
			ApprovalBatch: turn.ApprovalBatch,
		})
	}

	return trajectoryDoc{
		TrajectoryID:     string(t.TrajectoryID),
		AgentID:          string(t.AgentID),
		ExecutionStatus:  string(t.ExecutionStatus),
		StartedAt:        t.Metadata.StartedAt,
		EndedAt:          t.Metadata.EndedAt,
		DurationMs:       t.Metadata.DurationMs,
		ApprovalBatches:  t.Metadata.ApprovalBatches,
		ToolNamesInvoked: t.Metadata.ToolNamesInvoked,
		ToolSuccessCount: t.Metadata.ToolSuccessCount,
		ToolFailureCount: t.Metadata.ToolFailureCount,
		Turns:            turns,
		Outcome:          string(t.Outcome),
		Confidence:       t.Confidence,
		CreatedAt:        t.CreatedAt,
	}
}

func (s *MongoSink) Write(ctx context.Context, t Trajectory) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.collection.InsertOne(ctx, toTrajectoryDoc(t))
	if err != nil {
		return fmt.Errorf("trajectory: insert: %w", err)
	}
	return nil
}

var _ Sink = (*MongoSink)(nil)
