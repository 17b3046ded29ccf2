package canvas

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/worldforge/core/ids"
	"github.com/worldforge/core/telemetry"
)

// streamAdder mirrors the subset of *redis.Client the mirror needs, so
// callers can pass either the real client or a fake in tests. Grounded on
// the teacher's RuntimeClient seam in features/model/bedrock/client.go
// (the same pattern store.ObjectClient applies to *s3.Client).
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisMirror fans canvas Ops and Suggestions out onto per-user Redis
// streams, for consumers running outside this process (e.g. a websocket
// gateway on a different instance than the one handling the turn). Grounded
// on the teacher's Pulse client wrapper
// (features/stream/pulse/clients/pulse/client.go) — same
// stream-per-topic-plus-XADD shape — but talks to go-redis directly rather
// than through goa.design/pulse, since Pulse is a Goa-DSL-tied durable
// consumer-group abstraction this core has no use for: the mirror is
// fire-and-forget fan-out, not a replay log.
type RedisMirror struct {
	client      streamAdder
	streamMaxLen int64
	logger      telemetry.Logger
}

// NewRedisMirror constructs a RedisMirror. streamMaxLen bounds each user's
// stream length via MAXLEN ~ trimming; zero disables trimming.
func NewRedisMirror(client *redis.Client, streamMaxLen int64, logger telemetry.Logger) *RedisMirror {
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	return &RedisMirror{client: client, streamMaxLen: streamMaxLen, logger: logger}
}

func (r *RedisMirror) streamKey(userID ids.UserID) string {
	return "canvas:" + string(userID)
}

func (r *RedisMirror) MirrorOp(ctx context.Context, userID ids.UserID, op Op) {
	payload, err := json.Marshal(op)
	if err != nil {
		r.logger.Warn(ctx, "canvas redis mirror: marshal op failed", "error", err.Error())
		return
	}
	r.add(ctx, userID, "op", payload)
}

func (r *RedisMirror) MirrorSuggestion(ctx context.Context, userID ids.UserID, sug Suggestion) {
	payload, err := json.Marshal(sug)
	if err != nil {
		r.logger.Warn(ctx, "canvas redis mirror: marshal suggestion failed", "error", err.Error())
		return
	}
	r.add(ctx, userID, "suggestion", payload)
}

func (r *RedisMirror) add(ctx context.Context, userID ids.UserID, kind string, payload []byte) {
	args := &redis.XAddArgs{
		Stream: r.streamKey(userID),
		Values: map[string]any{"kind": kind, "payload": payload},
	}
	if r.streamMaxLen > 0 {
		args.MaxLen = r.streamMaxLen
		args.Approx = true
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		r.logger.Warn(ctx, "canvas redis mirror: xadd failed", "userId", string(userID), "error", err.Error())
	}
}

var _ Mirror = (*RedisMirror)(nil)
