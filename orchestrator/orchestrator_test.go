package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/worldforge/core/agentruntime"
	"github.com/worldforge/core/config"
	"github.com/worldforge/core/errs"
	"github.com/worldforge/core/hooks"
	"github.com/worldforge/core/ids"
	"github.com/worldforge/core/memory"
	"github.com/worldforge/core/policy"
	"github.com/worldforge/core/router"
	"github.com/worldforge/core/store"
	"github.com/worldforge/core/tools"
	"github.com/worldforge/core/trajectory"
)

// fakeStream replays a fixed, pre-scripted chunk sequence, mirroring the
// teacher's fixture-decoder test style in agentruntime/anthropic_test.go.
type fakeStream struct {
	chunks []agentruntime.Chunk
	i      int
	err    error
}

func (s *fakeStream) Recv(_ context.Context) (agentruntime.Chunk, error) {
	if s.err != nil && s.i >= len(s.chunks) {
		return agentruntime.Chunk{}, s.err
	}
	if s.i >= len(s.chunks) {
		return agentruntime.Chunk{}, context.Canceled
	}
	c := s.chunks[s.i]
	s.i++
	return c, nil
}

func (s *fakeStream) Close() error { return nil }

// fakeRuntime returns a scripted sequence of streams, one per CreateMessage
// call, so tests can drive multi-round approval loops deterministically.
type fakeRuntime struct {
	streams []*fakeStream
	calls   int
	failN   int // if > 0, the first failN CreateMessage calls return err
	err     error
}

func (r *fakeRuntime) CreateMessage(_ context.Context, _ string, _ agentruntime.Input) (agentruntime.Stream, error) {
	if r.failN > 0 && r.calls < r.failN {
		r.calls++
		return nil, r.err
	}
	idx := r.calls
	r.calls++
	if idx >= len(r.streams) {
		idx = len(r.streams) - 1
	}
	return r.streams[idx], nil
}

func textChunk(s string) agentruntime.Chunk {
	return agentruntime.Chunk{Type: agentruntime.ChunkAssistantText, Text: s}
}

func approvalChunk(id, name, argsDelta string) agentruntime.Chunk {
	return agentruntime.Chunk{Type: agentruntime.ChunkApprovalRequest, ToolCallID: id, ToolName: name, ArgumentsDelta: argsDelta}
}

func stopChunk(reason agentruntime.StopReason) agentruntime.Chunk {
	return agentruntime.Chunk{Type: agentruntime.ChunkStopReason, StopReason: reason}
}

func newTestOrchestrator(t *testing.T, rt agentruntime.Runtime) (*Orchestrator, store.DB, ids.UserID) {
	t.Helper()
	db := store.NewMemoryDB()
	memStore := memory.NewInMemoryStore()
	reconciler := memory.NewReconciler(memStore)
	rtr := router.New(store.MappingAdapter{DB: db}, reconciler, store.OwnershipAdapter{DB: db}, store.StorySummaryAdapter{DB: db})

	registry, err := tools.NewDefaultRegistry(nil, config.Default())
	require.NoError(t, err)

	o := &Orchestrator{
		Router:        rtr,
		Memory:        reconciler,
		Registry:      registry,
		Runtime:       rt,
		Policy:        policy.NewCapsEngine(),
		Hooks:         hooks.NewBus(),
		Trajectory:    trajectory.NewMemorySink(),
		DB:            db,
		Blob:          store.NewMemoryBlob(),
		Images:        mustImageProviders(t),
		MaxIterations: 4,
		RetryAttempts: 2,
		Sleep:         func(time.Duration) {},
	}
	return o, db, ids.NewUserID()
}

func mustImageProviders(t *testing.T) *tools.ImageProviders {
	t.Helper()
	return tools.NewImageProviders()
}

func TestSendMessage_EndTurnWithNoToolCalls(t *testing.T) {
	rt := &fakeRuntime{streams: []*fakeStream{
		{chunks: []agentruntime.Chunk{textChunk("Hello "), textChunk("there."), stopChunk(agentruntime.StopEndTurn)}},
	}}
	o, _, userID := newTestOrchestrator(t, rt)

	result, err := o.SendMessage(context.Background(), userID, "hi", MessageContext{})
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	require.Equal(t, "Hello there.", result.Messages[0].Text)
	require.Empty(t, result.ToolCalls)
	require.Equal(t, 1, result.Metadata.Iterations)
	require.Equal(t, string(agentruntime.StopEndTurn), result.Metadata.StopReason)
}

func TestSendMessage_DispatchesToolInOrderAndResumes(t *testing.T) {
	args1, _ := json.Marshal(map[string]any{})
	rt := &fakeRuntime{streams: []*fakeStream{
		{chunks: []agentruntime.Chunk{
			approvalChunk("tc1", "list_worlds", string(args1)),
			stopChunk(agentruntime.StopRequiresApproval),
		}},
		{chunks: []agentruntime.Chunk{textChunk("Done."), stopChunk(agentruntime.StopEndTurn)}},
	}}
	o, _, userID := newTestOrchestrator(t, rt)

	result, err := o.SendMessage(context.Background(), userID, "list my worlds", MessageContext{})
	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 1)
	require.Equal(t, "list_worlds", result.ToolCalls[0].ToolName)
	require.True(t, result.ToolCalls[0].Succeeded)
	require.Equal(t, 2, result.Metadata.Iterations)
	require.Equal(t, "Done.", result.Messages[0].Text)
}

func TestSendMessage_ConcatenatesArgumentDeltasInArrivalOrder(t *testing.T) {
	rt := &fakeRuntime{streams: []*fakeStream{
		{chunks: []agentruntime.Chunk{
			approvalChunk("tc1", "user_preferences", `{"operation":`),
			approvalChunk("tc1", "", `"get","key":"tone"}`),
			stopChunk(agentruntime.StopRequiresApproval),
		}},
		{chunks: []agentruntime.Chunk{stopChunk(agentruntime.StopEndTurn)}},
	}}
	o, _, userID := newTestOrchestrator(t, rt)

	result, err := o.SendMessage(context.Background(), userID, "what's my tone preference", MessageContext{})
	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 1)
	require.True(t, result.ToolCalls[0].Succeeded)
	require.JSONEq(t, `{"operation":"get","key":"tone"}`, result.ToolCalls[0].ArgumentsRaw)
}

func TestSendMessage_ToolFailureIsCapturedNotFatal(t *testing.T) {
	rt := &fakeRuntime{streams: []*fakeStream{
		{chunks: []agentruntime.Chunk{
			approvalChunk("tc1", "world_manager", `{"operation":"load","worldId":"does-not-exist"}`),
			stopChunk(agentruntime.StopRequiresApproval),
		}},
		{chunks: []agentruntime.Chunk{stopChunk(agentruntime.StopEndTurn)}},
	}}
	o, db, userID := newTestOrchestrator(t, rt)

	world, err := db.SaveWorld(context.Background(), store.World{OwnerUserID: userID, Foundation: map[string]any{}})
	require.NoError(t, err)

	result, err := o.SendMessage(context.Background(), userID, "load my world", MessageContext{WorldID: world.WorldID})
	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 1)
	require.False(t, result.ToolCalls[0].Succeeded)
	require.NotNil(t, result.ToolCalls[0].Error)
}

func TestSendMessage_RejectsToolOutsideAgentKindScope(t *testing.T) {
	rt := &fakeRuntime{streams: []*fakeStream{
		{chunks: []agentruntime.Chunk{
			approvalChunk("tc1", "world_manager", `{"operation":"load","worldId":"w1"}`),
			stopChunk(agentruntime.StopRequiresApproval),
		}},
		{chunks: []agentruntime.Chunk{stopChunk(agentruntime.StopEndTurn)}},
	}}
	o, _, userID := newTestOrchestrator(t, rt)

	result, err := o.SendMessage(context.Background(), userID, "list my worlds", MessageContext{})
	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 1)
	require.False(t, result.ToolCalls[0].Succeeded)
	require.Equal(t, errs.ValidationError, result.ToolCalls[0].Error.Kind)
}

func TestSendMessage_ExceedsIterationCapDiverges(t *testing.T) {
	var streams []*fakeStream
	for i := 0; i < 10; i++ {
		streams = append(streams, &fakeStream{chunks: []agentruntime.Chunk{
			approvalChunk("tc1", "list_worlds", `{}`),
			stopChunk(agentruntime.StopRequiresApproval),
		}})
	}
	rt := &fakeRuntime{streams: streams}
	o, _, userID := newTestOrchestrator(t, rt)
	o.MaxIterations = 2

	_, err := o.SendMessage(context.Background(), userID, "loop forever", MessageContext{})
	require.Error(t, err)
	require.Equal(t, errs.TurnDiverged, errs.KindOf(err))
}

func TestSendMessage_StreamTransportFailureRetriesThenFails(t *testing.T) {
	rt := &fakeRuntime{failN: 5, err: context.DeadlineExceeded}
	o, _, userID := newTestOrchestrator(t, rt)
	o.RetryAttempts = 2

	_, err := o.SendMessage(context.Background(), userID, "hi", MessageContext{})
	require.Error(t, err)
	require.Equal(t, errs.AgentRuntimeUnavailable, errs.KindOf(err))
	require.Equal(t, 2, rt.calls)
}

func TestSendMessage_StreamTransportFailureRecoversWithinRetryBudget(t *testing.T) {
	rt := &fakeRuntime{
		failN: 1,
		err:   context.DeadlineExceeded,
		streams: []*fakeStream{
			{chunks: []agentruntime.Chunk{textChunk("ok"), stopChunk(agentruntime.StopEndTurn)}},
		},
	}
	o, _, userID := newTestOrchestrator(t, rt)
	o.RetryAttempts = 3

	result, err := o.SendMessage(context.Background(), userID, "hi", MessageContext{})
	require.NoError(t, err)
	require.Equal(t, "ok", result.Messages[0].Text)
}

func TestSendMessage_RejectsEmptyMessage(t *testing.T) {
	rt := &fakeRuntime{}
	o, _, userID := newTestOrchestrator(t, rt)

	_, err := o.SendMessage(context.Background(), userID, "   ", MessageContext{})
	require.Error(t, err)
	require.Equal(t, errs.ValidationError, errs.KindOf(err))
}

func TestSendMessage_WorldContextReconcilesOwnedWorld(t *testing.T) {
	rt := &fakeRuntime{streams: []*fakeStream{
		{chunks: []agentruntime.Chunk{stopChunk(agentruntime.StopEndTurn)}},
	}}
	o, db, userID := newTestOrchestrator(t, rt)

	world, err := db.SaveWorld(context.Background(), store.World{
		OwnerUserID: userID,
		Foundation:  map[string]any{"title": "Ashfall"},
	})
	require.NoError(t, err)

	_, err = o.SendMessage(context.Background(), userID, "tell me about my world", MessageContext{WorldID: world.WorldID})
	require.NoError(t, err)
}

func TestSendMessage_EmitsMemoryReconciledEvent(t *testing.T) {
	db := store.NewMemoryDB()
	memStore := memory.NewInMemoryStore()
	reconciler := memory.NewReconciler(memStore)
	rtr := router.New(store.MappingAdapter{DB: db}, reconciler, store.OwnershipAdapter{DB: db}, store.StorySummaryAdapter{DB: db})
	registry, err := tools.NewDefaultRegistry(nil, config.Default())
	require.NoError(t, err)

	bus := hooks.NewBus()
	var mu sync.Mutex
	var got []hooks.Event
	_, err = bus.Register(hooks.SubscriberFunc(func(_ context.Context, ev hooks.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
		return nil
	}))
	require.NoError(t, err)

	rt := &fakeRuntime{streams: []*fakeStream{
		{chunks: []agentruntime.Chunk{stopChunk(agentruntime.StopEndTurn)}},
	}}
	o := &Orchestrator{
		Router:        rtr,
		Memory:        reconciler,
		Registry:      registry,
		Runtime:       rt,
		Policy:        policy.NewCapsEngine(),
		Hooks:         bus,
		Trajectory:    trajectory.NewMemorySink(),
		DB:            db,
		Blob:          store.NewMemoryBlob(),
		Images:        tools.NewImageProviders(),
		MaxIterations: 4,
		RetryAttempts: 2,
		Sleep:         func(time.Duration) {},
	}

	_, err = o.SendMessage(context.Background(), ids.NewUserID(), "hi", MessageContext{})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	var found *hooks.MemoryReconciledEvent
	for _, ev := range got {
		if mr, ok := ev.(*hooks.MemoryReconciledEvent); ok {
			found = mr
		}
	}
	require.NotNil(t, found, "expected a MemoryReconciledEvent to be published")
	require.Positive(t, found.BlocksWritten)
}

func TestSendMessage_WorldContextDeniesNonOwner(t *testing.T) {
	rt := &fakeRuntime{}
	o, db, userID := newTestOrchestrator(t, rt)

	otherOwner := ids.NewUserID()
	world, err := db.SaveWorld(context.Background(), store.World{OwnerUserID: otherOwner, Foundation: map[string]any{}})
	require.NoError(t, err)

	_, err = o.SendMessage(context.Background(), userID, "edit this world", MessageContext{WorldID: world.WorldID})
	require.Error(t, err)
	require.Equal(t, errs.NotAuthorized, errs.KindOf(err))
}
