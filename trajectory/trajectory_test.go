package trajectory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/worldforge/core/ids"
)

func TestBuilder_Build_CompletedNoFailuresIsSuccess(t *testing.T) {
	start := time.Now()
	b := NewBuilder(ids.NewAgentID(), start)
	b.AddTurn(TurnRecord{
		TurnID:     ids.NewTurnID(),
		StopReason: "requires_approval",
		ToolCalls: []ToolCallRecord{
			{ToolName: "list_worlds", Succeeded: true},
		},
	})

	traj := b.Build(StatusCompleted, start.Add(2*time.Second), "end_turn")

	require.Equal(t, StatusCompleted, traj.ExecutionStatus)
	require.Equal(t, OutcomeSuccess, traj.Outcome)
	require.Equal(t, 1.0, traj.Confidence)
	require.Equal(t, int64(2000), traj.Metadata.DurationMs)
	require.Equal(t, 1, traj.Metadata.ToolSuccessCount["list_worlds"])
}

func TestBuilder_Build_WithFailuresIsPartialSuccess(t *testing.T) {
	start := time.Now()
	b := NewBuilder(ids.NewAgentID(), start)
	b.AddTurn(TurnRecord{
		ToolCalls: []ToolCallRecord{
			{ToolName: "world_manager", Succeeded: false},
			{ToolName: "list_worlds", Succeeded: true},
		},
	})

	traj := b.Build(StatusCompleted, start.Add(time.Second), "end_turn")

	require.Equal(t, OutcomePartialSuccess, traj.Outcome)
	require.Less(t, traj.Confidence, 1.0)
	require.Equal(t, 1, traj.Metadata.ToolFailureCount["world_manager"])
}

func TestBuilder_Build_IncompleteIsPartialSuccess(t *testing.T) {
	start := time.Now()
	b := NewBuilder(ids.NewAgentID(), start)

	traj := b.Build(StatusIncomplete, start.Add(time.Second), "requires_approval")

	require.Equal(t, OutcomePartialSuccess, traj.Outcome)
	require.Equal(t, 0.4, traj.Confidence)
}

func TestBuilder_Build_ErrorIsFailure(t *testing.T) {
	start := time.Now()
	b := NewBuilder(ids.NewAgentID(), start)

	traj := b.Build(StatusError, start.Add(time.Second), "")

	require.Equal(t, OutcomeFailure, traj.Outcome)
	require.Equal(t, 0.0, traj.Confidence)
}

func TestTruncateField_MarksTruncationOverCap(t *testing.T) {
	short := "hello"
	value, truncated := TruncateField(short)
	require.Equal(t, short, value)
	require.False(t, truncated)

	long := make([]byte, maxFieldBytes+100)
	for i := range long {
		long[i] = 'a'
	}
	value, truncated = TruncateField(string(long))
	require.True(t, truncated)
	require.Len(t, value, maxFieldBytes)
}

func TestMemorySink_WriteAll(t *testing.T) {
	sink := NewMemorySink()
	b := NewBuilder(ids.NewAgentID(), time.Now())
	traj := b.Build(StatusCompleted, time.Now(), "end_turn")

	require.NoError(t, sink.Write(context.Background(), traj))
	require.Len(t, sink.All(), 1)
	require.Equal(t, traj.TrajectoryID, sink.All()[0].TrajectoryID)
}
