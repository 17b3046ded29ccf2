package router

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/worldforge/core/errs"
	"github.com/worldforge/core/ids"
	"github.com/worldforge/core/memory"
)

type fakeOwnership struct {
	owner map[ids.WorldID]ids.UserID
}

func (f fakeOwnership) IsOwner(_ context.Context, userID ids.UserID, worldID ids.WorldID) (bool, error) {
	return f.owner[worldID] == userID, nil
}

type fakeStories struct{}

func (fakeStories) Summarize(_ context.Context, storyID ids.StoryID, _ int) (string, string, error) {
	return "Story: " + string(storyID), "...recent segments...", nil
}

func TestGetOrCreateUserAgent_StableAcrossCalls(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := New(NewInMemoryMapping(), memory.NewReconciler(memory.NewInMemoryStore()), fakeOwnership{}, fakeStories{})

	first, err := r.GetOrCreateUserAgent(ctx, "user1")
	require.NoError(t, err)

	second, err := r.GetOrCreateUserAgent(ctx, "user1")
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestGetOrCreateUserAgent_DistinctPerUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := New(NewInMemoryMapping(), memory.NewReconciler(memory.NewInMemoryStore()), fakeOwnership{}, fakeStories{})

	a, err := r.GetOrCreateUserAgent(ctx, "user1")
	require.NoError(t, err)
	b, err := r.GetOrCreateUserAgent(ctx, "user2")
	require.NoError(t, err)

	require.NotEqual(t, a, b)
}

func TestGetOrCreateWorldAgent_RejectsNonOwner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ownership := fakeOwnership{owner: map[ids.WorldID]ids.UserID{"world1": "user1"}}
	r := New(NewInMemoryMapping(), memory.NewReconciler(memory.NewInMemoryStore()), ownership, fakeStories{})

	_, err := r.GetOrCreateWorldAgent(ctx, "user2", "world1")
	require.Error(t, err)
	require.Equal(t, errs.NotAuthorized, errs.KindOf(err))
}

func TestGetOrCreateWorldAgent_AllowsOwner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ownership := fakeOwnership{owner: map[ids.WorldID]ids.UserID{"world1": "user1"}}
	r := New(NewInMemoryMapping(), memory.NewReconciler(memory.NewInMemoryStore()), ownership, fakeStories{})

	id, err := r.GetOrCreateWorldAgent(ctx, "user1", "world1")
	require.NoError(t, err)
	require.NotEmpty(t, id)
}

func TestGetOrCreate_ConcurrentFirstUseProducesOneAgent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := New(NewInMemoryMapping(), memory.NewReconciler(memory.NewInMemoryStore()), fakeOwnership{}, fakeStories{})

	const n = 32
	results := make([]ids.AgentID, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			id, err := r.GetOrCreateUserAgent(ctx, "shared-user")
			require.NoError(t, err)
			results[i] = id
		}()
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		require.Equal(t, results[0], results[i])
	}
}

func TestSetStoryContext_ClearsOnEmptyStoryID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	memStore := memory.NewInMemoryStore()
	r := New(NewInMemoryMapping(), memory.NewReconciler(memStore), fakeOwnership{}, fakeStories{})

	agentID, err := r.GetOrCreateUserAgent(ctx, "user1")
	require.NoError(t, err)

	n, err := r.SetStoryContext(ctx, agentID, "story1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	set, err := memStore.Load(ctx, string(agentID))
	require.NoError(t, err)
	require.Contains(t, set.Blocks[memory.CurrentStory], "story1")

	_, err = r.SetStoryContext(ctx, agentID, "")
	require.NoError(t, err)
	set, err = memStore.Load(ctx, string(agentID))
	require.NoError(t, err)
	require.Empty(t, set.Blocks[memory.CurrentStory])
}
