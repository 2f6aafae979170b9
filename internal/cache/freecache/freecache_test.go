package freecache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"kernelboard/model"
)

func newTestCache(t *testing.T) *FreeCache {
	t.Helper()
	t.Setenv("FREECACHE_SIZE", "1048576")
	t.Setenv("FREECACHE_TTL", "60")

	c, err := NewFreeCache()
	require.NoError(t, err)
	return c.(*FreeCache)
}

func TestFreeCache_PutGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	lb := model.LeaderboardSummary{
		Name:    "matmul",
		Targets: []model.Target{"T4", "H100"},
	}
	require.NoError(t, c.Put(ctx, "leaderboard:matmul", lb, c.GetDefaultTTL()))

	var got model.LeaderboardSummary
	require.NoError(t, c.Get(ctx, "leaderboard:matmul", &got))
	require.Equal(t, lb.Name, got.Name)
	require.Equal(t, lb.Targets, got.Targets)
}

func TestFreeCache_Validation(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.Error(t, c.Put(ctx, "", "value", 10))
	require.Error(t, c.Put(ctx, "key", nil, 10))
	require.Error(t, c.Get(ctx, "", nil))
	require.Error(t, c.Delete(ctx, ""))
}

func TestFreeCache_Miss(t *testing.T) {
	c := newTestCache(t)

	var out string
	require.Error(t, c.Get(context.Background(), "absent", &out))
}

func TestFreeCache_Delete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k", "v", 10))
	require.NoError(t, c.Delete(ctx, "k"))

	var out string
	require.Error(t, c.Get(ctx, "k", &out))
}

func TestFreeCache_DefaultTTL(t *testing.T) {
	c := newTestCache(t)
	require.Equal(t, 60, c.GetDefaultTTL())
}
