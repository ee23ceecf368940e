package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgrelay/internal/docsink"
)

func TestDedupCache_Seen(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true)

	ctx := context.Background()
	cache := docsink.NewDedupCache(infra.RedisClient, 60)

	seen, err := cache.Seen(ctx, 100, 7)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = cache.Seen(ctx, 100, 7)
	require.NoError(t, err)
	assert.True(t, seen)

	// key is scoped to the pair, not the message id alone
	seen, err = cache.Seen(ctx, 200, 7)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestSink_DedupAcrossCacheAndStore(t *testing.T) {
	infra := SetupTestInfra(t)

	ctx := context.Background()
	require.NoError(t, docsink.EnsureIndexes(ctx, infra.MongoDB, "messages"))

	repo := docsink.NewRepository(infra.MongoDB, "messages")
	cache := docsink.NewDedupCache(infra.RedisClient, 60)
	sink := docsink.New(repo, cache, createTestLogger())

	exists, err := sink.Exists(ctx, 100, 7)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = sink.Insert(ctx, createTestRecord(100, 7))
	require.NoError(t, err)

	exists, err = sink.Exists(ctx, 100, 7)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSink_StoreAuthoritativeWhenCacheCold(t *testing.T) {
	infra := SetupTestInfra(t)

	ctx := context.Background()
	require.NoError(t, docsink.EnsureIndexes(ctx, infra.MongoDB, "messages"))

	repo := docsink.NewRepository(infra.MongoDB, "messages")
	sink := docsink.New(repo, nil, createTestLogger())

	_, err := sink.Insert(ctx, createTestRecord(100, 7))
	require.NoError(t, err)

	// a fresh cache has no entry for the pair; the store still answers
	coldCache := docsink.NewDedupCache(infra.RedisClient, 60)
	sinkWithCache := docsink.New(repo, coldCache, createTestLogger())

	exists, err := sinkWithCache.Exists(ctx, 100, 7)
	require.NoError(t, err)
	assert.True(t, exists)
}
