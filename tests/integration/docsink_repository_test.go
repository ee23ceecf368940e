package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"tgrelay/internal/docsink"
	"tgrelay/internal/relay"
)

func TestMongoRepository_InsertAndExists(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	ctx := context.Background()
	require.NoError(t, docsink.EnsureIndexes(ctx, infra.MongoDB, "messages"))

	repo := docsink.NewRepository(infra.MongoDB, "messages")

	exists, err := repo.Exists(ctx, 100, 7)
	require.NoError(t, err)
	assert.False(t, exists)

	id, err := repo.Insert(ctx, createTestRecord(100, 7))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	exists, err = repo.Exists(ctx, 100, 7)
	require.NoError(t, err)
	assert.True(t, exists)

	// same message id in a different chat is a distinct record
	exists, err = repo.Exists(ctx, 200, 7)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMongoRepository_DuplicateInsert(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	ctx := context.Background()
	require.NoError(t, docsink.EnsureIndexes(ctx, infra.MongoDB, "messages"))

	repo := docsink.NewRepository(infra.MongoDB, "messages")

	_, err := repo.Insert(ctx, createTestRecord(100, 7))
	require.NoError(t, err)

	_, err = repo.Insert(ctx, createTestRecord(100, 7))
	require.Error(t, err)
	assert.ErrorIs(t, err, relay.ErrDuplicateRecord)
}

func TestMongoRepository_PersistedFields(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	ctx := context.Background()
	repo := docsink.NewRepository(infra.MongoDB, "messages")

	rec := createTestRecord(100, 7)
	_, err := repo.Insert(ctx, rec)
	require.NoError(t, err)

	var stored relay.LogRecord
	err = infra.MongoDB.Collection("messages").
		FindOne(ctx, bson.M{"chat_id": int64(100), "message_id": int64(7)}).
		Decode(&stored)
	require.NoError(t, err)

	assert.Equal(t, rec.ChatID, stored.ChatID)
	assert.Equal(t, rec.MessageID, stored.MessageID)
	assert.Equal(t, *rec.ChatTitle, *stored.ChatTitle)
	assert.Equal(t, *rec.FromUserID, *stored.FromUserID)
	assert.Equal(t, rec.Text, stored.Text)
	assert.False(t, stored.HasMedia)
	assert.Nil(t, stored.MediaType)
}

func TestEnsureIndexes_Idempotent(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	ctx := context.Background()
	require.NoError(t, docsink.EnsureIndexes(ctx, infra.MongoDB, "messages"))
	require.NoError(t, docsink.EnsureIndexes(ctx, infra.MongoDB, "messages"))
}
