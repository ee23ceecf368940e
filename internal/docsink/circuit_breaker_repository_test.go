package docsink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgrelay/internal/config"
	"tgrelay/internal/relay"
)

func breakerConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		Enabled:      true,
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      60 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  3,
	}
}

func TestCircuitBreakerRepository_PassThrough(t *testing.T) {
	inner := &fakeRepository{exists: true}
	repo := NewCircuitBreakerRepository(inner, breakerConfig())

	exists, err := repo.Exists(context.Background(), 100, 7)
	require.NoError(t, err)
	assert.True(t, exists)

	id, err := repo.Insert(context.Background(), &relay.LogRecord{ChatID: 100, MessageID: 7})
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)
}

func TestCircuitBreakerRepository_DuplicatePreserved(t *testing.T) {
	inner := &fakeRepository{insertErr: relay.ErrDuplicateRecord}
	repo := NewCircuitBreakerRepository(inner, breakerConfig())

	// duplicates never trip the breaker, however many arrive
	for i := 0; i < 10; i++ {
		_, err := repo.Insert(context.Background(), &relay.LogRecord{ChatID: 100, MessageID: 7})
		require.Error(t, err)
		assert.ErrorIs(t, err, relay.ErrDuplicateRecord)
	}

	assert.Equal(t, "closed", repo.State())
}

func TestCircuitBreakerRepository_OpensOnRepeatedFailures(t *testing.T) {
	inner := &fakeRepository{existsErr: errors.New("store down")}
	repo := NewCircuitBreakerRepository(inner, breakerConfig())

	for i := 0; i < 5; i++ {
		_, err := repo.Exists(context.Background(), 100, 7)
		require.Error(t, err)
	}

	assert.Equal(t, "open", repo.State())

	// calls are rejected without reaching the store while open
	callsBefore := inner.existsCalls
	_, err := repo.Exists(context.Background(), 100, 7)
	require.Error(t, err)
	assert.Equal(t, callsBefore, inner.existsCalls)
}

func TestCircuitBreakerRepository_Disabled(t *testing.T) {
	inner := &fakeRepository{exists: true}
	repo := NewCircuitBreakerRepository(inner, config.CircuitBreakerConfig{Enabled: false})

	exists, err := repo.Exists(context.Background(), 100, 7)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "disabled", repo.State())
}
