package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDependencies_MemoryMode(t *testing.T) {
	cfg, err := ReadConfig()
	require.NoError(t, err)
	require.Equal(t, TransportMemory, cfg.Transport)
	require.Equal(t, StorageMemory, cfg.Storage)

	ctx := context.Background()
	deps, err := BuildDependencies(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { deps.Close() })

	assert.Nil(t, deps.DB)
	assert.NotNil(t, deps.EventPublisher)
	assert.NotNil(t, deps.OutboxPublisher)
	assert.NotNil(t, deps.Scheduler)
	assert.NotNil(t, deps.Orchestrator)
	assert.NotNil(t, deps.Requester)

	assert.NotNil(t, deps.OrderHandlers)
	assert.NotNil(t, deps.OrderEventHandlers)
	assert.NotNil(t, deps.StockEventHandlers)
	assert.NotNil(t, deps.PaymentEventHandlers)

	assert.NotNil(t, deps.SagaEndpoint)
	assert.NotNil(t, deps.StockEndpoint)
	assert.NotNil(t, deps.PaymentEndpoint)

	require.NoError(t, deps.Subscribe(ctx))
}
