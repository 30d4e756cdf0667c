package mcppool

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcore/internal/metrics"
)

func echoTransport() Transport {
	return NewMemoryTransport(func(req *Message) (*Message, error) {
		result, _ := json.Marshal(map[string]any{"echo": req.Params["arguments"]})
		return &Message{JSONRPC: "2.0", ID: req.ID, Result: result}, nil
	})
}

func failingTransport() Transport {
	return NewMemoryTransport(func(req *Message) (*Message, error) {
		return nil, assert.AnError
	})
}

func TestInitializeAndExecuteTool(t *testing.T) {
	pool := New(DefaultConfig(), nil)
	ctx := context.Background()

	err := pool.Initialize(ctx, []ServerConfig{{Name: "fs", Transport: echoTransport()}})
	require.NoError(t, err)

	result, err := pool.ExecuteTool(ctx, "fs", "read_file", map[string]any{"path": "a.txt"})
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestExecuteToolUnknownServer(t *testing.T) {
	pool := New(DefaultConfig(), nil)
	_, err := pool.ExecuteTool(context.Background(), "missing", "tool", nil)
	require.Error(t, err)
}

func TestHealthCheckReportsConnectedClients(t *testing.T) {
	pool := New(DefaultConfig(), nil)
	ctx := context.Background()
	require.NoError(t, pool.Initialize(ctx, []ServerConfig{{Name: "fs", Transport: echoTransport()}}))

	health := pool.HealthCheck()
	require.Len(t, health, 1)
	assert.Equal(t, "fs", health[0].Name)
	assert.True(t, health[0].Connected)
}

func TestExecuteToolMarksUnhealthyOnTransportFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryPolicy.MaxRetries = 0
	pool := New(cfg, nil)
	ctx := context.Background()

	require.NoError(t, pool.Initialize(ctx, []ServerConfig{{Name: "fs", Transport: failingTransport()}}))

	_, err := pool.ExecuteTool(ctx, "fs", "read_file", nil)
	require.Error(t, err)

	require.Eventually(t, func() bool {
		for _, h := range pool.HealthCheck() {
			if h.Name == "fs" {
				return !h.Connected
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestExecuteToolRecordsMetricsOnSuccessAndFailure(t *testing.T) {
	collector := metrics.NewCollector("test_mcp_pool", nil)
	cfg := DefaultConfig()
	cfg.RetryPolicy.MaxRetries = 0
	cfg.Metrics = collector
	pool := New(cfg, nil)
	ctx := context.Background()

	require.NoError(t, pool.Initialize(ctx, []ServerConfig{
		{Name: "fs", Transport: echoTransport()},
		{Name: "bad", Transport: failingTransport()},
	}))

	_, err := pool.ExecuteTool(ctx, "fs", "read_file", map[string]any{"path": "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.MCPToolCallsTotal.WithLabelValues("fs", "read_file", "success")))

	_, err = pool.ExecuteTool(ctx, "bad", "read_file", nil)
	require.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.MCPToolCallsTotal.WithLabelValues("bad", "read_file", "failure")))
}

func TestWSConfigForAttachesBearerHeaderWhenSecretSet(t *testing.T) {
	pool := New(DefaultConfig(), nil)

	cfg := pool.wsConfigFor(ServerConfig{Name: "fs", BearerSecret: "s3cret"})
	assert.NotEmpty(t, cfg.Header.Get("Authorization"))
	assert.Contains(t, cfg.Header.Get("Authorization"), "Bearer ")
}

func TestWSConfigForOmitsHeaderWithoutSecret(t *testing.T) {
	pool := New(DefaultConfig(), nil)

	cfg := pool.wsConfigFor(ServerConfig{Name: "fs"})
	assert.Nil(t, cfg.Header)
}

func TestShutdownClosesClients(t *testing.T) {
	pool := New(DefaultConfig(), nil)
	ctx := context.Background()
	require.NoError(t, pool.Initialize(ctx, []ServerConfig{{Name: "fs", Transport: echoTransport()}}))
	pool.Shutdown()
}
