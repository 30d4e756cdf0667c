package mcppool

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/internal/metrics"
	"github.com/BaSui01/agentcore/resilience/retry"
	"github.com/BaSui01/agentcore/types"
)

// ServerConfig describes one remote MCP server the pool should manage.
type ServerConfig struct {
	Name      string
	URL       string
	Transport Transport // optional: pre-built transport (tests, in-memory servers)
	// BearerSecret, if set, signs a short-lived bearer token (BearerAuth)
	// presented as an Authorization header on dial.
	BearerSecret string
	BearerIssuer string
}

// Health is the per-client status HealthCheck reports.
type Health struct {
	Name      string
	Connected bool
	LastError string
}

type clientEntry struct {
	mu             sync.Mutex
	client         *Client
	url            string
	healthy        bool
	reconnecting   bool
	reconnectCount int
	lastErr        error
}

// Pool is a named map of MCP clients. Grounded on spec.md §4.C: initialise
// each client, expose ExecuteTool and HealthCheck, own reconnect policy
// with exponential backoff, fail calls fast while a client is unhealthy.
type Pool struct {
	logger  *zap.Logger
	retryer retry.Retryer
	metrics *metrics.Collector

	reconnectDelay time.Duration
	maxReconnects  int

	mu      sync.RWMutex
	entries map[string]*clientEntry
}

type Config struct {
	ReconnectDelay time.Duration
	MaxReconnects  int
	RetryPolicy    *retry.Policy
	Metrics        *metrics.Collector
}

func DefaultConfig() *Config {
	return &Config{ReconnectDelay: time.Second, MaxReconnects: 5, RetryPolicy: retry.DefaultPolicy()}
}

func New(cfg *Config, logger *zap.Logger) *Pool {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		logger:         logger.With(zap.String("component", "mcp_pool")),
		retryer:        retry.New(cfg.RetryPolicy, logger),
		metrics:        cfg.Metrics,
		reconnectDelay: cfg.ReconnectDelay,
		maxReconnects:  cfg.MaxReconnects,
		entries:        make(map[string]*clientEntry),
	}
}

// Initialize connects one client per ServerConfig. A dial failure marks
// that entry unhealthy rather than aborting the whole pool.
func (p *Pool) Initialize(ctx context.Context, servers []ServerConfig) error {
	for _, sc := range servers {
		transport := sc.Transport
		if transport == nil {
			transport = NewWebSocketTransport(sc.URL, p.wsConfigFor(sc), p.logger)
		}
		client := NewClient(sc.Name, transport, p.logger)
		entry := &clientEntry{client: client, url: sc.URL}

		p.mu.Lock()
		p.entries[sc.Name] = entry
		p.mu.Unlock()

		if err := client.Connect(ctx); err != nil {
			entry.mu.Lock()
			entry.healthy = false
			entry.lastErr = err
			entry.mu.Unlock()
			p.logger.Warn("mcp server connect failed", zap.String("server", sc.Name), zap.Error(err))
			continue
		}
		entry.mu.Lock()
		entry.healthy = true
		entry.mu.Unlock()
	}
	return nil
}

// wsConfigFor builds the dial config for sc, signing and attaching a
// bearer token when the server declares a BearerSecret.
func (p *Pool) wsConfigFor(sc ServerConfig) WSTransportConfig {
	cfg := DefaultWSTransportConfig()
	if sc.BearerSecret == "" {
		return cfg
	}
	auth := BearerAuth{Secret: sc.BearerSecret, Issuer: sc.BearerIssuer}
	token, err := auth.SignToken(sc.Name)
	if err != nil {
		p.logger.Warn("mcp bearer token signing failed", zap.String("server", sc.Name), zap.Error(err))
		return cfg
	}
	cfg.Header = http.Header{"Authorization": []string{"Bearer " + token}}
	return cfg
}

// ExecuteTool dispatches a tool call to the named client, wrapped by the
// retry manager under op_key "mcp.<client>.<tool>". Calls against an
// unhealthy client fail immediately without consuming a retry budget.
func (p *Pool) ExecuteTool(ctx context.Context, clientName, tool string, params map[string]any) (any, error) {
	entry, err := p.lookup(clientName)
	if err != nil {
		return nil, err
	}

	if !p.isHealthy(entry) {
		return nil, types.NewError(types.ErrProviderUnavailable, fmt.Sprintf("mcp server %s is unhealthy", clientName)).WithRetryable(true)
	}

	opKey := fmt.Sprintf("mcp.%s.%s", clientName, tool)
	start := time.Now()
	result, err := p.retryer.DoWithResult(ctx, opKey, func() (any, error) {
		raw, err := entry.client.CallTool(ctx, tool, params)
		if err != nil {
			p.markUnhealthy(entry, err)
			go p.reconnectLoop(context.Background(), clientName, entry)
			return nil, types.NewError(types.ErrUpstreamError, err.Error()).WithRetryable(true).WithProvider(clientName)
		}
		return raw, nil
	})
	if p.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		p.metrics.MCPToolCallsTotal.WithLabelValues(clientName, tool, outcome).Inc()
		p.metrics.MCPToolCallDuration.WithLabelValues(clientName, tool).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

// HealthCheck returns the current status of every managed client.
func (p *Pool) HealthCheck() []Health {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Health, 0, len(p.entries))
	for name, e := range p.entries {
		e.mu.Lock()
		h := Health{Name: name, Connected: e.healthy}
		if e.lastErr != nil {
			h.LastError = e.lastErr.Error()
		}
		e.mu.Unlock()
		out = append(out, h)
	}
	return out
}

// Shutdown closes every client's transport.
func (p *Pool) Shutdown() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for name, e := range p.entries {
		if err := e.client.Close(); err != nil {
			p.logger.Warn("mcp client close failed", zap.String("server", name), zap.Error(err))
		}
	}
}

func (p *Pool) lookup(name string) (*clientEntry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[name]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, fmt.Sprintf("mcp server %q not registered", name)).WithRetryable(false)
	}
	return e, nil
}

func (p *Pool) isHealthy(e *clientEntry) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.healthy
}

func (p *Pool) markUnhealthy(e *clientEntry, err error) {
	e.mu.Lock()
	e.healthy = false
	e.lastErr = err
	e.mu.Unlock()
}

// reconnectLoop retries the dial with exponential backoff until it
// succeeds or maxReconnects is exhausted. Only one reconnect loop per
// entry runs at a time; a second call returns at once while the entry's
// reconnecting flag is set.
func (p *Pool) reconnectLoop(ctx context.Context, name string, e *clientEntry) {
	e.mu.Lock()
	if e.healthy || e.reconnecting {
		e.mu.Unlock()
		return
	}
	e.reconnecting = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.reconnecting = false
		e.mu.Unlock()
	}()

	for attempt := 1; attempt <= p.maxReconnects; attempt++ {
		delay := p.reconnectDelay * time.Duration(math.Pow(2, float64(attempt-1)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if err := e.client.Connect(ctx); err != nil {
			p.logger.Debug("mcp reconnect attempt failed", zap.String("server", name), zap.Int("attempt", attempt), zap.Error(err))
			e.mu.Lock()
			e.reconnectCount = attempt
			e.lastErr = err
			e.mu.Unlock()
			if p.metrics != nil {
				p.metrics.MCPReconnectsTotal.WithLabelValues(name, "failure").Inc()
			}
			continue
		}

		e.mu.Lock()
		e.healthy = true
		e.reconnectCount = 0
		e.lastErr = nil
		e.mu.Unlock()
		if p.metrics != nil {
			p.metrics.MCPReconnectsTotal.WithLabelValues(name, "success").Inc()
		}
		p.logger.Info("mcp server reconnected", zap.String("server", name), zap.Int("attempt", attempt))
		return
	}

	p.logger.Warn("mcp server reconnect exhausted", zap.String("server", name), zap.Int("max_reconnects", p.maxReconnects))
}
