package llmmanager

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/agentcore/internal/metrics"
	"github.com/BaSui01/agentcore/resilience/breaker"
	"github.com/BaSui01/agentcore/resilience/retry"
	"github.com/BaSui01/agentcore/types"
)

// RoutingStrategy selects which registered provider serves a request when
// more than one is eligible.
type RoutingStrategy string

const (
	StrategyRoundRobin     RoutingStrategy = "ROUND_ROBIN"
	StrategyLeastLoaded    RoutingStrategy = "LEAST_LOADED"
	StrategyFastestResponse RoutingStrategy = "FASTEST_RESPONSE"
	StrategyCapabilityBased RoutingStrategy = "CAPABILITY_BASED"
	StrategyRandom         RoutingStrategy = "RANDOM"
)

// Config tunes a Manager.
type Config struct {
	Strategy        RoutingStrategy
	RetryPolicy     *retry.Policy
	BreakerConfig   *breaker.Config
	ProbeInterval   time.Duration // 0 disables the background probe loop
	ProbeTimeout    time.Duration
	// Metrics is optional; when set, per-provider breaker trips/state are
	// recorded against it.
	Metrics *metrics.Collector
}

func DefaultConfig() *Config {
	return &Config{
		Strategy:      StrategyCapabilityBased,
		ProbeInterval: 30 * time.Second,
		ProbeTimeout:  5 * time.Second,
	}
}

type registeredProvider struct {
	provider Provider
	metrics  *ProviderMetrics
	breaker  breaker.CircuitBreaker
	inflight atomic.Int64
}

// Manager registers providers, selects among them per the configured
// RoutingStrategy, and wraps every call through the Retry/Circuit-Breaker
// Manager. Grounded on the teacher's MultiProviderRouter for the
// filter-candidates -> apply-strategy -> tie-break shape, simplified away
// from its gorm-backed API-key-pool bookkeeping (out of scope here — there
// is no database of provider/model rows, providers are registered
// in-process).
type Manager struct {
	mu        sync.RWMutex
	providers map[string]*registeredProvider
	order     []string // registration order, used by ROUND_ROBIN
	rrCursor  atomic.Uint64

	cfg    *Config
	logger *zap.Logger
	retryer retry.Retryer
	limiter *rate.Limiter

	stopProbe context.CancelFunc
}

// New creates a Manager. A nil config falls back to DefaultConfig.
func New(cfg *Config, logger *zap.Logger) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		providers: make(map[string]*registeredProvider),
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "llmmanager")),
		retryer:   retry.New(cfg.RetryPolicy, logger),
		limiter:   rate.NewLimiter(rate.Every(time.Second), 5),
	}

	if cfg.ProbeInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		m.stopProbe = cancel
		go m.probeLoop(ctx)
	}

	return m
}

// Register adds a provider under the manager's management. Registering a
// name that already exists replaces it.
func (m *Manager) Register(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := p.Name()
	if _, exists := m.providers[name]; !exists {
		m.order = append(m.order, name)
	}
	m.providers[name] = &registeredProvider{
		provider: p,
		metrics:  newProviderMetrics(name),
		breaker:  breaker.New(m.breakerConfigFor(name), m.logger),
	}
}

// breakerConfigFor clones the manager's shared breaker config with an
// OnStateChange closure bound to name, so BreakerTripsTotal/BreakerState are
// labelled per-provider rather than conflated across every registered
// breaker instance.
func (m *Manager) breakerConfigFor(name string) *breaker.Config {
	base := breaker.DefaultConfig()
	if m.cfg.BreakerConfig != nil {
		cloned := *m.cfg.BreakerConfig
		base = &cloned
	}
	if m.cfg.Metrics == nil {
		return base
	}
	base.OnStateChange = func(_, to breaker.State) {
		m.cfg.Metrics.BreakerState.WithLabelValues(name).Set(breakerStateGaugeValue(to))
		if to == breaker.StateOpen {
			m.cfg.Metrics.BreakerTripsTotal.WithLabelValues(name).Inc()
		}
	}
	return base
}

// breakerStateGaugeValue maps a breaker.State to the BreakerState gauge's
// documented encoding (0=closed, 1=half_open, 2=open), which does not match
// breaker.State's own iota order.
func breakerStateGaugeValue(s breaker.State) float64 {
	switch s {
	case breaker.StateHalfOpen:
		return 1
	case breaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Unregister removes a provider.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.providers, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Stop halts the background health-probe loop.
func (m *Manager) Stop() {
	if m.stopProbe != nil {
		m.stopProbe()
	}
}

var ErrNoEligibleProvider = fmt.Errorf("no eligible provider")

// Completion selects a provider per the configured strategy and executes
// the request, falling back to the next eligible candidate if the selected
// provider's breaker is open or the call fails with a retryable error.
func (m *Manager) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	candidates := m.eligibleCandidates(req.RequiredCapabilities)
	if len(candidates) == 0 {
		return nil, types.NewError(types.ErrProviderUnavailable, "no eligible provider").WithRetryable(false)
	}

	ordered := m.orderCandidates(candidates, req)

	var lastErr error
	for _, rp := range ordered {
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.ProviderSelected.WithLabelValues(rp.provider.Name(), string(m.cfg.Strategy)).Inc()
		}
		resp, err := m.callOne(ctx, rp, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		var terr *types.Error
		if errors.As(err, &terr) && !terr.Retryable {
			return nil, err
		}
		m.logger.Warn("provider failed, falling back", zap.String("provider", rp.provider.Name()), zap.Error(err))
	}

	return nil, fmt.Errorf("all providers exhausted: %w", lastErr)
}

// Stream selects a provider the same way Completion does and returns its
// chunk channel. Streaming bypasses the retry manager since a
// partially-consumed stream cannot be safely replayed; the circuit breaker
// still gates the initial dial (spec.md §4.H: "ordering of chunks is
// preserved; cancellation of the iterator cancels the upstream call").
func (m *Manager) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	candidates := m.eligibleCandidates(req.RequiredCapabilities)
	if len(candidates) == 0 {
		return nil, types.NewError(types.ErrProviderUnavailable, "no eligible provider").WithRetryable(false)
	}

	rp := m.orderCandidates(candidates, req)[0]
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ProviderSelected.WithLabelValues(rp.provider.Name(), string(m.cfg.Strategy)).Inc()
	}
	rp.inflight.Add(1)
	start := time.Now()

	result, err := rp.breaker.CallWithResult(ctx, func() (any, error) {
		return rp.provider.Stream(ctx, req)
	})
	if err != nil {
		rp.inflight.Add(-1)
		rp.metrics.RecordCall(time.Since(start), false)
		return nil, err
	}
	upstream := result.(<-chan StreamChunk)

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer rp.inflight.Add(-1)
		for chunk := range upstream {
			select {
			case out <- chunk:
			case <-ctx.Done():
				rp.metrics.RecordCall(time.Since(start), false)
				return
			}
		}
		rp.metrics.RecordCall(time.Since(start), true)
	}()
	return out, nil
}

func (m *Manager) callOne(ctx context.Context, rp *registeredProvider, req *ChatRequest) (*ChatResponse, error) {
	rp.inflight.Add(1)
	defer rp.inflight.Add(-1)

	opKey := fmt.Sprintf("llm.%s.completion", rp.provider.Name())

	result, err := m.retryer.DoWithResult(ctx, opKey, func() (any, error) {
		start := time.Now()
		v, callErr := rp.breaker.CallWithResult(ctx, func() (any, error) {
			return rp.provider.Completion(ctx, req)
		})
		latency := time.Since(start)
		rp.metrics.RecordCall(latency, callErr == nil)
		return v, callErr
	})
	if err != nil {
		return nil, err
	}
	return result.Value.(*ChatResponse), nil
}

// eligibleCandidates returns registered providers not currently breaker-open
// and, if capabilities is non-empty, advertising every one of them.
func (m *Manager) eligibleCandidates(capabilities []string) []*registeredProvider {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*registeredProvider, 0, len(m.providers))
	for _, name := range m.order {
		rp, ok := m.providers[name]
		if !ok {
			continue
		}
		if rp.breaker.State() == breaker.StateOpen {
			continue
		}
		if len(capabilities) > 0 && !hasAllCapabilities(rp.provider.Capabilities(), capabilities) {
			continue
		}
		out = append(out, rp)
	}
	return out
}

func hasAllCapabilities(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, c := range have {
		set[c] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}

// orderCandidates ranks candidates per the manager's RoutingStrategy, then
// applies spec.md §4.B selection rule 1: a caller-named PreferredProvider
// that's among the candidates (i.e. healthy) jumps to the front regardless
// of strategy. The returned slice is the fallback order Completion walks.
func (m *Manager) orderCandidates(candidates []*registeredProvider, req *ChatRequest) []*registeredProvider {
	return prioritizePreferred(m.orderByStrategy(candidates, req), req.PreferredProvider)
}

// prioritizePreferred moves the named provider to the front of ordered if
// present, leaving the rest of the fallback order untouched.
func prioritizePreferred(ordered []*registeredProvider, preferred string) []*registeredProvider {
	if preferred == "" {
		return ordered
	}
	for i, rp := range ordered {
		if rp.provider.Name() != preferred {
			continue
		}
		if i == 0 {
			return ordered
		}
		out := make([]*registeredProvider, 0, len(ordered))
		out = append(out, rp)
		out = append(out, ordered[:i]...)
		out = append(out, ordered[i+1:]...)
		return out
	}
	return ordered
}

func (m *Manager) orderByStrategy(candidates []*registeredProvider, req *ChatRequest) []*registeredProvider {
	switch m.cfg.Strategy {
	case StrategyRoundRobin:
		idx := m.rrCursor.Add(1)
		n := uint64(len(candidates))
		start := idx % n
		out := make([]*registeredProvider, 0, n)
		for i := uint64(0); i < n; i++ {
			out = append(out, candidates[(start+i)%n])
		}
		return out

	case StrategyLeastLoaded:
		out := append([]*registeredProvider(nil), candidates...)
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].inflight.Load() < out[j].inflight.Load()
		})
		return out

	case StrategyFastestResponse:
		out := append([]*registeredProvider(nil), candidates...)
		sort.SliceStable(out, func(i, j int) bool {
			si, sj := out[i].metrics.Snapshot(), out[j].metrics.Snapshot()
			return si.EMALatency < sj.EMALatency
		})
		return out

	case StrategyRandom:
		out := append([]*registeredProvider(nil), candidates...)
		rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return out

	default: // StrategyCapabilityBased, spec.md §4.B: intersect
		// function-calling providers when tools are requested, intersect
		// vision-capable providers when a message suggests images, then
		// prefer a local provider for small prompts / a large-context
		// provider for large ones, tie-breaking on fastest response.
		out := append([]*registeredProvider(nil), candidates...)
		if len(req.Tools) > 0 {
			out = intersectCapability(out, "tool_calling")
		}
		if mentionsVision(req.Messages) {
			out = intersectCapability(out, "vision")
		}
		size := promptSize(req.Messages)
		sort.SliceStable(out, func(i, j int) bool {
			pi, pj := sizePreference(out[i], size), sizePreference(out[j], size)
			if pi != pj {
				return pi < pj
			}
			si, sj := out[i].metrics.Snapshot(), out[j].metrics.Snapshot()
			return si.EMALatency < sj.EMALatency
		})
		return out
	}
}

const (
	smallPromptBytes = 1024
	largePromptBytes = 5 * 1024
)

// intersectCapability narrows to providers advertising cap, unless doing so
// would eliminate every candidate — spec.md §4.B describes an intersection,
// not a hard requirement that fails the request when nothing qualifies.
func intersectCapability(candidates []*registeredProvider, cap string) []*registeredProvider {
	out := make([]*registeredProvider, 0, len(candidates))
	for _, rp := range candidates {
		if hasAllCapabilities(rp.provider.Capabilities(), []string{cap}) {
			out = append(out, rp)
		}
	}
	if len(out) == 0 {
		return candidates
	}
	return out
}

func promptSize(messages []types.Message) int {
	n := 0
	for _, msg := range messages {
		n += len(msg.Content)
	}
	return n
}

func mentionsVision(messages []types.Message) bool {
	for _, msg := range messages {
		lc := strings.ToLower(msg.Content)
		if strings.Contains(lc, "image") || strings.Contains(lc, "vision") {
			return true
		}
	}
	return false
}

// sizePreference returns 0 for a provider matching the prompt-size
// preference (local for small prompts, large-context for large ones) and 1
// otherwise; ties (same group, or prompt size in neither band) fall through
// to the fastest-response comparator.
func sizePreference(rp *registeredProvider, size int) int {
	switch {
	case size < smallPromptBytes:
		if hasAllCapabilities(rp.provider.Capabilities(), []string{"local"}) {
			return 0
		}
	case size > largePromptBytes:
		if hasAllCapabilities(rp.provider.Capabilities(), []string{"large_context"}) {
			return 0
		}
	}
	return 1
}

func (m *Manager) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeAll(ctx)
		}
	}
}

func (m *Manager) probeAll(ctx context.Context) {
	m.mu.RLock()
	providers := make([]*registeredProvider, 0, len(m.providers))
	for _, rp := range m.providers {
		providers = append(providers, rp)
	}
	m.mu.RUnlock()

	for _, rp := range providers {
		if err := m.limiter.Wait(ctx); err != nil {
			return
		}
		probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
		status, err := rp.provider.HealthCheck(probeCtx)
		cancel()
		healthy := err == nil && status != nil && status.Healthy
		rp.metrics.RecordProbe(healthy, time.Now())
	}
}

// Stats returns a snapshot of every registered provider's health metrics,
// used by the facade's status() operation.
func (m *Manager) Stats() []ProviderMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ProviderMetricsSnapshot, 0, len(m.providers))
	for _, name := range m.order {
		out = append(out, m.providers[name].metrics.Snapshot())
	}
	return out
}
