package llmmanager

import (
	"sync"
	"time"

	"github.com/BaSui01/agentcore/resilience/analysis"
)

// recentFailureWindow bounds how many failure timestamps ProviderMetrics
// keeps for analysis.Classify — enough to distinguish a cascading burst from
// an intermittent trickle without growing unbounded over a long-lived
// provider's lifetime.
const recentFailureWindow = 10

// ProviderMetrics tracks a provider's rolling health signal: an
// exponentially-weighted moving average of response latency and a
// consecutive-failure counter, plus the last active health-probe result.
// Grounded on the teacher's HealthMonitor (per-provider score map guarded by
// a single mutex, active-probe short-circuit to unhealthy) but trimmed of
// the gorm/QPS-limit machinery that doesn't fit this module's simpler
// provider set.
type ProviderMetrics struct {
	mu                 sync.RWMutex
	name               string
	emaLatency         time.Duration
	emaAlpha           float64
	consecutiveFails   int
	totalCalls         int64
	totalFailures      int64
	lastProbeHealthy   bool
	lastProbeAt        time.Time
	lastProbeSet       bool
	recentFailures     []time.Time
}

func newProviderMetrics(name string) *ProviderMetrics {
	return &ProviderMetrics{name: name, emaAlpha: 0.2, lastProbeHealthy: true}
}

// RecordCall updates the EMA latency and failure streak after a completion
// attempt. Call with success=true even when the response is a client error,
// per the same reasoning breaker.isClientError uses — only unavailability
// should move the health score.
func (m *ProviderMetrics) RecordCall(latency time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalCalls++
	if m.emaLatency == 0 {
		m.emaLatency = latency
	} else {
		m.emaLatency = time.Duration(m.emaAlpha*float64(latency) + (1-m.emaAlpha)*float64(m.emaLatency))
	}

	if success {
		m.consecutiveFails = 0
	} else {
		m.consecutiveFails++
		m.totalFailures++
		m.recentFailures = append(m.recentFailures, time.Now())
		if len(m.recentFailures) > recentFailureWindow {
			m.recentFailures = m.recentFailures[len(m.recentFailures)-recentFailureWindow:]
		}
	}
}

// RecordProbe records the outcome of an active (out-of-band) health check.
func (m *ProviderMetrics) RecordProbe(healthy bool, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastProbeHealthy = healthy
	m.lastProbeAt = at
	m.lastProbeSet = true
}

// Score returns a [0,1] health score: 0 means "do not route here", 1 means
// fully healthy. An active probe failure always wins; otherwise the score
// decays with the consecutive failure streak.
func (m *ProviderMetrics) Score() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.lastProbeSet && !m.lastProbeHealthy {
		return 0.0
	}
	if m.consecutiveFails == 0 {
		return 1.0
	}
	score := 1.0 / float64(m.consecutiveFails+1)
	if score < 0 {
		return 0
	}
	return score
}

// Snapshot returns a point-in-time read of the metrics for status reporting.
func (m *ProviderMetrics) Snapshot() ProviderMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	failures := make([]analysis.Failure, len(m.recentFailures))
	for i, at := range m.recentFailures {
		failures[i] = analysis.Failure{At: at}
	}

	return ProviderMetricsSnapshot{
		Name:             m.name,
		EMALatency:       m.emaLatency,
		ConsecutiveFails: m.consecutiveFails,
		TotalCalls:       m.totalCalls,
		TotalFailures:    m.totalFailures,
		Healthy:          !m.lastProbeSet || m.lastProbeHealthy,
		LastProbeAt:      m.lastProbeAt,
		FailurePattern:   analysis.Classify(failures),
	}
}

// ProviderMetricsSnapshot is an immutable read of ProviderMetrics.
type ProviderMetricsSnapshot struct {
	Name             string
	EMALatency       time.Duration
	ConsecutiveFails int
	TotalCalls       int64
	TotalFailures    int64
	Healthy          bool
	LastProbeAt      time.Time
	// FailurePattern diagnoses the shape of recent failures (PERSISTENT,
	// INTERMITTENT, CASCADING, TRANSIENT, or UNKNOWN with fewer than two
	// recorded failures) for operator-facing status, independent of the
	// breaker's own open/closed decision.
	FailurePattern analysis.Pattern
}
