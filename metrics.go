// Periodic metrics collection from running components. Components opt in by
// implementing MetricsProvider; per-component collection failures are
// isolated so one faulty provider never hides the rest of the snapshot.
package conductor

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Well-known metric keys that participate in the system-wide aggregates.
// Components are free to report any additional keys; those are carried in
// the snapshot verbatim but do not feed the aggregates.
const (
	MetricRequests  = "requests"
	MetricErrors    = "errors"
	MetricLatencyMs = "latency_ms"
)

// MetricsSnapshot is one collection cycle over all running components.
// AvgLatencyMs is the request-weighted average of each component's reported
// latency; a component reporting latency without a request count contributes
// with weight 1 so its observation is never silently dropped.
type MetricsSnapshot struct {
	Components    map[string]map[string]float64 `json:"components"`
	TotalRequests float64                       `json:"totalRequests"`
	TotalErrors   float64                       `json:"totalErrors"`
	AvgLatencyMs  float64                       `json:"avgLatencyMs"`
	CollectedAt   time.Time                     `json:"collectedAt"`
}

// MetricsCollector polls running components for their metric snapshots and
// aggregates the well-known keys into system totals. Each poll is bounded by
// the poll timeout, so a hung provider costs one cycle its data, never the
// collector's cadence or the shutdown path behind it.
type MetricsCollector struct {
	registry *Registry
	bus      *eventBus
	logger   Logger

	mu      sync.RWMutex
	timeout time.Duration
	last    *MetricsSnapshot
}

func newMetricsCollector(registry *Registry, bus *eventBus, logger Logger, timeout time.Duration) *MetricsCollector {
	if timeout <= 0 {
		timeout = DefaultMetricsTimeout
	}
	return &MetricsCollector{
		registry: registry,
		bus:      bus,
		logger:   logger,
		timeout:  timeout,
	}
}

func (c *MetricsCollector) setTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	c.mu.Lock()
	c.timeout = timeout
	c.mu.Unlock()
}

// LastSnapshot returns the most recent collection cycle's snapshot, or
// false if no cycle has completed yet.
func (c *MetricsCollector) LastSnapshot() (MetricsSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return MetricsSnapshot{}, false
	}
	return *c.last, true
}

// Collect runs one collection cycle: it polls every currently Running
// component that implements MetricsProvider, aggregates the well-known keys,
// stores the snapshot as the latest observation, and publishes a metrics
// event. A provider error or panic drops that component from this cycle and
// is logged; the cycle itself always completes.
func (c *MetricsCollector) Collect(ctx context.Context) MetricsSnapshot {
	c.mu.RLock()
	timeout := c.timeout
	c.mu.RUnlock()

	snapshot := MetricsSnapshot{
		Components:  make(map[string]map[string]float64),
		CollectedAt: time.Now(),
	}

	var weightedLatency, latencyWeight float64

	for _, d := range c.registry.List() {
		if d.Status() != StatusRunning {
			continue
		}
		instance := d.currentInstance()
		if instance == nil {
			continue
		}
		provider, ok := instance.(MetricsProvider)
		if !ok {
			continue
		}

		values, err := c.poll(ctx, provider, timeout)
		if err != nil {
			c.logger.Warn("Metrics collection failed for component",
				"component", d.Name, "error", err)
			continue
		}

		snapshot.Components[d.Name] = values
		snapshot.TotalRequests += values[MetricRequests]
		snapshot.TotalErrors += values[MetricErrors]

		if latency, ok := values[MetricLatencyMs]; ok {
			weight := values[MetricRequests]
			if weight <= 0 {
				weight = 1
			}
			weightedLatency += latency * weight
			latencyWeight += weight
		}
	}

	if latencyWeight > 0 {
		snapshot.AvgLatencyMs = weightedLatency / latencyWeight
	}

	c.mu.Lock()
	c.last = &snapshot
	c.mu.Unlock()

	c.logger.Debug("Metrics collected",
		"components", len(snapshot.Components),
		"requests", snapshot.TotalRequests,
		"errors", snapshot.TotalErrors)

	c.bus.emit(ctx, EventTypeMetricsUpdated, snapshot)
	return snapshot
}

// poll races a single provider against the poll timeout, with panic
// recovery. On timeout the collector abandons its wait; a provider that
// ignores its context keeps running in the background, but the cycle, and
// any shutdown waiting behind it, always proceeds.
func (c *MetricsCollector) poll(ctx context.Context, provider MetricsProvider, timeout time.Duration) (map[string]float64, error) {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type pollResult struct {
		values map[string]float64
		err    error
	}
	done := make(chan pollResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- pollResult{err: fmt.Errorf("metrics provider panicked: %v", r)}
			}
		}()
		values, err := provider.Metrics(pollCtx)
		done <- pollResult{values: values, err: err}
	}()

	select {
	case result := <-done:
		return result.values, result.err
	case <-pollCtx.Done():
		return nil, fmt.Errorf("metrics poll timed out after %s", timeout)
	}
}
