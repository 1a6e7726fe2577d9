// Periodic health monitoring for running components. Components opt in by
// implementing HealthChecker; components without a probe are treated as
// healthy while running, so a system of probe-less components reports a
// perfect score rather than an unknown one.
package conductor

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ComponentHealth is the outcome of a single component probe.
type ComponentHealth struct {
	Component string        `json:"component"`
	Healthy   bool          `json:"healthy"`
	Detail    string        `json:"detail,omitempty"`
	Duration  time.Duration `json:"duration"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// HealthSummary aggregates one monitoring cycle over all running components.
// Score is 100 * healthy / total, rounded down; an empty system scores 100.
type HealthSummary struct {
	Score     int               `json:"score"`
	Healthy   int               `json:"healthy"`
	Unhealthy int               `json:"unhealthy"`
	Results   []ComponentHealth `json:"results"`
	CheckedAt time.Time         `json:"checkedAt"`
}

// HealthMonitor probes running components and aggregates the results into a
// system health score. Probes run concurrently, each bounded by the probe
// timeout, with panic recovery so a faulty probe is reported as unhealthy
// rather than crashing the monitoring cycle.
type HealthMonitor struct {
	registry *Registry
	bus      *eventBus
	logger   Logger

	mu      sync.RWMutex
	timeout time.Duration
	last    *HealthSummary
}

func newHealthMonitor(registry *Registry, bus *eventBus, logger Logger, timeout time.Duration) *HealthMonitor {
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	return &HealthMonitor{
		registry: registry,
		bus:      bus,
		logger:   logger,
		timeout:  timeout,
	}
}

func (m *HealthMonitor) setTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	m.mu.Lock()
	m.timeout = timeout
	m.mu.Unlock()
}

// LastSummary returns the most recent monitoring cycle's summary, or false
// if no cycle has completed yet.
func (m *HealthMonitor) LastSummary() (HealthSummary, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return HealthSummary{}, false
	}
	return *m.last, true
}

// Check runs one monitoring cycle: it probes every currently Running
// component, aggregates the results into a summary, stores it as the latest
// observation, and publishes a health event. Components that leave the
// Running state while their probe is in flight are dropped from the summary
// so a component stopped mid-probe never registers as a failure.
func (m *HealthMonitor) Check(ctx context.Context) HealthSummary {
	m.mu.RLock()
	timeout := m.timeout
	m.mu.RUnlock()

	var running []*Descriptor
	for _, d := range m.registry.List() {
		if d.Status() == StatusRunning {
			running = append(running, d)
		}
	}

	results := make([]ComponentHealth, len(running))
	var wg sync.WaitGroup
	for i, d := range running {
		wg.Add(1)
		go func(i int, d *Descriptor) {
			defer wg.Done()
			results[i] = m.probe(ctx, d, timeout)
		}(i, d)
	}
	wg.Wait()

	summary := HealthSummary{CheckedAt: time.Now()}
	for i, d := range running {
		// Discard stale observations for components that stopped or
		// failed while the probe ran.
		if d.Status() != StatusRunning {
			continue
		}
		summary.Results = append(summary.Results, results[i])
		if results[i].Healthy {
			summary.Healthy++
		} else {
			summary.Unhealthy++
		}
	}

	total := summary.Healthy + summary.Unhealthy
	if total == 0 {
		summary.Score = 100
	} else {
		summary.Score = 100 * summary.Healthy / total
	}

	m.mu.Lock()
	m.last = &summary
	m.mu.Unlock()

	if summary.Unhealthy > 0 {
		m.logger.Warn("Health check completed with unhealthy components",
			"score", summary.Score, "unhealthy", summary.Unhealthy)
	} else {
		m.logger.Debug("Health check completed", "score", summary.Score, "checked", total)
	}

	m.bus.emit(ctx, EventTypeHealthCheckCompleted, summary)
	return summary
}

// probe runs a single component's health check under the probe timeout. A
// component without a HealthChecker implementation is optimistically healthy.
func (m *HealthMonitor) probe(ctx context.Context, d *Descriptor, timeout time.Duration) ComponentHealth {
	start := time.Now()
	result := ComponentHealth{Component: d.Name, CheckedAt: start}

	instance := d.currentInstance()
	if instance == nil {
		result.Healthy = true
		result.Detail = "no instance"
		return result
	}

	checker, ok := instance.(HealthChecker)
	if !ok {
		result.Healthy = true
		result.Detail = "no health probe"
		return result
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan HealthResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- HealthResult{Healthy: false, Detail: fmt.Sprintf("probe panicked: %v", r)}
			}
		}()
		done <- checker.HealthCheck(probeCtx)
	}()

	select {
	case probed := <-done:
		result.Healthy = probed.Healthy
		result.Detail = probed.Detail
	case <-probeCtx.Done():
		result.Healthy = false
		result.Detail = fmt.Sprintf("probe timed out after %s", timeout)
	}

	result.Duration = time.Since(start)
	return result
}
