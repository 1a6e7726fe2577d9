// Package conductor provides a lifecycle orchestrator for interdependent
// in-process components. Components are registered with a declared set of
// dependency names; the orchestrator computes a deterministic startup order,
// drives each component through timeout-bounded start and stop hooks, rolls
// back on startup failure, and continuously monitors aggregate health and
// metrics while the system is running.
//
// Basic usage:
//
//	registry := conductor.NewRegistry()
//	registry.Register(&conductor.Descriptor{
//		Name:    "database",
//		Factory: conductor.StaticFactory(db),
//	})
//	registry.Register(&conductor.Descriptor{
//		Name:         "api",
//		Factory:      func() (conductor.Component, error) { return newAPI(), nil },
//		Dependencies: []string{"database"},
//	})
//
//	orch := conductor.New(conductor.DefaultConfig(), registry, logger)
//	if err := orch.Run(); err != nil {
//		log.Fatal(err)
//	}
package conductor

import (
	"context"
	"sync"
)

// Component is the lifecycle contract every managed component fulfils.
// The orchestrator invokes Start and Stop under a deadline carried by the
// context; implementations should honor cancellation, but a hook that
// ignores it only stalls the orchestrator's wait, never the shutdown path.
type Component interface {
	// Start performs initialization. It is called after all of the
	// component's declared dependencies have reached the Running state.
	Start(ctx context.Context) error

	// Stop releases resources. It is called in reverse startup order
	// during shutdown and during rollback after a startup failure.
	Stop(ctx context.Context) error
}

// HealthChecker is an optional capability. Components implementing it are
// probed by the health monitor while Running; components without it are
// treated as healthy for as long as they are Running.
type HealthChecker interface {
	HealthCheck(ctx context.Context) HealthResult
}

// HealthResult is the outcome of a single component health probe.
type HealthResult struct {
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// MetricsProvider is an optional capability. Components implementing it are
// polled by the metrics collector while Running. The snapshot is an
// open-ended numeric map; the well-known keys in metrics.go participate in
// the system-wide aggregates.
type MetricsProvider interface {
	Metrics(ctx context.Context) (map[string]float64, error)
}

// Factory constructs a component instance. It is invoked the first time the
// component is started, and again on restart so the component comes back as
// a fresh instance.
type Factory func() (Component, error)

// StaticFactory returns a Factory that always yields the provided instance.
// Useful for components constructed ahead of registration; note that a
// restart of such a component reuses the same instance.
func StaticFactory(c Component) Factory {
	return func() (Component, error) { return c, nil }
}

// ComponentFuncs adapts plain functions to the Component interface. It is
// the adapter for components whose native entry points do not match the
// lifecycle contract: wrap them once at registration time instead of
// probing for method names at call time. A nil StopFunc is a no-op stop,
// and a nil StartFunc is a no-op start.
type ComponentFuncs struct {
	StartFunc func(ctx context.Context) error
	StopFunc  func(ctx context.Context) error
}

// Start implements Component.
func (f ComponentFuncs) Start(ctx context.Context) error {
	if f.StartFunc == nil {
		return nil
	}
	return f.StartFunc(ctx)
}

// Stop implements Component.
func (f ComponentFuncs) Stop(ctx context.Context) error {
	if f.StopFunc == nil {
		return nil
	}
	return f.StopFunc(ctx)
}

// Status represents the lifecycle state of a single component.
type Status string

const (
	// StatusRegistered is the initial state after registration.
	StatusRegistered Status = "registered"

	// StatusStarting means the start hook is in flight.
	StatusStarting Status = "starting"

	// StatusRunning means the component started successfully.
	StatusRunning Status = "running"

	// StatusStopping means the stop hook is in flight.
	StatusStopping Status = "stopping"

	// StatusStopped means the component stopped cleanly.
	StatusStopped Status = "stopped"

	// StatusFailed means a start or stop hook errored or timed out.
	StatusFailed Status = "failed"
)

// Descriptor is the registry record describing a component: its identity,
// construction, declared dependencies, and current status. Descriptors are
// owned by the Registry and referenced, never copied, by the orchestrator.
type Descriptor struct {
	// Name uniquely identifies the component within the registry.
	Name string

	// Factory constructs the component instance. Required.
	Factory Factory

	// Dependencies lists the names of components that must be Running
	// before this component is started.
	Dependencies []string

	// Optional marks the component as advisory: a start failure is logged
	// and skipped instead of aborting startup with a rollback. The zero
	// value keeps the strict, system-fatal semantics.
	Optional bool

	mu       sync.RWMutex
	status   Status
	instance Component
}

// Status returns the component's current lifecycle state.
func (d *Descriptor) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

func (d *Descriptor) setStatus(s Status) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
}

// component returns the constructed instance, building it on first use.
func (d *Descriptor) component() (Component, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.instance != nil {
		return d.instance, nil
	}
	instance, err := d.Factory()
	if err != nil {
		return nil, err
	}
	d.instance = instance
	return instance, nil
}

// resetInstance discards the current instance so the next start constructs
// a fresh one. Used by restart.
func (d *Descriptor) resetInstance() {
	d.mu.Lock()
	d.instance = nil
	d.mu.Unlock()
}

// currentInstance returns the instance without constructing one.
func (d *Descriptor) currentInstance() Component {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.instance
}
