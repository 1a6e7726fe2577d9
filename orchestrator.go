package conductor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
)

// SystemState represents the state of the orchestrated system as a whole.
type SystemState string

const (
	// StateStopped means no components are running.
	StateStopped SystemState = "stopped"

	// StateStarting means a system start is in progress.
	StateStarting SystemState = "starting"

	// StateRunning means all critical components started successfully.
	StateRunning SystemState = "running"

	// StateStopping means a system stop is in progress.
	StateStopping SystemState = "stopping"

	// StateError means startup failed (after rollback) or a fatal runtime
	// fault was reported.
	StateError SystemState = "error"
)

// SystemStatus is the operational snapshot returned by Status.
type SystemStatus struct {
	State       SystemState       `json:"state"`
	HealthScore int               `json:"healthScore"`
	Uptime      string            `json:"uptime"`
	Components  map[string]Status `json:"components"`
}

// errHookTimeout marks a hook invocation abandoned by the orchestrator. The
// caller rewraps it as ErrStartTimeout or ErrStopTimeout.
var errHookTimeout = errors.New("hook deadline exceeded")

// Orchestrator drives registered components through startup and shutdown in
// dependency order, enforces per-hook timeouts, rolls back on startup
// failure, and runs the periodic health and metrics monitors while the
// system is up. It implements Subject, so lifecycle observers register
// directly on the orchestrator.
//
// Only one system-wide start or stop operation may be in flight at a time;
// a concurrent second call fails fast with ErrSystemBusy rather than
// blocking or queuing.
type Orchestrator struct {
	*eventBus

	registry *Registry
	logger   Logger

	// opMu serializes Start, Stop, and RestartComponent. Contenders use
	// TryLock so the losing call fails fast instead of queuing.
	opMu sync.Mutex

	mu              sync.RWMutex
	config          *Config
	state           SystemState
	startupSequence []string
	startedAt       time.Time
	sched           *cron.Cron
	monitorCancel   context.CancelFunc
	ctx             context.Context
	cancel          context.CancelFunc

	health  *HealthMonitor
	metrics *MetricsCollector

	shutdownOnce sync.Once
	fatalCh      chan error
}

// New creates an orchestrator governing the components in registry. A nil
// config uses DefaultConfig. The registry is owned by the orchestrator from
// this point on.
func New(config *Config, registry *Registry, logger Logger) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	config.normalize()

	bus := newEventBus(logger)
	o := &Orchestrator{
		eventBus: bus,
		registry: registry,
		logger:   logger,
		config:   config,
		state:    StateStopped,
		fatalCh:  make(chan error, 1),
	}
	o.health = newHealthMonitor(registry, bus, logger, config.HealthTimeout.Std())
	o.metrics = newMetricsCollector(registry, bus, logger, config.MetricsTimeout.Std())
	return o
}

// Registry returns the component registry owned by this orchestrator.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Health returns the health monitor.
func (o *Orchestrator) Health() *HealthMonitor {
	return o.health
}

// Metrics returns the metrics collector.
func (o *Orchestrator) Metrics() *MetricsCollector {
	return o.metrics
}

// State returns the current system state.
func (o *Orchestrator) State() SystemState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// StartupSequence returns the most recently computed startup order.
func (o *Orchestrator) StartupSequence() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]string(nil), o.startupSequence...)
}

func (o *Orchestrator) setState(s SystemState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Start validates the dependency graph, then walks the computed startup
// sequence, starting each component under the configured timeout. On the
// first critical failure the remaining sequence is aborted and every
// already-started component is stopped again in reverse order; the returned
// *StartError identifies the failed component and any rollback failures.
//
// Graph validation is fail-fast with zero side effects: if it fails, no
// component has been started.
func (o *Orchestrator) Start() error {
	if !o.opMu.TryLock() {
		return ErrSystemBusy
	}
	defer o.opMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())

	o.mu.Lock()
	if o.state == StateRunning {
		o.mu.Unlock()
		cancel()
		return ErrSystemAlreadyRunning
	}
	o.state = StateStarting
	o.ctx = ctx
	o.cancel = cancel
	cfg := o.config
	o.mu.Unlock()

	sequence, err := BuildSequence(o.registry.List())
	if err != nil {
		o.setState(StateStopped)
		cancel()
		return err
	}

	o.mu.Lock()
	o.startupSequence = sequence
	o.mu.Unlock()

	o.logger.Debug("Computed startup sequence", "order", sequence)

	var started []string
	for _, name := range sequence {
		descriptor, err := o.registry.Get(name)
		if err != nil {
			// Registry is append-only; a sequenced name is always present.
			o.setState(StateError)
			cancel()
			return err
		}

		if err := o.startComponent(ctx, descriptor, cfg.StartTimeout.Std()); err != nil {
			descriptor.setStatus(StatusFailed)
			o.emit(ctx, EventTypeComponentFailed, map[string]interface{}{
				"component": name,
				"error":     err.Error(),
			})

			if descriptor.Optional {
				o.logger.Warn("Optional component failed to start, continuing",
					"component", name, "error", err)
				continue
			}

			o.logger.Error("Component failed to start, rolling back",
				"component", name, "error", err)
			rollbackErrs := o.rollback(started, cfg.StopTimeout.Std())
			o.setState(StateError)
			cancel()
			return &StartError{Component: name, Err: err, RollbackErrors: rollbackErrs}
		}

		descriptor.setStatus(StatusRunning)
		started = append(started, name)
		o.emit(ctx, EventTypeComponentStarted, map[string]interface{}{"component": name})
	}

	o.mu.Lock()
	o.state = StateRunning
	o.startedAt = time.Now()
	o.mu.Unlock()

	o.startMonitors(ctx, cfg)
	o.emit(ctx, EventTypeSystemStarted, map[string]interface{}{"components": len(started)})
	o.logger.Info("System started", "components", len(started))
	return nil
}

// startComponent re-verifies dependencies, constructs the instance if
// needed, and runs the start hook under the timeout.
func (o *Orchestrator) startComponent(ctx context.Context, d *Descriptor, timeout time.Duration) error {
	// Defensive re-verification beyond the ordering guarantee: every
	// dependency must already be Running.
	for _, dep := range d.Dependencies {
		depDescriptor, err := o.registry.Get(dep)
		if err != nil {
			return err
		}
		if status := depDescriptor.Status(); status != StatusRunning {
			return fmt.Errorf("%w: %s requires %s, which is %s",
				ErrDependencyNotRunning, d.Name, dep, status)
		}
	}

	d.setStatus(StatusStarting)
	o.logger.Info("Starting component", "component", d.Name)

	instance, err := d.component()
	if err != nil {
		return fmt.Errorf("%w: constructing %s: %v", ErrStartFailed, d.Name, err)
	}

	if err := runHook(ctx, timeout, instance.Start); err != nil {
		if errors.Is(err, errHookTimeout) {
			return fmt.Errorf("%w: %s after %s", ErrStartTimeout, d.Name, timeout)
		}
		return fmt.Errorf("%w: %s: %v", ErrStartFailed, d.Name, err)
	}

	return nil
}

// rollback stops already-started components in reverse order. It is
// best-effort: a failure is recorded and logged but never stops the
// rollback from continuing.
func (o *Orchestrator) rollback(started []string, stopTimeout time.Duration) []error {
	var rollbackErrs []error
	for i := len(started) - 1; i >= 0; i-- {
		name := started[i]
		descriptor, err := o.registry.Get(name)
		if err != nil {
			rollbackErrs = append(rollbackErrs, err)
			continue
		}

		instance := descriptor.currentInstance()
		if instance == nil {
			descriptor.setStatus(StatusStopped)
			continue
		}

		descriptor.setStatus(StatusStopping)
		o.logger.Info("Rolling back component", "component", name)

		if err := runHook(context.Background(), stopTimeout, instance.Stop); err != nil {
			descriptor.setStatus(StatusFailed)
			rollbackErr := fmt.Errorf("rollback of %q: %v", name, err)
			rollbackErrs = append(rollbackErrs, rollbackErr)
			o.logger.Warn("Rollback stop failed, continuing", "component", name, "error", err)
			continue
		}

		descriptor.setStatus(StatusStopped)
		o.emit(context.Background(), EventTypeComponentStopped, map[string]interface{}{"component": name})
	}
	return rollbackErrs
}

// Stop walks the shutdown sequence (the exact reverse of the most recently
// computed startup sequence) and stops every component currently Running or
// Failed under the configured timeout. A stop timeout is logged as a warning
// and shutdown proceeds to the next component: the system always reaches
// Stopped so the process can exit. Individual stop failures are aggregated
// in the returned error but are non-fatal to the shutdown path.
func (o *Orchestrator) Stop() error {
	if !o.opMu.TryLock() {
		return ErrSystemBusy
	}
	defer o.opMu.Unlock()

	o.mu.Lock()
	if o.state == StateStopped {
		o.mu.Unlock()
		return nil
	}
	o.state = StateStopping
	sequence := ShutdownSequence(o.startupSequence)
	cfg := o.config
	cancel := o.cancel
	o.mu.Unlock()

	o.stopMonitors()

	var stopErrs []error
	for _, name := range sequence {
		descriptor, err := o.registry.Get(name)
		if err != nil {
			stopErrs = append(stopErrs, err)
			continue
		}

		status := descriptor.Status()
		if status != StatusRunning && status != StatusFailed {
			continue
		}

		instance := descriptor.currentInstance()
		if instance == nil {
			descriptor.setStatus(StatusStopped)
			continue
		}

		descriptor.setStatus(StatusStopping)
		o.logger.Info("Stopping component", "component", name)

		if err := runHook(context.Background(), cfg.StopTimeout.Std(), instance.Stop); err != nil {
			descriptor.setStatus(StatusFailed)
			if errors.Is(err, errHookTimeout) {
				err = fmt.Errorf("%w: %s after %s", ErrStopTimeout, name, cfg.StopTimeout)
				o.logger.Warn("Component stop timed out, continuing shutdown",
					"component", name, "timeout", cfg.StopTimeout)
			} else {
				o.logger.Error("Error stopping component", "component", name, "error", err)
			}
			stopErrs = append(stopErrs, err)
			o.emit(context.Background(), EventTypeComponentFailed, map[string]interface{}{
				"component": name,
				"error":     err.Error(),
			})
			continue
		}

		descriptor.setStatus(StatusStopped)
		o.emit(context.Background(), EventTypeComponentStopped, map[string]interface{}{"component": name})
	}

	if cancel != nil {
		cancel()
	}

	o.setState(StateStopped)
	o.emit(context.Background(), EventTypeSystemStopped, nil)
	o.logger.Info("System stopped")

	return errors.Join(stopErrs...)
}

// RestartComponent stops and restarts a single named component, constructing
// a fresh instance through its factory. The restart does not cascade to
// dependents that are currently Running: a dependent left running against a
// freshly-restarted dependency is an accepted limitation of this design.
func (o *Orchestrator) RestartComponent(name string) error {
	if !o.opMu.TryLock() {
		return ErrSystemBusy
	}
	defer o.opMu.Unlock()

	o.mu.RLock()
	cfg := o.config
	ctx := o.ctx
	running := o.state == StateRunning
	o.mu.RUnlock()

	if !running {
		return fmt.Errorf("%w: cannot restart %s", ErrSystemNotRunning, name)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	descriptor, err := o.registry.Get(name)
	if err != nil {
		return err
	}

	o.logger.Info("Restarting component", "component", name)

	if status := descriptor.Status(); status == StatusRunning || status == StatusFailed {
		if instance := descriptor.currentInstance(); instance != nil {
			descriptor.setStatus(StatusStopping)
			if err := runHook(context.Background(), cfg.StopTimeout.Std(), instance.Stop); err != nil {
				// Best-effort: the old instance is discarded either way.
				o.logger.Warn("Error stopping component during restart",
					"component", name, "error", err)
			}
			descriptor.setStatus(StatusStopped)
		}
	}

	descriptor.resetInstance()

	if err := o.startComponent(ctx, descriptor, cfg.StartTimeout.Std()); err != nil {
		descriptor.setStatus(StatusFailed)
		o.emit(ctx, EventTypeComponentFailed, map[string]interface{}{
			"component": name,
			"error":     err.Error(),
		})
		return err
	}

	descriptor.setStatus(StatusRunning)
	o.emit(ctx, EventTypeComponentRestarted, map[string]interface{}{"component": name})
	return nil
}

// Status returns the operational snapshot: system state, aggregate health
// score, uptime, and per-component status. It is read-only: the health score
// reflects the most recent monitoring cycle and defaults to optimistic until
// the first cycle completes. Status never runs probes itself.
func (o *Orchestrator) Status(_ context.Context) SystemStatus {
	o.mu.RLock()
	state := o.state
	startedAt := o.startedAt
	o.mu.RUnlock()

	uptime := time.Duration(0)
	if state == StateRunning && !startedAt.IsZero() {
		uptime = time.Since(startedAt)
	}

	summary, ok := o.health.LastSummary()
	if !ok {
		summary = HealthSummary{Score: 100}
	}

	components := make(map[string]Status)
	for _, d := range o.registry.List() {
		components[d.Name] = d.Status()
	}

	return SystemStatus{
		State:       state,
		HealthScore: summary.Score,
		Uptime:      uptime.Round(time.Second).String(),
		Components:  components,
	}
}

// Fatal reports an unrecoverable runtime error. The system transitions to
// the Error state and the graceful shutdown path is triggered through Run.
func (o *Orchestrator) Fatal(err error) {
	o.logger.Error("Fatal runtime error", "error", err)

	o.mu.Lock()
	if o.state == StateRunning {
		o.state = StateError
	}
	o.mu.Unlock()

	select {
	case o.fatalCh <- err:
	default:
	}
}

// Shutdown runs the graceful shutdown path exactly once. A second call
// while shutdown is in progress (or after it completed) is observed and
// logged but does not re-enter the shutdown routine.
func (o *Orchestrator) Shutdown() error {
	triggered := false
	var err error
	o.shutdownOnce.Do(func() {
		triggered = true
		err = o.Stop()
	})
	if !triggered {
		o.logger.Warn("Shutdown already triggered, ignoring")
		return nil
	}
	return err
}

// Run starts the system and blocks until an OS termination signal or a
// fatal runtime error triggers the graceful shutdown path. Signals arriving
// while shutdown is in progress are logged and otherwise ignored.
func (o *Orchestrator) Run() error {
	if err := o.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		o.logger.Info("Received signal, shutting down", "signal", sig)
	case err := <-o.fatalCh:
		o.logger.Error("Shutting down after fatal error", "error", err)
	}

	drainDone := make(chan struct{})
	defer close(drainDone)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				o.logger.Warn("Shutdown already in progress, ignoring signal", "signal", sig)
			case <-drainDone:
				return
			}
		}
	}()

	return o.Shutdown()
}

// Reconfigure applies a new configuration. Monitor cadences take effect
// immediately when the system is running; timeouts apply to subsequent
// hook invocations. Reconfigure is serialized with Start and Stop, so a
// reload racing a shutdown can never revive the monitors after they were
// torn down.
func (o *Orchestrator) Reconfigure(config *Config) {
	if config == nil {
		return
	}
	config.normalize()

	o.opMu.Lock()
	defer o.opMu.Unlock()

	o.mu.Lock()
	o.config = config
	running := o.state == StateRunning
	ctx := o.ctx
	o.mu.Unlock()

	o.health.setTimeout(config.HealthTimeout.Std())
	o.metrics.setTimeout(config.MetricsTimeout.Std())

	if running {
		o.stopMonitors()
		o.startMonitors(ctx, config)
	}

	o.emit(context.Background(), EventTypeConfigReloaded, map[string]interface{}{
		"healthInterval":  config.HealthInterval.String(),
		"metricsInterval": config.MetricsInterval.String(),
	})
	o.logger.Info("Configuration applied",
		"healthInterval", config.HealthInterval,
		"metricsInterval", config.MetricsInterval)
}

// startMonitors schedules the periodic health and metrics jobs on a cron
// runner whose lifetime is tied to the orchestrator: stopMonitors cancels
// it deterministically so no background work leaks past shutdown.
func (o *Orchestrator) startMonitors(ctx context.Context, cfg *Config) {
	monitorCtx, monitorCancel := context.WithCancel(ctx)
	sched := cron.New()

	if _, err := sched.AddFunc(fmt.Sprintf("@every %s", cfg.HealthInterval), func() {
		o.health.Check(monitorCtx)
	}); err != nil {
		o.logger.Error("Failed to schedule health monitor", "error", err)
	}

	if _, err := sched.AddFunc(fmt.Sprintf("@every %s", cfg.MetricsInterval), func() {
		o.metrics.Collect(monitorCtx)
	}); err != nil {
		o.logger.Error("Failed to schedule metrics collector", "error", err)
	}

	sched.Start()

	o.mu.Lock()
	o.sched = sched
	o.monitorCancel = monitorCancel
	o.mu.Unlock()

	// Prime the caches so status queries observe a cycle right away instead
	// of waiting out the first interval.
	go o.health.Check(monitorCtx)
	go o.metrics.Collect(monitorCtx)
}

// stopMonitors cancels the monitor context, then stops the cron runner and
// waits for in-flight jobs. Cancelling first means a cycle blocked on a
// well-behaved component returns immediately, and probe and poll timeouts
// bound the wait on any component that ignores its context.
func (o *Orchestrator) stopMonitors() {
	o.mu.Lock()
	sched := o.sched
	monitorCancel := o.monitorCancel
	o.sched = nil
	o.monitorCancel = nil
	o.mu.Unlock()

	if monitorCancel != nil {
		monitorCancel()
	}
	if sched != nil {
		<-sched.Stop().Done()
	}
}

// runHook races a lifecycle hook against the timeout. On timeout the
// orchestrator abandons its wait and returns errHookTimeout; the underlying
// hook is not interrupted beyond context cancellation, so a hook that
// ignores its context keeps running in the background. True interruption
// would require a separate execution boundary such as a subprocess.
func runHook(ctx context.Context, timeout time.Duration, hook func(context.Context) error) error {
	hookCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("hook panicked: %v", r)
			}
		}()
		done <- hook(hookCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-hookCtx.Done():
		return errHookTimeout
	}
}
