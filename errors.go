package conductor

import (
	"errors"
	"fmt"
	"strings"
)

// Orchestrator errors
var (
	// Registry errors
	ErrComponentAlreadyRegistered = errors.New("component already registered")
	ErrComponentNotFound          = errors.New("component not found")
	ErrComponentNameEmpty         = errors.New("component name cannot be empty")
	ErrComponentFactoryNil        = errors.New("component factory cannot be nil")

	// Dependency resolution errors
	ErrUnknownDependency  = errors.New("component depends on unregistered component")
	ErrCircularDependency = errors.New("circular dependency detected")

	// Lifecycle errors
	ErrStartFailed          = errors.New("component start failed")
	ErrStartTimeout         = errors.New("component start timed out")
	ErrStopTimeout          = errors.New("component stop timed out")
	ErrDependencyNotRunning = errors.New("component dependency is not running")
	ErrSystemBusy           = errors.New("a system start or stop operation is already in flight")
	ErrSystemAlreadyRunning = errors.New("system is already running")
	ErrSystemNotRunning     = errors.New("system is not running")

	// Configuration errors
	ErrConfigPathEmpty         = errors.New("config path cannot be empty")
	ErrUnsupportedConfigFormat = errors.New("unsupported config file format")
	ErrConfigInvalidStructure  = errors.New("config target must be a pointer to struct")
)

// StartError is the aggregate error returned when a system start aborts. It
// identifies the component whose start hook failed and carries any failures
// observed while rolling back the components that had already started.
// Rollback failures never stop the rollback from continuing, and they are
// never silently dropped.
type StartError struct {
	// Component is the name of the component that failed to start.
	Component string

	// Err is the underlying start failure (hook error or timeout).
	Err error

	// RollbackErrors holds failures from the best-effort reverse-order
	// stop of already-started components.
	RollbackErrors []error
}

// Error implements the error interface.
func (e *StartError) Error() string {
	msg := fmt.Sprintf("failed to start component %q: %v", e.Component, e.Err)
	if len(e.RollbackErrors) > 0 {
		parts := make([]string, 0, len(e.RollbackErrors))
		for _, rbErr := range e.RollbackErrors {
			parts = append(parts, rbErr.Error())
		}
		msg += fmt.Sprintf(" (rollback failures: %s)", strings.Join(parts, "; "))
	}
	return msg
}

// Unwrap exposes the underlying start failure for errors.Is / errors.As.
func (e *StartError) Unwrap() error {
	return e.Err
}
