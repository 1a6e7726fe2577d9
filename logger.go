package conductor

// Logger defines the interface for orchestrator logging.
// It uses structured logging with variadic key-value pairs:
//
//	logger.Info("Starting component", "component", "database")
//
// This shape is compatible with popular structured logging libraries such as
// slog, logrus, and zap. An application passes its own implementation to New;
// the orchestrator never logs through a global.
type Logger interface {
	// Info logs an informational message with optional key-value pairs.
	Info(msg string, args ...any)

	// Error logs an error message with optional key-value pairs.
	Error(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, args ...any)

	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, args ...any)
}
