package lending

import (
	"time"
)

// Logger interface for operational logging, warnings, and error reporting.
// It matches the method set of log/slog so a *slog.Logger satisfies it
// directly, while staying dependency-free for other backends.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsCollector interface for collecting performance and operational
// metrics from the Engine and the storage engines. Implementations can
// bridge to any metrics backend; the core stays dependency-free.
type MetricsCollector interface {
	RecordDuration(metric string, duration time.Duration, labels map[string]string)
	IncrementCounter(metric string, labels map[string]string)
}
