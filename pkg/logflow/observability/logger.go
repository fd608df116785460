// Package observability provides structured logging, metrics and tracing
// for logflow channels, processors and runners.
//
// Logging uses log/slog. Metrics and tracing use OpenTelemetry and pick up
// the global providers. Every feature has a no-op implementation, and the
// logging helpers accept a nil logger.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds component context to a logger.
//
// Example:
//
//	logger = EnrichLogger(logger, "channel", "mem1")
//	logger.Info("started") // includes component and name
func EnrichLogger(logger *slog.Logger, component, name string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("component", component),
		slog.String("name", name),
	)
}

// LogComponentStarted logs a lifecycle start.
func LogComponentStarted(logger *slog.Logger, component, name string) {
	if logger == nil {
		return
	}
	logger.Info("component started",
		slog.String("component", component),
		slog.String("name", name),
	)
}

// LogComponentStopped logs a lifecycle stop.
func LogComponentStopped(logger *slog.Logger, component, name string) {
	if logger == nil {
		return
	}
	logger.Info("component stopped",
		slog.String("component", component),
		slog.String("name", name),
	)
}

// LogChannelConfigured logs the effective memory channel limits.
func LogChannelConfigured(logger *slog.Logger, channel string, capacity, txCapacity, byteSlots int64) {
	if logger == nil {
		return
	}
	logger.Debug("channel configured",
		slog.String("channel", channel),
		slog.Int64("capacity", capacity),
		slog.Int64("transaction_capacity", txCapacity),
		slog.Int64("byte_slots", byteSlots),
	)
}

// LogTxRollback logs a transaction rolled back after a failure.
func LogTxRollback(logger *slog.Logger, channel, txID string, err error) {
	if logger == nil {
		return
	}
	attrs := []any{
		slog.String("channel", channel),
		slog.String("tx_id", txID),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	logger.Debug("transaction rolled back", attrs...)
}

// LogDefaultWorker warns that a channel handed out a transaction to a
// context without a worker ID. All such callers share one transaction.
func LogDefaultWorker(logger *slog.Logger, channel string) {
	if logger == nil {
		return
	}
	logger.Warn("transaction requested without a worker ID; goroutines without one share a transaction",
		slog.String("channel", channel),
	)
}

// LogRequiredFailure logs a delivery failure on a required channel.
// The error is also returned to the caller.
func LogRequiredFailure(logger *slog.Logger, channel string, events int, err error) {
	if logger == nil {
		return
	}
	logger.Warn("required channel delivery failed",
		slog.String("channel", channel),
		slog.Int("events", events),
		slog.String("error", err.Error()),
	)
}

// LogOptionalFailure logs a delivery failure on an optional channel.
// Such failures are not returned to the caller.
func LogOptionalFailure(logger *slog.Logger, channel string, events int, err error) {
	if logger == nil {
		return
	}
	logger.Error("unable to put events on optional channel",
		slog.String("channel", channel),
		slog.Int("events", events),
		slog.String("error", err.Error()),
	)
}

// LogInterceptorCreated logs an interceptor built from configuration.
func LogInterceptorCreated(logger *slog.Logger, name, typeName string) {
	if logger == nil {
		return
	}
	logger.Debug("interceptor created",
		slog.String("interceptor", name),
		slog.String("type", typeName),
	)
}

// LogRunnerBackoff logs a runner sleeping after an idle or failed poll.
func LogRunnerBackoff(logger *slog.Logger, runner string, consecutive int64, sleep time.Duration) {
	if logger == nil {
		return
	}
	logger.Debug("runner backing off",
		slog.String("runner", runner),
		slog.Int64("consecutive", consecutive),
		slog.Duration("sleep", sleep),
	)
}

// LogRunnerError logs an error returned by a source or sink process call.
func LogRunnerError(logger *slog.Logger, runner string, delivery bool, err error) {
	if logger == nil {
		return
	}
	if delivery {
		logger.Error("unable to deliver event",
			slog.String("runner", runner),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Error("unhandled exception, logging and sleeping",
		slog.String("runner", runner),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time.
func TimedOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}
