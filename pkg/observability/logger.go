// Package observability provides structured logging, metrics, and tracing
// for the content pipeline.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds pipeline context to a logger.
// Returns a new logger with run_id, stage, and pass fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "run-123", "generate_linkedin", 2)
//	enriched.Info("doing work") // includes run_id, stage, pass
func EnrichLogger(logger *slog.Logger, runID, stage string, pass int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("stage", stage),
		slog.Int("pass", pass),
	)
}

// LogRunStart logs the start of a pipeline run.
func LogRunStart(logger *slog.Logger, runID, topic string) {
	if logger == nil {
		return
	}
	logger.Info("run starting",
		slog.String("run_id", runID),
		slog.String("topic", topic),
	)
}

// LogRunSuspended logs a run reaching the approval suspend point.
func LogRunSuspended(logger *slog.Logger, runID string, pass int) {
	if logger == nil {
		return
	}
	logger.Info("run suspended awaiting review",
		slog.String("run_id", runID),
		slog.Int("pass", pass),
	)
}

// LogRunComplete logs successful run completion.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, stageCount int) {
	if logger == nil {
		return
	}
	logger.Info("run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("stages_executed", stageCount),
	)
}

// LogRunError logs run failure.
func LogRunError(logger *slog.Logger, runID string, err error, lastStage string) {
	if logger == nil {
		return
	}
	logger.Error("run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.String("last_stage", lastStage),
	)
}

// LogStageStart logs stage execution start.
func LogStageStart(logger *slog.Logger, stage string) {
	if logger == nil {
		return
	}
	logger.Debug("stage starting",
		slog.String("stage", stage),
	)
}

// LogStageComplete logs successful stage completion.
func LogStageComplete(logger *slog.Logger, stage string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("stage completed",
		slog.String("stage", stage),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogStageSkipped logs a generator skipped because its regenerate flag was off.
func LogStageSkipped(logger *slog.Logger, stage string) {
	if logger == nil {
		return
	}
	logger.Debug("stage skipped, prior output kept",
		slog.String("stage", stage),
	)
}

// LogStageError logs stage execution error.
func LogStageError(logger *slog.Logger, stage string, err error) {
	if logger == nil {
		return
	}
	logger.Error("stage failed",
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
}

// LogCheckpoint logs checkpoint creation.
func LogCheckpoint(logger *slog.Logger, runID string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("run_id", runID),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogModelAttempt logs a single model invocation attempt.
func LogModelAttempt(logger *slog.Logger, model string, attempt int, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Warn("model attempt failed",
			slog.String("model", model),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Debug("model attempt succeeded",
		slog.String("model", model),
		slog.Int("attempt", attempt),
	)
}

// LogModelFallback logs advancing to the next model in the chain.
func LogModelFallback(logger *slog.Logger, from, to string) {
	if logger == nil {
		return
	}
	logger.Warn("falling back to next model",
		slog.String("from", from),
		slog.String("to", to),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
