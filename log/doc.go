// Package log provides a simple, leveled logging interface for the flow engine.
//
// The package supports five log levels, in order of increasing severity:
//
//   - LogLevelDebug: Detailed debugging information for development
//   - LogLevelInfo: General informational messages about normal operation
//   - LogLevelWarn: Warning messages for potentially problematic situations
//   - LogLevelError: Error messages for failures that need attention
//   - LogLevelNone: Disables all logging output
//
// # Example Usage
//
//	// Create a logger with INFO level
//	logger := log.NewDefaultLogger(log.LogLevelInfo)
//
//	logger.Info("Server starting")
//	logger.Debug("Processing request: %v", request)
//	logger.Warn("Rate limit approaching: %d requests", count)
//	logger.Error("Failed to process: %v", err)
//
// A custom output destination can be supplied with NewCustomLogger, and the
// package-level default logger can be replaced with SetDefaultLogger.
//
// # golog Integration
//
// For users who prefer the `github.com/kataras/golog` library, a minimal
// wrapper is provided:
//
//	glogger := golog.New()
//	glogger.SetPrefix("[stepflow] ")
//
//	logger := log.NewGologLogger(glogger)
//	logger.SetLevel(log.LogLevelDebug)
//	logger.Debug("Debug information")
//
// # Thread Safety
//
// The DefaultLogger implementation is thread-safe and can be used concurrently
// from multiple goroutines. The underlying log.Logger from Go's standard
// library handles synchronization internally.
package log
