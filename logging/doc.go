// Package logging provides a minimal logging interface and adapters used
// throughout agentpipe.
//
// The Logger interface defines the leveled methods (Debug, Info, Warn, Error)
// that runners, flows and agents use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - PipeLogger with component/run scoping and model/tool/node helpers
//   - NoOpLogger for silent operation
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	r := runner.New(root, runner.Config{}, func(o *runner.Options) { o.Logger = logger })
package logging
