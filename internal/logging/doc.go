// Package logging assembles structured slog loggers and formatting helpers used
// by publishers, aggregators and the CLI.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes a no-op logger for tests and wiring code that cannot
// fail. No logger is stored globally: every component receives its own
// *slog.Logger and tags it with a component name.
package logging
