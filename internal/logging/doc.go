// Package logging assembles structured slog loggers and formatting helpers used
// across docgate.
//
// It owns the console and JSON handlers, tees records to the log file, and
// exposes context-aware helpers so gateway and conversion code automatically
// tag log lines with the request correlation ID. The package also provides a
// no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// data with the same shape as the rest of the service.
package logging
