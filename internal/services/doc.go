// Package services defines shared utilities consumed by the supervisor, the
// bridge, and the conversion path.
//
// Key responsibilities:
//   - Context helpers that stamp request correlation identifiers and
//     operation names for logging.
//   - Structured error markers plus the Wrap helper that separate fatal
//     startup faults from per-request engine failures.
//
// Use these helpers when wiring new engine-facing code so failures classify
// the same way at every transport boundary.
package services
