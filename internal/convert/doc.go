// Package convert drives a single document conversion against an engine
// session.
//
// A Converter moves through Idle, Loading, an optional IndexRefresh,
// FilterResolution, Exporting, and Closed. Filter names are resolved through
// the filters package on every call, and a loaded document is always closed
// with modifications discarded, whether the export succeeded or not.
//
// Failures are reported as *Error values carrying a stable Kind so transport
// layers can map them to caller-visible codes without string matching.
package convert
