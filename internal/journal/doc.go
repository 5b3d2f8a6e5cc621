// Package journal records finished conversion requests in SQLite.
//
// Each row carries request metadata only: correlation ID, source and sink
// labels, filters, outcome, error code, output size, and timing. Converted
// bytes are never stored. The journal is an operator aid for the history
// and status commands; the gateway keeps working when it is disabled.
//
// Schema changes bump schemaVersion in schema.go; operators delete the
// database to adopt the new schema.
package journal
