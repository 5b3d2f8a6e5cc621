// Package main hosts the docgate CLI entrypoint and command graph.
//
// "serve" runs the gateway in the foreground. The remaining commands are
// JSON-RPC clients of a running gateway: convert, filters, status, and
// history. Configuration scaffolding lives under "config".
package main
