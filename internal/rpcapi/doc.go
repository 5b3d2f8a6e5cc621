// Package rpcapi exposes the gateway over JSON-RPC on TCP.
//
// The DocGate service offers Convert, Filters, Status, and History. Gateway
// faults travel as "code: message" error strings and Client turns them back
// into *gateway.Fault values so callers can switch on the code.
package rpcapi
