// Package gateway is the service object behind every transport.
//
// A Gateway owns the shared engine session (through a SessionProvider), the
// optional journal, and a single worker goroutine. Convert and Filters both
// run on that worker, so no two engine interactions ever overlap. Each
// request gets a fresh convert.Converter and a UUID correlation ID, and every
// failure leaves as a *Fault carrying a stable code.
package gateway
