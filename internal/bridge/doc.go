// Package bridge connects docgate to the engine process.
//
// The engine side runs an agent that exposes an engine.Session over JSON-RPC
// on the port named by the engine's accept string; Server is that agent.
// Session is the client half: Connect dials once and returns a value that
// satisfies engine.Session, so the orchestrator never sees the transport.
// A session whose connection drops reports Closed and fails every further
// call with services.ErrEngineUnavailable; reconnecting is up to the caller.
package bridge
