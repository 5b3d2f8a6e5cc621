// Package daemonrun wires the long-running docgate service: instance lock,
// preflight, engine supervision, the bridge connect loop, the conversion
// journal, the request gateway, and the RPC and HTTP listeners.
//
// Run returns when a signal arrives, the engine exits, or a listener fails,
// after closing the listeners, draining the gateway, and stopping the engine.
package daemonrun
