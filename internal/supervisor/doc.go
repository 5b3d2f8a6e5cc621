// Package supervisor launches and stops the headless document engine.
//
// The engine runs in its own process group with a disposable profile
// directory that is removed once it exits. Stop terminates the whole group
// and escalates to SIGKILL after a grace period. Done and Err let the
// service notice when the engine dies on its own so it can shut down rather
// than serve against a dead bridge.
package supervisor
