// Package config loads, normalizes, and validates docgate configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// DOCGATE_ENGINE_EXECUTABLE and DOCGATE_API_TOKEN. The Config type centralizes
// every knob the gateway and CLI need, from the engine launch surface to the
// journal location.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors. A
// configuration where the gateway and the engine bridge share a port never
// loads.
package config
