// Package entities provides the core domain types of the execution host.
// Outbound requests, inbound responses, invocation events and execution
// outcomes are plain values with no dependency on the WASM runtime.
package entities
