// Package hostfuncs implements the guest-to-host HTTP bridge.
//
// The Bridge validates an outbound request, consults the destination
// Policy, performs the exchange through a ports.HTTPTransport and registers
// the response in the calling instance's Session under an opaque handle.
// None of this depends on a WASM runtime; the wazero adapters in
// infrastructure/wazero translate guest memory to and from these calls.
package hostfuncs
