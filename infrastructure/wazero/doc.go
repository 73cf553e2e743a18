// Package wazero registers the host's guest-facing functions with a wazero
// runtime.
//
// Three guest ABIs are served:
//
//   - wasi_experimental_http: the raw pointer/length HTTP interface
//     (req, header_get, headers_get_all, body_read, close) used by guests
//     compiled against the wasi-experimental-http bindings.
//   - reglet_lambda: the JSON interface. Each function takes a packed i64
//     (ptr<<32 | len) request and returns a packed i64 response allocated
//     through the guest's "allocate" export.
//   - env: the AssemblyScript runtime imports (abort, trace, seed).
//
// Host functions find the calling instance's state through the context
// wazero passes them: the hostfuncs.Session for response handles and an
// AbortCapture for env.abort.
//
//	registry, _ := hostfuncs.NewRegistry(hostfuncs.WithBundle(hostfuncs.BridgeBundle(bridge)))
//	_ = wazero.RegisterWithRuntime(ctx, rt, registry, wazero.WithLogger(logger))
//	_ = wazero.RegisterExperimentalHTTP(ctx, rt, bridge)
//	_ = wazero.RegisterAssemblyScriptEnv(ctx, rt)
package wazero
