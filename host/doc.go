// Package host runs WebAssembly handlers, one isolated instance per
// invocation.
//
// An Executor compiles a module once and then, for every invocation,
// instantiates it with its own memory, stdio and response Session, binds the
// HTTP Bridge through the wasi_experimental_http and reglet_lambda host
// modules, runs the entry point and classifies how it ended:
//
//	idle -> loading -> running -> completed | trapped | timed_out
//
// RuntimeLoop drives an Executor from the Lambda Runtime API.
package host
