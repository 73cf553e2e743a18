// Command reglet-lambda is a serverless custom runtime that runs WebAssembly
// handlers with an allow-listed outbound HTTP capability.
//
// Installed as "bootstrap" it serves the Lambda Runtime API; run and serve
// execute the same handler locally.
package main

func main() {
	Execute()
}
