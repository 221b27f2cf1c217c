// Package gadgetron is a streaming MRI reconstruction server. Clients
// stream k-space acquisitions over a tagged binary protocol; the server
// runs each connection through a configurable chain of processing stages
// wired together by bounded queues, and streams reconstructed images back
// on the same connection.
//
// The interesting packages:
//
//   - message: the typed, move-only unit of data flow
//   - queue: bounded blocking queues, the only backpressure mechanism
//   - stage: the processing stage contract, registry and worker runner
//   - pipeline: chain assembly and coordinated shutdown
//   - wire: the tagged binary protocol and codec registry
//   - session: one connection, one pipeline, fail-fast teardown
//   - server: TCP and WebSocket listeners
//   - gadgets: the built-in stages
package gadgetron
