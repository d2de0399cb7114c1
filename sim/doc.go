// Package sim provides the discrete-event kernel for mix network simulation.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - message.go: Message lifecycle (unprocessed → batching → processed → sent → delivered)
//   - event.go: Event interface and cancellation handles
//   - scheduler.go: the virtual clock and event loop
//
// # Architecture
//
// The sim package defines the shared vocabulary (messages, mix lists, routing
// modes, error taxonomy) and the event loop; implementations live in
// sub-packages:
//   - sim/routing/: Routing engine (global cascades, source routing, dynamic next hop)
//   - sim/mix/: Per-node output-strategy and recoding pipeline
//   - sim/network/: Wires routing, mixes, traffic and statistics into one replication
//   - sim/flow/: Host/flow/packet trace model, packet readers and flow filters
//   - sim/stats/: Raw sample recording, ResultSets and post-processors
//   - sim/workload/: Synthetic traffic generation and trace replay
//   - sim/trace/: Routing decision trace recording
//   - sim/config/: Configuration loading and validation
//   - sim/report/: HTTP query API for stored results
//
// # Time
//
// Virtual time is measured in ticks of one microsecond. Nothing in the kernel
// reads the wall clock: time moves only when the Scheduler pops an event.
// All callbacks run sequentially on a single goroutine, so simulated logic
// never needs locking.
package sim
