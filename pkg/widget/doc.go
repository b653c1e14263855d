// Package widget is the real-time conversation session engine behind the
// embeddable chat widget.
//
// Ownership model:
//   - Engine is the single authoritative session state container; every
//     mutation goes through a named operation and publishes a fresh
//     snapshot, so subscribers never observe partial updates.
//   - Transports (pkg/transport) deliver inbound events and lifecycle
//     changes; the engine's pump goroutine is their only consumer.
//   - Widget is the thin embedding facade host pages call
//     (Init/Open/Close/Toggle/Identify/On/Off); it owns nothing itself.
//
// Ordering between in-flight sends, incoming pushes and reconnects is
// resolved by id-based reconciliation, never by arrival order or timestamps.
package widget
