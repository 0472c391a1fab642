// Package kernel implements the deterministic event loop that advances a
// single synthetic patient along a simulated timeline.
//
// The kernel owns the patient's attributes, per-machine runtime state,
// active hazard modifiers, the priority queue, and the append-only event
// log. All mutation flows through the effect pipeline or scheduleMachine;
// hazards and watchers observe immutable snapshots.
//
// INVARIANTS:
//   - Simulated time never decreases; the loop advances strictly by
//     dequeue order.
//   - At most one live transition item exists per machine; superseded
//     items are invalidated by version mismatch on pop, never by queue
//     surgery.
//   - The event log is append-only and time-ordered.
//   - The loop halts the first time a popped item exceeds the horizon,
//     or when a death event is recorded.
//
// Patients are independent: one Kernel per patient, run sequentially.
// Nothing here is safe for concurrent use, by design.
package kernel
