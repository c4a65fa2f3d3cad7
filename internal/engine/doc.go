// Package engine implements the synchronization core: windowed polling of
// external systems, ledger-backed deduplication, central task creation, and
// propagation of completions and claims back to the originating systems.
//
// The engine never holds a transaction across both sides. Consistency comes
// from three rules instead:
//
//  1. Poll windows overlap by a configured transaction slack, so work that
//     was in flight when a watermark was recorded is re-offered next cycle.
//  2. The ledger collapses re-offers: a candidate with an existing ledger
//     row is never acted on again.
//  3. Per-item failures are classified and folded into a batch Report; only
//     ledger and configuration failures abort a batch.
//
// Each public job method (CreateCentralTasks, PropagateCompletions,
// PropagateClaims, Purge) is one scheduler job body and is safe to run
// concurrently with the others against the same ledger and connectors.
package engine
