// Package connector defines the capability interfaces through which the
// synchronization engine talks to the outside world, the task data model
// shared by both directions of the sync, and the provider registry that
// collects connector implementations at startup.
//
// Two connector kinds exist:
//
//   - SystemConnector: one per external workflow system. Lists candidate
//     tasks since a timestamp, fetches task variables lazily, and receives
//     claim/complete calls pushed back from the central store.
//   - CentralConnector: exactly one per deployment. Lists claimed and
//     completed central tasks, converts external tasks into creation
//     requests, creates central tasks, and acknowledges propagated state
//     via callback-state updates.
//
// The engine never talks HTTP (or any other transport) directly; every
// remote interaction goes through these interfaces.
package connector
