// Package scheduler drives periodic sync attempts against the sync engine.
//
// A single worker goroutine repeats one iteration until cancelled:
//
//  1. Refresh the polling settings.
//  2. On an enabled/disabled flip, persist the new status record
//     ({Running, now} or {NotRunning, nil}) and log the transition.
//  3. While disabled, sleep one step and start over.
//  4. Refresh again and consult the readiness gate. While two-step
//     verification is on and no valid credential exists, sleep one step
//     and start over.
//  5. Run one sync attempt through the Orchestrator.
//  6. Wait for the polling interval, re-reading the settings at every step
//     boundary and returning early when polling is switched on or off.
//
// # Cancellation
//
// Cancelling the context passed to Start is observed only at step
// boundaries. Settings, credential, status and sync calls receive a
// context detached from cancellation, so an attempt that has started
// always runs to completion and always has its status persisted.
//
// # Failures
//
// Nothing that goes wrong in a collaborator stops the loop. A failed
// settings fetch keeps the previous configuration, status store and
// credential errors are logged, and sync faults (errors or panics) are
// converted into an Unhealthy outcome by the Orchestrator. Retries follow
// the polling interval; there is no backoff.
package scheduler
