// Package supervisor owns the lifecycle of the single managed child
// process: launch, exit monitoring, and the bounded-retry restart policy.
//
// The Supervisor moves through the phases
//
//	stopped -> starting -> running -> {restarting -> starting} | stopped | failed
//
// After every child exit it applies the restart decision: no relaunch when
// auto-restart is off, a terminal failed phase once the restart budget is
// exhausted, otherwise a delayed relaunch. The delay is cancellable by
// Stop, which also terminates a running child with SIGTERM followed by
// SIGKILL after the grace period.
//
// Lifecycle transitions, child exits, and child output are published on
// the event bus so the API, metrics, and file watcher stay decoupled from
// the supervision loop.
package supervisor
