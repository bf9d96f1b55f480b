package supervisor

import "time"

// Phase represents the current lifecycle phase of the supervisor.
type Phase string

// Lifecycle phases.
const (
	PhaseStopped    Phase = "stopped"    // Not running, terminal unless restarted
	PhaseStarting   Phase = "starting"   // Child being launched
	PhaseRunning    Phase = "running"    // Child alive
	PhaseRestarting Phase = "restarting" // Waiting out the restart delay
	PhaseFailed     Phase = "failed"     // Restart budget exhausted, terminal
)

// ExitOutcome describes how a child instance terminated.
type ExitOutcome struct {
	// Code is the exit code; 128+signal when terminated by a signal.
	Code int `json:"code"`
	// Signaled reports whether a signal terminated the child.
	Signaled bool `json:"signaled"`
	// Signal is the terminating signal name, empty otherwise.
	Signal string `json:"signal,omitempty"`
	// At is when the exit was observed.
	At time.Time `json:"at"`
}

// Crashed reports whether the outcome counts as abnormal termination.
func (o ExitOutcome) Crashed() bool {
	return o.Signaled || o.Code != 0
}

// Cause names the termination cause: "exit", "crash", or "signal".
func (o ExitOutcome) Cause() string {
	switch {
	case o.Signaled:
		return "signal"
	case o.Code != 0:
		return "crash"
	default:
		return "exit"
	}
}

// Status is a point-in-time snapshot of the supervisor.
type Status struct {
	App          string       `json:"app"`
	Phase        Phase        `json:"phase"`
	PID          int          `json:"pid,omitempty"`
	StartedAt    time.Time    `json:"started_at,omitzero"`
	Launches     int          `json:"launches"`
	RestartCount int          `json:"restart_count"`
	MaxRestarts  int          `json:"max_restarts"`
	AutoRestart  bool         `json:"auto_restart"`
	LastExit     *ExitOutcome `json:"last_exit,omitempty"`
}
