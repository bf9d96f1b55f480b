package events

// Event type constants for kelindar/event.
const (
	TypePhaseChanged uint32 = iota + 1
	TypeChildStarted
	TypeChildExited
	TypeRestartScheduled
	TypeBudgetExhausted
	TypeChildOutput
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// PhaseChangedEvent marks a supervisor lifecycle transition.
type PhaseChangedEvent struct {
	App       string `json:"app" doc:"Supervised application name"`
	From      string `json:"from" example:"running" doc:"Previous phase"`
	To        string `json:"to" example:"restarting" doc:"New phase"`
	Error     string `json:"error,omitempty" doc:"Error that caused the transition, if any"`
	Timestamp string `json:"timestamp" example:"2026-08-23T10:30:00Z" doc:"Transition timestamp"`
}

// Type returns the event type identifier for PhaseChangedEvent.
func (e PhaseChangedEvent) Type() uint32 { return TypePhaseChanged }

// ChildStartedEvent marks a successful child launch.
type ChildStartedEvent struct {
	App       string `json:"app" doc:"Supervised application name"`
	PID       int    `json:"pid" doc:"Child process ID"`
	Launches  int    `json:"launches" doc:"Total launches this supervisor run, including this one"`
	Timestamp string `json:"timestamp" doc:"Launch timestamp"`
}

// Type returns the event type identifier for ChildStartedEvent.
func (e ChildStartedEvent) Type() uint32 { return TypeChildStarted }

// ChildExitedEvent marks a child termination.
type ChildExitedEvent struct {
	App       string `json:"app" doc:"Supervised application name"`
	PID       int    `json:"pid" doc:"Child process ID"`
	ExitCode  int    `json:"exit_code" doc:"Exit code, 128+signal when signaled"`
	Signal    string `json:"signal,omitempty" doc:"Terminating signal name, if signaled"`
	Cause     string `json:"cause" example:"crash" doc:"Termination cause: exit, crash, or signal"`
	Timestamp string `json:"timestamp" doc:"Exit timestamp"`
}

// Type returns the event type identifier for ChildExitedEvent.
func (e ChildExitedEvent) Type() uint32 { return TypeChildExited }

// RestartScheduledEvent marks a pending automatic relaunch.
type RestartScheduledEvent struct {
	App       string `json:"app" doc:"Supervised application name"`
	Attempt   int    `json:"attempt" doc:"Relaunch attempt number, 1-based"`
	DelayMs   int64  `json:"delay_ms" doc:"Delay before the relaunch"`
	Timestamp string `json:"timestamp" doc:"Scheduling timestamp"`
}

// Type returns the event type identifier for RestartScheduledEvent.
func (e RestartScheduledEvent) Type() uint32 { return TypeRestartScheduled }

// BudgetExhaustedEvent is published exactly once when the restart budget
// runs out and the supervisor gives up.
type BudgetExhaustedEvent struct {
	App       string `json:"app" doc:"Supervised application name"`
	Restarts  int    `json:"restarts" doc:"Relaunches performed before giving up"`
	Timestamp string `json:"timestamp" doc:"Exhaustion timestamp"`
}

// Type returns the event type identifier for BudgetExhaustedEvent.
func (e BudgetExhaustedEvent) Type() uint32 { return TypeBudgetExhausted }

// ChildOutputEvent carries one line of child stdout/stderr.
type ChildOutputEvent struct {
	App       string `json:"app" doc:"Supervised application name"`
	Source    string `json:"source" example:"stdout" doc:"Output stream: stdout or stderr"`
	Line      string `json:"line" doc:"Output line"`
	Timestamp string `json:"timestamp" doc:"Read timestamp"`
}

// Type returns the event type identifier for ChildOutputEvent.
func (e ChildOutputEvent) Type() uint32 { return TypeChildOutput }
