package supervisor

import "errors"

var (
	// ErrAlreadyRunning is returned by Start when supervision is active.
	ErrAlreadyRunning = errors.New("supervisor already running")

	// ErrNotRunning is returned by Restart when there is nothing to restart.
	ErrNotRunning = errors.New("supervisor not running")

	// ErrLaunchFailed wraps OS-level process creation failures.
	ErrLaunchFailed = errors.New("launch failed")

	// ErrBudgetExhausted is the terminal error after max_restarts
	// relaunches have been spent.
	ErrBudgetExhausted = errors.New("restart budget exhausted")
)
