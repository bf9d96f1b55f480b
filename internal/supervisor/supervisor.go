package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smolin/procwarden/internal/config"
	"github.com/smolin/procwarden/internal/events"
	"github.com/smolin/procwarden/internal/logging"
)

const defaultKillTimeout = 5 * time.Second

// Options configures a new Supervisor.
type Options struct {
	// Logger for supervision decisions. Defaults to the "supervisor" module.
	Logger *slog.Logger

	// ChildLogger receives the child's output lines. Defaults to the
	// "child" module.
	ChildLogger *slog.Logger

	// Bus receives lifecycle and output events (optional).
	Bus *events.Bus
}

// Supervisor manages the lifecycle of the single supervised application.
type Supervisor struct {
	spec        *config.AppSpec
	logger      *slog.Logger
	childLogger *slog.Logger
	bus         *events.Bus
	killTimeout time.Duration

	mu           sync.Mutex
	phase        Phase
	child        *child
	launches     int
	restartCount int
	startedAt    time.Time
	lastExit     *ExitOutcome
	running      bool
	terminalErr  error
	cancel       context.CancelFunc
	done         chan struct{}
	restartReq   chan struct{}
}

// New creates a Supervisor for the spec. The spec is treated as immutable.
func New(spec *config.AppSpec, opts Options) *Supervisor {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("supervisor")
	}
	childLogger := opts.ChildLogger
	if childLogger == nil {
		childLogger = logging.GetLogger("child")
	}

	return &Supervisor{
		spec:        spec,
		logger:      logger.With("app", spec.Name),
		childLogger: childLogger.With("app", spec.Name),
		bus:         opts.Bus,
		killTimeout: defaultKillTimeout,
		phase:       PhaseStopped,
	}
}

// Start validates the spec, launches the child, and begins supervision.
// Returns ErrAlreadyRunning when supervision is active, a
// config.ErrInvalidSpec wrap when validation fails, and an
// ErrLaunchFailed wrap when process creation fails. A failed launch
// leaves the supervisor stopped with no child handle, so Start can be
// retried safely.
func (s *Supervisor) Start() error {
	if err := s.spec.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())

	// The guard and the claim share one critical section so concurrent
	// Start calls cannot both pass and launch two children.
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		cancel()
		return ErrAlreadyRunning
	}
	s.running = true
	s.launches = 0
	s.restartCount = 0
	s.lastExit = nil
	s.terminalErr = nil
	s.cancel = cancel
	s.done = make(chan struct{})
	s.restartReq = make(chan struct{}, 1)
	s.mu.Unlock()

	s.setPhase(PhaseStarting, nil)

	c, err := s.launch()
	if err != nil {
		cancel()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		err = fmt.Errorf("%w: %w", ErrLaunchFailed, err)
		s.setPhase(PhaseStopped, err)
		s.mu.Lock()
		s.terminalErr = err
		done := s.done
		s.mu.Unlock()
		close(done)
		return err
	}

	s.setPhase(PhaseRunning, nil)
	go s.supervise(ctx, c)
	return nil
}

// Stop requests graceful termination: the child receives SIGTERM, then
// SIGKILL after the grace period; a pending relaunch delay is cancelled
// immediately. Idempotent. Blocks until supervision has ended or ctx
// expires.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	running := s.running
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if !running || cancel == nil {
		return nil
	}

	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Restart requests a graceful stop-and-relaunch of the child without
// touching the restart budget. Non-blocking: a second request while one
// is pending is dropped.
func (s *Supervisor) Restart() error {
	s.mu.Lock()
	running := s.running
	req := s.restartReq
	s.mu.Unlock()

	if !running {
		return ErrNotRunning
	}

	select {
	case req <- struct{}{}:
		s.logger.Info("Restart requested")
	default:
		s.logger.Warn("Restart already pending, ignoring")
	}
	return nil
}

// Wait blocks until supervision reaches a terminal phase. Returns nil for
// a stopped supervisor and ErrBudgetExhausted for a permanent failure.
func (s *Supervisor) Wait() error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminalErr
}

// Status returns a point-in-time snapshot.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		App:          s.spec.Name,
		Phase:        s.phase,
		Launches:     s.launches,
		RestartCount: s.restartCount,
		MaxRestarts:  s.spec.MaxRestarts,
		AutoRestart:  s.spec.AutoRestart,
	}
	if s.child != nil {
		st.PID = s.child.pid()
		st.StartedAt = s.startedAt
	}
	if s.lastExit != nil {
		exit := *s.lastExit
		st.LastExit = &exit
	}
	return st
}

// Phase returns the current lifecycle phase.
func (s *Supervisor) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// supervise is the main loop. It owns the child handle and the restart
// decision; nothing else mutates them.
func (s *Supervisor) supervise(ctx context.Context, c *child) {
	defer close(s.done)

	for {
		select {
		case outcome := <-c.exited:
			c.drainOutput()
			s.recordExit(c.pid(), outcome)

			next, ok := s.nextChild(ctx, outcome)
			if !ok {
				return
			}
			c = next

		case <-ctx.Done():
			outcome := c.stop(s.spec.StopGracePeriod(), s.killTimeout)
			c.drainOutput()
			s.recordExit(c.pid(), outcome)
			s.finish(PhaseStopped, nil)
			return

		case <-s.restartReq:
			s.setPhase(PhaseRestarting, nil)
			outcome := c.stop(s.spec.StopGracePeriod(), s.killTimeout)
			c.drainOutput()
			s.recordExit(c.pid(), outcome)

			s.setPhase(PhaseStarting, nil)
			next, err := s.launch()
			if err != nil {
				s.logger.Error("Relaunch after restart request failed", "error", err)
				// Hand the failure to the automatic policy instead of
				// swallowing it.
				next, ok := s.nextChild(ctx, ExitOutcome{Code: 1, At: time.Now()})
				if !ok {
					return
				}
				c = next
				continue
			}
			s.setPhase(PhaseRunning, nil)
			c = next
		}
	}
}

// nextChild applies the restart decision after a child exit. It returns
// the relaunched child, or ok=false when a terminal phase was reached.
func (s *Supervisor) nextChild(ctx context.Context, outcome ExitOutcome) (*child, bool) {
	for {
		if !s.spec.AutoRestart {
			s.logger.Info("Auto-restart disabled, not relaunching", "exit_code", outcome.Code)
			s.finish(PhaseStopped, nil)
			return nil, false
		}

		s.mu.Lock()
		count := s.restartCount
		s.mu.Unlock()

		if count >= s.spec.MaxRestarts {
			s.logger.Error("Restart budget exhausted",
				"restarts", count, "max_restarts", s.spec.MaxRestarts)
			s.publish(events.BudgetExhaustedEvent{
				App:       s.spec.Name,
				Restarts:  count,
				Timestamp: timestamp(),
			})
			s.finish(PhaseFailed, ErrBudgetExhausted)
			return nil, false
		}

		s.setPhase(PhaseRestarting, nil)
		delay := s.spec.RestartDelay()
		s.logger.Info("Scheduling relaunch", "attempt", count+1, "delay", delay)
		s.publish(events.RestartScheduledEvent{
			App:       s.spec.Name,
			Attempt:   count + 1,
			DelayMs:   delay.Milliseconds(),
			Timestamp: timestamp(),
		})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			s.finish(PhaseStopped, nil)
			return nil, false
		}

		s.mu.Lock()
		s.restartCount++
		s.mu.Unlock()

		s.setPhase(PhaseStarting, nil)
		c, err := s.launch()
		if err != nil {
			s.logger.Error("Relaunch failed", "error", err)
			outcome = ExitOutcome{Code: 1, At: time.Now()}
			continue
		}

		s.setPhase(PhaseRunning, nil)
		return c, true
	}
}

// launch starts a new child instance and records it.
func (s *Supervisor) launch() (*child, error) {
	c, err := launchChild(s.spec, s.childLogger, s.handleOutputLine)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.child = c
	s.launches++
	s.startedAt = time.Now()
	launches := s.launches
	s.mu.Unlock()

	s.logger.Info("Child started", "pid", c.pid(), "launches", launches)
	s.publish(events.ChildStartedEvent{
		App:       s.spec.Name,
		PID:       c.pid(),
		Launches:  launches,
		Timestamp: timestamp(),
	})
	return c, nil
}

// recordExit stores the outcome, applies the stable-reset policy, and
// publishes the exit event.
func (s *Supervisor) recordExit(pid int, outcome ExitOutcome) {
	s.mu.Lock()
	exit := outcome
	s.lastExit = &exit
	uptime := outcome.At.Sub(s.startedAt)
	s.child = nil
	if d := s.spec.StableResetAfter(); d > 0 && uptime >= d && s.restartCount > 0 {
		s.logger.Info("Child ran stable, resetting restart count",
			"uptime", uptime, "restart_count", s.restartCount)
		s.restartCount = 0
	}
	s.mu.Unlock()

	s.logger.Info("Child exited",
		"pid", pid, "exit_code", outcome.Code, "cause", outcome.Cause(), "uptime", uptime)
	s.publish(events.ChildExitedEvent{
		App:       s.spec.Name,
		PID:       pid,
		ExitCode:  outcome.Code,
		Signal:    outcome.Signal,
		Cause:     outcome.Cause(),
		Timestamp: timestamp(),
	})
}

// finish records the terminal phase and ends supervision.
func (s *Supervisor) finish(phase Phase, err error) {
	s.mu.Lock()
	s.running = false
	s.terminalErr = err
	s.child = nil
	s.mu.Unlock()

	s.setPhase(phase, err)
}

// setPhase transitions the phase and publishes the change.
func (s *Supervisor) setPhase(to Phase, cause error) {
	s.mu.Lock()
	from := s.phase
	s.phase = to
	s.mu.Unlock()

	if from == to {
		return
	}

	s.logger.Debug("Phase changed", "from", from, "to", to)

	ev := events.PhaseChangedEvent{
		App:       s.spec.Name,
		From:      string(from),
		To:        string(to),
		Timestamp: timestamp(),
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	s.publish(ev)
}

// handleOutputLine logs a child output line and publishes it.
func (s *Supervisor) handleOutputLine(source, line string) {
	s.childLogger.Info(line, "source", source)
	s.publish(events.ChildOutputEvent{
		App:       s.spec.Name,
		Source:    source,
		Line:      line,
		Timestamp: timestamp(),
	})
}

// publish sends an event when a bus is configured.
func (s *Supervisor) publish(ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

func timestamp() string {
	return time.Now().Format(time.RFC3339Nano)
}
