package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smolin/procwarden/internal/config"
	"github.com/smolin/procwarden/internal/events"
)

const loopScript = "trap 'exit 0' TERM\nwhile :; do sleep 0.1; done\n"

func newTestSupervisor(spec *config.AppSpec, bus *events.Bus) *Supervisor {
	s := New(spec, Options{
		Logger:      testLogger(),
		ChildLogger: testLogger(),
		Bus:         bus,
	})
	s.killTimeout = time.Second
	return s
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for: %s", msg)
}

func waitDone(t *testing.T, s *Supervisor, timeout time.Duration) error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Wait() }()
	select {
	case err := <-errCh:
		return err
	case <-time.After(timeout):
		t.Fatal("timeout waiting for supervisor to finish")
		return nil
	}
}

func TestStartInvalidSpec(t *testing.T) {
	spec := writeScript(t, "exit 0\n")
	spec.Executable = ""

	s := newTestSupervisor(spec, nil)
	err := s.Start()
	if !errors.Is(err, config.ErrInvalidSpec) {
		t.Fatalf("expected ErrInvalidSpec, got %v", err)
	}
	if s.Phase() != PhaseStopped {
		t.Errorf("expected phase stopped after invalid spec, got %s", s.Phase())
	}
}

func TestStartLaunchFailed(t *testing.T) {
	// Executable with the x bit set but an interpreter that does not
	// exist: LookPath passes, exec fails.
	spec := writeScript(t, "exit 0\n")
	runner := filepath.Join(spec.WorkingDir, "runner")
	if err := os.WriteFile(runner, []byte("#!/nonexistent/interpreter\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	spec.Executable = runner

	s := newTestSupervisor(spec, nil)
	err := s.Start()
	if !errors.Is(err, ErrLaunchFailed) {
		t.Fatalf("expected ErrLaunchFailed, got %v", err)
	}
	if s.Phase() != PhaseStopped {
		t.Errorf("expected phase stopped after failed launch, got %s", s.Phase())
	}

	// Start must be retryable after a failed launch.
	if err := waitDone(t, s, time.Second); !errors.Is(err, ErrLaunchFailed) {
		t.Errorf("expected Wait to report the launch failure, got %v", err)
	}
}

func TestStartWhileRunning(t *testing.T) {
	spec := writeScript(t, loopScript)

	s := newTestSupervisor(spec, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop(context.Background())

	if err := s.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestConcurrentStartOneWinner(t *testing.T) {
	spec := writeScript(t, loopScript)
	s := newTestSupervisor(spec, nil)

	const callers = 8
	var wg sync.WaitGroup
	var successes atomic.Int32
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := s.Start(); {
			case err == nil:
				successes.Add(1)
			case !errors.Is(err, ErrAlreadyRunning):
				t.Errorf("unexpected Start error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := successes.Load(); got != 1 {
		t.Errorf("expected exactly one successful Start, got %d", got)
	}
	if st := s.Status(); st.Launches != 1 {
		t.Errorf("expected a single launch, got %d", st.Launches)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestAutoRestartDisabled(t *testing.T) {
	for _, tc := range []struct {
		name   string
		script string
		code   int
	}{
		{"clean exit", "exit 0\n", 0},
		{"crash", "exit 7\n", 7},
	} {
		t.Run(tc.name, func(t *testing.T) {
			spec := writeScript(t, tc.script)
			spec.AutoRestart = false
			spec.MaxRestarts = 10

			s := newTestSupervisor(spec, nil)
			if err := s.Start(); err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			if err := waitDone(t, s, 2*time.Second); err != nil {
				t.Errorf("expected clean shutdown, got %v", err)
			}

			st := s.Status()
			if st.Phase != PhaseStopped {
				t.Errorf("expected phase stopped, got %s", st.Phase)
			}
			if st.Launches != 1 {
				t.Errorf("expected exactly 1 launch, got %d", st.Launches)
			}
			if st.LastExit == nil || st.LastExit.Code != tc.code {
				t.Errorf("unexpected last exit: %+v", st.LastExit)
			}
		})
	}
}

func TestRestartBudgetExhausted(t *testing.T) {
	spec := writeScript(t, "exit 1\n")
	spec.MaxRestarts = 3
	spec.RestartDelayMs = 10

	bus := events.New()
	var exhausted atomic.Int32
	var starts atomic.Int32
	defer bus.Subscribe(func(events.BudgetExhaustedEvent) { exhausted.Add(1) })()
	defer bus.Subscribe(func(events.ChildStartedEvent) { starts.Add(1) })()

	s := newTestSupervisor(spec, bus)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	err := waitDone(t, s, 5*time.Second)
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("expected ErrBudgetExhausted, got %v", err)
	}

	st := s.Status()
	if st.Phase != PhaseFailed {
		t.Errorf("expected phase failed, got %s", st.Phase)
	}
	if st.Launches != 4 {
		t.Errorf("expected 4 launches (initial + 3 relaunches), got %d", st.Launches)
	}
	if st.RestartCount != 3 {
		t.Errorf("expected restart count 3, got %d", st.RestartCount)
	}

	// Event dispatch is asynchronous; give it a moment to settle.
	waitFor(t, time.Second, func() bool { return exhausted.Load() == 1 },
		"budget exhausted event")
	waitFor(t, time.Second, func() bool { return starts.Load() == 4 },
		"4 child started events")
	time.Sleep(50 * time.Millisecond)
	if n := exhausted.Load(); n != 1 {
		t.Errorf("expected exactly one budget exhausted event, got %d", n)
	}
}

func TestBudgetScenarioElevenLaunches(t *testing.T) {
	spec := writeScript(t, "exit 1\n")
	spec.MaxRestarts = 10
	spec.RestartDelayMs = 5

	s := newTestSupervisor(spec, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	err := waitDone(t, s, 10*time.Second)
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("expected ErrBudgetExhausted, got %v", err)
	}

	st := s.Status()
	if st.Launches != 11 {
		t.Errorf("expected 11 launches (initial + 10 relaunches), got %d", st.Launches)
	}
	if st.RestartCount != 10 {
		t.Errorf("expected restart count 10, got %d", st.RestartCount)
	}
}

func TestZeroBudgetFailsOnFirstExit(t *testing.T) {
	spec := writeScript(t, "exit 1\n")
	spec.MaxRestarts = 0

	s := newTestSupervisor(spec, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	err := waitDone(t, s, 2*time.Second)
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("expected ErrBudgetExhausted, got %v", err)
	}
	if st := s.Status(); st.Launches != 1 {
		t.Errorf("expected a single launch, got %d", st.Launches)
	}
}

func TestRestartDelayObserved(t *testing.T) {
	spec := writeScript(t, "exit 1\n")
	spec.MaxRestarts = 1
	spec.RestartDelayMs = 200

	bus := events.New()
	var mu sync.Mutex
	var startTimes []time.Time
	defer bus.Subscribe(func(events.ChildStartedEvent) {
		mu.Lock()
		startTimes = append(startTimes, time.Now())
		mu.Unlock()
	})()

	s := newTestSupervisor(spec, bus)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, s, 5*time.Second)

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(startTimes) == 2
	}, "2 child started events")

	mu.Lock()
	gap := startTimes[1].Sub(startTimes[0])
	mu.Unlock()
	if gap < 150*time.Millisecond {
		t.Errorf("relaunch came too early: gap %v, want >= ~200ms", gap)
	}
}

func TestStopCancelsPendingRelaunch(t *testing.T) {
	spec := writeScript(t, "exit 1\n")
	spec.MaxRestarts = 5
	spec.RestartDelayMs = 5000

	s := newTestSupervisor(spec, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return s.Phase() == PhaseRestarting },
		"phase restarting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	begin := time.Now()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Errorf("Stop should not wait out the restart delay, took %v", elapsed)
	}

	st := s.Status()
	if st.Phase != PhaseStopped {
		t.Errorf("expected phase stopped, got %s", st.Phase)
	}
	if st.Launches != 1 {
		t.Errorf("expected 1 launch, got %d", st.Launches)
	}
	if err := waitDone(t, s, time.Second); err != nil {
		t.Errorf("expected nil terminal error after Stop, got %v", err)
	}
}

func TestStopGracefulAndIdempotent(t *testing.T) {
	spec := writeScript(t, loopScript)

	s := newTestSupervisor(spec, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return s.Phase() == PhaseRunning },
		"phase running")

	ctx := context.Background()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Errorf("second Stop should be a no-op, got %v", err)
	}

	st := s.Status()
	if st.Phase != PhaseStopped {
		t.Errorf("expected phase stopped, got %s", st.Phase)
	}
	if st.LastExit == nil || st.LastExit.Code != 0 {
		t.Errorf("expected graceful exit 0, got %+v", st.LastExit)
	}
}

func TestStopBeforeStart(t *testing.T) {
	spec := writeScript(t, loopScript)
	s := newTestSupervisor(spec, nil)

	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop on a never-started supervisor should be nil, got %v", err)
	}
	if err := s.Wait(); err != nil {
		t.Errorf("Wait on a never-started supervisor should be nil, got %v", err)
	}
}

func TestManualRestartKeepsBudget(t *testing.T) {
	spec := writeScript(t, loopScript)
	spec.MaxRestarts = 5

	s := newTestSupervisor(spec, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop(context.Background())

	waitFor(t, 2*time.Second, func() bool { return s.Status().PID > 0 }, "child pid")
	firstPID := s.Status().PID

	if err := s.Restart(); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		st := s.Status()
		return st.Phase == PhaseRunning && st.PID != 0 && st.PID != firstPID
	}, "new child after manual restart")

	st := s.Status()
	if st.Launches != 2 {
		t.Errorf("expected 2 launches, got %d", st.Launches)
	}
	if st.RestartCount != 0 {
		t.Errorf("manual restart must not consume the budget, got count %d", st.RestartCount)
	}
}

func TestRestartNotRunning(t *testing.T) {
	spec := writeScript(t, loopScript)
	s := newTestSupervisor(spec, nil)

	if err := s.Restart(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

func TestStableRunResetsBudget(t *testing.T) {
	spec := writeScript(t, "sleep 0.1\nexit 1\n")
	spec.MaxRestarts = 1
	spec.RestartDelayMs = 10
	spec.StableResetAfterMs = 50

	bus := events.New()
	var starts atomic.Int32
	var exhausted atomic.Int32
	defer bus.Subscribe(func(events.ChildStartedEvent) { starts.Add(1) })()
	defer bus.Subscribe(func(events.BudgetExhaustedEvent) { exhausted.Add(1) })()

	s := newTestSupervisor(spec, bus)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Every run lasts past the stability window, so the count resets and
	// the budget of 1 never runs out.
	waitFor(t, 5*time.Second, func() bool { return starts.Load() >= 3 },
		"at least 3 launches despite max_restarts=1")
	if n := exhausted.Load(); n != 0 {
		t.Errorf("budget should never exhaust with stable resets, got %d events", n)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestPhaseChangeEvents(t *testing.T) {
	spec := writeScript(t, "exit 0\n")
	spec.AutoRestart = false

	bus := events.New()
	var mu sync.Mutex
	var transitions []string
	defer bus.Subscribe(func(e events.PhaseChangedEvent) {
		mu.Lock()
		transitions = append(transitions, e.From+">"+e.To)
		mu.Unlock()
	})()

	s := newTestSupervisor(spec, bus)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, s, 2*time.Second)

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) >= 3
	}, "phase transition events")

	mu.Lock()
	defer mu.Unlock()
	want := []string{"stopped>starting", "starting>running", "running>stopped"}
	for i, w := range want {
		if i >= len(transitions) || transitions[i] != w {
			t.Fatalf("unexpected transitions %v, want %v", transitions, want)
		}
	}
}
