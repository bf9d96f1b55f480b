package supervisor

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"github.com/smolin/procwarden/internal/config"
)

// lineHandler receives one line of child stdout/stderr.
type lineHandler func(source, line string)

// child is a single running instance of the supervised process.
type child struct {
	cmd        *exec.Cmd
	logger     *slog.Logger
	exited     chan ExitOutcome // receives exactly one outcome
	outputDone chan struct{}    // receives twice, once per output stream
}

// launchChild starts a child process for the spec. The onLine handler is
// called for every output line from either stream.
func launchChild(spec *config.AppSpec, logger *slog.Logger, onLine lineHandler) (*child, error) {
	argv, err := spec.Argv()
	if err != nil {
		return nil, err
	}

	c := &child{
		cmd:        exec.Command(argv[0], argv[1:]...),
		logger:     logger,
		exited:     make(chan ExitOutcome, 1),
		outputDone: make(chan struct{}, 2),
	}
	c.cmd.Dir = spec.WorkingDir
	c.cmd.Env = spec.Environ()
	// Own process group so termination signals reach the whole tree.
	c.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := c.cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := c.cmd.Start(); err != nil {
		return nil, err
	}

	go func() {
		c.streamOutput(stdout, "stdout", onLine)
		c.outputDone <- struct{}{}
	}()
	go func() {
		c.streamOutput(stderr, "stderr", onLine)
		c.outputDone <- struct{}{}
	}()

	go func() {
		c.exited <- classifyExit(c.cmd.Wait())
	}()

	return c, nil
}

// pid returns the child's process ID.
func (c *child) pid() int {
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// stop terminates the child: SIGTERM to the process group, SIGKILL after
// the grace period. Returns the observed outcome, or a synthetic one if
// the child refuses to die within killTimeout.
func (c *child) stop(grace, killTimeout time.Duration) ExitOutcome {
	c.signal(syscall.SIGTERM)

	select {
	case out := <-c.exited:
		return out
	case <-time.After(grace):
		c.logger.Warn("Graceful stop timed out, killing", "pid", c.pid(), "grace", grace)
		c.signal(syscall.SIGKILL)
		select {
		case out := <-c.exited:
			return out
		case <-time.After(killTimeout):
			c.logger.Error("Child did not exit after SIGKILL", "pid", c.pid())
			return ExitOutcome{Code: 137, At: time.Now()}
		}
	}
}

// signal delivers sig to the child's process group.
func (c *child) signal(sig syscall.Signal) {
	pid := c.pid()
	if pid == 0 {
		return
	}
	if err := syscall.Kill(-pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		c.logger.Warn("Failed to signal child", "pid", pid, "signal", sig.String(), "error", err)
	}
}

// drainOutput waits for both output streams to finish.
func (c *child) drainOutput() {
	<-c.outputDone
	<-c.outputDone
}

// streamOutput reads one output stream line-wise until EOF.
func (c *child) streamOutput(reader io.Reader, source string, onLine lineHandler) {
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		onLine(source, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn("Error reading child output", "source", source, "error", err)
	}
}

// classifyExit turns the error from cmd.Wait into an ExitOutcome.
func classifyExit(err error) ExitOutcome {
	out := ExitOutcome{At: time.Now()}
	if err == nil {
		return out
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			out.Signaled = true
			out.Signal = ws.Signal().String()
			out.Code = 128 + int(ws.Signal())
			return out
		}
		out.Code = exitErr.ExitCode()
		return out
	}

	// Wait failed for a non-exit reason (I/O error on the pipes, etc.)
	out.Code = 1
	return out
}
