package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ErrInvalidSpec is wrapped by all AppSpec validation failures.
var ErrInvalidSpec = errors.New("invalid app spec")

// Spec file defaults.
const (
	DefaultStopGracePeriodMs = 5000
	DefaultRestartDelayMs    = 1000
)

// AppSpec describes the single application managed by the supervisor.
// It is immutable after Load; the supervisor never mutates it.
type AppSpec struct {
	// Name is the identifying label used in logs and metrics.
	Name string `toml:"name"`

	// Executable is the interpreter or binary to invoke.
	Executable string `toml:"executable"`

	// Script is the entry script passed as the first argument.
	Script string `toml:"script"`

	// Args holds extra arguments as a single shell-quoted string.
	Args string `toml:"args"`

	// WorkingDir is the child's working directory. Must exist.
	WorkingDir string `toml:"working_dir"`

	// Env is overlaid onto the supervisor's environment; child values win.
	Env map[string]string `toml:"env"`

	// AutoRestart enables relaunch after the child exits.
	AutoRestart bool `toml:"auto_restart"`

	// MaxRestarts caps automatic relaunch attempts within one supervisor run.
	MaxRestarts int `toml:"max_restarts"`

	// RestartDelayMs is the delay applied before each relaunch.
	RestartDelayMs int `toml:"restart_delay_ms"`

	// Watch enables file-change-triggered restarts.
	Watch bool `toml:"watch"`

	// WatchPaths lists paths to watch. Defaults to WorkingDir when empty.
	WatchPaths []string `toml:"watch_paths"`

	// StopGracePeriodMs bounds how long a SIGTERM'd child may linger
	// before it is killed.
	StopGracePeriodMs int `toml:"stop_grace_period_ms"`

	// StableResetAfterMs resets the restart count when the child ran at
	// least this long before exiting. Zero disables the reset.
	StableResetAfterMs int `toml:"stable_reset_after_ms"`
}

// specDocument is the on-disk layout: a single [app] table.
type specDocument struct {
	App AppSpec `toml:"app"`
}

// defaultSpec returns an AppSpec prefilled with defaults. Unmarshalling on
// top of it leaves absent keys at their default values.
func defaultSpec() AppSpec {
	return AppSpec{
		AutoRestart:       true,
		RestartDelayMs:    DefaultRestartDelayMs,
		StopGracePeriodMs: DefaultStopGracePeriodMs,
	}
}

// LoadAppSpec reads and validates an app spec from a TOML file.
func LoadAppSpec(path string) (*AppSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSpec, err)
	}

	doc := specDocument{App: defaultSpec()}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrInvalidSpec, path, err)
	}

	spec := doc.App
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks the spec shape and that the referenced paths are usable.
func (s *AppSpec) Validate() error {
	switch {
	case s.Name == "":
		return fmt.Errorf("%w: name must not be empty", ErrInvalidSpec)
	case s.Executable == "":
		return fmt.Errorf("%w: executable must not be empty", ErrInvalidSpec)
	case s.Script == "":
		return fmt.Errorf("%w: script must not be empty", ErrInvalidSpec)
	case s.MaxRestarts < 0:
		return fmt.Errorf("%w: max_restarts must not be negative", ErrInvalidSpec)
	case s.RestartDelayMs < 0:
		return fmt.Errorf("%w: restart_delay_ms must not be negative", ErrInvalidSpec)
	case s.StopGracePeriodMs < 0:
		return fmt.Errorf("%w: stop_grace_period_ms must not be negative", ErrInvalidSpec)
	case s.StableResetAfterMs < 0:
		return fmt.Errorf("%w: stable_reset_after_ms must not be negative", ErrInvalidSpec)
	}

	if s.WorkingDir != "" {
		fi, err := os.Stat(s.WorkingDir)
		if err != nil {
			return fmt.Errorf("%w: working_dir: %w", ErrInvalidSpec, err)
		}
		if !fi.IsDir() {
			return fmt.Errorf("%w: working_dir %s is not a directory", ErrInvalidSpec, s.WorkingDir)
		}
	}

	if _, err := exec.LookPath(s.Executable); err != nil {
		return fmt.Errorf("%w: executable: %w", ErrInvalidSpec, err)
	}

	if _, err := s.Argv(); err != nil {
		return fmt.Errorf("%w: args: %w", ErrInvalidSpec, err)
	}

	return nil
}

// Argv builds the child's argument vector: executable, script, extra args.
func (s *AppSpec) Argv() ([]string, error) {
	argv := []string{s.Executable, s.Script}
	if s.Args != "" {
		extra, err := SplitArgs(s.Args)
		if err != nil {
			return nil, err
		}
		argv = append(argv, extra...)
	}
	return argv, nil
}

// Environ returns the supervisor's environment overlaid with the spec's
// variables. Spec values replace inherited ones with the same key.
func (s *AppSpec) Environ() []string {
	env := os.Environ()
	if len(s.Env) == 0 {
		return env
	}

	index := make(map[string]int, len(env))
	for i, kv := range env {
		for j := 0; j < len(kv); j++ {
			if kv[j] == '=' {
				index[kv[:j]] = i
				break
			}
		}
	}

	for key, value := range s.Env {
		kv := key + "=" + value
		if i, ok := index[key]; ok {
			env[i] = kv
		} else {
			env = append(env, kv)
		}
	}
	return env
}

// EffectiveWatchPaths returns the paths the file watcher should observe.
func (s *AppSpec) EffectiveWatchPaths() []string {
	if len(s.WatchPaths) > 0 {
		return s.WatchPaths
	}
	if s.WorkingDir != "" {
		return []string{s.WorkingDir}
	}
	return nil
}

// RestartDelay returns restart_delay_ms as a duration.
func (s *AppSpec) RestartDelay() time.Duration {
	return time.Duration(s.RestartDelayMs) * time.Millisecond
}

// StopGracePeriod returns stop_grace_period_ms as a duration.
func (s *AppSpec) StopGracePeriod() time.Duration {
	return time.Duration(s.StopGracePeriodMs) * time.Millisecond
}

// StableResetAfter returns stable_reset_after_ms as a duration. Zero means
// the restart count is never reset.
func (s *AppSpec) StableResetAfter() time.Duration {
	return time.Duration(s.StableResetAfterMs) * time.Millisecond
}
