package metrics

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/smolin/procwarden/internal/events"
	"github.com/smolin/procwarden/internal/logging"
)

const defaultSampleInterval = 5 * time.Second

// Sampler periodically reads CPU and memory usage of the current child
// process. It follows the child across restarts by tracking launch and
// exit events.
type Sampler struct {
	app      string
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	pid       int
	startedAt time.Time
	proc      *process.Process

	unsub func()
	stop  chan struct{}
	done  chan struct{}
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithSampleInterval overrides the default 5s polling interval.
func WithSampleInterval(d time.Duration) SamplerOption {
	return func(s *Sampler) {
		s.interval = d
	}
}

// NewSampler creates a sampler for app, tracking the child PID via bus
// events.
func NewSampler(app string, bus *events.Bus, opts ...SamplerOption) *Sampler {
	s := &Sampler{
		app:      app,
		interval: defaultSampleInterval,
		logger:   logging.GetLogger("metrics"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	unsubStart := bus.Subscribe(func(e events.ChildStartedEvent) {
		s.setPID(e.PID)
	})
	unsubExit := bus.Subscribe(func(e events.ChildExitedEvent) {
		s.setPID(0)
	})
	s.unsub = func() {
		unsubStart()
		unsubExit()
	}
	return s
}

// Start begins the sampling loop.
func (s *Sampler) Start() {
	go s.run()
}

// Stop ends sampling and detaches from the bus. Blocks until the loop
// has exited.
func (s *Sampler) Stop() {
	s.unsub()
	close(s.stop)
	<-s.done
}

func (s *Sampler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Sampler) setPID(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pid = pid
	s.proc = nil
	if pid > 0 {
		s.startedAt = time.Now()
		if p, err := process.NewProcess(int32(pid)); err == nil {
			s.proc = p
		} else {
			s.logger.Warn("Cannot attach to child for sampling", "pid", pid, "error", err)
		}
	}
}

// sample reads one round of resource usage. A vanished process zeroes
// the gauges; the next launch event re-attaches.
func (s *Sampler) sample() {
	s.mu.Lock()
	proc := s.proc
	startedAt := s.startedAt
	s.mu.Unlock()

	if proc == nil {
		childUptime.WithLabelValues(s.app).Set(0)
		childCPU.WithLabelValues(s.app).Set(0)
		childRSS.WithLabelValues(s.app).Set(0)
		return
	}

	childUptime.WithLabelValues(s.app).Set(time.Since(startedAt).Seconds())

	if cpu, err := proc.CPUPercent(); err == nil {
		childCPU.WithLabelValues(s.app).Set(cpu)
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		childRSS.WithLabelValues(s.app).Set(float64(mem.RSS))
	}
}
