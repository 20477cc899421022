// Package supervisor owns process-level concerns that don't belong to
// any one channel or section: signal handling, the verbosity level, and
// periodic CPU accounting.
package supervisor

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// Supervisor watches OS signals and drives process-wide CPU accounting.
type Supervisor struct {
	Logger *log.Logger

	verbosity atomic.Int32
	stopping  atomic.Bool

	proc *process.Process
}

// New creates a Supervisor at the given starting verbosity.
func New(logger *log.Logger, startVerbosity int) *Supervisor {
	s := &Supervisor{Logger: logger}
	s.verbosity.Store(int32(startVerbosity))
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = p
	}
	return s
}

// Verbosity returns the current verbosity level.
func (s *Supervisor) Verbosity() int {
	return int(s.verbosity.Load())
}

// Stopping reports whether a termination signal has been received.
func (s *Supervisor) Stopping() bool {
	return s.stopping.Load()
}

// Run installs signal handlers and blocks until ctx is cancelled or a
// fatal signal is received, returning the process exit code:
// INT/QUIT/TERM stop the process (TERM exits 0, the
// others 70, after a 1s drain so in-flight sends finish); PIPE is
// ignored, since a reader disconnecting a pipe must never kill the
// daemon; USR1 increments and USR2 decrements verbosity, clamped at 0.
func (s *Supervisor) Run(ctx context.Context) int {
	sigCh := make(chan os.Signal, 8)
	signal.Notify(sigCh,
		os.Interrupt, syscall.SIGQUIT, syscall.SIGTERM,
		syscall.SIGPIPE, syscall.SIGUSR1, syscall.SIGUSR2,
	)
	defer signal.Stop(sigCh)

	cpuTicker := time.NewTicker(1 * time.Minute)
	defer cpuTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0

		case sig := <-sigCh:
			switch sig {
			case syscall.SIGPIPE:
				// ignored

			case syscall.SIGUSR1:
				s.adjustVerbosity(1)
			case syscall.SIGUSR2:
				s.adjustVerbosity(-1)

			case syscall.SIGTERM:
				s.stopping.Store(true)
				time.Sleep(1 * time.Second)
				return 0

			case os.Interrupt, syscall.SIGQUIT:
				s.stopping.Store(true)
				time.Sleep(1 * time.Second)
				return 70
			}

		case <-cpuTicker.C:
			if s.Verbosity() > 0 {
				s.logCPU()
			}
		}
	}
}

func (s *Supervisor) adjustVerbosity(delta int32) {
	for {
		cur := s.verbosity.Load()
		next := cur + delta
		if next < 0 {
			next = 0
		}
		if s.verbosity.CompareAndSwap(cur, next) {
			return
		}
	}
}

func (s *Supervisor) logCPU() {
	if s.proc == nil {
		return
	}
	pct, err := s.proc.Percent(0)
	if err != nil {
		return
	}
	total, err := cpu.Percent(0, false)
	if err != nil || len(total) == 0 {
		s.Logger.Info("cpu accounting", "process_percent", pct)
		return
	}
	s.Logger.Info("cpu accounting", "process_percent", pct, "system_percent", total[0])
}
