// Package scheduler runs every watch loop under one supervisor.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Loop is a long-running worker. Run returns when ctx is done; any other
// return is treated as a crash.
type Loop interface {
	Name() string
	Run(ctx context.Context) error
}

type Options struct {
	JitterMin    time.Duration
	JitterMax    time.Duration
	RestartDelay time.Duration
	// Watchdog sends WATCHDOG=1 at half the interval systemd expects.
	Watchdog bool
}

type Supervisor struct {
	loops  []Loop
	opts   Options
	logger *slog.Logger

	// Test hooks.
	jitter func(min, max time.Duration) time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
	notify func(state string) error
}

func New(loops []Loop, opts Options, logger *slog.Logger) *Supervisor {
	if opts.JitterMax < opts.JitterMin {
		opts.JitterMax = opts.JitterMin
	}
	return &Supervisor{
		loops:  loops,
		opts:   opts,
		logger: logger,
		jitter: uniformJitter,
		sleep:  sleepContext,
		notify: sdNotify,
	}
}

// Start spawns each loop with a random delay between spawns and blocks until
// ctx is canceled and every loop has returned.
func (s *Supervisor) Start(ctx context.Context) error {
	s.logger.Info("supervisor started", "loops", len(s.loops))

	var wg sync.WaitGroup
	defer wg.Wait()

	if s.opts.Watchdog {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.watchdog(ctx)
		}()
	}

	for i, loop := range s.loops {
		if i > 0 {
			if err := s.sleep(ctx, s.jitter(s.opts.JitterMin, s.opts.JitterMax)); err != nil {
				break
			}
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.supervise(ctx, loop)
		}()
	}

	if ctx.Err() == nil {
		if err := s.notify(daemon.SdNotifyReady); err != nil {
			s.logger.Warn("failed to notify systemd", "error", err)
		}
	}

	<-ctx.Done()
	_ = s.notify(daemon.SdNotifyStopping)
	s.logger.Info("supervisor stopping, waiting for loops")

	return ctx.Err()
}

// supervise runs loop until ctx is done, restarting it after a crash. The
// loop value is reused, so whatever state it holds survives the restart.
func (s *Supervisor) supervise(ctx context.Context, loop Loop) {
	logger := s.logger.With("loop", loop.Name())

	for restarts := 0; ; restarts++ {
		if restarts > 0 {
			logger.Info("restarting loop", "restarts", restarts)
		}

		err := runRecovered(ctx, loop)
		if ctx.Err() != nil {
			return
		}

		var p *panicError
		if errors.As(err, &p) {
			logger.Error("loop panicked", "panic", p.value, "stack", p.stack)
		} else {
			logger.Error("loop exited unexpectedly", "error", err)
		}

		if err := s.sleep(ctx, s.opts.RestartDelay); err != nil {
			return
		}
	}
}

type panicError struct {
	value any
	stack string
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

func runRecovered(ctx context.Context, loop Loop) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: string(debug.Stack())}
		}
	}()
	return loop.Run(ctx)
}

func (s *Supervisor) watchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		s.logger.Debug("systemd watchdog not enabled")
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.notify(daemon.SdNotifyWatchdog)
		}
	}
}

func uniformJitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func sdNotify(state string) error {
	_, err := daemon.SdNotify(false, state)
	return err
}
