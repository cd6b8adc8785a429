package agent

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"
)

// ShutdownController encapsulates the process-wide interrupt flag and the
// signal handlers that set it. AgentLoop polls Requested() at the top of
// every iteration; it never checks mid-LLM-call.
type ShutdownController struct {
	requested atomic.Bool
	signals   chan os.Signal
	done      chan struct{}
}

// NewShutdownController installs SIGINT/SIGTERM handlers. A first signal
// sets the flag and prints a warning; a second aborts the process with exit
// 130.
func NewShutdownController() *ShutdownController {
	c := &ShutdownController{
		signals: make(chan os.Signal, 2),
		done:    make(chan struct{}),
	}
	signal.Notify(c.signals, os.Interrupt, syscall.SIGTERM)
	go c.watch()
	return c
}

func (c *ShutdownController) watch() {
	first := true
	for {
		select {
		case <-c.signals:
			if first {
				first = false
				c.requested.Store(true)
				fmt.Fprintln(os.Stderr, "shutdown requested, finishing current step (press again to force)")
				continue
			}
			os.Exit(130)
		case <-c.done:
			return
		}
	}
}

// Requested reports whether a shutdown has been signalled.
func (c *ShutdownController) Requested() bool {
	return c.requested.Load()
}

// Close removes the installed signal handlers.
func (c *ShutdownController) Close() {
	signal.Stop(c.signals)
	close(c.done)
}

// StepTimer enforces a per-step deadline on the LLM call only. On platforms
// without a true per-thread alarm, the deadline is approximated with a
// context cancellation: the caller's context is derived with a timeout, and
// Expired reports whether that was the reason the call returned.
type StepTimer struct {
	deadline time.Duration
}

// NewStepTimer builds a timer with the given per-step deadline. A
// non-positive deadline disables the timer (WithDeadline returns the
// context unmodified).
func NewStepTimer(deadline time.Duration) *StepTimer {
	return &StepTimer{deadline: deadline}
}

// WithDeadline derives a context bound to this step's deadline, if any.
func (t *StepTimer) WithDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.deadline <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, t.deadline)
}

// Expired reports whether ctx's own deadline (set up by WithDeadline) is
// what caused it to end, as opposed to outer cancellation.
func (t *StepTimer) Expired(ctx context.Context) bool {
	return ctx.Err() == context.DeadlineExceeded
}
