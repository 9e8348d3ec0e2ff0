// Package exit carries the single process-wide shutdown outcome between
// goroutines.
package exit

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Event is the reason the daemon is shutting down.
type Event int

const (
	ExitSignal Event = iota
	InternetConnected
	WiFiConnected
	Timeout
	UnexpectedExit
)

func (e Event) String() string {
	switch e {
	case ExitSignal:
		return "Signal"
	case InternetConnected:
		return "Internet connected"
	case WiFiConnected:
		return "WiFi connected"
	case Timeout:
		return "Timeout"
	case UnexpectedExit:
		return "Unexpected exit"
	default:
		return "Unknown"
	}
}

// Result is what a goroutine reports when it wants the process to end.
// A non-nil Err makes the outcome a failure regardless of Event.
type Result struct {
	Event Event
	Err   error
}

// Channel delivers exactly one Result. Every send after the first is dropped.
type Channel struct {
	once sync.Once
	ch   chan Result
}

// NewChannel returns an empty Channel.
func NewChannel() *Channel {
	return &Channel{ch: make(chan Result, 1)}
}

// Send records r if nothing was sent before and reports whether it won.
func (c *Channel) Send(r Result) bool {
	sent := false
	c.once.Do(func() {
		c.ch <- r
		sent = true
	})
	return sent
}

// Event sends a successful outcome.
func (c *Channel) Event(e Event) bool {
	return c.Send(Result{Event: e})
}

// Fail sends a failed outcome.
func (c *Channel) Fail(err error) bool {
	return c.Send(Result{Event: UnexpectedExit, Err: err})
}

// Wait blocks until a Result is sent or ctx is done.
func (c *Channel) Wait(ctx context.Context) (Result, error) {
	select {
	case r := <-c.ch:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Signals are the OS signals that request a graceful exit.
var Signals = []os.Signal{syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGHUP}

// SignalTrap catches Signals from NewSignalTrap until Stop. While it is open
// none of them terminates the process, however many arrive.
type SignalTrap struct {
	ch chan os.Signal
}

// NewSignalTrap starts catching Signals.
func NewSignalTrap() *SignalTrap {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, Signals...)
	return &SignalTrap{ch: ch}
}

// Wait calls fn for every caught signal until ctx is done, starting with one
// that arrived before Wait was called.
func (t *SignalTrap) Wait(ctx context.Context, fn func(os.Signal)) {
	for {
		select {
		case sig := <-t.ch:
			fn(sig)
		case <-ctx.Done():
			return
		}
	}
}

// Stop restores the default signal behaviour.
func (t *SignalTrap) Stop() {
	signal.Stop(t.ch)
}

// AfterTimeout calls fn once after d unless ctx ends first. A zero d disables
// the timer and returns immediately.
func AfterTimeout(ctx context.Context, d time.Duration, fn func()) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		fn()
	case <-ctx.Done():
	}
}
