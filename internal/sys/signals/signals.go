// Package signals scopes interrupt handling to a single supervised run and
// decides when a repeated interrupt escalates from a graceful stop to a forced
// teardown.
package signals

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Cancellation lists the signals that request a profiling run to stop.
var Cancellation = []os.Signal{os.Interrupt, syscall.SIGTERM}

// Source delivers process-wide signals. It exists so tests can inject
// signals without touching the real process.
type Source interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

// OSSource delivers real process signals through os/signal.
type OSSource struct{}

// Notify implements Source.
func (OSSource) Notify(c chan<- os.Signal, sig ...os.Signal) { signal.Notify(c, sig...) }

// Stop implements Source.
func (OSSource) Stop(c chan<- os.Signal) { signal.Stop(c) }

// Scope is a signal handler installed for the lifetime of one run. Close must
// be called on every exit path; it is safe to call more than once.
type Scope struct {
	src  Source
	ch   chan os.Signal
	once sync.Once
}

// Install registers a handler for sigs (Cancellation when empty) and returns
// its scope.
func Install(src Source, sigs ...os.Signal) *Scope {
	if src == nil {
		src = OSSource{}
	}
	if len(sigs) == 0 {
		sigs = Cancellation
	}

	s := &Scope{
		src: src,
		ch:  make(chan os.Signal, 4),
	}
	src.Notify(s.ch, sigs...)

	return s
}

// C returns the channel signals are delivered on.
func (s *Scope) C() <-chan os.Signal {
	return s.ch
}

// Close uninstalls the handler.
func (s *Scope) Close() {
	s.once.Do(func() {
		s.src.Stop(s.ch)
	})
}

// Decision is the action a received signal calls for.
type Decision int

const (
	// Graceful asks the target to stop while letting the profiler flush.
	Graceful Decision = iota
	// Escalate tears everything down immediately.
	Escalate
)

func (d Decision) String() string {
	if d == Escalate {
		return "escalate"
	}
	return "graceful"
}

// Window tracks the first cancellation signal of a run. A signal arriving
// within the window of the first escalates; a signal arriving after it starts
// a new window and is treated as a first signal again.
type Window struct {
	mu     sync.Mutex
	first  time.Time
	window time.Duration
	now    func() time.Time
}

// NewWindow creates a window of the given length. now defaults to time.Now.
func NewWindow(window time.Duration, now func() time.Time) *Window {
	if now == nil {
		now = time.Now
	}
	return &Window{window: window, now: now}
}

// Observe records a signal and returns the resulting decision.
func (w *Window) Observe() Decision {
	w.mu.Lock()
	defer w.mu.Unlock()

	at := w.now()
	if !w.first.IsZero() && at.Sub(w.first) <= w.window {
		return Escalate
	}

	w.first = at
	return Graceful
}

// FirstSignal returns when the current window started, or the zero time when
// no signal has been observed.
func (w *Window) FirstSignal() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.first
}
