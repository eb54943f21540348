// Package signalstest provides a signal source for tests.
package signalstest

import (
	"os"
	"sync"

	"github.com/indragiek/uniprof/internal/sys/signals"
)

var _ signals.Source = (*Source)(nil)

// Source is a signals.Source driven by Send. Send delivers a signal to every
// installed handler; Installed reports how many handlers are registered.
type Source struct {
	mu       sync.Mutex
	handlers map[chan<- os.Signal]bool
	installs int
}

// NewSource creates an empty Source.
func NewSource() *Source {
	return &Source{handlers: make(map[chan<- os.Signal]bool)}
}

// Notify implements signals.Source.
func (f *Source) Notify(c chan<- os.Signal, _ ...os.Signal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[c] = true
	f.installs++
}

// Stop implements signals.Source.
func (f *Source) Stop(c chan<- os.Signal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, c)
}

// Send delivers sig to every installed handler and reports whether any
// handler received it.
func (f *Source) Send(sig os.Signal) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for c := range f.handlers {
		c <- sig
	}
	return len(f.handlers) > 0
}

// Installed returns the number of handlers currently registered.
func (f *Source) Installed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

// Installs returns how many handlers were ever registered.
func (f *Source) Installs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installs
}
