// Package dockertest provides an in-memory container engine for tests.
package dockertest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/indragiek/uniprof/internal/docker"
)

var _ docker.Engine = (*Engine)(nil)

// Engine is an in-memory docker.Engine. Its attached process runs Script
// when set and otherwise blocks until interrupted or killed.
type Engine struct {
	// PingErr, CreateErr and StartErr fail the corresponding call.
	PingErr   error
	CreateErr error
	StartErr  error

	// Script, when set, is the attached process. ctx is canceled when the
	// process receives an interrupt through Exec; the returned value is the
	// exit code.
	Script func(ctx context.Context, spec docker.CreateSpec, streams docker.Streams) int

	// PsTree and PsComm are returned for "ps -eo pid,ppid" and
	// "ps -o pid,comm" execs.
	PsTree string
	PsComm string

	// IgnoreInterrupt leaves the process running when it is sent SIGINT.
	IgnoreInterrupt bool

	// InterruptExitCode is the exit code after SIGINT when Script is nil.
	// Zero means 130.
	InterruptExitCode int

	mu      sync.Mutex
	created []docker.CreateSpec
	execs   [][]string
	kills   []string
	removes []string
	proc    *Process
	started chan struct{}
}

// NewEngine creates an Engine.
func NewEngine() *Engine {
	return &Engine{started: make(chan struct{})}
}

// Ping implements docker.Engine.
func (f *Engine) Ping(context.Context) error { return f.PingErr }

// Create implements docker.Engine.
func (f *Engine) Create(_ context.Context, spec docker.CreateSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	f.created = append(f.created, spec)
	return fmt.Sprintf("fake-%d", len(f.created)), nil
}

// Start implements docker.Engine.
func (f *Engine) Start(_ context.Context, _ string, streams docker.Streams) (docker.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		return nil, f.StartErr
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Process{done: make(chan struct{}), interrupt: cancel}
	f.proc = p

	if f.Script != nil {
		spec := f.created[len(f.created)-1]
		go func() {
			p.exit(f.Script(ctx, spec, streams))
		}()
	}
	if f.started != nil {
		close(f.started)
	}
	return p, nil
}

// Exec implements docker.Engine. It answers ps queries from PsTree and PsComm and
// delivers kill commands to the attached process.
func (f *Engine) Exec(ctx context.Context, _ string, argv []string) (docker.ExecResult, error) {
	if err := ctx.Err(); err != nil {
		return docker.ExecResult{}, err
	}

	f.mu.Lock()
	f.execs = append(f.execs, append([]string(nil), argv...))
	p := f.proc
	f.mu.Unlock()

	cmd := strings.Join(argv, " ")
	switch {
	case strings.HasPrefix(cmd, "ps -eo"):
		return docker.ExecResult{Stdout: f.PsTree}, nil
	case strings.HasPrefix(cmd, "ps -o"):
		return docker.ExecResult{Stdout: f.PsComm}, nil
	case strings.HasPrefix(cmd, "kill -KILL"):
		if p != nil {
			p.exit(137)
		}
	case strings.HasPrefix(cmd, "kill -INT"):
		if p != nil && !f.IgnoreInterrupt {
			if f.Script != nil {
				p.interrupt()
			} else {
				code := f.InterruptExitCode
				if code == 0 {
					code = 130
				}
				p.exit(code)
			}
		}
	}
	return docker.ExecResult{}, nil
}

// Kill implements docker.Engine.
func (f *Engine) Kill(_ context.Context, id, signal string) error {
	f.mu.Lock()
	f.kills = append(f.kills, id+":"+signal)
	p := f.proc
	f.mu.Unlock()
	if p != nil {
		p.exit(137)
	}
	return nil
}

// Remove implements docker.Engine.
func (f *Engine) Remove(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removes = append(f.removes, id)
	return nil
}

// Started is closed once the attached process has been started.
func (f *Engine) Started() <-chan struct{} { return f.started }

// Created returns the specs passed to Create.
func (f *Engine) Created() []docker.CreateSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]docker.CreateSpec(nil), f.created...)
}

// Execs returns every argv passed to Exec.
func (f *Engine) Execs() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.execs...)
}

// SignalExecs returns the kill commands run inside the container.
func (f *Engine) SignalExecs() []string {
	var out []string
	for _, argv := range f.Execs() {
		if len(argv) > 0 && argv[0] == "kill" {
			out = append(out, strings.Join(argv, " "))
		}
	}
	return out
}

// Kills returns the engine kills as "id:signal".
func (f *Engine) Kills() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.kills...)
}

// Removes returns the ids passed to Remove.
func (f *Engine) Removes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removes...)
}

// Exit ends the attached process with code.
func (f *Engine) Exit(code int) {
	f.mu.Lock()
	p := f.proc
	f.mu.Unlock()
	if p != nil {
		p.exit(code)
	}
}

// Process is the attached process of an Engine container.
type Process struct {
	once      sync.Once
	done      chan struct{}
	code      int
	interrupt context.CancelFunc
}

func (p *Process) exit(code int) {
	p.once.Do(func() {
		p.code = code
		p.interrupt()
		close(p.done)
	})
}

// Wait implements docker.Process.
func (p *Process) Wait() (int, error) {
	<-p.done
	return p.code, nil
}

// Signal implements docker.Process.
func (p *Process) Signal(os.Signal) error { return nil }

// Kill implements docker.Process.
func (p *Process) Kill() error {
	p.exit(137)
	return nil
}
