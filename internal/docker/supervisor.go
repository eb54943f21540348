package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/indragiek/uniprof/internal/constants"
	uerrors "github.com/indragiek/uniprof/internal/errors"
	"github.com/indragiek/uniprof/internal/retry"
	"github.com/indragiek/uniprof/internal/sys/proc"
	"github.com/indragiek/uniprof/internal/sys/signals"
	"github.com/indragiek/uniprof/pkg/version"
)

// Labels set on every profiling container.
const (
	LabelVersion  = "uniprof.version"
	LabelPlatform = "uniprof.platform"
)

// RunState is the lifecycle state of one supervised container run.
type RunState int

const (
	// StateIdle is before the container has been started.
	StateIdle RunState = iota
	// StateRunning is while the attached process runs undisturbed.
	StateRunning
	// StateCancelRequested is after a first cancellation signal.
	StateCancelRequested
	// StateForceKilling is after an escalating second signal.
	StateForceKilling
	// StateTerminated is after the container has been removed.
	StateTerminated
)

// String returns a human-readable representation of the run state.
func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCancelRequested:
		return "cancel_requested"
	case StateForceKilling:
		return "force_killing"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// RunSpec describes one profiling container run.
type RunSpec struct {
	CreateSpec

	// Platform names the container when Name is empty.
	Platform string

	// Denylist holds process names that must not receive the graceful
	// interrupt, typically the profiler itself so it can flush its output.
	Denylist []string

	// CaptureOutput buffers stdout and stderr and reports them only in a
	// ProfilerExitError. Stdin is inherited either way.
	CaptureOutput bool

	// Stdin, Stdout and Stderr default to the process's own streams.
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
}

// Result is the outcome of a completed run.
type Result struct {
	ContainerID string
	ExitCode    int
	Stdout      string
	Stderr      string
	Duration    time.Duration
	FinalState  RunState
}

// Supervisor runs profiling containers.
type Supervisor struct {
	engine        Engine
	logger        zerolog.Logger
	signals       signals.Source
	now           func() time.Time
	discovery     retry.Config
	window        time.Duration
	removeTimeout time.Duration
	execTimeout   time.Duration
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithSignalSource replaces the process signal source.
func WithSignalSource(src signals.Source) Option {
	return func(s *Supervisor) { s.signals = src }
}

// WithClock replaces time.Now for the escalation window.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// WithDiscovery sets how often and how far apart the container process tree
// is queried for signal targets.
func WithDiscovery(attempts int, interval time.Duration) Option {
	return func(s *Supervisor) {
		s.discovery = retry.Config{MaxRetries: attempts, InitialBackoff: interval, Fixed: true}
	}
}

// WithRemoveTimeout bounds the final forced removal.
func WithRemoveTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.removeTimeout = d }
}

// NewSupervisor creates a supervisor over engine.
func NewSupervisor(engine Engine, logger zerolog.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		engine:  engine,
		logger:  logger.With().Str("component", "container_supervisor").Logger(),
		signals: signals.OSSource{},
		now:     time.Now,
		discovery: retry.Config{
			MaxRetries:     constants.ProcessDiscoveryAttempts,
			InitialBackoff: constants.ProcessDiscoveryInterval,
			Fixed:          true,
		},
		window:        constants.EscalationWindow,
		removeTimeout: constants.ContainerRemoveTimeout,
		execTimeout:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// containerLabels adds the uniprof labels to a copy of labels so leftover
// containers can be found with `docker ps --filter label=uniprof.version`.
func containerLabels(labels map[string]string, platform string) map[string]string {
	out := make(map[string]string, len(labels)+2)
	for k, v := range labels {
		out[k] = v
	}
	if _, ok := out[LabelVersion]; !ok {
		out[LabelVersion] = version.Version
	}
	if _, ok := out[LabelPlatform]; !ok && platform != "" {
		out[LabelPlatform] = platform
	}
	return out
}

// NewContainerName returns a unique container name for platform.
func NewContainerName(platform string) string {
	if platform == "" {
		platform = "run"
	}
	return "uniprof-" + platform + "-" + uuid.New().String()[:8]
}

// run is the state of one Run call.
type run struct {
	s    *Supervisor
	id   string
	spec RunSpec

	mu        sync.Mutex
	state     RunState
	firstSig  os.Signal
	escalated bool

	removeOnce sync.Once
}

func (r *run) setState(st RunState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != st {
		r.s.logger.Debug().Str("container", r.id).Stringer("from", r.state).Stringer("to", st).Msg("Run state changed")
	}
	r.state = st
}

func (r *run) getState() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// remove force-removes the container. It runs at most once per run and
// ignores cancellation of the caller's context.
func (r *run) remove() {
	r.removeOnce.Do(func() {
		if err := r.s.removeContainer(r.id); err != nil {
			r.s.logger.Warn().Err(err).Str("container", r.id).Msg("Failed to remove container")
		}
		r.setState(StateTerminated)
	})
}

// removeContainer force-removes id with its own timeout so that cleanup
// survives cancellation of the run.
func (s *Supervisor) removeContainer(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.removeTimeout)
	defer cancel()
	return s.engine.Remove(ctx, id)
}

// Run creates, starts and supervises one container until its attached
// process exits. The container is removed exactly once before Run returns on
// every path, a failed create included, and the cancellation handler is
// installed only for the duration of the call.
//
// The error is nil for a zero exit, a *errors.CancellationError when the run
// was interrupted by the user, a *errors.ProfilerExitError for any other
// nonzero exit and a *errors.ContainerCreateError when the container could
// not be created. The Result is non-nil whenever the container was started.
func (s *Supervisor) Run(ctx context.Context, spec RunSpec) (*Result, error) {
	if spec.Name == "" {
		spec.Name = NewContainerName(spec.Platform)
	}
	spec.Labels = containerLabels(spec.Labels, spec.Platform)
	if spec.Stdin == nil {
		spec.Stdin = os.Stdin
	}
	if spec.Stdout == nil {
		spec.Stdout = os.Stdout
	}
	if spec.Stderr == nil {
		spec.Stderr = os.Stderr
	}

	for _, v := range spec.Volumes {
		if err := os.MkdirAll(v.HostPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create volume directory %s: %w", v.HostPath, err)
		}
	}

	start := s.now()
	id, err := s.engine.Create(ctx, spec.CreateSpec)
	if err != nil {
		// The engine may have registered the name before failing.
		if rmErr := s.removeContainer(spec.Name); rmErr != nil {
			s.logger.Debug().Err(rmErr).Str("name", spec.Name).Msg("No container to remove after failed create")
		}
		if _, ok := err.(*uerrors.ContainerCreateError); !ok {
			err = &uerrors.ContainerCreateError{Image: spec.Image, Err: err}
		}
		return nil, err
	}

	r := &run{s: s, id: id, spec: spec}
	defer r.remove()

	s.logger.Info().
		Str("container", id).
		Str("name", spec.Name).
		Str("image", spec.Image).
		Strs("argv", spec.Argv).
		Msg("Container created")

	scope := signals.Install(s.signals)
	defer scope.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	streams := Streams{Stdin: spec.Stdin, Stdout: spec.Stdout, Stderr: spec.Stderr}
	if spec.CaptureOutput {
		streams.Stdout = &lockedBuffer{buf: &stdoutBuf}
		streams.Stderr = &lockedBuffer{buf: &stderrBuf}
	}

	p, err := s.engine.Start(ctx, id, streams)
	if err != nil {
		return nil, err
	}
	r.setState(StateRunning)

	exitCode, waitErr := r.supervise(ctx, p, scope)

	r.remove()

	res := &Result{
		ContainerID: id,
		ExitCode:    exitCode,
		Duration:    s.now().Sub(start),
		FinalState:  r.getState(),
	}
	if spec.CaptureOutput {
		res.Stdout = stdoutBuf.String()
		res.Stderr = stderrBuf.String()
	}

	s.logger.Info().
		Str("container", id).
		Int("exit_code", exitCode).
		Dur("duration", res.Duration).
		Bool("cancelled", r.firstSig != nil).
		Msg("Container run finished")

	switch {
	case waitErr != nil:
		return res, waitErr
	case r.firstSig == nil && ctx.Err() != nil:
		return res, ctx.Err()
	case r.firstSig != nil:
		return res, &uerrors.CancellationError{Signal: r.firstSig, Escalated: r.escalated}
	case exitCode != 0:
		return res, &uerrors.ProfilerExitError{
			Command:  strings.Join(spec.Argv, " "),
			ExitCode: exitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
		}
	}
	return res, nil
}

type waitResult struct {
	code int
	err  error
}

// supervise waits for the attached process while reacting to cancellation
// signals. Signals are read here; container actions they trigger run on a
// single worker so exec calls into the container never overlap.
func (r *run) supervise(ctx context.Context, p Process, scope *signals.Scope) (int, error) {
	done := make(chan waitResult, 1)
	go func() {
		code, err := p.Wait()
		done <- waitResult{code: code, err: err}
	}()

	window := signals.NewWindow(r.s.window, r.s.now)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	gracefulCtx, cancelGraceful := context.WithCancel(workerCtx)
	actions := make(chan signals.Decision, 4)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for d := range actions {
			if d == signals.Escalate {
				r.escalate(workerCtx)
				continue
			}
			r.gracefulStop(gracefulCtx)
		}
	}()
	defer func() {
		close(actions)
		stopWorker()
		wg.Wait()
		cancelGraceful()
	}()

	enqueue := func(d signals.Decision) {
		select {
		case actions <- d:
		default:
			r.s.logger.Debug().Stringer("action", d).Msg("Container action queue full, dropping")
		}
	}

	ctxDone := ctx.Done()
	for {
		select {
		case res := <-done:
			return res.code, res.err

		case sig := <-scope.C():
			if r.getState() == StateForceKilling {
				continue
			}
			if window.Observe() == signals.Escalate {
				r.mu.Lock()
				r.escalated = true
				r.mu.Unlock()
				r.setState(StateForceKilling)
				r.s.logger.Warn().Str("container", r.id).Msg("Second interrupt, stopping container")

				cancelGraceful()
				enqueue(signals.Escalate)
				if err := p.Kill(); err != nil {
					r.s.logger.Debug().Err(err).Msg("Failed to kill attached process")
				}
				continue
			}

			r.mu.Lock()
			if r.firstSig == nil {
				r.firstSig = sig
			}
			r.mu.Unlock()
			r.setState(StateCancelRequested)
			r.s.logger.Info().Str("container", r.id).Stringer("signal", sig).Msg("Interrupt received, stopping target (press again to force)")
			enqueue(signals.Graceful)

		case <-ctxDone:
			ctxDone = nil
			if r.getState() == StateForceKilling {
				continue
			}
			r.setState(StateForceKilling)
			r.s.logger.Debug().Str("container", r.id).Err(ctx.Err()).Msg("Context done, stopping container")

			cancelGraceful()
			enqueue(signals.Escalate)
			_ = p.Kill()
		}
	}
}

// gracefulStop interrupts the target processes of the container, leaving
// denylisted processes (the profiler) running so they can flush.
func (r *run) gracefulStop(ctx context.Context) {
	var targets []int

	err := retry.Do(ctx, r.s.discovery, func() error {
		t, err := r.discoverTargets(ctx)
		if err != nil {
			return err
		}
		if len(t) == 0 {
			return errNoTargets
		}
		targets = t
		return nil
	}, func(err error) bool {
		return ctx.Err() == nil
	})

	if ctx.Err() != nil {
		return
	}

	if err != nil {
		r.s.logger.Debug().Err(err).Str("container", r.id).Msg("No signal targets found, falling back to PID 1")
		if r.pid1Denied(ctx) {
			r.s.logger.Warn().Str("container", r.id).Msg("PID 1 is the profiler; not interrupting it")
			return
		}
		targets = []int{1}
	}

	r.s.logger.Debug().Str("container", r.id).Ints("pids", targets).Msg("Sending SIGINT")
	r.execKill(ctx, "INT", targets)
}

var errNoTargets = errors.New("no eligible processes")

// discoverTargets lists the descendants of PID 1 that may be interrupted.
func (r *run) discoverTargets(ctx context.Context) ([]int, error) {
	tree, err := r.exec(ctx, "ps", "-eo", "pid,ppid")
	if err != nil {
		return nil, err
	}

	candidates := proc.Descendants(proc.ParsePidTable(tree), 1)
	if len(candidates) == 0 {
		return nil, nil
	}

	comm, err := r.exec(ctx, "ps", "-o", "pid,comm", "-p", proc.JoinPids(candidates))
	if err != nil {
		return nil, err
	}

	return proc.SelectSignalTargets(candidates, proc.ParseCommTable(comm), r.spec.Denylist), nil
}

func (r *run) pid1Denied(ctx context.Context) bool {
	out, err := r.exec(ctx, "ps", "-o", "pid,comm", "-p", "1")
	if err != nil {
		return false
	}
	name, ok := proc.ParseCommTable(out)[1]
	return ok && proc.IsDenied(name, r.spec.Denylist)
}

// escalate tears the container down: SIGKILL to PID 1 inside it, then a kill
// through the engine.
func (r *run) escalate(ctx context.Context) {
	r.execKill(ctx, "KILL", []int{1})

	killCtx, cancel := context.WithTimeout(ctx, r.s.execTimeout)
	defer cancel()
	if err := r.s.engine.Kill(killCtx, r.id, "KILL"); err != nil {
		r.s.logger.Debug().Err(err).Str("container", r.id).Msg("Engine kill failed")
	}
}

func (r *run) execKill(ctx context.Context, sig string, pids []int) {
	args := []string{"kill", "-" + sig}
	for _, pid := range pids {
		args = append(args, fmt.Sprint(pid))
	}
	if _, err := r.exec(ctx, args...); err != nil {
		r.s.logger.Debug().Err(err).Str("container", r.id).Str("signal", sig).Msg("Signal delivery failed")
	}
}

// exec runs argv in the container with a bounded wait. A nonzero exit is an
// error.
func (r *run) exec(ctx context.Context, argv ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.execTimeout)
	defer cancel()

	res, err := r.s.engine.Exec(ctx, r.id, argv)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return res.Stdout, fmt.Errorf("%s exited with code %d: %s", argv[0], res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, nil
}

// lockedBuffer serializes writes from the stdout and stderr copy goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}
