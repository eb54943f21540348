package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	uerrors "github.com/indragiek/uniprof/internal/errors"
)

// CLIEngine drives containers through the docker (or podman) command line.
type CLIEngine struct {
	binary string
	logger zerolog.Logger
}

// NewCLIEngine returns an engine that shells out to binary ("docker" when
// empty).
func NewCLIEngine(binary string, logger zerolog.Logger) *CLIEngine {
	if binary == "" {
		binary = "docker"
	}
	return &CLIEngine{
		binary: binary,
		logger: logger.With().Str("component", "container_engine").Logger(),
	}
}

// Binary returns the CLI the engine runs.
func (e *CLIEngine) Binary() string {
	return e.binary
}

// Ping implements Engine.
func (e *CLIEngine) Ping(ctx context.Context) error {
	if _, err := exec.LookPath(e.binary); err != nil {
		return fmt.Errorf("%s not found in PATH: %w", e.binary, err)
	}

	res, err := e.run(ctx, "version", "--format", "{{.Server.Version}}")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s daemon is not reachable: %s", e.binary, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Create implements Engine.
func (e *CLIEngine) Create(ctx context.Context, spec CreateSpec) (string, error) {
	args := CreateArgs(spec)

	res, err := e.run(ctx, args...)
	if err != nil {
		return "", &uerrors.ContainerCreateError{Image: spec.Image, Err: err}
	}
	if res.ExitCode != 0 {
		return "", &uerrors.ContainerCreateError{
			Image:  spec.Image,
			Stderr: res.Stderr,
			Err:    fmt.Errorf("%s create exited with code %d", e.binary, res.ExitCode),
		}
	}

	id := strings.TrimSpace(res.Stdout)
	if id == "" {
		return "", &uerrors.ContainerCreateError{Image: spec.Image, Err: errors.New("engine returned no container id")}
	}
	return id, nil
}

// CreateArgs renders the `create` command line for spec. Labels and
// environment variables are emitted in sorted order.
func CreateArgs(spec CreateSpec) []string {
	args := []string{"create", "-i"}
	if spec.TTY {
		args = append(args, "-t")
	}
	if spec.Name != "" {
		args = append(args, "--name", spec.Name)
	}
	for _, k := range sortedKeys(spec.Labels) {
		args = append(args, "--label", k+"="+spec.Labels[k])
	}
	if spec.HostNetwork {
		args = append(args, "--network", "host")
	}
	for _, c := range spec.CapAdd {
		args = append(args, "--cap-add", c)
	}
	for _, v := range spec.Volumes {
		bind := v.HostPath + ":" + v.ContainerPath
		if v.ReadOnly {
			bind += ":ro"
		}
		args = append(args, "-v", bind)
	}
	if spec.WorkDir != "" {
		args = append(args, "-w", spec.WorkDir)
	}

	for _, k := range sortedKeys(spec.Env) {
		args = append(args, "-e", k+"="+spec.Env[k])
	}

	args = append(args, spec.Image)
	return append(args, spec.Argv...)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StartArgs returns the arguments that start id attached. Signals are not
// proxied; only the supervisor signals the container.
func StartArgs(id string) []string {
	return []string{"start", "-a", "-i", "--sig-proxy=false", id}
}

// Start implements Engine. Writers that are *os.File are handed to the child
// directly; other writers are fed by copy goroutines that Wait joins.
//
// The attached CLI runs in its own process group so that a terminal Ctrl-C
// reaches only uniprof. A terminal stdin is relayed through a pipe because a
// background process group cannot read the terminal.
func (e *CLIEngine) Start(_ context.Context, id string, streams Streams) (Process, error) {
	// The attached process must outlive cancellation of the caller's
	// context; teardown goes through Kill.
	//nolint:gosec // G204: binary is the configured container CLI.
	cmd := exec.Command(e.binary, StartArgs(id)...)
	detach(cmd)
	cmd.Stdin = streams.Stdin

	p := &cliProcess{cmd: cmd}

	for _, s := range []struct {
		w    io.Writer
		dst  *io.Writer
		pipe func() (io.ReadCloser, error)
	}{
		{streams.Stdout, &cmd.Stdout, cmd.StdoutPipe},
		{streams.Stderr, &cmd.Stderr, cmd.StderrPipe},
	} {
		switch w := s.w.(type) {
		case nil:
		case *os.File:
			*s.dst = w
		default:
			r, err := s.pipe()
			if err != nil {
				return nil, fmt.Errorf("failed to attach output: %w", err)
			}
			p.copies = append(p.copies, copyJob{r: r, w: w})
		}
	}

	var relay *os.File
	in, isFile := streams.Stdin.(*os.File)
	if isFile && term.IsTerminal(int(in.Fd())) {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("failed to relay stdin: %w", err)
		}
		cmd.Stdin = r
		p.stdin = w
		relay = r
	}

	err := cmd.Start()
	if relay != nil {
		_ = relay.Close()
	}
	if err != nil {
		p.closeStdin()
		return nil, fmt.Errorf("failed to start container %s: %w", id, err)
	}

	if p.stdin != nil {
		go func() {
			_, _ = io.Copy(p.stdin, in)
		}()
	}

	for _, c := range p.copies {
		p.wg.Add(1)
		go func(c copyJob) {
			defer p.wg.Done()
			_, _ = io.Copy(c.w, c.r)
		}(c)
	}

	e.logger.Debug().Str("container", id).Int("pid", cmd.Process.Pid).Msg("Attached to container")
	return p, nil
}

// Exec implements Engine.
func (e *CLIEngine) Exec(ctx context.Context, id string, argv []string) (ExecResult, error) {
	args := append([]string{"exec", id}, argv...)
	return e.run(ctx, args...)
}

// Kill implements Engine.
func (e *CLIEngine) Kill(ctx context.Context, id string, signal string) error {
	res, err := e.run(ctx, "kill", "--signal", signal, id)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s kill %s: %s", e.binary, id, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Remove implements Engine.
func (e *CLIEngine) Remove(ctx context.Context, id string) error {
	res, err := e.run(ctx, "rm", "-f", id)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 && !isNoSuchContainer(res.Stderr) {
		return fmt.Errorf("%s rm %s: %s", e.binary, id, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// isNoSuchContainer matches the docker and podman messages for a missing
// container.
func isNoSuchContainer(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "no such container")
}

// run executes the CLI with buffered output. A nonzero exit is reported in
// the result, not as an error.
func (e *CLIEngine) run(ctx context.Context, args ...string) (ExecResult, error) {
	//nolint:gosec // G204: binary is the configured container CLI.
	cmd := exec.CommandContext(ctx, e.binary, args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	res := ExecResult{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, fmt.Errorf("failed to run %s %s: %w", e.binary, args[0], err)
	}

	e.logger.Trace().Strs("args", args).Msg("Container CLI call")
	return res, nil
}

type copyJob struct {
	r io.Reader
	w io.Writer
}

type cliProcess struct {
	cmd    *exec.Cmd
	copies []copyJob
	wg     sync.WaitGroup
	stdin  *os.File
}

func (p *cliProcess) closeStdin() {
	if p.stdin != nil {
		_ = p.stdin.Close()
	}
}

func (p *cliProcess) Wait() (int, error) {
	// Pipes must be drained before Wait closes them.
	p.wg.Wait()

	err := p.cmd.Wait()
	p.closeStdin()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

func (p *cliProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *cliProcess) Kill() error {
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
