package platform

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/indragiek/uniprof/internal/docker"
	"github.com/indragiek/uniprof/internal/docker/dockertest"
	"github.com/indragiek/uniprof/internal/retry"
	hostrt "github.com/indragiek/uniprof/internal/runtime"
	"github.com/indragiek/uniprof/internal/sys/signals/signalstest"
)

const perfText = `app 1234/1234 [000] 100.000100:     250000 cpu-clock:pppH: 
	    55d0c0a01234 compute+0x14 (/workspace/app)
	    55d0c0a01100 main+0x20 (/workspace/app)

app 1234/1234 [000] 100.000350:     250000 cpu-clock:pppH: 
	    55d0c0a01100 main+0x20 (/workspace/app)
`

const speedscopeDoc = `{
  "$schema": "https://www.speedscope.app/file-format-schema.json",
  "name": "py-spy",
  "activeProfileIndex": 0,
  "profiles": [{"type":"sampled","name":"MainThread","unit":"none","startValue":0,"endValue":2,
    "samples":[[0,1],[0]],"weights":[1,1]}],
  "shared": {"frames": [{"name":"<module>","file":"app.py","line":1},{"name":"work","file":"app.py","line":5}]}
}`

// testDeps returns deps with nothing on PATH, a fake engine and a Linux host
// with perf_event_paranoid=1.
func testDeps(t *testing.T) (Deps, *dockertest.Engine) {
	t.Helper()

	engine := dockertest.NewEngine()
	sup := docker.NewSupervisor(engine, zerolog.Nop(),
		docker.WithSignalSource(signalstest.NewSource()),
		docker.WithDiscovery(1, time.Millisecond),
	)

	return Deps{
		Logger:     zerolog.Nop(),
		Engine:     engine,
		Supervisor: sup,
		LookPath:   func(string) (string, error) { return "", exec.ErrNotFound },
		Output: func(context.Context, string, ...string) ([]byte, error) {
			return nil, errors.New("unexpected command")
		},
		Host: func(context.Context) (*hostrt.Info, error) {
			return &hostrt.Info{OS: "linux", PerfEventParanoid: 1}, nil
		},
		IsRoot: func() bool { return false },
		GOOS:   "linux",
		Flush:  retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, Fixed: true},
	}, engine
}

func onPath(names ...string) func(string) (string, error) {
	return func(file string) (string, error) {
		for _, n := range names {
			if n == file {
				return "/usr/bin/" + file, nil
			}
		}
		return "", exec.ErrNotFound
	}
}
