package platform

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/indragiek/uniprof/internal/convert"
)

// excimerPrepend starts Excimer before the script and writes a speedscope
// document at shutdown to the path in UNIPROF_EXCIMER_OUTPUT.
const excimerPrepend = `<?php
if (extension_loaded('excimer')) {
    $uniprofExcimer = new ExcimerProfiler();
    $uniprofExcimer->setPeriod(0.001);
    $uniprofExcimer->setEventType(EXCIMER_REAL);
    $uniprofExcimer->start();
    register_shutdown_function(function () use ($uniprofExcimer) {
        $uniprofExcimer->stop();
        $data = $uniprofExcimer->getLog()->getSpeedscopeData();
        file_put_contents(getenv('UNIPROF_EXCIMER_OUTPUT'), json_encode($data, JSON_UNESCAPED_SLASHES | JSON_UNESCAPED_UNICODE));
    });
}
`

const excimerPrependName = "uniprof-excimer-prepend.php"

// NewPHP profiles PHP with the Excimer extension, loaded through a generated
// auto_prepend_file.
func NewPHP(deps Deps) *Base {
	return NewBase(Recipe{
		Name:        "php",
		Profiler:    "excimer",
		RawKind:     convert.KindSpeedscope,
		Extensions:  []string{".php"},
		Executables: []string{"php"},
		Tools:       []string{"php"},
		Setup: []string{
			"Install the Excimer extension: `pecl install excimer` and enable it in php.ini.",
		},
		Caches: []Cache{
			{Name: "composer", ContainerPath: "/root/.composer/cache"},
		},
		// php is the target; the profiler lives inside it.
		Denylist:    []string{},
		HostCommand: phpCommand,
		Check:       checkExcimer,
	}, deps)
}

func phpCommand(inv Invocation) ([]string, error) {
	argv := withInterpreter(inv.Argv, []string{"php"}, ".php")
	if commandName(argv[0]) != "php" && trimVersion(commandName(argv[0])) != "php" {
		return nil, fmt.Errorf("php profiling needs a php command line, got %q", argv[0])
	}

	// The prepend file lives next to the raw output so it is visible at the
	// same relative place inside the container.
	hostPrepend := outputJoin(Invocation{Output: inv.HostOutput}, excimerPrependName)
	// #nosec G306 - read by the profiled php process, possibly as another user in a container.
	if err := os.WriteFile(hostPrepend, []byte(excimerPrepend), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write excimer prepend file: %w", err)
	}
	inv.Context.AddTempFile(hostPrepend)
	inv.Context.MergeEnv(map[string]string{"UNIPROF_EXCIMER_OUTPUT": inv.Output})

	cmd := []string{argv[0], "-d", "auto_prepend_file=" + outputJoin(inv, excimerPrependName)}
	cmd = append(cmd, inv.Options.ProfilerArgs...)
	return append(cmd, argv[1:]...), nil
}

func checkExcimer(ctx context.Context, deps Deps, c *EnvironmentCheck) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := deps.Output(ctx, "php", "-m")
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.EqualFold(strings.TrimSpace(line), "excimer") {
			return
		}
	}
	c.Fail("the excimer extension is not loaded", "Install the Excimer extension: `pecl install excimer` and enable it in php.ini.")
}
