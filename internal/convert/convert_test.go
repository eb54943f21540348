package convert

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indragiek/uniprof/internal/speedscope"
)

func writeRaw(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func frameNames(f *speedscope.File, sample []int) []string {
	names := make([]string, len(sample))
	for i, idx := range sample {
		names[i] = f.Shared.Frames[idx].Name
	}
	return names
}

func TestConvert_Speedscope(t *testing.T) {
	raw := `{
  "$schema": "https://www.speedscope.app/file-format-schema.json",
  "name": "py-spy",
  "activeProfileIndex": 0,
  "profiles": [{"type":"sampled","name":"MainThread","unit":"none","startValue":0,"endValue":2,
    "samples":[[0,1],[0]],"weights":[1,1]}],
  "shared": {"frames": [{"name":"<module>","file":"app.py","line":1},{"name":"work","file":"app.py","line":5}]},
  "exporter": "py-spy@0.4.0"
}`
	path := writeRaw(t, "raw.json", raw)

	f, err := Convert(KindSpeedscope, path, Options{Exporter: "uniprof-python"})
	require.NoError(t, err)

	assert.Equal(t, "uniprof-python", f.Exporter)
	assert.Equal(t, "py-spy", f.Name)
	assert.Equal(t, []string{"<module>", "work"}, frameNames(f, f.Profiles[0].Samples[0]))
}

func TestConvert_SpeedscopeInvalid(t *testing.T) {
	raw := `{"profiles":[{"type":"sampled","name":"t","unit":"none","samples":[[3]],"weights":[1]}],"shared":{"frames":[]}}`
	path := writeRaw(t, "raw.json", raw)

	_, err := Convert(KindSpeedscope, path, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid")
}

func TestConvert_Collapsed(t *testing.T) {
	raw := "main;compute;inner 30\nmain;compute 10\n\nmain;idle 5\nbroken-line\nmain;zero 0\n"
	path := writeRaw(t, "collapsed.txt", raw)

	f, err := Convert(KindCollapsed, path, Options{Name: "jvm", Exporter: "uniprof-jvm"})
	require.NoError(t, err)

	require.Len(t, f.Profiles, 1)
	p := f.Profiles[0]
	assert.Equal(t, speedscope.UnitNone, p.Unit)
	assert.Len(t, p.Samples, 3)
	assert.Equal(t, []float64{30, 10, 5}, p.Weights)
	assert.Equal(t, []string{"main", "compute", "inner"}, frameNames(f, p.Samples[0]))
	assert.Len(t, f.Shared.Frames, 4)
}

func TestConvert_PerfScript(t *testing.T) {
	raw := `app 1234/1234 [000] 100.000100:     250000 cpu-clock:pppH: 
	    55d0c0a01234 compute+0x14 (/workspace/app)
	    55d0c0a01100 main+0x20 (/workspace/app)
	    7f3a1c02a1ca __libc_start_main+0x80 (/usr/lib/x86_64-linux-gnu/libc.so.6)

app 1234/1235 [001] 100.000350:     250000 cpu-clock:pppH: 
	    7f3a1c0fffff [unknown] (/usr/lib/x86_64-linux-gnu/libc.so.6)
	    55d0c0a01100 main+0x20 (/workspace/app)

app 1234/1234 [000] 100.000600:     250000 cpu-clock:pppH: 
	    55d0c0a01100 main+0x20 (/workspace/app)

perf 99 100.0007: 1 cpu-clock:
`
	path := writeRaw(t, "perf.txt", raw)

	f, err := Convert(KindPerfScript, path, Options{Exporter: "uniprof-native"})
	require.NoError(t, err)

	require.Len(t, f.Profiles, 2)
	main := f.Profiles[0]
	assert.Equal(t, "app tid 1234", main.Name)
	assert.Equal(t, speedscope.UnitNanoseconds, main.Unit)
	assert.Equal(t, []float64{250000, 250000}, main.Weights)
	assert.Equal(t, []string{"__libc_start_main", "main", "compute"}, frameNames(f, main.Samples[0]))

	worker := f.Profiles[1]
	assert.Equal(t, "app tid 1235", worker.Name)
	assert.Equal(t, []string{"main", "[unknown] libc.so.6"}, frameNames(f, worker.Samples[0]))
}

func TestConvert_PerfScriptWithoutStacks(t *testing.T) {
	path := writeRaw(t, "perf.txt", "app 1 1.000001: 1 cycles:\n")

	_, err := Convert(KindPerfScript, path, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-g")
}

func TestParsePerfHeader(t *testing.T) {
	tests := map[string]struct {
		line   string
		thread string
		period float64
		event  string
	}{
		"pid tid cpu": {
			line:   "python3 10/11 [002] 5.123456: 1000 cpu-clock:",
			thread: "python3 tid 11", period: 1000, event: "cpu-clock",
		},
		"no period": {
			line:   "node 7 5.5: cycles:u:",
			thread: "node tid 7", event: "cycles:u",
		},
		"comm with spaces": {
			line:   "Web Content 44/45 9.000001: 10 task-clock:",
			thread: "Web Content tid 45", period: 10, event: "task-clock",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s, ok := parsePerfHeader(tt.line)
			require.True(t, ok)
			assert.Equal(t, tt.thread, s.thread)
			assert.Equal(t, tt.period, s.period)
			assert.Equal(t, tt.event, s.event)
		})
	}
}

func TestConvert_Pprof(t *testing.T) {
	fnMain := &profile.Function{ID: 1, Name: "main.main", Filename: "/src/main.go"}
	fnWork := &profile.Function{ID: 2, Name: "main.work", Filename: "/src/main.go"}
	fnInl := &profile.Function{ID: 3, Name: "main.inlined", Filename: "/src/main.go"}

	locMain := &profile.Location{ID: 1, Line: []profile.Line{{Function: fnMain, Line: 10}}}
	// Inlined: the leaf line is listed first.
	locWork := &profile.Location{ID: 2, Line: []profile.Line{{Function: fnInl, Line: 30}, {Function: fnWork, Line: 20}}}

	prof := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "samples", Unit: "count"},
			{Type: "cpu", Unit: "nanoseconds"},
		},
		PeriodType: &profile.ValueType{Type: "cpu", Unit: "nanoseconds"},
		Period:     10000000,
		Function:   []*profile.Function{fnMain, fnWork, fnInl},
		Location:   []*profile.Location{locMain, locWork},
		Sample: []*profile.Sample{
			{Location: []*profile.Location{locWork, locMain}, Value: []int64{3, 30000000}},
			{Location: []*profile.Location{locMain}, Value: []int64{1, 10000000}},
			{Location: []*profile.Location{locMain}, Value: []int64{0, 0}},
		},
	}

	path := filepath.Join(t.TempDir(), "cpu.pprof")
	fh, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, prof.Write(fh))
	require.NoError(t, fh.Close())

	f, err := Convert(KindPprof, path, Options{Name: "go test", Exporter: "uniprof-golang"})
	require.NoError(t, err)

	require.Len(t, f.Profiles, 1)
	p := f.Profiles[0]
	assert.Equal(t, speedscope.UnitNanoseconds, p.Unit)
	assert.Equal(t, []float64{30000000, 10000000}, p.Weights)
	assert.Equal(t, []string{"main.main", "main.work", "main.inlined"}, frameNames(f, p.Samples[0]))
	assert.Equal(t, 20, f.Shared.Frames[p.Samples[0][1]].Line)
}

func TestConvert_CPUProfile(t *testing.T) {
	raw := `{
  "nodes": [
    {"id":1,"callFrame":{"functionName":"(root)","url":"","lineNumber":-1,"columnNumber":-1},"children":[2,4]},
    {"id":2,"callFrame":{"functionName":"main","url":"file:///workspace/app.js","lineNumber":0,"columnNumber":0},"children":[3]},
    {"id":3,"callFrame":{"functionName":"","url":"file:///workspace/app.js","lineNumber":4,"columnNumber":2}},
    {"id":4,"callFrame":{"functionName":"(idle)","url":"","lineNumber":-1,"columnNumber":-1}}
  ],
  "startTime": 1000,
  "endTime": 1400,
  "samples": [3, 3, 4, 2],
  "timeDeltas": [0, 100, 200, 100]
}`
	path := writeRaw(t, "CPU.cpuprofile", raw)

	f, err := Convert(KindCPUProfile, path, Options{Exporter: "uniprof-nodejs"})
	require.NoError(t, err)

	require.Len(t, f.Profiles, 1)
	p := f.Profiles[0]
	assert.Equal(t, speedscope.UnitMicroseconds, p.Unit)
	assert.Equal(t, []float64{100, 200, 100, 100}, p.Weights)
	assert.Equal(t, []string{"main", "(anonymous)"}, frameNames(f, p.Samples[0]))
	assert.Equal(t, []string{"(idle)"}, frameNames(f, p.Samples[2]))

	anon := f.Shared.Frames[p.Samples[0][1]]
	assert.Equal(t, 5, anon.Line)
	assert.Equal(t, 3, anon.Col)
	assert.Equal(t, "CPU", f.Name)
}

func TestConvert_InstrumentsXML(t *testing.T) {
	raw := `<?xml version="1.0"?>
<trace-query-result>
<node xpath='//trace-toc[1]/run[1]/data[1]/table[4]'>
<schema name="time-profile"/>
<row>
  <sample-time id="1" fmt="00:00.001">1000000</sample-time>
  <thread id="2" fmt="Main Thread 0x1a2b (app, pid: 42)"><tid id="3" fmt="0x1a2b">6699</tid></thread>
  <weight id="4" fmt="1.00 ms">1000000</weight>
  <backtrace id="5">
    <frame id="6" name="compute" addr="0x100003f10"><binary id="7" name="app" path="/Users/dev/proj/app"/></frame>
    <frame id="8" name="main" addr="0x100003f80"><binary ref="7"/></frame>
  </backtrace>
</row>
<row>
  <sample-time id="9" fmt="00:00.002">2000000</sample-time>
  <thread ref="2"/>
  <weight ref="4"/>
  <backtrace ref="5"/>
</row>
<row>
  <sample-time id="10" fmt="00:00.003">3000000</sample-time>
  <thread ref="2"/>
  <weight id="11" fmt="2.00 ms">2000000</weight>
  <backtrace id="12"><frame ref="8"/></backtrace>
</row>
</node>
</trace-query-result>`
	path := writeRaw(t, "trace.xml", raw)

	f, err := Convert(KindInstrumentsXML, path, Options{Name: "app", Exporter: "uniprof-native"})
	require.NoError(t, err)

	require.Len(t, f.Profiles, 1)
	p := f.Profiles[0]
	assert.Equal(t, "Main Thread 0x1a2b (app, pid: 42)", p.Name)
	assert.Equal(t, []float64{1000000, 1000000, 2000000}, p.Weights)
	assert.Equal(t, []string{"main", "compute"}, frameNames(f, p.Samples[0]))
	assert.Equal(t, p.Samples[0], p.Samples[1])
	assert.Equal(t, []string{"main"}, frameNames(f, p.Samples[2]))
	assert.Equal(t, "/Users/dev/proj/app", f.Shared.Frames[p.Samples[0][0]].File)
	assert.Len(t, f.Shared.Frames, 2)
}

func TestConvertFile(t *testing.T) {
	src := writeRaw(t, "in.txt", "a;b 2\na 1\n")
	dst := filepath.Join(t.TempDir(), "out.json")

	require.NoError(t, ConvertFile(KindCollapsed, src, dst, Options{Exporter: "uniprof-jvm"}))

	f, err := speedscope.Read(dst)
	require.NoError(t, err)
	assert.Equal(t, "uniprof-jvm", f.Exporter)
	assert.Equal(t, len(f.Profiles[0].Samples), len(f.Profiles[0].Weights))
}

func TestConvert_Errors(t *testing.T) {
	_, err := Convert("bogus", writeRaw(t, "x", ""), Options{})
	assert.ErrorContains(t, err, "unsupported")

	_, err = Convert(KindCollapsed, filepath.Join(t.TempDir(), "missing"), Options{})
	assert.ErrorContains(t, err, "failed to open")
}
