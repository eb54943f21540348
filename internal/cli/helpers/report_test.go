package helpers

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indragiek/uniprof/internal/platform"
)

func TestCheckReport_Plain(t *testing.T) {
	failing := platform.NewEnvironmentCheck("python", "host")
	failing.Fail("py-spy not found on PATH", "pip install py-spy")
	failing.Warn("not running as root")

	ready := platform.NewEnvironmentCheck("nodejs", "container")

	var buf bytes.Buffer
	r := &CheckReport{}
	require.NoError(t, r.RenderAll(&buf, []*platform.EnvironmentCheck{failing, ready}))

	out := buf.String()
	assert.Contains(t, out, "✗ python (host mode) is not ready")
	assert.Contains(t, out, "error: py-spy not found on PATH")
	assert.Contains(t, out, "warning: not running as root")
	assert.Contains(t, out, "- pip install py-spy")
	assert.Contains(t, out, "✓ nodejs (container mode) is ready")
	assert.Contains(t, out, "1 of 2 platforms ready")
	assert.NotContains(t, out, "\x1b[")
}

func TestNewCheckReport_NonTerminal(t *testing.T) {
	assert.False(t, NewCheckReport(&bytes.Buffer{}).Styled)
}
