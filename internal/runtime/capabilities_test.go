package runtime

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCapabilityBitmask(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		capName     string
		expected    uint64
		expectError bool
	}{
		{
			name: "full capabilities",
			content: `Name:	uniprof
CapInh:	0000000000000000
CapPrm:	00000000a80435fb
CapEff:	00000000a80435fb
CapBnd:	00000000a80435fb
CapAmb:	0000000000000000`,
			capName:  "CapEff",
			expected: 0xa80435fb,
		},
		{
			name: "no capabilities",
			content: `Name:	uniprof
CapEff:	0000000000000000`,
			capName:  "CapEff",
			expected: 0x0,
		},
		{
			name: "perfmon only",
			content: `Name:	uniprof
CapEff:	0000004000000000`,
			capName:  "CapEff",
			expected: 0x4000000000,
		},
		{
			name: "missing capability field",
			content: `Name:	uniprof
CapPrm:	00000000a80435fb`,
			capName:     "CapEff",
			expectError: true,
		},
		{
			name:        "malformed bitmask",
			content:     "CapEff:\tzz",
			capName:     "CapEff",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpFile := filepath.Join(t.TempDir(), "status")
			require.NoError(t, os.WriteFile(tmpFile, []byte(tt.content), 0o644))

			bitmask, err := readCapabilityBitmask(tmpFile, tt.capName)
			if tt.expectError {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, bitmask)
		})
	}
}

func TestCapabilitiesFromMask(t *testing.T) {
	tests := map[string]struct {
		mask uint64
		want Capabilities
	}{
		"docker default":        {mask: 0xa80425fb, want: Capabilities{}},
		"cap-add SYS_PTRACE":    {mask: 0xa80425fb | 1<<19, want: Capabilities{SysPtrace: true}},
		"privileged":            {mask: 0x1ffffffffff, want: Capabilities{SysPtrace: true, SysAdmin: true, Perfmon: true}},
		"perfmon without admin": {mask: 1 << 38, want: Capabilities{Perfmon: true}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, capabilitiesFromMask(tt.mask))
		})
	}
}

func TestReadCapabilityBitmask_MissingFile(t *testing.T) {
	_, err := readCapabilityBitmask(filepath.Join(t.TempDir(), "nope"), "CapEff")
	assert.ErrorContains(t, err, "failed to open")
}
