package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	oldVersion, oldCommit := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = oldVersion, oldCommit })
	Version, GitCommit = "1.2.0", "abc1234"

	info := Get()
	assert.Equal(t, "1.2.0", info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, "1.2.0 (abc1234, "+runtime.GOOS+"/"+runtime.GOARCH+")", info.String())
}
