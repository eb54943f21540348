package helpers

import (
	"os"

	"github.com/indragiek/uniprof/internal/logging"
)

// Interactive reports whether stdin and stdout are both terminals, which is
// when a profiling container gets a tty.
func Interactive() bool {
	return logging.IsTerminal(os.Stdin) && logging.IsTerminal(os.Stdout)
}
