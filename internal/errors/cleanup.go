// Package errors provides the uniprof error taxonomy and helpers for error
// handling.
package errors

import (
	"io"

	"github.com/rs/zerolog"
)

// DeferClose closes closer and logs a failure at warn level instead of
// returning it. Meant for defer statements on cleanup paths where the
// primary error must not be replaced.
func DeferClose(logger zerolog.Logger, closer io.Closer, msg string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn().Err(err).Msg(msg)
	}
}
