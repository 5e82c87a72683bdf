// Package report centralizes the "print message, clean up, exit 1"
// behavior spec §7 assigns to the four fatal error classes
// (configuration errors, resource errors, and the two cases called
// out explicitly: no cluster paths found, disk full during
// decompression). Everywhere else an error is either non-fatal
// (logged, recorded as a warning in the report tree, execution
// continues) or is one of these.
package report

import (
	"os"

	"github.com/cuemby/hbreport/pkg/tmpfiles"
	"github.com/rs/zerolog"
)

// FatalError marks an error as belonging to one of spec §7's four
// fatal classes, distinguishing it from an error a caller should
// recover from (skip the node, continue with an empty section) purely
// by type rather than by string-matching a message.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as a FatalError.
func Fatal(err error) error {
	return &FatalError{Err: err}
}

// IsFatal reports whether err (or anything it wraps) is a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return asFatal(err, &fe)
}

func asFatal(err error, target **FatalError) bool {
	for err != nil {
		if fe, ok := err.(*FatalError); ok {
			*target = fe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Exit logs err at the given logger, runs reg.Cleanup() exactly once,
// and calls os.Exit(1). It is the single place a fatal error actually
// terminates the process — main() in both the master and collector
// entry points defers nothing else after calling this, since Cleanup
// has already run by the time it returns control (it never returns).
func Exit(logger zerolog.Logger, reg *tmpfiles.Registry, err error) {
	logger.Error().Err(err).Msg("fatal error, aborting")
	if reg != nil {
		reg.Cleanup()
	}
	os.Exit(1)
}
