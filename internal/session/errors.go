package session

import "errors"

// Error taxonomy that escapes to callers. Every other failure mode
// (write races during teardown, listener panics, malformed directives)
// is absorbed inside the package.
var (
	// ErrSessionExists is returned by CreateSession when the requested id
	// is already registered. No state changes on this error.
	ErrSessionExists = errors.New("session: id already exists")

	// ErrUnknownSession is returned by any per-session operation when the
	// id is not present in the Registry.
	ErrUnknownSession = errors.New("session: unknown id")

	// ErrSpawnFailed wraps a PTY/process spawn failure. No Registry entry
	// is created when this is returned.
	ErrSpawnFailed = errors.New("session: spawn failed")
)
