package intersections

import "errors"

// Sentinel errors for component lookup and state transition failures.
var (
	// ErrUnknownKind is a BuildError: an unrecognized group or
	// component kind string was encountered while building an
	// intersection from configuration.
	ErrUnknownKind = errors.New("unknown kind")

	// ErrStateDecode is a StateDecodeError: an integer payload did
	// not correspond to a valid state variant.
	ErrStateDecode = errors.New("invalid state value")

	// ErrUnknownGroup is a BuildError: a Blocks entry referenced a
	// group that does not exist in the Definitions.
	ErrUnknownGroup = errors.New("unknown group")

	// ErrNoDefinitions is a BuildError: Builder.Finish was called
	// without Definitions attached.
	ErrNoDefinitions = errors.New("intersection builder: no definitions set")

	// ErrComponentNotFound signals a UID could not be resolved to a
	// live component.
	ErrComponentNotFound = errors.New("component not found")
)
