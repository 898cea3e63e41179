package delta

import "errors"

var (
	// ErrEntityDestroyed marks a notification for an entity that was already
	// destroyed in the current interval. The recorder panics with it.
	ErrEntityDestroyed = errors.New("notification for entity destroyed in this interval")

	ErrComponentMissing  = errors.New("entity has no live value for component")
	ErrUnexpectedPayload = errors.New("unexpected event payload")
)
