package autosave

import "errors"

var (
	ErrAlreadyRunning = errors.New("autosaver is already running")
	ErrNotRunning     = errors.New("autosaver is not running")
	ErrSaveFailed     = errors.New("autosave failed")
)
