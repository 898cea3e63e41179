package components

import "errors"

var (
	ErrUnknownKind   = errors.New("unknown component kind")
	ErrDuplicateKind = errors.New("component kind already registered")
	ErrInvalidName   = errors.New("invalid component name")
	ErrRegistryFull  = errors.New("component registry is full")
	ErrTypeMismatch  = errors.New("component value has unexpected type")
	ErrCopyFailed    = errors.New("component copy failed")
	ErrDecodeFailed  = errors.New("component decode failed")
)
