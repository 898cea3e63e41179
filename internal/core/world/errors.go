package world

import "errors"

var (
	ErrEntityNotFound     = errors.New("entity not found")
	ErrComponentExists    = errors.New("component already on entity")
	ErrComponentNotFound  = errors.New("component not on entity")
	ErrNotificationFailed = errors.New("mutation notification failed")
)
