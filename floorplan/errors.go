package floorplan

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedBatch marks a payload that is missing required fields or cannot be decoded
	ErrMalformedBatch = errors.New("malformed observation batch")

	// ErrUnknownNetwork is returned for a batch whose network has no floor metadata
	ErrUnknownNetwork = fmt.Errorf("%w: unknown network", ErrMalformedBatch)

	// ErrTransform marks degenerate floor dimensions that prevent coordinate scaling
	ErrTransform = errors.New("coordinate transform failed")

	// ErrImageIO marks a source image that cannot be read or a destination that cannot be written
	ErrImageIO = errors.New("floor image I/O failed")

	// ErrQueueFull is returned by Dispatcher.Submit when no queue slot is free
	ErrQueueFull = errors.New("dispatch queue full")

	// ErrDispatcherClosed is returned by Dispatcher.Submit after Close
	ErrDispatcherClosed = errors.New("dispatcher closed")
)

// FloorError reports the failure of a single floor render
type FloorError struct {
	Key FloorKey
	Err error
}

func (e *FloorError) Error() string {
	return fmt.Sprintf("floor %s: %v", e.Key, e.Err)
}

func (e *FloorError) Unwrap() error {
	return e.Err
}
