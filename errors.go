package gpucache

import "errors"

// Context errors.
var (
	// ErrNilDevice is returned by New when the device is nil.
	ErrNilDevice = errors.New("gpucache: device is nil")

	// ErrNoHALDevice is returned by NewFromProvider when the provider does
	// not expose a usable device.
	ErrNoHALDevice = errors.New("gpucache: provider does not expose a HAL device")

	// ErrNoQueue is returned by Upload when the Context has no queue.
	ErrNoQueue = errors.New("gpucache: no queue")

	// ErrDestroyed is returned when using a Context after Destroy.
	ErrDestroyed = errors.New("gpucache: context destroyed")
)
