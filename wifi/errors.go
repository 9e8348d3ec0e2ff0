package wifi

import "errors"

var (
	ErrNotSupported     = errors.New("not supported")
	ErrNotFound         = errors.New("not found")
	ErrNotAvailable     = errors.New("not available")
	ErrOperationFailed  = errors.New("operation failed")
	ErrNotAWiFiDevice   = errors.New("not a wifi device")
	ErrUnmanagedDevice  = errors.New("device is unmanaged")
	ErrNoActiveInstance = errors.New("connection is not active")
)
