package can

import "errors"

var (
	// ErrDeviceGone indicates the underlying device handle is invalid or a
	// write timed out. The caller (supervisor) decides whether to reconnect.
	ErrDeviceGone = errors.New("can: device gone")
	// ErrClosed indicates the transport was closed and not reopened.
	ErrClosed = errors.New("can: transport closed")
)

// Transport is the boundary to a physical or simulated CAN adapter.
//
// Implementations perform no retries of their own: a failed Send or Poll is
// reported once and it is the supervisor's job to count failures and decide
// when to reopen the device. This keeps the transport a thin, deterministic
// I/O layer that can be faked in tests.
type Transport interface {
	// Name returns the human-readable adapter name.
	Name() string
	// Open establishes the device connection and configures the channel.
	Open() error
	// Close releases the device handle. Safe to call when already closed.
	Close() error
	// Alive reports whether the transport currently holds a usable handle.
	Alive() bool

	// Send transmits one frame. Returns an error wrapping ErrDeviceGone
	// when the handle is dead or the write timed out.
	Send(f Frame) error

	// Poll returns the next pending received frame without blocking.
	// ok is false when no frame is waiting; callers own loop pacing.
	Poll() (f Frame, ok bool, err error)
}
