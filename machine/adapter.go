package machine

import "context"

// SendOptions control how a line is handed to the controller.
type SendOptions struct {
	// Blocking waits until the line has been acknowledged, or until only
	// DrainTo lines sent before or with it are still outstanding.
	Blocking bool
	DrainTo  int
}

// An Adapter represents the minimal controller connection a Machine needs.
type Adapter interface {
	// Send queues a line, or writes a single real-time command directly.
	Send(ctx context.Context, line string, opt SendOptions) error
	WriteByte(byte) error

	// SoftReset drops everything queued or in flight and resets the
	// controller.
	SoftReset() error

	// Drain returns once nothing is queued or in flight.
	Drain(ctx context.Context) error
}
