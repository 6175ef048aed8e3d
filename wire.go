package memdev

import (
	"context"
	"errors"
)

// ErrNack signals that the addressed device did not acknowledge a transfer.
var ErrNack = errors.New("no acknowledgment received")

// WireBus is a raw two-wire master. Unlike I2CBus it exposes the bus
// condition primitives directly, which devices with multi-phase transactions
// (serial EEPROMs) need: an address phase and a data phase must stay on the
// same transaction, with the stop/continue decision made by the driver.
type WireBus interface {
	// Start issues a start (or repeated start) condition.
	Start(ctx context.Context) error
	// Stop issues a stop condition and releases the bus.
	Stop(ctx context.Context) error
	// WriteByte clocks out a single byte. It returns ErrNack when the
	// device does not acknowledge it.
	WriteByte(ctx context.Context, b byte) error
	// ReadByte clocks in a single byte, acknowledging it when ack is true.
	// The final byte of a read must be answered with a NACK (ack=false).
	ReadByte(ctx context.Context, ack bool) (byte, error)
	// SetSpeed reconfigures the bus clock frequency in Hz.
	SetSpeed(hz uint32) error
}

// DigitalOut is a single binary output line (write-protect gates, resets).
type DigitalOut interface {
	Set(ctx context.Context, high bool) error
}
