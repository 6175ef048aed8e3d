// Package stm24256 drives the ST M24256 256-Kbit two-wire serial EEPROM
// (32768 bytes organized in 64-byte pages).
//
// The device takes a 16-bit byte address after a memory-array select byte and
// latches writes into a 64-byte page buffer, so transfers are decomposed into
// page-bounded segments and issued as one bus transaction each, with the
// device's internal write cycle time respected between transactions. The WC
// pin gates writes to the array and is held in the protecting state whenever
// no write is in progress.
//
// Typical usage:
//
//	e := stm24256.New(wire, wpLine)
//	if err := e.Configure(ctx); err != nil { ... }
//	data, err := e.Read(ctx, 0x0100, 32)
//	err = e.Write(ctx, 0x0100, data, true)
package stm24256

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mklimuk/memdev"
	"github.com/mklimuk/memdev/memory/paging"
)

// Memory array select bytes: device code 0b1010, chip enable pins tied low,
// direction bit in bit 0.
const (
	arraySelectWrite = 0xA0
	arraySelectRead  = 0xA1
)

const (
	// PageSize is the device page buffer size in bytes.
	PageSize = 64
	// Capacity is the memory array size in bytes (256 Kbit).
	Capacity = 32768
)

const (
	// Internal write cycle time. Starting the next transaction earlier
	// produces nondeterministic NACKs while the cycle is still running.
	defaultSettleDelay = 5 * time.Millisecond
	defaultFrequency   = 100_000
)

// Write-protect line levels (WC pin): low permits array writes.
const (
	writeEnabled  = false
	writeDisabled = true
)

var (
	// ErrZeroLength rejects empty read/write requests before any bus traffic.
	ErrZeroLength = errors.New("stm24256: zero-length request")
	// ErrOddLength rejects writes that are not a multiple of the configured
	// write granularity; the device would silently pad them.
	ErrOddLength = errors.New("stm24256: write length not a multiple of write granularity")
	// ErrOutOfRange rejects ranges extending beyond the memory array.
	ErrOutOfRange = errors.New("stm24256: address range beyond memory array")
	// ErrSelectNack: the memory array select byte was not acknowledged
	// (device absent or misaddressed).
	ErrSelectNack = errors.New("stm24256: memory array select not acknowledged")
	// ErrAddressHighNack: the address high byte was not acknowledged.
	ErrAddressHighNack = errors.New("stm24256: address high byte not acknowledged")
	// ErrAddressLowNack: the address low byte was not acknowledged.
	ErrAddressLowNack = errors.New("stm24256: address low byte not acknowledged")
	// ErrReadFailed: a data-phase read transfer failed.
	ErrReadFailed = errors.New("stm24256: read failed")
	// ErrWriteFailed: a data-phase write byte was not acknowledged.
	ErrWriteFailed = errors.New("stm24256: write failed")
	// ErrVerifyMismatch: post-write readback differs from the written data.
	ErrVerifyMismatch = errors.New("stm24256: verify mismatch")
)

type Opts struct {
	// Frequency is the bus clock in Hz, applied once by Configure.
	Frequency uint32
	// SettleDelay is the wait between consecutive page-level transactions.
	SettleDelay time.Duration
	// Capacity allows substituting smaller parts of the same family.
	Capacity int
	// WriteGranularity is the device's minimum write unit. Parts that pad
	// sub-unit writes set this to reject incompatible lengths.
	WriteGranularity int
}

type Opt func(*Opts)

func WithFrequency(hz uint32) Opt {
	return func(o *Opts) {
		o.Frequency = hz
	}
}

func WithSettleDelay(delay time.Duration) Opt {
	return func(o *Opts) {
		o.SettleDelay = delay
	}
}

func WithCapacity(bytes int) Opt {
	return func(o *Opts) {
		o.Capacity = bytes
	}
}

func WithWriteGranularity(bytes int) Opt {
	return func(o *Opts) {
		o.WriteGranularity = bytes
	}
}

// STM24256 represents one EEPROM behind a raw two-wire bus and a
// write-protect line. The mutex spans whole logical calls: address and data
// phases of all segments of one call (and the verification readback) must be
// contiguous on the bus from the device's perspective.
type STM24256 struct {
	mx sync.Mutex

	config Opts

	wire memdev.WireBus
	wp   memdev.DigitalOut
}

func New(wire memdev.WireBus, writeProtect memdev.DigitalOut, opts ...Opt) *STM24256 {
	config := Opts{
		Frequency:        defaultFrequency,
		SettleDelay:      defaultSettleDelay,
		Capacity:         Capacity,
		WriteGranularity: 1,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &STM24256{
		config: config,
		wire:   wire,
		wp:     writeProtect,
	}
}

// Configure applies the bus clock frequency and forces the write-protect
// line into the protecting state.
func (e *STM24256) Configure(ctx context.Context) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if err := e.wire.SetSpeed(e.config.Frequency); err != nil {
		return fmt.Errorf("stm24256: could not set bus frequency: %w", err)
	}
	if err := e.disableWrite(ctx); err != nil {
		return err
	}
	return nil
}

// Close forces the write-protect line into the protecting state.
func (e *STM24256) Close(ctx context.Context) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	return e.disableWrite(ctx)
}

// Read returns length bytes starting at address. The request is split on
// page boundaries and issued as one bus transaction per page, with the
// settle delay between transactions.
func (e *STM24256) Read(ctx context.Context, address uint16, length int) ([]byte, error) {
	if length <= 0 {
		return nil, ErrZeroLength
	}
	if int(address)+length > e.config.Capacity {
		return nil, fmt.Errorf("%w: %#x+%d", ErrOutOfRange, address, length)
	}
	e.mx.Lock()
	defer e.mx.Unlock()
	buffer := make([]byte, length)
	if err := e.read(ctx, address, buffer); err != nil {
		return nil, err
	}
	return buffer, nil
}

// Write stores data starting at address, split on page boundaries. The
// write-protect gate is enabled once for the whole call and disabled on
// every exit path, so an aborted call never leaves the array writable.
// With verify set, the written range is read back after the settle delay
// and compared byte for byte.
//
// A failed segment aborts the call; earlier segments are already committed
// to the device and are not rolled back.
func (e *STM24256) Write(ctx context.Context, address uint16, data []byte, verify bool) error {
	if len(data) == 0 {
		return ErrZeroLength
	}
	if len(data)%e.config.WriteGranularity != 0 {
		return fmt.Errorf("%w: length %d, granularity %d", ErrOddLength, len(data), e.config.WriteGranularity)
	}
	if int(address)+len(data) > e.config.Capacity {
		return fmt.Errorf("%w: %#x+%d", ErrOutOfRange, address, len(data))
	}

	e.mx.Lock()
	defer e.mx.Unlock()

	if err := e.enableWrite(ctx); err != nil {
		return err
	}
	err := e.writeSegments(ctx, address, data)
	// the gate must drop even when the caller's context is already gone
	if derr := e.disableWrite(context.WithoutCancel(ctx)); err == nil {
		err = derr
	}
	if err != nil {
		return err
	}
	if !verify {
		return nil
	}
	return e.verify(ctx, address, data)
}

func (e *STM24256) writeSegments(ctx context.Context, address uint16, data []byte) error {
	plan := paging.Plan(uint32(address), len(data), PageSize)
	offset := 0
	for i, segment := range plan {
		if i > 0 {
			if err := e.settle(ctx); err != nil {
				return err
			}
		}
		if err := e.writeSegment(ctx, uint16(segment.Addr), data[offset:offset+segment.Length]); err != nil {
			return err
		}
		offset += segment.Length
	}
	return nil
}

// read fills buffer from address. Callers hold the mutex.
func (e *STM24256) read(ctx context.Context, address uint16, buffer []byte) error {
	plan := paging.Plan(uint32(address), len(buffer), PageSize)
	offset := 0
	for i, segment := range plan {
		if i > 0 {
			if err := e.settle(ctx); err != nil {
				return err
			}
		}
		if err := e.readSegment(ctx, uint16(segment.Addr), buffer[offset:offset+segment.Length]); err != nil {
			return err
		}
		offset += segment.Length
	}
	return nil
}

func (e *STM24256) verify(ctx context.Context, address uint16, data []byte) error {
	if err := e.settle(ctx); err != nil {
		return err
	}
	readback := make([]byte, len(data))
	if err := e.read(ctx, address, readback); err != nil {
		return err
	}
	for i := range data {
		if data[i] != readback[i] {
			return fmt.Errorf("%w at %#x: wrote %#x, read %#x",
				ErrVerifyMismatch, int(address)+i, data[i], readback[i])
		}
	}
	return nil
}

// setOperationAddress runs the address phase of one segment: start
// condition, array select in write direction, address high byte, address low
// byte. Each byte carries its own error so wiring and addressing faults stay
// distinguishable. A stop condition is issued before returning any failure,
// so the bus is never left mid-transaction; on success the stop is issued
// only when requested (a data-phase write continues the same transaction, a
// read restarts the bus in read direction and needs the stop first).
func (e *STM24256) setOperationAddress(ctx context.Context, address uint16, stop bool) error {
	if err := e.wire.Start(ctx); err != nil {
		return fmt.Errorf("stm24256: could not issue start condition: %w", err)
	}
	if err := e.wire.WriteByte(ctx, arraySelectWrite); err != nil {
		_ = e.wire.Stop(ctx)
		if errors.Is(err, memdev.ErrNack) {
			return ErrSelectNack
		}
		return fmt.Errorf("stm24256: array select transfer failed: %w", err)
	}
	if err := e.wire.WriteByte(ctx, byte(address>>8)); err != nil {
		_ = e.wire.Stop(ctx)
		if errors.Is(err, memdev.ErrNack) {
			return ErrAddressHighNack
		}
		return fmt.Errorf("stm24256: address high byte transfer failed: %w", err)
	}
	if err := e.wire.WriteByte(ctx, byte(address&0xFF)); err != nil {
		_ = e.wire.Stop(ctx)
		if errors.Is(err, memdev.ErrNack) {
			return ErrAddressLowNack
		}
		return fmt.Errorf("stm24256: address low byte transfer failed: %w", err)
	}
	if stop {
		if err := e.wire.Stop(ctx); err != nil {
			return fmt.Errorf("stm24256: could not issue stop condition: %w", err)
		}
	}
	return nil
}

// readSegment reads one page-bounded segment: address phase with stop, then
// a restart in read direction and the data phase, NACKing the final byte as
// the protocol requires.
func (e *STM24256) readSegment(ctx context.Context, address uint16, buffer []byte) error {
	if err := e.setOperationAddress(ctx, address, true); err != nil {
		return err
	}
	if err := e.wire.Start(ctx); err != nil {
		return fmt.Errorf("stm24256: could not restart for read: %w", err)
	}
	if err := e.wire.WriteByte(ctx, arraySelectRead); err != nil {
		_ = e.wire.Stop(ctx)
		return fmt.Errorf("%w: read select: %s", ErrReadFailed, err)
	}
	for i := range buffer {
		b, err := e.wire.ReadByte(ctx, i < len(buffer)-1)
		if err != nil {
			_ = e.wire.Stop(ctx)
			return fmt.Errorf("%w: byte %d of %d: %s", ErrReadFailed, i, len(buffer), err)
		}
		buffer[i] = b
	}
	if err := e.wire.Stop(ctx); err != nil {
		return fmt.Errorf("stm24256: could not issue stop condition: %w", err)
	}
	return nil
}

// writeSegment writes one page-bounded segment: address phase without stop,
// then the data bytes on the same transaction. The first unacknowledged byte
// aborts the whole operation.
func (e *STM24256) writeSegment(ctx context.Context, address uint16, data []byte) error {
	if err := e.setOperationAddress(ctx, address, false); err != nil {
		return err
	}
	for i, b := range data {
		if err := e.wire.WriteByte(ctx, b); err != nil {
			_ = e.wire.Stop(ctx)
			if errors.Is(err, memdev.ErrNack) {
				return fmt.Errorf("%w: byte %d of %d at %#x", ErrWriteFailed, i, len(data), address)
			}
			return fmt.Errorf("%w: byte %d of %d at %#x: %s", ErrWriteFailed, i, len(data), address, err)
		}
	}
	if err := e.wire.Stop(ctx); err != nil {
		return fmt.Errorf("stm24256: could not issue stop condition: %w", err)
	}
	return nil
}

func (e *STM24256) settle(ctx context.Context) error {
	timer := time.NewTimer(e.config.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *STM24256) enableWrite(ctx context.Context) error {
	if err := e.wp.Set(ctx, writeEnabled); err != nil {
		return fmt.Errorf("stm24256: could not enable write protect gate: %w", err)
	}
	return nil
}

func (e *STM24256) disableWrite(ctx context.Context) error {
	if err := e.wp.Set(ctx, writeDisabled); err != nil {
		return fmt.Errorf("stm24256: could not disable write protect gate: %w", err)
	}
	return nil
}
