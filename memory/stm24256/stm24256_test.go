package stm24256

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mklimuk/memdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePin struct {
	level bool
	sets  []bool
	err   error
}

func newFakePin() *fakePin {
	// construction-time state of the WC line is protecting
	return &fakePin{level: writeDisabled}
}

func (p *fakePin) Set(_ context.Context, high bool) error {
	if p.err != nil {
		return p.err
	}
	p.level = high
	p.sets = append(p.sets, high)
	return nil
}

type writeBurst struct {
	addr   uint16
	length int
}

// fakeEEPROM emulates the device's bus behavior: select/address/data phases,
// per-byte acknowledgment, the page-buffer wrap on writes that cross a page
// boundary, and the write-protect gate (unprotected writes are committed,
// protected ones are acknowledged but dropped, as the real part does).
type fakeEEPROM struct {
	mem []byte
	wp  *fakePin

	awaitSelect bool
	mode        byte
	addrBytes   int
	addrHigh    byte
	ptr         int
	pageBase    int
	dataTotal   int
	readCount   int

	starts int
	stops  int
	speed  uint32

	failSelect     bool
	failReadSelect bool
	failHigh       bool
	failLow        bool
	failDataAt     int
	failReadAt     int
	corruptReadAt  int

	bursts []writeBurst
}

func newFakeEEPROM(wp *fakePin) *fakeEEPROM {
	return &fakeEEPROM{
		mem:           make([]byte, Capacity),
		wp:            wp,
		failDataAt:    -1,
		failReadAt:    -1,
		corruptReadAt: -1,
	}
}

func (f *fakeEEPROM) SetSpeed(hz uint32) error {
	f.speed = hz
	return nil
}

func (f *fakeEEPROM) Start(context.Context) error {
	f.starts++
	f.awaitSelect = true
	return nil
}

func (f *fakeEEPROM) Stop(context.Context) error {
	f.stops++
	f.awaitSelect = false
	return nil
}

func (f *fakeEEPROM) WriteByte(_ context.Context, b byte) error {
	if f.awaitSelect {
		f.awaitSelect = false
		f.mode = b
		f.addrBytes = 0
		if b == arraySelectWrite && f.failSelect {
			return memdev.ErrNack
		}
		if b == arraySelectRead && f.failReadSelect {
			return memdev.ErrNack
		}
		return nil
	}
	if f.addrBytes == 0 {
		if f.failHigh {
			return memdev.ErrNack
		}
		f.addrHigh = b
		f.addrBytes++
		return nil
	}
	if f.addrBytes == 1 {
		if f.failLow {
			return memdev.ErrNack
		}
		f.ptr = int(f.addrHigh)<<8 | int(b)
		f.pageBase = f.ptr &^ (PageSize - 1)
		f.addrBytes++
		f.bursts = append(f.bursts, writeBurst{addr: uint16(f.ptr)})
		return nil
	}
	// failDataAt indexes data bytes across the whole call
	if f.dataTotal == f.failDataAt {
		return memdev.ErrNack
	}
	if f.wp.level == writeEnabled {
		f.mem[f.ptr] = b
	}
	// the page buffer wraps instead of advancing past the page
	f.ptr = f.pageBase + (f.ptr-f.pageBase+1)%PageSize
	f.dataTotal++
	f.bursts[len(f.bursts)-1].length++
	return nil
}

func (f *fakeEEPROM) ReadByte(_ context.Context, _ bool) (byte, error) {
	if f.readCount == f.failReadAt {
		return 0, errors.New("bus glitch")
	}
	f.readCount++
	v := f.mem[f.ptr]
	if f.ptr == f.corruptReadAt {
		v ^= 0xFF
	}
	f.ptr = (f.ptr + 1) % len(f.mem)
	return v, nil
}

func pattern(length int) []byte {
	data := make([]byte, length)
	for i := range data {
		data[i] = byte(i*7 + 3)
	}
	return data
}

func newTestDevice(opts ...Opt) (*STM24256, *fakeEEPROM, *fakePin) {
	pin := newFakePin()
	wire := newFakeEEPROM(pin)
	opts = append([]Opt{WithSettleDelay(time.Millisecond)}, opts...)
	return New(wire, pin, opts...), wire, pin
}

func TestSTM24256_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		address uint16
		length  int
	}{
		{name: "inside one page", address: 0x0010, length: 16},
		{name: "whole aligned page", address: 0x0040, length: 64},
		{name: "symmetric boundary split", address: 0x0020, length: 64},
		{name: "multi page unaligned", address: 0x00FC, length: 200},
		{name: "single byte", address: 0x7FFF, length: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, _, pin := newTestDevice()
			ctx := context.Background()
			require.NoError(t, dev.Configure(ctx))

			data := pattern(tt.length)
			require.NoError(t, dev.Write(ctx, tt.address, data, true))
			assert.Equal(t, writeDisabled, pin.level, "gate must be protecting after a write")

			got, err := dev.Read(ctx, tt.address, tt.length)
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestSTM24256_WriteBurstsStayInsidePages(t *testing.T) {
	dev, wire, _ := newTestDevice()
	ctx := context.Background()

	require.NoError(t, dev.Write(ctx, 60, pattern(200), false))

	expected := []writeBurst{{60, 4}, {64, 64}, {128, 64}, {192, 64}, {256, 4}}
	assert.Equal(t, expected, wire.bursts)
}

func TestSTM24256_ZeroLength(t *testing.T) {
	dev, wire, pin := newTestDevice()
	ctx := context.Background()

	_, err := dev.Read(ctx, 0x0100, 0)
	assert.ErrorIs(t, err, ErrZeroLength)

	err = dev.Write(ctx, 0x0100, nil, true)
	assert.ErrorIs(t, err, ErrZeroLength)

	assert.Zero(t, wire.starts, "validation failures must not touch the bus")
	assert.Empty(t, pin.sets, "validation failures must not touch the gate")
}

func TestSTM24256_OddLengthRejected(t *testing.T) {
	dev, wire, pin := newTestDevice(WithWriteGranularity(2))
	ctx := context.Background()

	err := dev.Write(ctx, 0x0100, pattern(7), false)
	assert.ErrorIs(t, err, ErrOddLength)
	assert.Zero(t, wire.starts)
	assert.Empty(t, pin.sets)

	// even lengths pass through unchanged
	require.NoError(t, dev.Write(ctx, 0x0100, pattern(8), true))
}

func TestSTM24256_OutOfRange(t *testing.T) {
	dev, wire, _ := newTestDevice()
	ctx := context.Background()

	_, err := dev.Read(ctx, 0x7FFF, 2)
	assert.ErrorIs(t, err, ErrOutOfRange)

	err = dev.Write(ctx, 0x7FC0, pattern(65), false)
	assert.ErrorIs(t, err, ErrOutOfRange)

	assert.Zero(t, wire.starts)
}

func TestSTM24256_AddressPhaseErrors(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*fakeEEPROM)
		expected error
	}{
		{
			name:     "array select not acknowledged",
			setup:    func(f *fakeEEPROM) { f.failSelect = true },
			expected: ErrSelectNack,
		},
		{
			name:     "address high byte not acknowledged",
			setup:    func(f *fakeEEPROM) { f.failHigh = true },
			expected: ErrAddressHighNack,
		},
		{
			name:     "address low byte not acknowledged",
			setup:    func(f *fakeEEPROM) { f.failLow = true },
			expected: ErrAddressLowNack,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, wire, pin := newTestDevice()
			ctx := context.Background()
			tt.setup(wire)

			err := dev.Write(ctx, 0x0100, pattern(4), false)
			assert.ErrorIs(t, err, tt.expected)
			assert.Equal(t, writeDisabled, pin.level, "gate must be protecting after a failed write")
			assert.Equal(t, wire.starts, wire.stops, "a stop must follow every failed address phase")

			// the read path reports the same sub-error
			_, err = dev.Read(ctx, 0x0100, 4)
			assert.ErrorIs(t, err, tt.expected)
			assert.Equal(t, wire.starts, wire.stops)
		})
	}
}

func TestSTM24256_WriteDataNack(t *testing.T) {
	dev, wire, pin := newTestDevice()
	ctx := context.Background()
	wire.failDataAt = 70 // second segment of a 60+68 split

	err := dev.Write(ctx, 60, pattern(128), false)
	assert.ErrorIs(t, err, ErrWriteFailed)
	assert.Equal(t, writeDisabled, pin.level)
	assert.Equal(t, wire.starts, wire.stops)
}

func TestSTM24256_ReadFailures(t *testing.T) {
	dev, wire, _ := newTestDevice()
	ctx := context.Background()

	wire.failReadSelect = true
	_, err := dev.Read(ctx, 0x0100, 8)
	assert.ErrorIs(t, err, ErrReadFailed)
	wire.failReadSelect = false

	wire.failReadAt = 3
	_, err = dev.Read(ctx, 0x0100, 8)
	assert.ErrorIs(t, err, ErrReadFailed)
	assert.Equal(t, wire.starts, wire.stops)
}

func TestSTM24256_VerifyMismatch(t *testing.T) {
	dev, wire, _ := newTestDevice()
	ctx := context.Background()
	wire.corruptReadAt = 0x0105

	err := dev.Write(ctx, 0x0100, pattern(16), true)
	assert.ErrorIs(t, err, ErrVerifyMismatch)
	assert.NotErrorIs(t, err, ErrReadFailed, "a mismatch is not a read failure")
	assert.Contains(t, err.Error(), "0x105")
}

func TestSTM24256_VerifyReadFailure(t *testing.T) {
	dev, wire, _ := newTestDevice()
	ctx := context.Background()
	wire.failReadAt = 4 // write itself succeeds, readback fails

	err := dev.Write(ctx, 0x0100, pattern(16), true)
	assert.ErrorIs(t, err, ErrReadFailed)
	assert.NotErrorIs(t, err, ErrVerifyMismatch)
}

func TestSTM24256_SkippedVerifyMissesSilentCorruption(t *testing.T) {
	dev, wire, _ := newTestDevice()
	ctx := context.Background()
	wire.corruptReadAt = 0x0105

	// without verification the corrupted cell goes unnoticed by Write
	require.NoError(t, dev.Write(ctx, 0x0100, pattern(16), false))
}

func TestSTM24256_SettleDelayBetweenSegments(t *testing.T) {
	delay := 30 * time.Millisecond
	dev, _, _ := newTestDevice(WithSettleDelay(delay))
	ctx := context.Background()

	// 3 segments: two inter-segment delays, no delay after the last
	start := time.Now()
	require.NoError(t, dev.Write(ctx, 60, pattern(132), false))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 2*delay-5*time.Millisecond)
}

func TestSTM24256_ContextCancelledDuringSettle(t *testing.T) {
	dev, _, pin := newTestDevice(WithSettleDelay(time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := dev.Write(ctx, 60, pattern(128), false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, writeDisabled, pin.level, "gate must drop even when the context is gone")
}

func TestSTM24256_ConfigureAppliesFrequencyAndGate(t *testing.T) {
	pin := newFakePin()
	wire := newFakeEEPROM(pin)
	dev := New(wire, pin, WithFrequency(400_000))
	ctx := context.Background()

	require.NoError(t, dev.Configure(ctx))
	assert.Equal(t, uint32(400_000), wire.speed)
	assert.Equal(t, []bool{writeDisabled}, pin.sets)

	require.NoError(t, dev.Close(ctx))
	assert.Equal(t, writeDisabled, pin.level)
}

func TestSTM24256_GateFailurePropagates(t *testing.T) {
	pin := newFakePin()
	wire := newFakeEEPROM(pin)
	dev := New(wire, pin, WithSettleDelay(time.Millisecond))
	pin.err = errors.New("expander offline")

	err := dev.Write(context.Background(), 0x0100, pattern(4), false)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "write protect gate")
	assert.Zero(t, wire.starts, "no bus traffic when the gate cannot be enabled")
}
