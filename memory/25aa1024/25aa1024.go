// Package eeprom drives the Microchip 25AA1024 1-Mbit SPI EEPROM
// (131072 bytes organized in 256-byte pages).
//
// Writes are decomposed on page boundaries, each page preceded by a
// write-enable latch set and followed by STATUS polling until the internal
// write cycle completes.
package eeprom

import (
	"errors"
	"fmt"
	"time"

	"gobot.io/x/gobot/v2/drivers/spi"

	"github.com/mklimuk/memdev/memory/paging"
)

// Instruction set (datasheet Table 3-1).
const (
	cmdRead  = 0x03
	cmdWrite = 0x02
	cmdWREN  = 0x06 // set write-enable latch
	cmdWRDI  = 0x04 // clear write-enable latch
	cmdRDSR  = 0x05 // read STATUS register
)

const statusWIP = 0x01 // STATUS bit 0, write-in-progress

const (
	// PageSize is the device page buffer size in bytes.
	PageSize = 256
	// Capacity is the memory array size in bytes (1 Mbit).
	Capacity = 131072
)

const writeCycleTimeout = 10 * time.Millisecond // max 6 ms per datasheet

var (
	// ErrZeroLength rejects empty read/write requests before any bus traffic.
	ErrZeroLength = errors.New("25aa1024: zero-length request")
	// ErrOutOfRange rejects ranges extending beyond the memory array.
	ErrOutOfRange = errors.New("25aa1024: address range beyond memory array")
	// ErrWriteTimeout: the internal write cycle did not complete in time.
	ErrWriteTimeout = errors.New("25aa1024: timeout waiting for write completion")
	// ErrVerifyMismatch: post-write readback differs from the written data.
	ErrVerifyMismatch = errors.New("25aa1024: verify mismatch")
)

// connection is the subset of gobot SPI operations the driver needs.
type connection interface {
	ReadCommandData(command []byte, data []byte) error
	WriteBytes(data []byte) error
}

// EEPROM25AA1024 implements gobot.Driver for the 25AA1024 device.
type EEPROM25AA1024 struct {
	*spi.Driver
	ops connection
}

// New returns a driver bound to a gobot SPI adaptor. Additional options
// (e.g. speed) may be supplied as in other gobot SPI drivers.
func New(adaptor spi.Connector, bus string, opts ...func(spi.Config)) *EEPROM25AA1024 {
	d := spi.NewDriver(adaptor, bus, opts...)

	// datasheet limits: mode 0 (CPOL=0, CPHA=0) up to 20 MHz
	d.SetMode(0)
	if d.GetSpeedOrDefault(0) == 0 {
		d.SetSpeed(5_000_000)
	}

	return &EEPROM25AA1024{Driver: d}
}

// Start establishes the SPI bus. Required by the gobot.Driver interface.
func (e *EEPROM25AA1024) Start() error { return e.Driver.Start() }

// Halt releases the bus.
func (e *EEPROM25AA1024) Halt() error { return e.Driver.Halt() }

func (e *EEPROM25AA1024) conn() (connection, error) {
	if e.ops != nil {
		return e.ops, nil
	}
	if e.Driver == nil {
		return nil, fmt.Errorf("25aa1024: spi driver not initialized")
	}
	ops, ok := e.Driver.Connection().(connection)
	if !ok {
		return nil, fmt.Errorf("25aa1024: spi connection does not support required operations")
	}
	e.ops = ops
	return ops, nil
}

// Read returns length bytes starting at address.
func (e *EEPROM25AA1024) Read(address uint32, length int) ([]byte, error) {
	if length <= 0 {
		return nil, ErrZeroLength
	}
	if int(address)+length > Capacity {
		return nil, fmt.Errorf("%w: %#x+%d", ErrOutOfRange, address, length)
	}
	ops, err := e.conn()
	if err != nil {
		return nil, err
	}
	// READ: opcode + 24-bit address (A16..A0, upper bits don't care);
	// reads cross page boundaries freely so no plan is needed
	buffer := make([]byte, length)
	header := []byte{cmdRead, byte(address >> 16), byte(address >> 8), byte(address)}
	if err := ops.ReadCommandData(header, buffer); err != nil {
		return nil, fmt.Errorf("25aa1024: read at %#x failed: %w", address, err)
	}
	return buffer, nil
}

// Write stores data starting at address, split on page boundaries, waiting
// out the internal write cycle after every page.
func (e *EEPROM25AA1024) Write(address uint32, data []byte) error {
	if len(data) == 0 {
		return ErrZeroLength
	}
	if int(address)+len(data) > Capacity {
		return fmt.Errorf("%w: %#x+%d", ErrOutOfRange, address, len(data))
	}
	ops, err := e.conn()
	if err != nil {
		return err
	}
	offset := 0
	for _, segment := range paging.Plan(address, len(data), PageSize) {
		if err := e.pageWrite(ops, segment.Addr, data[offset:offset+segment.Length]); err != nil {
			return err
		}
		offset += segment.Length
	}
	return nil
}

// WriteVerify writes data and reads the whole range back, comparing byte
// for byte.
func (e *EEPROM25AA1024) WriteVerify(address uint32, data []byte) error {
	if err := e.Write(address, data); err != nil {
		return err
	}
	readback, err := e.Read(address, len(data))
	if err != nil {
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

func (e *EEPROM25AA1024) pageWrite(ops connection, address uint32, data []byte) error {
	// write-enable latch clears itself after every completed write cycle
	if err := ops.WriteBytes([]byte{cmdWREN}); err != nil {
		return fmt.Errorf("25aa1024: write enable failed: %w", err)
	}
	frame := make([]byte, 0, 4+len(data))
	frame = append(frame, cmdWrite, byte(address>>16), byte(address>>8), byte(address))
	frame = append(frame, data...)
	if err := ops.WriteBytes(frame); err != nil {
		return fmt.Errorf("25aa1024: page write at %#x failed: %w", address, err)
	}
	return e.waitUntilReady(ops, writeCycleTimeout)
}

func (e *EEPROM25AA1024) readStatus(ops connection) (byte, error) {
	buffer := make([]byte, 1)
	if err := ops.ReadCommandData([]byte{cmdRDSR}, buffer); err != nil {
		return 0, fmt.Errorf("25aa1024: status read failed: %w", err)
	}
	return buffer[0], nil
}

func (e *EEPROM25AA1024) waitUntilReady(ops connection, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		status, err := e.readStatus(ops)
		if err != nil {
			return err
		}
		if status&statusWIP == 0 {
			return nil
		}
		time.Sleep(500 * time.Microsecond)
	}
	return ErrWriteTimeout
}
