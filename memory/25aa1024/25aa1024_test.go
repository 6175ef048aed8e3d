package eeprom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSPIConn emulates the 25AA1024 SPI command set: write-enable latch,
// page commits and STATUS polling with a configurable write-in-progress
// window.
type fakeSPIConn struct {
	mem       []byte
	wren      bool
	wrenCount int
	busyPolls int // RDSR reads reporting WIP after a page write
	stuckBusy bool
	frames    [][]byte // recorded page write frames (opcode + address + data)
	corruptAt int      // flip the byte at this address on read, -1 for none
	failRead  error
	failWrite error
}

func newFakeSPIConn() *fakeSPIConn {
	return &fakeSPIConn{mem: make([]byte, Capacity), corruptAt: -1}
}

func (f *fakeSPIConn) WriteBytes(data []byte) error {
	if f.failWrite != nil {
		return f.failWrite
	}
	switch data[0] {
	case cmdWREN:
		f.wren = true
		f.wrenCount++
		return nil
	case cmdWrite:
		if !f.wren {
			return assert.AnError
		}
		f.wren = false
		addr := int(data[1])<<16 | int(data[2])<<8 | int(data[3])
		copy(f.mem[addr:], data[4:])
		f.frames = append(f.frames, append([]byte(nil), data...))
		if f.stuckBusy {
			f.busyPolls = 1 << 30
		} else {
			f.busyPolls = 2
		}
		return nil
	}
	return assert.AnError
}

func (f *fakeSPIConn) ReadCommandData(command []byte, data []byte) error {
	if f.failRead != nil {
		return f.failRead
	}
	switch command[0] {
	case cmdRDSR:
		data[0] = 0
		if f.busyPolls > 0 {
			f.busyPolls--
			data[0] = statusWIP
		}
		return nil
	case cmdRead:
		addr := int(command[1])<<16 | int(command[2])<<8 | int(command[3])
		copy(data, f.mem[addr:addr+len(data)])
		if f.corruptAt >= addr && f.corruptAt < addr+len(data) {
			data[f.corruptAt-addr] ^= 0xFF
		}
		return nil
	}
	return assert.AnError
}

func newTestEEPROM() (*EEPROM25AA1024, *fakeSPIConn) {
	conn := newFakeSPIConn()
	return &EEPROM25AA1024{ops: conn}, conn
}

func TestEEPROM25AA1024_RoundTrip(t *testing.T) {
	e, _ := newTestEEPROM()
	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, e.Write(200, data))
	read, err := e.Read(200, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, read)
}

func TestEEPROM25AA1024_WriteFramesStayInsidePages(t *testing.T) {
	e, conn := newTestEEPROM()
	require.NoError(t, e.Write(200, make([]byte, 300)))

	// 200..499 splits at the 256 boundary
	require.Len(t, conn.frames, 2)
	first, second := conn.frames[0], conn.frames[1]
	assert.Equal(t, []byte{cmdWrite, 0x00, 0x00, 0xC8}, first[:4])
	assert.Len(t, first[4:], 56)
	assert.Equal(t, []byte{cmdWrite, 0x00, 0x01, 0x00}, second[:4])
	assert.Len(t, second[4:], 244)

	// the latch clears after each internal write cycle and must be set again
	assert.Equal(t, 2, conn.wrenCount)
}

func TestEEPROM25AA1024_ZeroLength(t *testing.T) {
	// an uninitialized driver proves validation precedes any bus traffic
	e := &EEPROM25AA1024{}
	_, err := e.Read(0, 0)
	assert.ErrorIs(t, err, ErrZeroLength)
	assert.ErrorIs(t, e.Write(0, nil), ErrZeroLength)
}

func TestEEPROM25AA1024_OutOfRange(t *testing.T) {
	e := &EEPROM25AA1024{}
	_, err := e.Read(Capacity-10, 11)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.ErrorIs(t, e.Write(Capacity-1, []byte{1, 2}), ErrOutOfRange)
}

func TestEEPROM25AA1024_WriteTimeout(t *testing.T) {
	e, conn := newTestEEPROM()
	conn.stuckBusy = true
	err := e.Write(0, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrWriteTimeout)
}

func TestEEPROM25AA1024_WriteVerify(t *testing.T) {
	e, conn := newTestEEPROM()
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	require.NoError(t, e.WriteVerify(0x100, data))

	conn.corruptAt = 0x102
	err := e.WriteVerify(0x100, data)
	require.ErrorIs(t, err, ErrVerifyMismatch)
	assert.Contains(t, err.Error(), "0x102")
}

func TestEEPROM25AA1024_BusErrorsPropagate(t *testing.T) {
	e, conn := newTestEEPROM()
	conn.failWrite = assert.AnError
	assert.ErrorIs(t, e.Write(0, []byte{1}), assert.AnError)

	conn.failWrite = nil
	conn.failRead = assert.AnError
	_, err := e.Read(0, 4)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestEEPROM25AA1024_NotInitialized(t *testing.T) {
	e := &EEPROM25AA1024{}
	_, err := e.Read(0, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
}
