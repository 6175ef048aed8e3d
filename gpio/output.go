package gpio

import (
	"context"
	"errors"
	"fmt"

	"github.com/mklimuk/memdev"
)

// WriteA sets the output latch of I/O pool A. Pins must be configured as
// outputs first (InitA with the corresponding direction bits cleared).
func (m *MCP23017) WriteA(ctx context.Context, value byte) error {
	return m.writeRegistry(ctx, BankAddr[m.bank][OLATA], value, "A")
}

// WriteB sets the output latch of I/O pool B.
func (m *MCP23017) WriteB(ctx context.Context, value byte) error {
	return m.writeRegistry(ctx, BankAddr[m.bank][OLATB], value, "B")
}

func (m *MCP23017) writeRegistry(ctx context.Context, addr, value byte, pool string) error {
	var err error
	for i := m.retryLimit; i > 0; i-- {
		err = m.transport.WriteToAddr(ctx, m.address, []byte{addr, value})
		if err == nil {
			return nil
		}
		if !errors.Is(err, memdev.ErrBusBusy) {
			return fmt.Errorf("could not write output latch on gpio %s set: %w", pool, err)
		}
		// try to release the bus
		_ = m.transport.Release(ctx)
	}
	return fmt.Errorf("could not write output latch on gpio %s set (retry limit reached): %w", pool, err)
}

// SetPinA drives a single pool A pin, leaving the other latch bits intact.
func (m *MCP23017) SetPinA(ctx context.Context, pin int, high bool) error {
	if pin < 0 || pin > 7 {
		return fmt.Errorf("invalid gpio pin: %d", pin)
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	// read-modify-write of the latch under the same lock
	err := m.transport.WriteToAddr(ctx, m.address, []byte{BankAddr[m.bank][OLATA]})
	if err != nil {
		return fmt.Errorf("could not set output latch address: %w", err)
	}
	buf := make([]byte, 1)
	err = m.transport.ReadFromAddr(ctx, m.address, buf)
	if err != nil {
		return fmt.Errorf("could not read output latch: %w", err)
	}
	latch := buf[0]
	if high {
		latch |= 1 << pin
	} else {
		latch &^= 1 << pin
	}
	err = m.transport.WriteToAddr(ctx, m.address, []byte{BankAddr[m.bank][OLATA], latch})
	if err != nil {
		return fmt.Errorf("could not write output latch: %w", err)
	}
	return nil
}

var _ memdev.DigitalOut = &Pin{}

// Pin exposes a single pool A expander pin as a binary output line, e.g.
// the write-protect gate of a memory device.
type Pin struct {
	expander *MCP23017
	pin      int
}

func NewPin(expander *MCP23017, pin int) *Pin {
	return &Pin{expander: expander, pin: pin}
}

func (p *Pin) Set(ctx context.Context, high bool) error {
	return p.expander.SetPinA(ctx, p.pin, high)
}
