package adapter

import (
	"context"
	"fmt"

	"github.com/mklimuk/memdev"
)

// SetGPIOValue drives one of the adapter's GPIO pins (Set GPIO Output Values
// command, 0x50). The pin direction is forced to output at the same time.
func (d *MCP2221) SetGPIOValue(ctx context.Context, pin int, value byte) error {
	if pin < 0 || pin > 3 {
		return fmt.Errorf("invalid GPIO pin: %d", pin)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = 0x50
	base := 2 + 4*pin
	d.request[base] = 0xFF // alter output value
	d.request[base+1] = value
	d.request[base+2] = 0xFF // alter direction
	d.request[base+3] = byte(GPIOModeOut)
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("set GPIO output value command write failed: %w", err)
	}
	if d.response[1] == 0x01 {
		return ErrCommandFailed
	}
	return nil
}

var _ memdev.DigitalOut = &Pin{}

// Pin exposes a single adapter GPIO as a binary output line, e.g. the
// write-protect gate of a memory device.
type Pin struct {
	adapter *MCP2221
	pin     int
}

func NewPin(adapter *MCP2221, pin int) *Pin {
	return &Pin{adapter: adapter, pin: pin}
}

func (p *Pin) Set(ctx context.Context, high bool) error {
	value := byte(0)
	if high {
		value = 1
	}
	return p.adapter.SetGPIOValue(ctx, p.pin, value)
}
