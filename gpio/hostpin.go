package gpio

import (
	"context"
	"fmt"

	"github.com/mklimuk/memdev"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var _ memdev.DigitalOut = &HostPin{}

// HostPin is a binary output line on a board GPIO (periph.io), for boards
// where control lines are wired straight to the SoC header.
type HostPin struct {
	pin gpio.PinIO
}

func NewHostPin(name string) (*HostPin, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("no such pin: %s", name)
	}
	return &HostPin{pin: pin}, nil
}

func (p *HostPin) Set(ctx context.Context, high bool) error {
	level := gpio.Low
	if high {
		level = gpio.High
	}
	if err := p.pin.Out(level); err != nil {
		return fmt.Errorf("could not drive pin %s: %w", p.pin.Name(), err)
	}
	return nil
}
