package i2c

import (
	"context"
	"fmt"
	"time"

	"github.com/mklimuk/memdev"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var _ memdev.WireBus = &BitBang{}

const defaultBitBangSpeed = 100_000

// stretchTimeout bounds how long a slave may hold SCL low.
const stretchTimeout = 25 * time.Millisecond

// BitBang is a software two-wire master over two GPIO lines, for boards with
// no usable i2c controller on the pins the device is wired to. Lines are
// driven open-drain style: low is driven, high is released to the pull-ups.
//
// It implements memdev.WireBus, exposing the raw start/stop/byte primitives
// that multi-phase devices such as serial EEPROMs sequence themselves.
type BitBang struct {
	scl  gpio.PinIO
	sda  gpio.PinIO
	half time.Duration
}

// NewBitBang opens the two named GPIO lines (periph.io names, e.g. "GPIO2")
// and leaves the bus idle.
func NewBitBang(sclPin, sdaPin string) (*BitBang, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	scl := gpioreg.ByName(sclPin)
	if scl == nil {
		return nil, fmt.Errorf("no such pin: %s", sclPin)
	}
	sda := gpioreg.ByName(sdaPin)
	if sda == nil {
		return nil, fmt.Errorf("no such pin: %s", sdaPin)
	}
	b := &BitBang{scl: scl, sda: sda}
	_ = b.SetSpeed(defaultBitBangSpeed)
	if err := release(scl); err != nil {
		return nil, fmt.Errorf("could not release scl: %w", err)
	}
	if err := release(sda); err != nil {
		return nil, fmt.Errorf("could not release sda: %w", err)
	}
	return b, nil
}

func (b *BitBang) SetSpeed(hz uint32) error {
	if hz == 0 {
		return fmt.Errorf("invalid bus frequency: 0")
	}
	b.half = time.Second / time.Duration(2*hz)
	return nil
}

// Start issues a start (or repeated start) condition: SDA falls while SCL
// is high.
func (b *BitBang) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := release(b.sda); err != nil {
		return err
	}
	b.wait()
	if err := b.clockHigh(); err != nil {
		return err
	}
	if err := b.sda.Out(gpio.Low); err != nil {
		return err
	}
	b.wait()
	return b.scl.Out(gpio.Low)
}

// Stop issues a stop condition: SDA rises while SCL is high.
func (b *BitBang) Stop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.sda.Out(gpio.Low); err != nil {
		return err
	}
	b.wait()
	if err := b.clockHigh(); err != nil {
		return err
	}
	if err := release(b.sda); err != nil {
		return err
	}
	b.wait()
	return nil
}

func (b *BitBang) WriteByte(ctx context.Context, v byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for bit := 7; bit >= 0; bit-- {
		if err := b.writeBit(v&(1<<bit) != 0); err != nil {
			return err
		}
	}
	ack, err := b.readBit()
	if err != nil {
		return err
	}
	// the device pulls SDA low on the ninth clock to acknowledge
	if ack {
		return memdev.ErrNack
	}
	return nil
}

func (b *BitBang) ReadByte(ctx context.Context, ack bool) (byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var v byte
	for bit := 7; bit >= 0; bit-- {
		high, err := b.readBit()
		if err != nil {
			return 0, err
		}
		if high {
			v |= 1 << bit
		}
	}
	// master acknowledges by driving SDA low; the final byte of a read
	// gets a NACK (line released)
	if err := b.writeBit(!ack); err != nil {
		return 0, err
	}
	return v, nil
}

func (b *BitBang) writeBit(high bool) error {
	var err error
	if high {
		err = release(b.sda)
	} else {
		err = b.sda.Out(gpio.Low)
	}
	if err != nil {
		return err
	}
	b.wait()
	if err := b.clockHigh(); err != nil {
		return err
	}
	b.wait()
	return b.scl.Out(gpio.Low)
}

func (b *BitBang) readBit() (bool, error) {
	if err := release(b.sda); err != nil {
		return false, err
	}
	b.wait()
	if err := b.clockHigh(); err != nil {
		return false, err
	}
	v := b.sda.Read() == gpio.High
	b.wait()
	return v, b.scl.Out(gpio.Low)
}

// clockHigh releases SCL and waits for it to actually rise; a slave may
// stretch the clock by holding the line low.
func (b *BitBang) clockHigh() error {
	if err := release(b.scl); err != nil {
		return err
	}
	deadline := time.Now().Add(stretchTimeout)
	for b.scl.Read() != gpio.High {
		if time.Now().After(deadline) {
			return fmt.Errorf("scl held low for more than %s", stretchTimeout)
		}
		time.Sleep(time.Microsecond)
	}
	return nil
}

func (b *BitBang) wait() {
	time.Sleep(b.half)
}

func release(pin gpio.PinIO) error {
	return pin.In(gpio.PullUp, gpio.NoEdge)
}
