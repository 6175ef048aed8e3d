package i2c

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/memdev"
)

// fakeWirePin emulates an open-drain line: reads return low while the master
// drives the line, otherwise the level presented by the other party.
type fakeWirePin struct {
	driven  bool       // master holds the line low
	level   gpio.Level // line level when released
	stretch int        // reads reporting low before the line rises
	stuck   bool       // line never rises
	reads   int
}

func newFakeWirePin() *fakeWirePin { return &fakeWirePin{level: gpio.High} }

func (p *fakeWirePin) String() string                  { return "fake" }
func (p *fakeWirePin) Halt() error                     { return nil }
func (p *fakeWirePin) Name() string                    { return "fake" }
func (p *fakeWirePin) Number() int                     { return 0 }
func (p *fakeWirePin) Function() string                { return "In/Out" }
func (p *fakeWirePin) In(gpio.Pull, gpio.Edge) error   { p.driven = false; return nil }
func (p *fakeWirePin) WaitForEdge(time.Duration) bool  { return false }
func (p *fakeWirePin) Pull() gpio.Pull                 { return gpio.PullUp }
func (p *fakeWirePin) DefaultPull() gpio.Pull          { return gpio.PullUp }
func (p *fakeWirePin) PWM(gpio.Duty, physic.Frequency) error { return nil }

func (p *fakeWirePin) Out(l gpio.Level) error {
	p.driven = l == gpio.Low
	return nil
}

func (p *fakeWirePin) Read() gpio.Level {
	p.reads++
	if p.driven || p.stuck {
		return gpio.Low
	}
	if p.stretch > 0 {
		p.stretch--
		return gpio.Low
	}
	return p.level
}

func newTestBus(scl, sda *fakeWirePin) *BitBang {
	b := &BitBang{scl: scl, sda: sda}
	// keep inter-edge waits negligible for tests
	_ = b.SetSpeed(10_000_000)
	return b
}

func TestBitBang_WriteByteAck(t *testing.T) {
	scl, sda := newFakeWirePin(), newFakeWirePin()
	sda.level = gpio.Low // device acknowledges on the ninth clock
	b := newTestBus(scl, sda)

	assert.NoError(t, b.WriteByte(context.Background(), 0xA0))
}

func TestBitBang_WriteByteNack(t *testing.T) {
	scl, sda := newFakeWirePin(), newFakeWirePin()
	b := newTestBus(scl, sda)

	err := b.WriteByte(context.Background(), 0xA0)
	assert.ErrorIs(t, err, memdev.ErrNack)
}

func TestBitBang_ReadByte(t *testing.T) {
	scl, sda := newFakeWirePin(), newFakeWirePin()
	b := newTestBus(scl, sda)

	v, err := b.ReadByte(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, byte(0xFF), v)
}

func TestBitBang_ClockStretchingTolerated(t *testing.T) {
	scl, sda := newFakeWirePin(), newFakeWirePin()
	scl.stretch = 5
	b := newTestBus(scl, sda)

	assert.NoError(t, b.Start(context.Background()))
}

func TestBitBang_StretchTimeoutDoesNotSpin(t *testing.T) {
	scl, sda := newFakeWirePin(), newFakeWirePin()
	scl.stuck = true
	b := newTestBus(scl, sda)

	start := time.Now()
	err := b.Start(context.Background())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "scl held low")
	assert.GreaterOrEqual(t, elapsed, stretchTimeout)
	// the wait loop sleeps between samples; hot spinning over the whole
	// timeout window would produce millions of reads
	assert.Less(t, scl.reads, 500_000)
}
