package sim

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// MaxFrequency is the fastest write clock the controller accepts.
const MaxFrequency = 20 * physic.MegaHertz

type port struct {
	p      *Panel
	conn   *spiConn
	limit  physic.Frequency
	closed bool
}

func (pt *port) String() string {
	return "sim-spi0"
}

func (pt *port) Close() error {
	pt.p.mu.Lock()
	defer pt.p.mu.Unlock()
	if pt.closed {
		return errors.New("sim: port already closed")
	}
	pt.closed = true
	return nil
}

func (pt *port) LimitSpeed(f physic.Frequency) error {
	pt.p.mu.Lock()
	defer pt.p.mu.Unlock()
	pt.limit = f
	return nil
}

func (pt *port) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	pt.p.mu.Lock()
	defer pt.p.mu.Unlock()
	switch {
	case pt.closed:
		return nil, errors.New("sim: port closed")
	case pt.conn != nil:
		return nil, errors.New("sim: Connect cannot be called twice")
	case f <= 0 || f > MaxFrequency:
		return nil, fmt.Errorf("sim: frequency %s out of range", f)
	case mode != spi.Mode0 && mode != spi.Mode3:
		return nil, fmt.Errorf("sim: unsupported %s", mode)
	case bits != 8:
		return nil, fmt.Errorf("sim: unsupported %d bits per word", bits)
	}
	if pt.limit > 0 && f > pt.limit {
		f = pt.limit
	}
	pt.conn = &spiConn{p: pt.p, f: f, mode: mode}
	return pt.conn, nil
}

// CLK implements spi.Pins.
func (pt *port) CLK() gpio.PinOut {
	return pt.p.CLK
}

// MOSI implements spi.Pins.
func (pt *port) MOSI() gpio.PinOut {
	return pt.p.MOSI
}

// MISO implements spi.Pins. The panel is write only.
func (pt *port) MISO() gpio.PinIn {
	return gpio.INVALID
}

// CS implements spi.Pins. Chip-select is driven as a plain GPIO.
func (pt *port) CS() gpio.PinOut {
	return gpio.INVALID
}

// Connection reports the clock and mode negotiated by Connect. ok is false
// before Connect.
func (p *Panel) Connection() (f physic.Frequency, mode spi.Mode, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port.conn == nil {
		return 0, 0, false
	}
	return p.port.conn.f, p.port.conn.mode, true
}

type spiConn struct {
	p    *Panel
	f    physic.Frequency
	mode spi.Mode
}

func (c *spiConn) String() string {
	return fmt.Sprintf("sim-spi0@%s", c.f)
}

func (c *spiConn) Duplex() conn.Duplex {
	return conn.Half
}

func (c *spiConn) MaxTxSize() int {
	return c.p.opts.MaxTxSize
}

func (c *spiConn) Tx(w, r []byte) error {
	if len(r) != 0 {
		return errors.New("sim: reads are not supported")
	}
	if len(w) > c.p.opts.MaxTxSize {
		return fmt.Errorf("sim: transfer of %d bytes over limit %d", len(w), c.p.opts.MaxTxSize)
	}
	return c.p.receive(w)
}

func (c *spiConn) TxPackets(p []spi.Packet) error {
	return errors.New("sim: TxPackets is not supported")
}

var _ spi.PortCloser = &port{}
var _ spi.Pins = &port{}
var _ conn.Limits = &spiConn{}
