package sim

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// Edge is a level driven on a pin at a point in time.
type Edge struct {
	At time.Time
	L  gpio.Level
}

// Pin is a gpiotest.Pin that timestamps every Out and lets the panel observe
// outputs and drive inputs.
type Pin struct {
	gpiotest.Pin

	clk   clockwork.Clock
	hmu   sync.Mutex
	edges []Edge
	onOut func(gpio.Level)
	drive func() (gpio.Level, bool)
}

func newPin(clk clockwork.Clock, name string, num int) *Pin {
	return &Pin{Pin: gpiotest.Pin{N: name, Num: num, Fn: "GPIO"}, clk: clk}
}

func (p *Pin) Out(l gpio.Level) error {
	if err := p.Pin.Out(l); err != nil {
		return err
	}
	p.hmu.Lock()
	p.edges = append(p.edges, Edge{At: p.clk.Now(), L: l})
	p.hmu.Unlock()
	if p.onOut != nil {
		p.onOut(l)
	}
	return nil
}

// Read returns the level driven by the panel, or the pin's own level when
// the panel leaves the line floating.
func (p *Pin) Read() gpio.Level {
	if p.drive != nil {
		if l, ok := p.drive(); ok {
			return l
		}
	}
	return p.Pin.Read()
}

// Level is the last level set on the pin, ignoring the panel.
func (p *Pin) Level() gpio.Level {
	return p.Pin.Read()
}

// Edges returns every level driven by Out, oldest first.
func (p *Pin) Edges() []Edge {
	p.hmu.Lock()
	defer p.hmu.Unlock()
	return append([]Edge(nil), p.edges...)
}
