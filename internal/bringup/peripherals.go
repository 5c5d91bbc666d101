package bringup

import (
	"errors"
	"fmt"
	"strings"

	"github.com/toothrot/epdboot/devices/spidev"
	"github.com/toothrot/epdboot/internal/config"
	"github.com/toothrot/epdboot/internal/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

// Wiring names the SPI port and lines the panel is connected to.
type Wiring struct {
	Port spi.PortCloser
	// CLK and MOSI are optional. When set they must match the lines the
	// port is bound to.
	CLK  gpio.PinOut
	MOSI gpio.PinOut
	CS   gpio.PinOut
	Busy gpio.PinIn
	DC   gpio.PinOut
	RST  gpio.PinOut
}

// OpenHost looks the wiring up in the periph registries. Host drivers must be
// loaded first.
func OpenHost(cfg *config.Config) (*Wiring, error) {
	port, err := spireg.Open(cfg.SPI.Port)
	if err != nil {
		return nil, fmt.Errorf("spireg.Open(%q) = _, %w", cfg.SPI.Port, err)
	}
	var bad []string
	pin := func(role, name string, optional bool) gpio.PinIO {
		if name == "" && optional {
			return nil
		}
		p := gpioreg.ByName(name)
		if p == nil {
			bad = append(bad, fmt.Sprintf("invalid %s pin %q", role, name))
		}
		return p
	}
	w := &Wiring{Port: port}
	if p := pin("clk", cfg.SPI.CLK, true); p != nil {
		w.CLK = p
	}
	if p := pin("mosi", cfg.SPI.MOSI, true); p != nil {
		w.MOSI = p
	}
	if p := pin("cs", cfg.Pins.CS, false); p != nil {
		w.CS = p
	}
	if p := pin("busy", cfg.Pins.Busy, false); p != nil {
		w.Busy = p
	}
	if p := pin("dc", cfg.Pins.DC, false); p != nil {
		w.DC = p
	}
	if p := pin("rst", cfg.Pins.RST, false); p != nil {
		w.RST = p
	}
	if len(bad) > 0 {
		err := errors.New(strings.Join(bad, "; "))
		if cerr := port.Close(); cerr != nil {
			return nil, fmt.Errorf("port.Close() = %w while handling %q", cerr, err)
		}
		return nil, err
	}
	return w, nil
}

// Peripherals are the acquired handles. They are handed to the controller
// once and not used concurrently.
type Peripherals struct {
	Port spi.PortCloser
	Bus  *spidev.ExclusiveDevice
	Busy gpio.PinIn
	DC   gpio.PinOut
	RST  gpio.PinOut
}

// Close releases the SPI port.
func (p *Peripherals) Close() error {
	return p.Port.Close()
}

// Acquire connects the SPI master, wraps it with chip-select into an
// exclusive device and sets the control lines to their idle levels: CS, DC
// and RST HIGH, BUSY pulled down.
func Acquire(w *Wiring, cfg config.SPI) (*Peripherals, error) {
	if w == nil || w.Port == nil {
		return nil, errors.New("no SPI port")
	}
	per, err := acquire(w, cfg)
	if err != nil {
		if cerr := w.Port.Close(); cerr != nil {
			return nil, fmt.Errorf("port.Close() = %w while handling %q", cerr, err)
		}
		return nil, err
	}
	return per, nil
}

func acquire(w *Wiring, cfg config.SPI) (*Peripherals, error) {
	switch {
	case w.CS == nil:
		return nil, errors.New("no cs pin")
	case w.Busy == nil:
		return nil, errors.New("no busy pin")
	case w.DC == nil:
		return nil, errors.New("no dc pin")
	case w.RST == nil:
		return nil, errors.New("no rst pin")
	}
	freq, err := cfg.Freq()
	if err != nil {
		return nil, err
	}
	mode, err := cfg.SPIMode()
	if err != nil {
		return nil, err
	}
	c, err := w.Port.Connect(freq, mode, 8)
	if err != nil {
		return nil, fmt.Errorf("port.Connect(%v, %v, %v) = %w", freq, mode, 8, err)
	}
	if pins, ok := w.Port.(spi.Pins); ok {
		if err := checkLine("clk", w.CLK, pins.CLK()); err != nil {
			return nil, err
		}
		if err := checkLine("mosi", w.MOSI, pins.MOSI()); err != nil {
			return nil, err
		}
	}
	log.Info("spi bus created", "port", w.Port, "freq", freq, "mode", mode)

	bus, err := spidev.New(c, w.CS)
	if err != nil {
		return nil, err
	}
	log.Info("spi device created", "cs", w.CS)

	if err := w.Busy.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("%s.In(%s, %s) = %w", w.Busy, gpio.PullDown, gpio.NoEdge, err)
	}
	for _, p := range []gpio.PinOut{w.DC, w.RST} {
		if err := p.Out(gpio.High); err != nil {
			return nil, fmt.Errorf("%s.Out(%s) = %w", p, gpio.High, err)
		}
	}
	log.Info("gpio pins initialized", "busy", w.Busy, "dc", w.DC, "rst", w.RST)
	return &Peripherals{Port: w.Port, Bus: bus, Busy: w.Busy, DC: w.DC, RST: w.RST}, nil
}

// checkLine verifies that the configured line is the one the port drives.
func checkLine(role string, want, got gpio.PinOut) error {
	if want == nil || got == nil || got == gpio.INVALID {
		return nil
	}
	if realName(want) != realName(got) {
		return fmt.Errorf("spi %s is bound to %s, configured %s", role, got, want)
	}
	return nil
}

func realName(p gpio.PinOut) string {
	if r, ok := p.(gpio.RealPin); ok {
		return r.Real().Name()
	}
	return p.Name()
}

