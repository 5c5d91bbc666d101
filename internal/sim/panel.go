// Package sim simulates a UC8179 tri-color e-paper controller wired to an SPI
// port and GPIO lines, so the bring-up sequence can run without hardware.
//
// The panel decodes the wire: bytes sent with DC LOW are commands, bytes sent
// with DC HIGH are their parameters. Frame data written to the two RAM planes
// becomes visible through Frame once a refresh is commanded.
package sim

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/toothrot/epdboot/devices/epd7in5b"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// Opcode is a controller command byte.
type Opcode byte

const (
	PanelSetting Opcode = 0x00
	PowerOff     Opcode = 0x02
	PowerOn      Opcode = 0x04
	DeepSleep    Opcode = 0x07
	DataStart1   Opcode = 0x10
	Refresh      Opcode = 0x12
	DataStart2   Opcode = 0x13
	Resolution   Opcode = 0x61
	GetStatus    Opcode = 0x71
)

var opcodeNames = map[Opcode]string{
	PanelSetting: "PSR",
	PowerOff:     "POF",
	PowerOn:      "PON",
	DeepSleep:    "DSLP",
	DataStart1:   "DTM1",
	Refresh:      "DRF",
	DataStart2:   "DTM2",
	Resolution:   "TRES",
	GetStatus:    "FLG",
}

func (o Opcode) String() string {
	if s, ok := opcodeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("0x%02X", byte(o))
}

// Command is one command received by the panel with its parameters.
type Command struct {
	At   time.Time
	Op   Opcode
	Data []byte
}

// Opts configures the simulated panel.
type Opts struct {
	// Width and Height are the RAM size until a resolution command arrives.
	Width, Height int
	// BusyPolls is how many status polls keep busy LOW after power on,
	// refresh and power off. Reads not preceded by a status command do
	// not count.
	BusyPolls int
	// StuckBusy keeps the busy line LOW forever once the panel is out of
	// reset.
	StuckBusy bool
	// MaxTxSize is the largest transfer accepted by the port.
	MaxTxSize int
	// FailOn makes the transfer carrying this command fail.
	FailOn *Opcode
}

// DefaultOpts is an 800x480 panel that is briefly busy after slow commands.
var DefaultOpts = Opts{Width: 800, Height: 480, BusyPolls: 3, MaxTxSize: 4096}

// ErrInjected is returned by transfers failed through Opts.FailOn.
var ErrInjected = errors.New("sim: injected transfer failure")

// Panel is a simulated controller and its wiring.
type Panel struct {
	CLK, MOSI         *Pin
	CS, Busy, DC, RST *Pin

	mu      sync.Mutex
	clk     clockwork.Clock
	opts    Opts
	port    *port
	width   int
	height  int
	black   []byte
	red     []byte
	shown   *epd7in5b.Image
	cur     Opcode
	pos     int
	inReset bool
	driving bool
	powered bool
	asleep  bool
	busy    int
	polled  bool
	cmds    []Command
	errs    []error
	resets  int
}

// New returns a panel in its power-on state. clk timestamps pin edges and
// commands.
func New(clk clockwork.Clock, opts Opts) *Panel {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = DefaultOpts.Width, DefaultOpts.Height
	}
	if opts.MaxTxSize <= 0 {
		opts.MaxTxSize = DefaultOpts.MaxTxSize
	}
	p := &Panel{
		CLK:  newPin(clk, "GPIO11", 11),
		MOSI: newPin(clk, "GPIO10", 10),
		CS:   newPin(clk, "GPIO8", 8),
		Busy: newPin(clk, "GPIO24", 24),
		DC:   newPin(clk, "GPIO25", 25),
		RST:  newPin(clk, "GPIO17", 17),
		clk:  clk,
		opts: opts,
	}
	p.port = &port{p: p}
	p.resize(opts.Width, opts.Height)
	p.RST.onOut = p.onReset
	p.Busy.drive = p.busyLevel
	return p
}

// Port is the SPI port the panel listens on.
func (p *Panel) Port() spi.PortCloser {
	return p.port
}

func (p *Panel) resize(w, h int) {
	p.width, p.height = w, h
	img := epd7in5b.NewImage(image.Rect(0, 0, w, h))
	p.black, p.red = img.Black, img.Highlight
}

func (p *Panel) onReset(l gpio.Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l == gpio.Low {
		p.inReset = true
		p.driving = false
		return
	}
	if p.inReset {
		p.inReset = false
		p.driving = true
		p.powered = false
		p.asleep = false
		p.busy = 0
		p.polled = false
		p.resets++
	}
}

func (p *Panel) busyLevel() (gpio.Level, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.driving {
		return gpio.Low, false
	}
	if p.opts.StuckBusy {
		return gpio.Low, true
	}
	if p.busy > 0 {
		// Only a sample following a status command advances the
		// controller; stray reads see the same level.
		if p.polled {
			p.polled = false
			p.busy--
		}
		return gpio.Low, true
	}
	return gpio.High, true
}

func (p *Panel) fail(format string, args ...any) {
	p.errs = append(p.errs, fmt.Errorf(format, args...))
}

// receive handles one SPI transfer.
func (p *Panel) receive(w []byte) error {
	cmd := p.DC.Level() == gpio.Low
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CS.Level() != gpio.Low {
		p.fail("transfer of %d bytes with chip-select deasserted", len(w))
		return nil
	}
	if p.inReset || !p.driving {
		p.fail("transfer of %d bytes while controller is held in reset", len(w))
		return nil
	}
	if p.asleep {
		p.fail("transfer of %d bytes during deep sleep", len(w))
		return nil
	}
	if !cmd {
		p.data(w)
		return nil
	}
	for _, b := range w {
		op := Opcode(b)
		if p.opts.FailOn != nil && *p.opts.FailOn == op {
			return fmt.Errorf("%w: %s", ErrInjected, op)
		}
		p.command(op)
	}
	return nil
}

func (p *Panel) command(op Opcode) {
	p.cmds = append(p.cmds, Command{At: p.clk.Now(), Op: op})
	p.cur, p.pos = op, 0
	p.polled = op == GetStatus
	switch op {
	case PowerOn:
		p.powered = true
		p.busy = p.opts.BusyPolls
	case PowerOff:
		p.powered = false
		p.busy = p.opts.BusyPolls
	case Refresh:
		if !p.powered {
			p.fail("refresh while powered off")
			return
		}
		p.shown = p.snapshot()
		p.busy = p.opts.BusyPolls
	}
}

func (p *Panel) data(w []byte) {
	if len(p.cmds) == 0 {
		p.fail("%d data bytes before any command", len(w))
		return
	}
	last := &p.cmds[len(p.cmds)-1]
	last.Data = append(last.Data, w...)
	switch p.cur {
	case DataStart1, DataStart2:
		plane := p.black
		if p.cur == DataStart2 {
			plane = p.red
		}
		n := copy(plane[min(p.pos, len(plane)):], w)
		if n < len(w) {
			p.fail("%s overflow: %d bytes past %d", p.cur, len(w)-n, len(plane))
		}
		p.pos += len(w)
	case Resolution:
		if len(last.Data) == 4 {
			d := last.Data
			p.resize(int(d[0])<<8|int(d[1]), int(d[2])<<8|int(d[3]))
		}
	case DeepSleep:
		if len(last.Data) == 1 && last.Data[0] == 0xA5 {
			p.asleep = true
		}
	}
}

func (p *Panel) snapshot() *epd7in5b.Image {
	img := epd7in5b.NewImage(image.Rect(0, 0, p.width, p.height))
	copy(img.Black, p.black)
	copy(img.Highlight, p.red)
	return img
}

// Frame returns the image shown by the last refresh, nil before the first.
func (p *Panel) Frame() *epd7in5b.Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shown == nil {
		return nil
	}
	img := epd7in5b.NewImage(p.shown.Rect)
	copy(img.Black, p.shown.Black)
	copy(img.Highlight, p.shown.Highlight)
	return img
}

// Commands returns every command received, oldest first.
func (p *Panel) Commands() []Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Command, len(p.cmds))
	for i, c := range p.cmds {
		out[i] = Command{At: c.At, Op: c.Op, Data: append([]byte(nil), c.Data...)}
	}
	return out
}

// Count returns how many times op was received.
func (p *Panel) Count(op Opcode) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.cmds {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Err reports protocol violations seen on the wire.
func (p *Panel) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.errs...)
}

// Asleep reports whether the controller is in deep sleep.
func (p *Panel) Asleep() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.asleep
}

// Resets returns the number of completed reset pulses.
func (p *Panel) Resets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resets
}
