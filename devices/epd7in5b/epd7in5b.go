// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package epd7in5b is for the Waveshare 7.5 inch V2 (B) black, white and red
// e-Paper display, driven by a UC8179 controller.
package epd7in5b

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/toothrot/epdboot/internal/log"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
)

var (
	// ErrAsleep is returned by operations issued after Sleep and before Init.
	ErrAsleep = errors.New("epd7in5b: display is in deep sleep")
	// ErrBounds is returned when a frame does not match the panel size.
	ErrBounds = errors.New("epd7in5b: frame bounds do not match display")
)

// Opts describes a panel variant and its timing.
type Opts struct {
	Width  int
	Height int

	// ResetPulse is how long the controller reset line is held LOW, and
	// ResetSettle how long it is held HIGH around the pulse.
	ResetPulse  time.Duration
	ResetSettle time.Duration

	// BusyPoll is the interval between busy line samples. BusyTimeout bounds
	// a single wait.
	BusyPoll    time.Duration
	BusyTimeout time.Duration

	// TxLimit is the largest single SPI transfer. A smaller conn.Limits value
	// reported by the connection wins.
	TxLimit int
}

// EPD7in5bV2 is the 800x480 Waveshare 7.5" V2 (B) panel. A full tri-color
// refresh takes about 16 seconds.
var EPD7in5bV2 = Opts{
	Width:       800,
	Height:      480,
	ResetPulse:  2 * time.Millisecond,
	ResetSettle: 20 * time.Millisecond,
	BusyPoll:    10 * time.Millisecond,
	BusyTimeout: 40 * time.Second,
	TxLimit:     4096,
}

// Dev is a handle to the display controller.
type Dev struct {
	hw     *hardware
	clk    clockwork.Clock
	opts   Opts
	bg     Color
	asleep bool
}

// New takes ownership of the SPI device and pins, resets the controller and
// initializes it. opts nil selects EPD7in5bV2.
//
// c must assert chip-select for each transfer on its own, see package spidev.
func New(c conn.Conn, busy gpio.PinIn, dc, rst gpio.PinOut, clk clockwork.Clock, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &EPD7in5bV2
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("epd7in5b: invalid size %dx%d", opts.Width, opts.Height)
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	txLimit := opts.TxLimit
	if l, ok := c.(conn.Limits); ok {
		if m := l.MaxTxSize(); m > 0 && (txLimit <= 0 || m < txLimit) {
			txLimit = m
		}
	}
	d := &Dev{
		hw: &hardware{
			txLimit: txLimit,
			c:       c,
			busy:    busy,
			dc:      dc,
			rst:     rst,
		},
		clk:  clk,
		opts: *opts,
		bg:   White,
	}
	if err := d.Init(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("epd7in5b{%s, %dx%d}", d.hw.c, d.opts.Width, d.opts.Height)
}

func (d *Dev) handler() *errorHandler {
	return &errorHandler{hw: d.hw, clk: d.clk, opts: &d.opts}
}

// Init resets and initializes the controller. It is also how the display is
// woken up after Sleep.
func (d *Dev) Init() error {
	eh := d.handler()
	initPanel(eh, &d.opts)
	if eh.err != nil {
		return fmt.Errorf("epd7in5b: init: %w", eh.err)
	}
	d.asleep = false
	return nil
}

// SetBackgroundColor sets the color used by ClearFrame.
func (d *Dev) SetBackgroundColor(c Color) {
	d.bg = c
}

func (d *Dev) BackgroundColor() Color {
	return d.bg
}

func (d *Dev) Width() int {
	return d.opts.Width
}

func (d *Dev) Height() int {
	return d.opts.Height
}

// Bounds is the rectangle frames must cover.
func (d *Dev) Bounds() image.Rectangle {
	return image.Rect(0, 0, d.opts.Width, d.opts.Height)
}

// UpdateFrame loads img into the controller RAM without refreshing.
func (d *Dev) UpdateFrame(img *Image) error {
	if d.asleep {
		return ErrAsleep
	}
	if img.Rect != d.Bounds() {
		return fmt.Errorf("%w: frame %v, display %v", ErrBounds, img.Rect, d.Bounds())
	}
	eh := d.handler()
	updateFrame(eh, img.Black, img.Highlight)
	if eh.err != nil {
		return fmt.Errorf("epd7in5b: update frame: %w", eh.err)
	}
	return nil
}

// DisplayFrame refreshes the panel from controller RAM and waits for it.
func (d *Dev) DisplayFrame() error {
	if d.asleep {
		return ErrAsleep
	}
	eh := d.handler()
	displayFrame(eh)
	if eh.err != nil {
		return fmt.Errorf("epd7in5b: display frame: %w", eh.err)
	}
	return nil
}

// UpdateAndDisplayFrame is UpdateFrame followed by DisplayFrame.
func (d *Dev) UpdateAndDisplayFrame(img *Image) error {
	defer func(start time.Time) {
		log.Debug("epd7in5b frame", "took", d.clk.Since(start))
	}(d.clk.Now())
	if err := d.UpdateFrame(img); err != nil {
		return err
	}
	return d.DisplayFrame()
}

// ClearFrame fills the panel with the background color.
func (d *Dev) ClearFrame() error {
	if d.asleep {
		return ErrAsleep
	}
	eh := d.handler()
	clearFrame(eh, &d.opts, d.bg)
	if eh.err != nil {
		return fmt.Errorf("epd7in5b: clear frame: %w", eh.err)
	}
	return nil
}

// WaitUntilIdle blocks until the busy line clears. It returns an error
// wrapping ErrBusyTimeout after Opts.BusyTimeout.
func (d *Dev) WaitUntilIdle() error {
	if d.asleep {
		return ErrAsleep
	}
	if err := d.hw.waitUntilIdle(d.clk, d.opts.BusyPoll, d.opts.BusyTimeout); err != nil {
		return fmt.Errorf("epd7in5b: wait: %w", err)
	}
	return nil
}

// Sleep powers the panel off and puts the controller in deep sleep. Only a
// hardware reset wakes it, see Init. Sleeping twice is a no-op.
func (d *Dev) Sleep() error {
	if d.asleep {
		return nil
	}
	eh := d.handler()
	powerDown(eh)
	if eh.err != nil {
		return fmt.Errorf("epd7in5b: sleep: %w", eh.err)
	}
	d.asleep = true
	return nil
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return d.Sleep()
}

var _ conn.Resource = &Dev{}
