// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package epd7in5b

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
)

// ErrBusyTimeout is returned when the busy line does not clear in time.
var ErrBusyTimeout = errors.New("epd7in5b: timed out waiting for busy line")

type hardware struct {
	txLimit int

	mut sync.Mutex
	// c is the SPI device. Chip-select is handled by the connection.
	c conn.Conn

	// busy is LOW while the controller is working.
	busy gpio.PinIn
	// dc is the data/command pin.
	dc gpio.PinOut
	// rst is the reset pin.
	rst gpio.PinOut
}

func (h *hardware) DataWriter() io.Writer {
	return &batchedWriter{&dataWriter{h}, h.txLimit}
}

func (h *hardware) CommandWriter() io.Writer {
	return &commandWriter{h}
}

// reset pulses the reset line: HIGH for settle, LOW for pulse, HIGH for settle.
func (h *hardware) reset(clk clockwork.Clock, pulse, settle time.Duration) error {
	for _, step := range []struct {
		l gpio.Level
		d time.Duration
	}{{gpio.High, settle}, {gpio.Low, pulse}, {gpio.High, settle}} {
		if err := h.rst.Out(step.l); err != nil {
			return fmt.Errorf("%v.Out(%v) = %w", h.rst, step.l, err)
		}
		clk.Sleep(step.d)
	}
	return nil
}

// waitUntilIdle asks for the controller status and samples the busy line
// every poll until it reads HIGH or timeout elapses.
func (h *hardware) waitUntilIdle(clk clockwork.Clock, poll, timeout time.Duration) error {
	deadline := clk.Now().Add(timeout)
	w := &commandWriter{h}
	for {
		if err := w.writeCommand(byte(getStatus)); err != nil {
			return err
		}
		if h.busy.Read() == gpio.High {
			return nil
		}
		if !clk.Now().Before(deadline) {
			return fmt.Errorf("%w after %s", ErrBusyTimeout, timeout)
		}
		clk.Sleep(poll)
	}
}

type dataWriter struct {
	*hardware
}

func (w *dataWriter) Write(p []byte) (int, error) {
	w.mut.Lock()
	defer w.mut.Unlock()
	if len(p) == 0 {
		return 0, nil
	}
	if err := w.dc.Out(gpio.High); err != nil {
		return 0, fmt.Errorf("%v.Out(%v) = %w", w.dc, gpio.High, err)
	}
	if w.txLimit <= 0 {
		return 0, io.ErrShortWrite
	}
	if len(p) > w.txLimit {
		if err := w.c.Tx(p[:w.txLimit], nil); err != nil {
			return 0, err
		}
		return w.txLimit, io.ErrShortWrite
	}
	if err := w.c.Tx(p, nil); err != nil {
		return 0, err
	}
	return len(p), nil
}

type commandWriter struct {
	*hardware
}

func (w *commandWriter) writeCommand(p byte) error {
	w.mut.Lock()
	defer w.mut.Unlock()
	if err := w.dc.Out(gpio.Low); err != nil {
		return fmt.Errorf("%v.Out(%v) = %w", w.dc, gpio.Low, err)
	}
	if err := w.c.Tx([]byte{p}, nil); err != nil {
		return fmt.Errorf("sending command %s: %w", command(p), err)
	}
	return nil
}

// Write sends p[0] as a command and the rest of p as its parameters.
func (w *commandWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	cmd, data := p[0], p[1:]
	if err := w.writeCommand(cmd); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 1, nil
	}
	n, err := w.DataWriter().Write(data)
	if err != nil {
		err = fmt.Errorf("sending %s data: %w", command(cmd), err)
	}
	return 1 + n, err
}

type batchedWriter struct {
	dst       io.Writer
	batchSize int
}

func (b *batchedWriter) Write(p []byte) (int, error) {
	if b.batchSize <= 0 {
		return 0, io.ErrShortWrite
	}
	var sent int
	for i := 0; i < len(p); i += b.batchSize {
		j := min(i+b.batchSize, len(p))
		n, err := b.dst.Write(p[i:j])
		sent += n
		if err != nil {
			return sent, err
		}
	}
	return sent, nil
}
