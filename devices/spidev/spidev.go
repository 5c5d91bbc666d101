// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package spidev couples an SPI connection with a chip-select line so every
// transfer addresses exactly one peripheral.
package spidev

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// ExclusiveDevice owns a bus connection and its chip-select pin. CS is driven
// LOW for the duration of each Tx and HIGH afterwards, with no delay between
// bytes.
type ExclusiveDevice struct {
	mu sync.Mutex
	c  spi.Conn
	cs gpio.PinOut
}

// New takes ownership of c and cs and deasserts cs.
func New(c spi.Conn, cs gpio.PinOut) (*ExclusiveDevice, error) {
	if c == nil {
		return nil, errors.New("spidev: nil connection")
	}
	if cs == nil {
		return nil, errors.New("spidev: nil chip-select pin")
	}
	if err := cs.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("%s.Out(%s) = %w", cs, gpio.High, err)
	}
	return &ExclusiveDevice{c: c, cs: cs}, nil
}

func (d *ExclusiveDevice) String() string {
	return fmt.Sprintf("spidev{%s, cs=%s}", d.c, d.cs)
}

// Duplex implements conn.Conn.
func (d *ExclusiveDevice) Duplex() conn.Duplex {
	return d.c.Duplex()
}

// Tx asserts chip-select, runs the transfer and deasserts chip-select even when
// the transfer fails.
func (d *ExclusiveDevice) Tx(w, r []byte) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.cs.Out(gpio.Low); err != nil {
		return fmt.Errorf("%s.Out(%s) = %w", d.cs, gpio.Low, err)
	}
	defer func() {
		if e := d.cs.Out(gpio.High); e != nil && err == nil {
			err = fmt.Errorf("%s.Out(%s) = %w", d.cs, gpio.High, e)
		}
	}()
	if err := d.c.Tx(w, r); err != nil {
		return fmt.Errorf("%s.Tx() = %w", d.c, err)
	}
	return nil
}

// MaxTxSize forwards the bus limit, 0 when the bus does not report one.
func (d *ExclusiveDevice) MaxTxSize() int {
	if l, ok := d.c.(conn.Limits); ok {
		return l.MaxTxSize()
	}
	return 0
}

var _ conn.Conn = &ExclusiveDevice{}
var _ conn.Limits = &ExclusiveDevice{}
