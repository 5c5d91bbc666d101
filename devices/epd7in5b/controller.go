// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package epd7in5b

import (
	"bytes"
	"time"
)

type controller interface {
	reset()
	sendCommand(cmd command, data ...byte)
	waitUntilIdle()
	delay(d time.Duration)
}

func initPanel(ctrl controller, opts *Opts) {
	ctrl.reset()

	ctrl.sendCommand(boosterSoftStart, 0x17, 0x17, 0x28, 0x17)
	// VGH=20V, VGL=-20V, VDH=15V, VDL=-15V
	ctrl.sendCommand(powerSetting, 0x07, 0x07, 0x3f, 0x3f)
	ctrl.sendCommand(powerOn)
	ctrl.delay(100 * time.Millisecond)
	ctrl.waitUntilIdle()

	// KWR mode, LUT from OTP.
	ctrl.sendCommand(panelSetting, 0x0F)
	ctrl.sendCommand(resolutionSetting,
		byte(opts.Width>>8), byte(opts.Width),
		byte(opts.Height>>8), byte(opts.Height),
	)
	ctrl.sendCommand(dualSPI, 0x00)
	// Border floating, new data polarity for the red plane.
	ctrl.sendCommand(vcomAndDataInterval, 0x11, 0x07)
	ctrl.sendCommand(tconSetting, 0x22)
	ctrl.sendCommand(gateSourceStart, 0x00, 0x00, 0x00, 0x00)
}

// updateFrame loads both RAM planes. black uses 1 for white, red uses 1 for
// highlight.
func updateFrame(ctrl controller, black, red []byte) {
	ctrl.sendCommand(dataStartTransmission1, black...)
	ctrl.sendCommand(dataStartTransmission2, red...)
}

func displayFrame(ctrl controller) {
	ctrl.sendCommand(displayRefresh)
	// The controller needs at least 200us before busy is valid.
	ctrl.delay(100 * time.Millisecond)
	ctrl.waitUntilIdle()
}

// clearFrame fills both planes with c and refreshes.
func clearFrame(ctrl controller, opts *Opts, c Color) {
	size := ((opts.Width + 7) / 8) * opts.Height
	var b, r byte
	switch c {
	case White:
		b, r = 0xff, 0x00
	case Black:
		b, r = 0x00, 0x00
	case Highlight:
		b, r = 0xff, 0xff
	}
	updateFrame(ctrl, bytes.Repeat([]byte{b}, size), bytes.Repeat([]byte{r}, size))
	displayFrame(ctrl)
}

func powerDown(ctrl controller) {
	ctrl.sendCommand(powerOff)
	ctrl.waitUntilIdle()
	ctrl.sendCommand(deepSleep, deepSleepCheckCode)
}
