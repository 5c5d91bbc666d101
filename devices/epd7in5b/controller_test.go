// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package epd7in5b

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type record struct {
	cmd  command
	data []byte
}

// fakeController records sequences. Its panel is never busy, so every wait
// costs a single status query.
type fakeController struct {
	records []record
	resets  int
	delays  []time.Duration
}

func (f *fakeController) reset() {
	f.resets++
}

func (f *fakeController) sendCommand(cmd command, data ...byte) {
	f.records = append(f.records, record{cmd: cmd, data: append([]byte(nil), data...)})
}

func (f *fakeController) waitUntilIdle() {
	f.records = append(f.records, record{cmd: getStatus})
}

func (f *fakeController) delay(d time.Duration) {
	f.delays = append(f.delays, d)
}

var recordCmp = []cmp.Option{cmpopts.EquateEmpty(), cmp.AllowUnexported(record{})}

func wantInit(width, height int) []record {
	return []record{
		{cmd: boosterSoftStart, data: []byte{0x17, 0x17, 0x28, 0x17}},
		{cmd: powerSetting, data: []byte{0x07, 0x07, 0x3f, 0x3f}},
		{cmd: powerOn},
		{cmd: getStatus},
		{cmd: panelSetting, data: []byte{0x0f}},
		{cmd: resolutionSetting, data: []byte{byte(width >> 8), byte(width), byte(height >> 8), byte(height)}},
		{cmd: dualSPI, data: []byte{0x00}},
		{cmd: vcomAndDataInterval, data: []byte{0x11, 0x07}},
		{cmd: tconSetting, data: []byte{0x22}},
		{cmd: gateSourceStart, data: []byte{0, 0, 0, 0}},
	}
}

func TestInitPanel(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts Opts
		want []record
	}{
		{
			name: "epd7in5bV2",
			opts: EPD7in5bV2,
			want: wantInit(800, 480),
		},
		{
			name: "small",
			opts: Opts{Width: 16, Height: 2},
			want: wantInit(16, 2),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var got fakeController

			initPanel(&got, &tc.opts)

			if got.resets != 1 {
				t.Errorf("initPanel() resets = %d, wanted 1", got.resets)
			}
			if diff := cmp.Diff(got.records, tc.want, recordCmp...); diff != "" {
				t.Errorf("initPanel() difference (-got +want):\n%s", diff)
			}
			if diff := cmp.Diff(got.delays, []time.Duration{100 * time.Millisecond}); diff != "" {
				t.Errorf("initPanel() delays difference (-got +want):\n%s", diff)
			}
		})
	}
}

func TestClearFrame(t *testing.T) {
	opts := Opts{Width: 10, Height: 2}
	for _, tc := range []struct {
		c          Color
		black, red byte
	}{
		{c: White, black: 0xff, red: 0x00},
		{c: Black, black: 0x00, red: 0x00},
		{c: Highlight, black: 0xff, red: 0xff},
	} {
		t.Run(tc.c.String(), func(t *testing.T) {
			var got fakeController

			clearFrame(&got, &opts, tc.c)

			want := []record{
				{cmd: dataStartTransmission1, data: bytes.Repeat([]byte{tc.black}, 4)},
				{cmd: dataStartTransmission2, data: bytes.Repeat([]byte{tc.red}, 4)},
				{cmd: displayRefresh},
				{cmd: getStatus},
			}
			if diff := cmp.Diff(got.records, want, recordCmp...); diff != "" {
				t.Errorf("clearFrame(%v) difference (-got +want):\n%s", tc.c, diff)
			}
		})
	}
}

func TestPowerDown(t *testing.T) {
	var got fakeController

	powerDown(&got)

	want := []record{
		{cmd: powerOff},
		{cmd: getStatus},
		{cmd: deepSleep, data: []byte{0xa5}},
	}
	if diff := cmp.Diff(got.records, want, recordCmp...); diff != "" {
		t.Errorf("powerDown() difference (-got +want):\n%s", diff)
	}
}

func TestCommandString(t *testing.T) {
	for _, tc := range []struct {
		c    command
		want string
	}{
		{c: displayRefresh, want: "displayRefresh"},
		{c: deepSleep, want: "deepSleep"},
		{c: command(0x99), want: "command(0x99)"},
	} {
		if got := tc.c.String(); got != tc.want {
			t.Errorf("command(0x%02x).String() = %q, wanted %q", byte(tc.c), got, tc.want)
		}
	}
}
