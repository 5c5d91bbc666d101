// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package epd7in5b

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// errorHandler runs a command sequence against the hardware and keeps the
// first error. Once an error is recorded every later step is skipped.
type errorHandler struct {
	hw   *hardware
	clk  clockwork.Clock
	opts *Opts
	err  error
}

func (eh *errorHandler) reset() {
	if eh.err != nil {
		return
	}
	eh.err = eh.hw.reset(eh.clk, eh.opts.ResetPulse, eh.opts.ResetSettle)
}

func (eh *errorHandler) sendCommand(cmd command, data ...byte) {
	if eh.err != nil {
		return
	}
	_, eh.err = eh.hw.CommandWriter().Write(append([]byte{byte(cmd)}, data...))
}

func (eh *errorHandler) waitUntilIdle() {
	if eh.err != nil {
		return
	}
	eh.err = eh.hw.waitUntilIdle(eh.clk, eh.opts.BusyPoll, eh.opts.BusyTimeout)
}

func (eh *errorHandler) delay(d time.Duration) {
	if eh.err != nil {
		return
	}
	eh.clk.Sleep(d)
}
