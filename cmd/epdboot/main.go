// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Binary epdboot brings up a Waveshare 7.5" (B) e-paper panel, shows the
// embedded splash frame, puts the panel to sleep and idles.
//
// With -sim the same sequence runs against a simulated panel, which is handy
// for checking a new splash without hardware:
//
//	epdboot -sim -once -preview
package main

import (
	"context"
	"errors"
	"flag"
	"image"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/toothrot/epdboot/internal/bringup"
	"github.com/toothrot/epdboot/internal/config"
	"github.com/toothrot/epdboot/internal/log"
	"github.com/toothrot/epdboot/internal/platform"
	"github.com/toothrot/epdboot/internal/preview"
	"github.com/toothrot/epdboot/internal/sim"
)

var (
	configPath = flag.String("config", "", "YAML config file, created with defaults when missing. Empty uses the built-in defaults.")
	simulate   = flag.Bool("sim", false, "Drive a simulated panel instead of the host SPI bus.")
	once       = flag.Bool("once", false, "Exit after the panel is asleep instead of idling.")
	pngPath    = flag.String("png", "", "Write the frame to this PNG file.")
	showFrame  = flag.Bool("preview", false, "Print the frame to the terminal.")
	verbose    = flag.Bool("v", false, "Log at debug level.")
)

func main() {
	flag.Parse()
	log.Init(os.Stderr, log.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("stopped")
		return
	}
	if err != nil {
		kv := []any{}
		var serr *bringup.Error
		if errors.As(err, &serr) {
			kv = append(kv, "stage", serr.Stage, "class", serr.Stage.Class())
		}
		log.Error("epdboot failed", err, kv...)
		stop()
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if *configPath == "" {
		cfg := config.DefaultConfig()
		return cfg, cfg.Validate()
	}
	return config.Load(*configPath)
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if *verbose {
		level = log.LevelDebug
	}
	log.SetLevel(level)

	clk := clockwork.NewRealClock()
	seq := &bringup.Sequencer{
		Config: cfg,
		Clock:  clk,
	}
	var panel *sim.Panel
	if *simulate {
		panel = sim.New(clk, sim.DefaultOpts)
		seq.Platform = &platform.Nop{}
		seq.Open = func() (*bringup.Wiring, error) { return simWiring(panel), nil }
	} else {
		seq.Platform = platform.NewHost(cfg.Platform)
		seq.Open = func() (*bringup.Wiring, error) { return bringup.OpenHost(cfg) }
	}
	defer func() {
		if err := seq.Close(); err != nil {
			log.Error("closing spi port", err)
		}
	}()

	if !*once && *pngPath == "" && !*showFrame {
		return seq.Run(ctx)
	}

	fb, err := seq.BringUp()
	if err != nil {
		return err
	}
	var frame image.Image = fb
	if panel != nil {
		if err := panel.Err(); err != nil {
			return err
		}
		frame = panel.Frame()
	}
	if err := output(frame); err != nil {
		return err
	}
	if *once {
		return nil
	}
	return bringup.Idle(ctx, clk, cfg.Idle.Period)
}

func output(frame image.Image) error {
	if *pngPath != "" {
		if err := preview.SavePNG(*pngPath, frame); err != nil {
			return err
		}
		log.Info("frame written", "path", *pngPath)
	}
	if !*showFrame {
		return nil
	}
	w, tty := preview.Stdout()
	if tty {
		return preview.Terminal(w, frame, 100)
	}
	return preview.Text(os.Stdout, frame, 100)
}

func simWiring(p *sim.Panel) *bringup.Wiring {
	return &bringup.Wiring{
		Port: p.Port(),
		CLK:  p.CLK,
		MOSI: p.MOSI,
		CS:   p.CS,
		Busy: p.Busy,
		DC:   p.DC,
		RST:  p.RST,
	}
}
