// Package bringup brings a Waveshare 7.5" (B) panel up from power-on to a
// sleeping panel showing the splash frame, then idles.
package bringup

import (
	"context"
	"errors"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/toothrot/epdboot/devices/epd7in5b"
	"github.com/toothrot/epdboot/internal/asset"
	"github.com/toothrot/epdboot/internal/config"
	"github.com/toothrot/epdboot/internal/log"
)

// Sequencer runs the bring-up once.
type Sequencer struct {
	Config   *config.Config
	Platform Platform
	// Open returns the wiring. It is called after the platform bootstrap,
	// once host drivers are loaded.
	Open func() (*Wiring, error)
	// Clock provides every delay. Nil means the real clock.
	Clock clockwork.Clock
	// Bitmap is a 1-bpp BMP. Nil means the embedded splash.
	Bitmap []byte
	// Panel overrides the panel variant. Nil means EPD7in5bV2 with the
	// busy timing from Config.
	Panel *epd7in5b.Opts
	// NewController defaults to NewEPD7in5b.
	NewController NewControllerFunc

	mu  sync.Mutex
	per *Peripherals
	ran bool
}

var errRan = errors.New("bring-up already ran")

func (s *Sequencer) clock() clockwork.Clock {
	if s.Clock == nil {
		return clockwork.NewRealClock()
	}
	return s.Clock
}

func (s *Sequencer) panelOpts() *epd7in5b.Opts {
	if s.Panel != nil {
		return s.Panel
	}
	o := epd7in5b.EPD7in5bV2
	o.BusyPoll = s.Config.Panel.BusyPoll
	o.BusyTimeout = s.Config.Panel.BusyTimeout
	return &o
}

// BringUp runs the bootstrap, acquisition, reset, init, compose and transfer
// stages, and returns the frame sent to the panel. A failure is an *Error.
func (s *Sequencer) BringUp() (*epd7in5b.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ran {
		return nil, errRan
	}
	s.ran = true
	clk := s.clock()
	cfg := s.Config
	log.Info("starting bring-up")

	if err := Bootstrap(s.Platform, cfg.Platform.HeapBytes); err != nil {
		return nil, stageErr(StageBootstrap, err)
	}

	w, err := s.Open()
	if err != nil {
		return nil, stageErr(StagePeripherals, err)
	}
	per, err := Acquire(w, cfg.SPI)
	if err != nil {
		return nil, stageErr(StagePeripherals, err)
	}
	s.per = per
	log.Info("peripherals acquired", "busy", per.Busy.Read())

	if err := Reset(per.RST, clk, cfg.Reset.Low, cfg.Reset.High); err != nil {
		return nil, stageErr(StageReset, err)
	}

	newCtrl := s.NewController
	if newCtrl == nil {
		newCtrl = NewEPD7in5b
	}
	ctrl, err := InitController(per, clk, s.panelOpts(), newCtrl)
	if err != nil {
		return nil, stageErr(StageInit, err)
	}

	bitmap := s.Bitmap
	if bitmap == nil {
		bitmap = asset.SplashBMP()
	}
	fb, err := Compose(ctrl, bitmap)
	if err != nil {
		return nil, stageErr(StageCompose, err)
	}

	if err := Present(ctrl, fb); err != nil {
		return nil, stageErr(StageTransfer, err)
	}
	return fb, nil
}

// Run is BringUp followed by Idle. It only returns on failure or when ctx is
// done.
func (s *Sequencer) Run(ctx context.Context) error {
	if _, err := s.BringUp(); err != nil {
		return err
	}
	return Idle(ctx, s.clock(), s.Config.Idle.Period)
}

// Close releases the SPI port if it was acquired.
func (s *Sequencer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.per == nil {
		return nil
	}
	err := s.per.Close()
	s.per = nil
	return err
}
