package bringup

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/toothrot/epdboot/devices/epd7in5b"
	"github.com/toothrot/epdboot/internal/asset"
	"github.com/toothrot/epdboot/internal/log"
	"golang.org/x/image/draw"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
)

// Reset pulses the controller reset line: LOW for low, then HIGH for high.
func Reset(rst gpio.PinOut, clk clockwork.Clock, low, high time.Duration) error {
	log.Info("resetting display", "low", low, "high", high)
	if err := rst.Out(gpio.Low); err != nil {
		return fmt.Errorf("%s.Out(%s) = %w", rst, gpio.Low, err)
	}
	clk.Sleep(low)
	if err := rst.Out(gpio.High); err != nil {
		return fmt.Errorf("%s.Out(%s) = %w", rst, gpio.High, err)
	}
	clk.Sleep(high)
	return nil
}

// Controller is the part of the display driver used after initialization.
type Controller interface {
	SetBackgroundColor(c epd7in5b.Color)
	Width() int
	Height() int
	UpdateAndDisplayFrame(img *epd7in5b.Image) error
	WaitUntilIdle() error
	Sleep() error
}

// NewControllerFunc builds and initializes a controller on the given handles.
type NewControllerFunc func(c conn.Conn, busy gpio.PinIn, dc, rst gpio.PinOut, clk clockwork.Clock, opts *epd7in5b.Opts) (Controller, error)

// NewEPD7in5b is the NewControllerFunc for the Waveshare 7.5" (B) panel.
func NewEPD7in5b(c conn.Conn, busy gpio.PinIn, dc, rst gpio.PinOut, clk clockwork.Clock, opts *epd7in5b.Opts) (Controller, error) {
	d, err := epd7in5b.New(c, busy, dc, rst, clk, opts)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// InitController hands the peripherals to newCtrl. It is called once; there
// is no retry.
func InitController(p *Peripherals, clk clockwork.Clock, opts *epd7in5b.Opts, newCtrl NewControllerFunc) (Controller, error) {
	ctrl, err := newCtrl(p.Bus, p.Busy, p.DC, p.RST, clk, opts)
	if err != nil {
		log.Error("display init failed", err, "busy", p.Busy.Read())
		return nil, err
	}
	log.Info("display initialized", "width", ctrl.Width(), "height", ctrl.Height())
	return ctrl, nil
}

// Compose returns a frame the size of the controller: White everywhere, with
// the 1-bpp BMP in bitmap drawn at the origin.
func Compose(ctrl Controller, bitmap []byte) (*epd7in5b.Image, error) {
	ctrl.SetBackgroundColor(epd7in5b.White)
	w, h := ctrl.Width(), ctrl.Height()
	fb := epd7in5b.NewImage(image.Rect(0, 0, w, h))
	Fill(fb, epd7in5b.White)

	src, err := asset.Decode(bitmap)
	if err != nil {
		return nil, fmt.Errorf("asset.Decode() = %w", err)
	}
	Composite(fb, src)
	log.Info("frame composed", "width", w, "height", h, "bitmap", src.Bounds().Size())
	return fb, nil
}

// Fill paints every pixel of dst with c.
func Fill(dst draw.Image, c color.Color) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// Composite draws src with its top-left corner at (0,0) of dst. Pixels are
// converted through the color model of dst and clipped to its bounds.
func Composite(dst draw.Image, src image.Image) {
	b := src.Bounds()
	draw.Draw(dst, b.Sub(b.Min), src, b.Min, draw.Src)
}

// Present transfers the frame, waits for the refresh and puts the controller
// to sleep. Nothing else is sent once a step fails.
func Present(ctrl Controller, fb *epd7in5b.Image) error {
	if err := ctrl.UpdateAndDisplayFrame(fb); err != nil {
		return fmt.Errorf("UpdateAndDisplayFrame() = %w", err)
	}
	if err := ctrl.WaitUntilIdle(); err != nil {
		return fmt.Errorf("WaitUntilIdle() = %w", err)
	}
	log.Info("frame displayed")
	if err := ctrl.Sleep(); err != nil {
		return fmt.Errorf("Sleep() = %w", err)
	}
	log.Info("display asleep")
	return nil
}

// Idle sleeps period at a time until ctx is done, and returns ctx.Err().
func Idle(ctx context.Context, clk clockwork.Clock, period time.Duration) error {
	for {
		log.Info("sleeping", "period", period)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(period):
		}
	}
}
