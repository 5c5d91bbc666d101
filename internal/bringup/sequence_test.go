package bringup

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/toothrot/epdboot/devices/epd7in5b"
	"github.com/toothrot/epdboot/internal/asset"
	"github.com/toothrot/epdboot/internal/config"
	"github.com/toothrot/epdboot/internal/sim"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

func TestReset(t *testing.T) {
	clk := stepClock{clockwork.NewFakeClock()}
	p := sim.New(clk, sim.DefaultOpts)
	start := clk.Now()

	if err := Reset(p.RST, clk, 500*time.Millisecond, 700*time.Millisecond); err != nil {
		t.Fatalf("Reset() = %v", err)
	}
	want := []sim.Edge{
		{At: start, L: gpio.Low},
		{At: start.Add(500 * time.Millisecond), L: gpio.High},
	}
	if diff := cmp.Diff(want, p.RST.Edges()); diff != "" {
		t.Errorf("RST edges difference (-want +got):\n%s", diff)
	}
	if got := clk.Since(start); got != 1200*time.Millisecond {
		t.Errorf("Reset() took %s, wanted 1.2s", got)
	}
}

type brokenPin struct {
	gpiotest.Pin
}

func (b *brokenPin) Out(gpio.Level) error {
	return errors.New("pin is read-only")
}

func TestResetPinError(t *testing.T) {
	clk := stepClock{clockwork.NewFakeClock()}
	start := clk.Now()
	if err := Reset(&brokenPin{gpiotest.Pin{N: "RST"}}, clk, time.Second, time.Second); err == nil {
		t.Error("Reset() = nil, wanted error")
	}
	if got := clk.Since(start); got != 0 {
		t.Errorf("Reset() slept %s after a pin error", got)
	}
}

// encode returns a 1-bpp BMP of img.
func encode(t *testing.T, img image.Image) []byte {
	t.Helper()
	var b bytes.Buffer
	if err := asset.Encode(&b, img); err != nil {
		t.Fatalf("asset.Encode() = %v", err)
	}
	return b.Bytes()
}

func TestCompose(t *testing.T) {
	// A 4x2 bitmap, lit except for a dark diagonal.
	src := image.NewGray(image.Rect(0, 0, 4, 2))
	for i := range src.Pix {
		src.Pix[i] = 0xff
	}
	src.SetGray(0, 0, color.Gray{})
	src.SetGray(1, 1, color.Gray{})

	rec := &recorder{w: 10, h: 3}
	fb, err := Compose(rec, encode(t, src))
	if err != nil {
		t.Fatalf("Compose() = _, %v", err)
	}
	if diff := cmp.Diff([]string{"SetBackgroundColor(White)", "Width", "Height"}, rec.calls); diff != "" {
		t.Errorf("controller calls difference (-want +got):\n%s", diff)
	}
	if got, want := fb.Bounds(), image.Rect(0, 0, 10, 3); got != want {
		t.Fatalf("Compose().Bounds() = %v, wanted %v", got, want)
	}
	for y := 0; y < 3; y++ {
		for x := 0; x < 10; x++ {
			want := epd7in5b.White
			if (x == 0 && y == 0) || (x == 1 && y == 1) {
				want = epd7in5b.Black
			}
			if got := fb.ColorAt(x, y); got != want {
				t.Errorf("ColorAt(%d, %d) = %s, wanted %s", x, y, got, want)
			}
		}
	}
}

func TestComposeClips(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 12, 6))
	rec := &recorder{w: 8, h: 4}
	fb, err := Compose(rec, encode(t, src))
	if err != nil {
		t.Fatalf("Compose() = _, %v", err)
	}
	if got, want := fb.Bounds(), image.Rect(0, 0, 8, 4); got != want {
		t.Fatalf("Compose().Bounds() = %v, wanted %v", got, want)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			if got := fb.ColorAt(x, y); got != epd7in5b.Black {
				t.Errorf("ColorAt(%d, %d) = %s, wanted %s", x, y, got, epd7in5b.Black)
			}
		}
	}
}

func TestComposeBadBitmap(t *testing.T) {
	rec := &recorder{w: 8, h: 4}
	if _, err := Compose(rec, []byte("BM")); !errors.Is(err, asset.ErrFormat) {
		t.Errorf("Compose() = _, %v, wanted %v", err, asset.ErrFormat)
	}
}

func TestFill(t *testing.T) {
	fb := epd7in5b.NewImage(image.Rect(0, 0, 9, 2))
	fb.Set(3, 1, epd7in5b.Highlight)
	fb.Set(8, 0, epd7in5b.Black)
	Fill(fb, epd7in5b.White)
	want := epd7in5b.NewImage(fb.Rect)
	for i := range want.Black {
		want.Black[i] = 0xff
	}
	if diff := cmp.Diff(want, fb); diff != "" {
		t.Errorf("Fill() difference (-want +got):\n%s", diff)
	}
}

func TestCompositeOffsetSource(t *testing.T) {
	fb := epd7in5b.NewImage(image.Rect(0, 0, 4, 4))
	Fill(fb, epd7in5b.White)
	src := image.NewGray(image.Rect(10, 10, 12, 12))
	Composite(fb, src)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			want := epd7in5b.White
			if x < 2 && y < 2 {
				want = epd7in5b.Black
			}
			if got := fb.ColorAt(x, y); got != want {
				t.Errorf("ColorAt(%d, %d) = %s, wanted %s", x, y, got, want)
			}
		}
	}
}

func TestPresent(t *testing.T) {
	rec := &recorder{w: 8, h: 4}
	if err := Present(rec, epd7in5b.NewImage(image.Rect(0, 0, 8, 4))); err != nil {
		t.Fatalf("Present() = %v", err)
	}
	want := []string{"UpdateAndDisplayFrame", "WaitUntilIdle", "Sleep"}
	if diff := cmp.Diff(want, rec.calls); diff != "" {
		t.Errorf("controller calls difference (-want +got):\n%s", diff)
	}
}

func TestIdle(t *testing.T) {
	clk := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Idle(ctx, clk, 5*time.Second) }()

	clk.BlockUntil(1)
	clk.Advance(4 * time.Second)
	select {
	case err := <-done:
		t.Fatalf("Idle() = %v before the context was cancelled", err)
	default:
	}
	clk.Advance(time.Second)
	clk.BlockUntil(1)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Idle() = %v, wanted %v", err, context.Canceled)
	}
}

func TestAcquire(t *testing.T) {
	clk := stepClock{clockwork.NewFakeClock()}
	p := sim.New(clk, sim.DefaultOpts)
	per, err := Acquire(simWiring(p), config.DefaultConfig().SPI)
	if err != nil {
		t.Fatalf("Acquire() = _, %v", err)
	}
	defer per.Close()

	for _, c := range []struct {
		pin  *sim.Pin
		want gpio.Level
	}{{p.CS, gpio.High}, {p.DC, gpio.High}, {p.RST, gpio.High}} {
		if got := c.pin.Level(); got != c.want {
			t.Errorf("%s = %s, wanted %s", c.pin, got, c.want)
		}
	}
	if got := p.Busy.Pull(); got != gpio.PullDown {
		t.Errorf("busy pull = %s, wanted %s", got, gpio.PullDown)
	}
	if got := per.Busy.Read(); got != gpio.Low {
		t.Errorf("busy = %s before reset, wanted %s", got, gpio.Low)
	}
	if got, want := per.Bus.MaxTxSize(), sim.DefaultOpts.MaxTxSize; got != want {
		t.Errorf("MaxTxSize() = %d, wanted %d", got, want)
	}

	// Chip-select is asserted only for the transfer.
	if err := p.DC.Out(gpio.Low); err != nil {
		t.Fatal(err)
	}
	if err := per.Bus.Tx([]byte{byte(sim.GetStatus)}, nil); err != nil {
		t.Fatalf("Tx() = %v", err)
	}
	var levels []gpio.Level
	for _, e := range p.CS.Edges() {
		levels = append(levels, e.L)
	}
	if diff := cmp.Diff([]gpio.Level{gpio.High, gpio.Low, gpio.High}, levels); diff != "" {
		t.Errorf("CS edges difference (-want +got):\n%s", diff)
	}
}

func TestAcquireErrors(t *testing.T) {
	for _, c := range []struct {
		desc    string
		modify  func(*Wiring, *config.SPI)
		wantErr string
	}{
		{
			desc:    "no cs",
			modify:  func(w *Wiring, _ *config.SPI) { w.CS = nil },
			wantErr: "no cs pin",
		},
		{
			desc:    "no busy",
			modify:  func(w *Wiring, _ *config.SPI) { w.Busy = nil },
			wantErr: "no busy pin",
		},
		{
			desc:    "no rst",
			modify:  func(w *Wiring, _ *config.SPI) { w.RST = nil },
			wantErr: "no rst pin",
		},
		{
			desc:    "bad frequency",
			modify:  func(_ *Wiring, s *config.SPI) { s.Frequency = "fast" },
			wantErr: "fast",
		},
		{
			desc:    "unsupported mode",
			modify:  func(_ *Wiring, s *config.SPI) { s.Mode = 1 },
			wantErr: "Connect",
		},
		{
			desc:    "wrong clock line",
			modify:  func(w *Wiring, _ *config.SPI) { w.CLK = &gpiotest.Pin{N: "GPIO21"} },
			wantErr: "spi clk is bound to",
		},
	} {
		t.Run(c.desc, func(t *testing.T) {
			p := sim.New(clockwork.NewFakeClock(), sim.DefaultOpts)
			w := simWiring(p)
			cfg := config.DefaultConfig().SPI
			c.modify(w, &cfg)

			_, err := Acquire(w, cfg)
			if err == nil || !strings.Contains(err.Error(), c.wantErr) {
				t.Fatalf("Acquire() = _, %v, wanted error containing %q", err, c.wantErr)
			}
			if err := p.Port().Close(); err == nil {
				t.Error("port still open after a failed Acquire")
			}
		})
	}
}

func TestOpenHost(t *testing.T) {
	p := sim.New(stepClock{clockwork.NewFakeClock()}, sim.DefaultOpts)
	port := p.Port()
	opens := 0
	if err := spireg.Register("EPDTEST_SPI", nil, -1, func() (spi.PortCloser, error) {
		opens++
		if opens == 1 {
			return sim.New(clockwork.NewFakeClock(), sim.DefaultOpts).Port(), nil
		}
		return port, nil
	}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { spireg.Unregister("EPDTEST_SPI") })

	cfg := config.DefaultConfig()
	cfg.SPI.Port = "EPDTEST_SPI"
	cfg.SPI.CLK = "EPDTEST_CLK"
	cfg.SPI.MOSI = ""
	cfg.Pins = config.Pins{CS: p.CS.Name(), Busy: p.Busy.Name(), DC: p.DC.Name(), RST: p.RST.Name()}

	if _, err := OpenHost(cfg); err == nil || !strings.Contains(err.Error(), `invalid cs pin "GPIO8"`) {
		t.Fatalf("OpenHost() = _, %v, wanted an invalid cs pin error", err)
	}

	for _, pin := range []*sim.Pin{p.CLK, p.CS, p.Busy, p.DC, p.RST} {
		if err := gpioreg.Register(pin); err != nil {
			t.Fatal(err)
		}
		name := pin.Name()
		t.Cleanup(func() { gpioreg.Unregister(name) })
	}
	if err := gpioreg.RegisterAlias("EPDTEST_CLK", p.CLK.Name()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { gpioreg.Unregister("EPDTEST_CLK") })

	w, err := OpenHost(cfg)
	if err != nil {
		t.Fatalf("OpenHost() = _, %v", err)
	}
	if w.MOSI != nil {
		t.Errorf("MOSI = %s, wanted none", w.MOSI)
	}
	per, err := Acquire(w, cfg.SPI)
	if err != nil {
		t.Fatalf("Acquire() = _, %v", err)
	}
	defer per.Close()
	if got := p.RST.Level(); got != gpio.High {
		t.Errorf("RST = %s, wanted %s", got, gpio.High)
	}
	if _, _, ok := p.Connection(); !ok {
		t.Error("registered port was not connected")
	}
}

func TestOpenHostUnknownPort(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SPI.Port = "EPDTEST_MISSING"
	if _, err := OpenHost(cfg); err == nil {
		t.Error("OpenHost() = _, nil, wanted error")
	}
}
