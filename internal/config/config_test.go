package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "epdboot.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%q) = _, %v", path, err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("Load() difference (-want +got):\n%s", diff)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("os.Stat(%q) = _, %v", path, err)
	}
	if perm := fi.Mode().Perm(); perm != 0o600 {
		t.Errorf("config mode = %v, wanted 0600", perm)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("second Load(%q) = _, %v", path, err)
	}
	if diff := cmp.Diff(cfg, again); diff != "" {
		t.Errorf("reloaded config difference (-first +second):\n%s", diff)
	}
}

func TestParsePartial(t *testing.T) {
	data := []byte(`
spi:
  port: /dev/spidev0.0
  frequency: 2MHz
pins:
  busy: GPIO24
reset:
  low: 750ms
idle:
  period: 1m
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() = _, %v", err)
	}
	want := DefaultConfig()
	want.Platform.CPUGovernor = ""
	want.SPI.Port = "/dev/spidev0.0"
	want.SPI.CLK = ""
	want.SPI.MOSI = ""
	want.SPI.Frequency = "2MHz"
	want.Pins.Busy = "GPIO24"
	want.Reset.Low = 750 * time.Millisecond
	want.Idle.Period = time.Minute
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Parse() difference (-want +got):\n%s", diff)
	}
	f, err := cfg.SPI.Freq()
	if err != nil || f != 2*physic.MegaHertz {
		t.Errorf("Freq() = %v, %v, wanted %v", f, err, 2*physic.MegaHertz)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		desc    string
		mutate  func(*Config)
		wantErr bool
	}{
		{desc: "defaults", mutate: func(*Config) {}},
		{desc: "bad frequency", mutate: func(c *Config) { c.SPI.Frequency = "fast" }, wantErr: true},
		{desc: "bad mode", mutate: func(c *Config) { c.SPI.Mode = 4 }, wantErr: true},
		{desc: "short reset low", mutate: func(c *Config) { c.Reset.Low = 200 * time.Millisecond }, wantErr: true},
		{desc: "short reset high", mutate: func(c *Config) { c.Reset.High = time.Millisecond }, wantErr: true},
		{desc: "timeout below poll", mutate: func(c *Config) { c.Panel.BusyTimeout = time.Millisecond }, wantErr: true},
		{desc: "negative heap", mutate: func(c *Config) { c.Platform.HeapBytes = -1 }, wantErr: true},
		{desc: "no idle period", mutate: func(c *Config) { c.Idle.Period = -time.Second }, wantErr: true},
	}
	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			cfg := DefaultConfig()
			c.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != c.wantErr {
				t.Errorf("Validate() = %v, wanted error: %v", err, c.wantErr)
			}
		})
	}
}

func TestSPIMode(t *testing.T) {
	for mode, want := range []spi.Mode{spi.Mode0, spi.Mode1, spi.Mode2, spi.Mode3} {
		got, err := SPI{Mode: mode}.SPIMode()
		if err != nil || got != want {
			t.Errorf("SPIMode(%d) = %v, %v, wanted %v", mode, got, err, want)
		}
	}
}
