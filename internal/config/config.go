// Package config holds the YAML configuration of the bring-up binary.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

const (
	// DefaultHeapBytes is the heap capacity installed at boot.
	DefaultHeapBytes = 64000
	// MinResetHold is the shortest accepted hold time for each reset level.
	MinResetHold = 500 * time.Millisecond
)

// Platform configures the processor before any peripheral is touched.
type Platform struct {
	// CPUGovernor is written to every cpufreq policy. Empty leaves it alone.
	CPUGovernor string `yaml:"cpu_governor"`
	// Watchdogs lists watchdog device nodes to disarm, e.g. /dev/watchdog0.
	Watchdogs []string `yaml:"watchdogs"`
	// HeapBytes caps the heap.
	HeapBytes int64 `yaml:"heap_bytes"`
	// SysRoot prefixes sysfs and device paths. Empty means "/".
	SysRoot string `yaml:"sys_root,omitempty"`
}

// SPI selects and configures the SPI master.
type SPI struct {
	// Port is a spireg name; empty selects the first registered port.
	Port string `yaml:"port"`
	// CLK and MOSI, when set, must match the pins the port is bound to.
	CLK  string `yaml:"clk"`
	MOSI string `yaml:"mosi"`
	// Frequency such as "4MHz".
	Frequency string `yaml:"frequency"`
	Mode      int    `yaml:"mode"`
}

// Pins holds gpioreg names of the panel control lines.
type Pins struct {
	CS   string `yaml:"cs"`
	Busy string `yaml:"busy"`
	DC   string `yaml:"dc"`
	RST  string `yaml:"rst"`
}

// Reset is the manual reset pulse applied before controller init.
type Reset struct {
	Low  time.Duration `yaml:"low"`
	High time.Duration `yaml:"high"`
}

// Panel bounds busy polling.
type Panel struct {
	BusyPoll    time.Duration `yaml:"busy_poll"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

type Idle struct {
	Period time.Duration `yaml:"period"`
}

type Log struct {
	Level string `yaml:"level"`
}

// Config is the top-level configuration.
type Config struct {
	Platform Platform `yaml:"platform"`
	SPI      SPI      `yaml:"spi"`
	Pins     Pins     `yaml:"pins"`
	Reset    Reset    `yaml:"reset"`
	Panel    Panel    `yaml:"panel"`
	Idle     Idle     `yaml:"idle"`
	Log      Log      `yaml:"log"`
}

// DefaultConfig returns the configuration for a Waveshare HAT on a Raspberry Pi.
//
// Standard pin locations are as follows:
//
//	Busy - Busy      - Pin 18 (GPIO 24)
//	CLK  - SPI0 SCLK - Pin 23 (GPIO 11)
//	CS   - SPI0 CE0  - Pin 24 (GPIO 8)
//	DC   - Data/Cmd  - Pin 22 (GPIO 25)
//	DIN  - SPI0 MOSI - Pin 19 (GPIO 10)
//	RST  - Reset     - Pin 11 (GPIO 17)
func DefaultConfig() *Config {
	return &Config{
		Platform: Platform{
			CPUGovernor: "performance",
			Watchdogs:   []string{},
			HeapBytes:   DefaultHeapBytes,
		},
		SPI: SPI{
			CLK:       "P1_23",
			MOSI:      "P1_19",
			Frequency: "4MHz",
			Mode:      0,
		},
		Pins: Pins{
			CS:   "P1_24",
			Busy: "P1_18",
			DC:   "P1_22",
			RST:  "P1_11",
		},
		Reset: Reset{Low: MinResetHold, High: MinResetHold},
		Panel: Panel{BusyPoll: 10 * time.Millisecond, BusyTimeout: 40 * time.Second},
		Idle:  Idle{Period: 5 * time.Second},
		Log:   Log{Level: "info"},
	}
}

// Normalize fills zero values with defaults so partial files still work.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Platform.HeapBytes == 0 {
		c.Platform.HeapBytes = d.Platform.HeapBytes
	}
	if c.Platform.Watchdogs == nil {
		c.Platform.Watchdogs = []string{}
	}
	if c.SPI.Frequency == "" {
		c.SPI.Frequency = d.SPI.Frequency
	}
	if c.Pins.CS == "" {
		c.Pins.CS = d.Pins.CS
	}
	if c.Pins.Busy == "" {
		c.Pins.Busy = d.Pins.Busy
	}
	if c.Pins.DC == "" {
		c.Pins.DC = d.Pins.DC
	}
	if c.Pins.RST == "" {
		c.Pins.RST = d.Pins.RST
	}
	if c.Reset.Low == 0 {
		c.Reset.Low = d.Reset.Low
	}
	if c.Reset.High == 0 {
		c.Reset.High = d.Reset.High
	}
	if c.Panel.BusyPoll == 0 {
		c.Panel.BusyPoll = d.Panel.BusyPoll
	}
	if c.Panel.BusyTimeout == 0 {
		c.Panel.BusyTimeout = d.Panel.BusyTimeout
	}
	if c.Idle.Period == 0 {
		c.Idle.Period = d.Idle.Period
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

// Validate reports the first setting the bring-up cannot work with.
func (c *Config) Validate() error {
	if c.Platform.HeapBytes < 0 {
		return fmt.Errorf("platform.heap_bytes = %d, must be positive", c.Platform.HeapBytes)
	}
	if _, err := c.SPI.Freq(); err != nil {
		return err
	}
	if _, err := c.SPI.SPIMode(); err != nil {
		return err
	}
	if c.Reset.Low < MinResetHold || c.Reset.High < MinResetHold {
		return fmt.Errorf("reset low=%s high=%s, each must be at least %s", c.Reset.Low, c.Reset.High, MinResetHold)
	}
	if c.Panel.BusyPoll <= 0 || c.Panel.BusyTimeout < c.Panel.BusyPoll {
		return fmt.Errorf("panel busy_poll=%s busy_timeout=%s, want 0 < poll <= timeout", c.Panel.BusyPoll, c.Panel.BusyTimeout)
	}
	if c.Idle.Period <= 0 {
		return fmt.Errorf("idle.period = %s, must be positive", c.Idle.Period)
	}
	return nil
}

// Freq parses Frequency.
func (s SPI) Freq() (physic.Frequency, error) {
	var f physic.Frequency
	if err := f.Set(s.Frequency); err != nil {
		return 0, fmt.Errorf("spi.frequency %q: %w", s.Frequency, err)
	}
	if f <= 0 {
		return 0, fmt.Errorf("spi.frequency %q must be positive", s.Frequency)
	}
	return f, nil
}

// SPIMode maps Mode to a clock polarity/phase mode.
func (s SPI) SPIMode() (spi.Mode, error) {
	switch s.Mode {
	case 0:
		return spi.Mode0, nil
	case 1:
		return spi.Mode1, nil
	case 2:
		return spi.Mode2, nil
	case 3:
		return spi.Mode3, nil
	}
	return 0, fmt.Errorf("spi.mode = %d, want 0-3", s.Mode)
}

// Load reads the YAML file at path. When the file does not exist the defaults
// are written there first.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes, normalizes and validates YAML.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg to path atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".epdboot-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
