// Package platform prepares the host before the display is touched: clock,
// watchdogs and heap.
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"runtime/metrics"
	"sort"
	"sync"

	"github.com/toothrot/epdboot/internal/config"
	"github.com/toothrot/epdboot/internal/log"
	"periph.io/x/conn/v3/driver/driverreg"
	"periph.io/x/host/v3"
)

// ErrHeapInstalled is returned when the heap is installed a second time.
var ErrHeapInstalled = errors.New("platform: heap already installed")

// watchdogMagicClose disarms a Linux watchdog when written before close.
const watchdogMagicClose = "V"

// Host is the Linux platform driven through periph host drivers and sysfs.
type Host struct {
	// Root prefixes every sysfs and device path.
	Root      string
	Governor  string
	Watchdogs []string

	initDrivers    func() (*driverreg.State, error)
	setMemoryLimit func(int64) int64
	baseline       func() int64

	mu            sync.Mutex
	heapInstalled bool
}

// NewHost returns a Host configured from cfg.
func NewHost(cfg config.Platform) *Host {
	root := cfg.SysRoot
	if root == "" {
		root = "/"
	}
	return &Host{
		Root:           root,
		Governor:       cfg.CPUGovernor,
		Watchdogs:      cfg.Watchdogs,
		initDrivers:    host.Init,
		setMemoryLimit: debug.SetMemoryLimit,
		baseline:       runtimeBaseline,
	}
}

// MaxClock loads the host drivers and switches every CPU frequency policy to
// the configured governor.
func (h *Host) MaxClock() error {
	state, err := h.initDrivers()
	if err != nil {
		return fmt.Errorf("host.Init() = %w", err)
	}
	for _, d := range state.Loaded {
		log.Debug("host driver loaded", "driver", d)
	}
	for _, f := range state.Skipped {
		log.Debug("host driver skipped", "driver", f.D, "reason", f.Err)
	}
	for _, f := range state.Failed {
		log.Error("host driver failed", f.Err, "driver", f.D)
	}
	if h.Governor == "" {
		return nil
	}
	policies, err := filepath.Glob(filepath.Join(h.Root, "sys/devices/system/cpu/cpu[0-9]*/cpufreq/scaling_governor"))
	if err != nil {
		return err
	}
	if len(policies) == 0 {
		log.Info("no cpufreq policies, leaving clock alone")
		return nil
	}
	sort.Strings(policies)
	for _, p := range policies {
		if err := os.WriteFile(p, []byte(h.Governor+"\n"), 0o644); err != nil {
			return fmt.Errorf("setting governor %q: %w", h.Governor, err)
		}
	}
	log.Info("cpu governor set", "governor", h.Governor, "cpus", len(policies))
	return nil
}

// DisableWatchdogs disarms every configured watchdog with the magic close
// character so it does not fire once nothing services it.
func (h *Host) DisableWatchdogs() error {
	for _, wd := range h.Watchdogs {
		p := filepath.Join(h.Root, wd)
		f, err := os.OpenFile(p, os.O_WRONLY, 0)
		if err != nil {
			return fmt.Errorf("opening watchdog: %w", err)
		}
		if _, err := f.WriteString(watchdogMagicClose); err != nil {
			f.Close()
			return fmt.Errorf("disarming watchdog %s: %w", p, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing watchdog %s: %w", p, err)
		}
		log.Info("watchdog disarmed", "device", p)
	}
	return nil
}

// runtimeBaseline is the memory the runtime already holds, measured the way
// the memory limit counts it.
func runtimeBaseline() int64 {
	s := []metrics.Sample{
		{Name: "/memory/classes/total:bytes"},
		{Name: "/memory/classes/heap/released:bytes"},
	}
	metrics.Read(s)
	var v [2]uint64
	for i := range s {
		if s[i].Value.Kind() == metrics.KindUint64 {
			v[i] = s[i].Value.Uint64()
		}
	}
	if v[1] > v[0] {
		return 0
	}
	return int64(v[0] - v[1])
}

// InstallHeap allows size bytes of allocation on top of what the runtime
// holds at install time. It may only be called once.
func (h *Host) InstallHeap(size int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.heapInstalled {
		return ErrHeapInstalled
	}
	if size <= 0 {
		return fmt.Errorf("platform: invalid heap size %d", size)
	}
	base := h.baseline()
	limit := base + size
	prev := h.setMemoryLimit(limit)
	h.heapInstalled = true
	log.Info("heap installed", "bytes", size, "baseline", base, "limit", limit, "previous_limit", prev)
	return nil
}

// Nop is a platform for simulated runs. It only records what was asked.
type Nop struct {
	Calls     []string
	HeapBytes int64
}

func (n *Nop) MaxClock() error {
	n.Calls = append(n.Calls, "MaxClock")
	return nil
}

func (n *Nop) DisableWatchdogs() error {
	n.Calls = append(n.Calls, "DisableWatchdogs")
	return nil
}

func (n *Nop) InstallHeap(size int64) error {
	if n.HeapBytes != 0 {
		return ErrHeapInstalled
	}
	n.Calls = append(n.Calls, "InstallHeap")
	n.HeapBytes = size
	return nil
}
