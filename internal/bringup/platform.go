package bringup

import (
	"fmt"

	"github.com/toothrot/epdboot/internal/log"
)

// Platform prepares the processor before any peripheral is used.
type Platform interface {
	// MaxClock runs the processor at its highest clock rate.
	MaxClock() error
	// DisableWatchdogs stops every watchdog timer, nothing services them.
	DisableWatchdogs() error
	// InstallHeap installs a heap of size bytes. It fails when called twice.
	InstallHeap(size int64) error
}

// Bootstrap configures the clock, then the watchdogs, then the heap.
func Bootstrap(p Platform, heapBytes int64) error {
	if err := p.MaxClock(); err != nil {
		return fmt.Errorf("MaxClock() = %w", err)
	}
	if err := p.DisableWatchdogs(); err != nil {
		return fmt.Errorf("DisableWatchdogs() = %w", err)
	}
	if err := p.InstallHeap(heapBytes); err != nil {
		return fmt.Errorf("InstallHeap(%d) = %w", heapBytes, err)
	}
	log.Info("platform ready", "heap_bytes", heapBytes)
	return nil
}
