package bringup

import "fmt"

// Stage names the step of the bring-up that failed.
type Stage int

const (
	StageBootstrap Stage = iota + 1
	StagePeripherals
	StageReset
	StageInit
	StageCompose
	StageTransfer
)

var stageNames = map[Stage]string{
	StageBootstrap:   "bootstrap",
	StagePeripherals: "peripherals",
	StageReset:       "reset",
	StageInit:        "init",
	StageCompose:     "compose",
	StageTransfer:    "transfer",
}

func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Class groups stages by the kind of fault they report.
type Class int

const (
	// ClassConfig is a bad platform, wiring or asset configuration.
	ClassConfig Class = iota + 1
	// ClassHardware is a controller that did not come up.
	ClassHardware
	// ClassTransfer is a failed frame transfer, wait or sleep.
	ClassTransfer
)

func (c Class) String() string {
	switch c {
	case ClassConfig:
		return "config"
	case ClassHardware:
		return "hardware"
	case ClassTransfer:
		return "transfer"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

func (s Stage) Class() Class {
	switch s {
	case StageReset, StageInit:
		return ClassHardware
	case StageTransfer:
		return ClassTransfer
	}
	return ClassConfig
}

// Error is the failure of one stage. Every Error is fatal to the bring-up.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("bringup: %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func stageErr(s Stage, err error) error {
	return &Error{Stage: s, Err: err}
}
