// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package epd7in5b

import "fmt"

// command is a UC8179 command byte. Parameters follow as data bytes.
type command byte

const (
	panelSetting           command = 0x00
	powerSetting           command = 0x01
	powerOff               command = 0x02
	powerOn                command = 0x04
	boosterSoftStart       command = 0x06
	deepSleep              command = 0x07
	dataStartTransmission1 command = 0x10
	displayRefresh         command = 0x12
	dataStartTransmission2 command = 0x13
	dualSPI                command = 0x15
	vcomAndDataInterval    command = 0x50
	tconSetting            command = 0x60
	resolutionSetting      command = 0x61
	gateSourceStart        command = 0x65
	getStatus              command = 0x71
)

// deepSleepCheckCode must follow deepSleep or the controller ignores it.
const deepSleepCheckCode = 0xA5

var commandNames = map[command]string{
	panelSetting:           "panelSetting",
	powerSetting:           "powerSetting",
	powerOff:               "powerOff",
	powerOn:                "powerOn",
	boosterSoftStart:       "boosterSoftStart",
	deepSleep:              "deepSleep",
	dataStartTransmission1: "dataStartTransmission1",
	displayRefresh:         "displayRefresh",
	dataStartTransmission2: "dataStartTransmission2",
	dualSPI:                "dualSPI",
	vcomAndDataInterval:    "vcomAndDataInterval",
	tconSetting:            "tconSetting",
	resolutionSetting:      "resolutionSetting",
	gateSourceStart:        "gateSourceStart",
	getStatus:              "getStatus",
}

func (c command) String() string {
	if s, ok := commandNames[c]; ok {
		return s
	}
	return fmt.Sprintf("command(0x%02X)", byte(c))
}
