package main

import (
	"fmt"
	"strings"
)

// switchMode is the value of a tri-state flag such as --color or --ui.
type switchMode uint8

const (
	modeAuto switchMode = iota
	modeOn
	modeOff
)

func (m switchMode) String() string {
	switch m {
	case modeOn:
		return "on"
	case modeOff:
		return "off"
	default:
		return "auto"
	}
}

func parseSwitch(flag, value string) (switchMode, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "", "auto":
		return modeAuto, nil
	case "on":
		return modeOn, nil
	case "off":
		return modeOff, nil
	}
	return modeAuto, fmt.Errorf("invalid --%s value %q (expected auto|on|off)", flag, value)
}

// resolve turns m into a decision; detect is consulted only for auto.
func (m switchMode) resolve(detect func() bool) bool {
	switch m {
	case modeOn:
		return true
	case modeOff:
		return false
	}
	return detect()
}
