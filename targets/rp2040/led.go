//go:build rp2040

package main

import (
	"image/color"
	"machine"

	"tinygo.org/x/drivers/ws2812"
)

// StatusLED drives a single WS2812 pixel (onboard on RP2040-Zero style
// boards) as a coarse state indicator.
type StatusLED struct {
	dev ws2812.Device
	buf [1]color.RGBA
}

var (
	ledIdle    = color.RGBA{R: 0, G: 8, B: 0}
	ledMoving  = color.RGBA{R: 0, G: 0, B: 16}
	ledStalled = color.RGBA{R: 24, G: 0, B: 0}
	ledFault   = color.RGBA{R: 24, G: 6, B: 0}
)

func NewStatusLED(pin machine.Pin) *StatusLED {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &StatusLED{dev: ws2812.New(pin)}
}

// Show picks the color for the current motion state. Stall wins over
// moving so a stall event is visible even mid-move.
func (l *StatusLED) Show(moving, stalled bool) {
	switch {
	case stalled:
		l.buf[0] = ledStalled
	case moving:
		l.buf[0] = ledMoving
	default:
		l.buf[0] = ledIdle
	}
	l.dev.WriteColors(l.buf[:])
}

// ShowFault latches the fault color. Used from the fatal handler.
func (l *StatusLED) ShowFault() {
	l.buf[0] = ledFault
	l.dev.WriteColors(l.buf[:])
}
