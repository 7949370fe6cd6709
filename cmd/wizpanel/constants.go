package main

import "time"

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_SYN = 0x00
	EV_KEY = 0x01
	EV_REL = 0x02

	// Relative axis emitted by the rotary-encoder driver in relative-axis mode.
	REL_X    = 0x00
	REL_DIAL = 0x07

	// Default key codes for a gpio-keys overlay wired to the panel.
	KEY_ENTER = 28
	KEY_1     = 2
	KEY_2     = 3
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// WiZ local protocol
const (
	wizPort           = 38899 // UDP port every light listens on
	wizLocalPort      = 38900 // Local port the panel binds for its socket
	wizMethodSetPilot = "setPilot"

	// Protocol limits for the dimming field.
	wizMinDimming = 10
	wizMaxDimming = 100
)

// Dimmer defaults
const (
	defaultMinBrightness     = 10
	defaultMaxBrightness     = 100
	defaultBrightnessStep    = 2 // percent per detent
	defaultInitialBrightness = 50
)

// defaultColorTemps is the colour temperature cycle in Kelvin, in order.
var defaultColorTemps = []int{2200, 2700, 4000, 6500}

// colorTempNames are the human names used in logs.
var colorTempNames = map[int]string{
	2200: "candlelight",
	2700: "warm white",
	4000: "neutral",
	6500: "daylight",
}

// Button timing defaults
const (
	defaultDebounce           = 20 * time.Millisecond
	defaultClickWindow        = 200 * time.Millisecond
	defaultEncoderClickWindow = 250 * time.Millisecond
	defaultDoubleClickWindow  = 250 * time.Millisecond
)

// Loop / housekeeping defaults
const (
	defaultPollInterval     = 10 * time.Millisecond
	defaultPacing           = 50 * time.Millisecond
	defaultNetCheckInterval = 30 * time.Second
	defaultWatchdogTimeout  = 5 * time.Second
)
