package main

import "fmt"

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed by the daemon loop.
// In this codebase, those are setPilot requests to one of the lights.
type Command interface {
	commandMarker()
	String() string
}

// PilotKind is the shape of a setPilot request.
type PilotKind int

const (
	// PilotPowerOn carries state=true and the current brightness.
	PilotPowerOn PilotKind = iota
	// PilotPowerOff carries state=false and nothing else.
	PilotPowerOff
	// PilotBrightnessTemp carries dimming and temp but no state field,
	// so a light that is off stays off.
	PilotBrightnessTemp
)

func (k PilotKind) String() string {
	switch k {
	case PilotPowerOn:
		return "set_power_and_brightness"
	case PilotPowerOff:
		return "set_power_off"
	case PilotBrightnessTemp:
		return "set_brightness_and_temp"
	default:
		return fmt.Sprintf("pilot_kind(%d)", int(k))
	}
}

// CmdSetPilot requests a setPilot to one light.
type CmdSetPilot struct {
	Light   LightID
	Kind    PilotKind
	Dimming int // PilotPowerOn, PilotBrightnessTemp
	TempK   int // PilotBrightnessTemp
}

func (CmdSetPilot) commandMarker() {}
func (c CmdSetPilot) String() string {
	switch c.Kind {
	case PilotPowerOn:
		return fmt.Sprintf("CmdSetPilot(light=%s, state=true, dimming=%d)", c.Light, c.Dimming)
	case PilotPowerOff:
		return fmt.Sprintf("CmdSetPilot(light=%s, state=false)", c.Light)
	default:
		return fmt.Sprintf("CmdSetPilot(light=%s, dimming=%d, temp=%d)", c.Light, c.Dimming, c.TempK)
	}
}

// powerCommand builds the command that reflects a light's new on/off state.
// Power-on always carries the current brightness.
func powerCommand(light LightID, on bool, brightness int) CmdSetPilot {
	if on {
		return CmdSetPilot{Light: light, Kind: PilotPowerOn, Dimming: brightness}
	}
	return CmdSetPilot{Light: light, Kind: PilotPowerOff}
}

// CmdPublishStateSnapshot delivers a reducer-produced snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Snapshot StateSnapshot
	Reply    chan<- StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }
