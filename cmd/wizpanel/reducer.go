package main

import "time"

// This file implements the reducer-style controller:
//
//   - Events: inputs to the reducer (gestures, detent changes, transport reports)
//   - Commands: side effects requested by the reducer (setPilot requests)
//   - Broadcasts: state changes published to observers
//   - Reduce(): computes next state + commands, without performing I/O
//
// The daemon loop is responsible for executing Commands and feeding the
// transport's reports back as Events.

// TimedEvent wraps an Event with the time the loop observed it.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// ReducerConfig holds the dimmer policy the reducer needs.
type ReducerConfig struct {
	MinBrightness  int
	MaxBrightness  int
	BrightnessStep int
	ColorTemps     []int
	BootID         string
}

// clampBrightness bounds b to [min, max] and rounds it down to a step multiple.
func (c ReducerConfig) clampBrightness(b int) int {
	if c.BrightnessStep > 0 {
		b -= b % c.BrightnessStep
	}
	if b < c.MinBrightness {
		b = c.MinBrightness
	}
	if b > c.MaxBrightness {
		b = c.MaxBrightness
	}
	return b
}

// ==============================
// Broadcasts
// ==============================

// StateBroadcast is an externally-visible state change emitted by the reducer.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastLightChanged reports a light's new on/off state.
type BroadcastLightChanged struct {
	Light LightID
	On    bool
	At    time.Time
}

func (BroadcastLightChanged) broadcastMarker() {}

// BroadcastDimmerChanged reports the shared brightness / colour temperature.
type BroadcastDimmerChanged struct {
	Brightness int
	TempIndex  int
	TempK      int
	At         time.Time
}

func (BroadcastDimmerChanged) broadcastMarker() {}

// BroadcastCommandSent reports a request the transport accepted.
type BroadcastCommandSent struct {
	Light     LightID
	RequestID uint32
	Payload   string
	At        time.Time
}

func (BroadcastCommandSent) broadcastMarker() {}

// BroadcastCommandFailed reports a request the transport rejected.
type BroadcastCommandFailed struct {
	Light     LightID
	RequestID uint32
	Error     string
	At        time.Time
}

func (BroadcastCommandFailed) broadcastMarker() {}

// ==============================
// Reducer input/output
// ==============================

// ReduceResult is the output of Reduce(): next state plus Commands to execute
// in order, and Broadcasts for observers.
type ReduceResult struct {
	State      *PanelState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// Reduce is the pure reducer:
//
// Rules:
// - Must not perform I/O
// - Must not block
// - Must not mutate anything outside the returned state
//
// Brightness and colour temperature only go to lights that are on. Power
// commands always carry the current brightness, which is how a brightness
// chosen while both lights were off gets applied.
func Reduce(s *PanelState, e Event, cfg ReducerConfig) ReduceResult {
	if s == nil {
		s = NewPanelState(cfg.clampBrightness(defaultInitialBrightness))
	}

	now := time.Time{}
	if te, ok := e.(TimedEvent); ok {
		now = te.At
		e = te.Event
	}

	var cmds []Command
	var bcs []StateBroadcast

	dimmerChanged := func() {
		bcs = append(bcs, BroadcastDimmerChanged{
			Brightness: s.Dimmer.Brightness,
			TempIndex:  s.Dimmer.TempIndex,
			TempK:      tempAt(cfg.ColorTemps, s.Dimmer.TempIndex),
			At:         now,
		})
	}
	lightChanged := func(id LightID) {
		bcs = append(bcs, BroadcastLightChanged{Light: id, On: s.Lights[id].On, At: now})
	}

	switch ev := e.(type) {
	case BrightnessChanged:
		s.Dimmer.Brightness = cfg.clampBrightness(ev.Detent * cfg.BrightnessStep)
		dimmerChanged()

		for _, id := range allLights {
			if s.Lights[id].On {
				cmds = append(cmds, powerCommand(id, true, s.Dimmer.Brightness))
			}
		}

	case ButtonEvent:
		switch {
		case ev.Source == SourceEncoder && ev.Kind == KindClick:
			temp := tempAt(cfg.ColorTemps, s.Dimmer.TempIndex)
			for _, id := range allLights {
				if s.Lights[id].On {
					cmds = append(cmds, CmdSetPilot{
						Light:   id,
						Kind:    PilotBrightnessTemp,
						Dimming: s.Dimmer.Brightness,
						TempK:   temp,
					})
				}
			}
			// The index advances even when nothing was sent.
			if n := len(cfg.ColorTemps); n > 0 {
				s.Dimmer.TempIndex = (s.Dimmer.TempIndex + 1) % n
			}
			dimmerChanged()

		case ev.Source == SourceEncoder && ev.Kind == KindDoubleClick:
			on := !s.AnyOn()
			for _, id := range allLights {
				s.SetLight(id, on)
				lightChanged(id)
				cmds = append(cmds, powerCommand(id, on, s.Dimmer.Brightness))
			}

		case ev.Kind == KindClick:
			id, ok := lightForSource(ev.Source)
			if !ok {
				break
			}
			s.SetLight(id, !s.Lights[id].On)
			lightChanged(id)
			cmds = append(cmds, powerCommand(id, s.Lights[id].On, s.Dimmer.Brightness))

		default:
			// Double-click on a light button is not a recognized gesture.
		}

	case PilotSent:
		s.Transport.LastRequestID = ev.RequestID
		s.Transport.Sent++
		bcs = append(bcs, BroadcastCommandSent{
			Light:     ev.Command.Light,
			RequestID: ev.RequestID,
			Payload:   ev.Payload,
			At:        ev.At,
		})

	case PilotFailed:
		s.Transport.LastRequestID = ev.RequestID
		s.Transport.Failed++
		s.Transport.LastFailureAt = ev.At
		errText := ""
		if ev.Err != nil {
			errText = ev.Err.Error()
		}
		bcs = append(bcs, BroadcastCommandFailed{
			Light:     ev.Command.Light,
			RequestID: ev.RequestID,
			Error:     errText,
			At:        ev.At,
		})

	case RequestStateSnapshot:
		cmds = append(cmds, CmdPublishStateSnapshot{
			Snapshot: s.Snapshot(cfg.BootID, cfg.ColorTemps, now),
			Reply:    ev.Reply,
		})

	default:
		// Unknown event type: no-op.
	}

	return ReduceResult{
		State:      s,
		Commands:   cmds,
		Broadcasts: bcs,
	}
}

// lightForSource maps a light button to the light it toggles.
func lightForSource(src ButtonSource) (LightID, bool) {
	switch src {
	case SourcePrimary:
		return LightPrimary, true
	case SourceSecondary:
		return LightSecondary, true
	default:
		return 0, false
	}
}

func tempAt(temps []int, i int) int {
	if i < 0 || i >= len(temps) {
		return 0
	}
	return temps[i]
}
