package main

import (
	"fmt"
	"time"
)

// LightID identifies one of the two lights the panel drives.
type LightID int

const (
	LightPrimary LightID = iota
	LightSecondary
)

// allLights lists the lights in the order commands are sent.
var allLights = [...]LightID{LightPrimary, LightSecondary}

func (l LightID) String() string {
	switch l {
	case LightPrimary:
		return "primary"
	case LightSecondary:
		return "secondary"
	default:
		return fmt.Sprintf("light(%d)", int(l))
	}
}

// LightState is the panel's belief about one light. There is no feedback
// channel from the lights, so this is intent, not observation.
type LightState struct {
	On bool
}

// DimmerState is shared by both lights.
//
// Invariants (maintained by Reduce):
//   - Brightness is a multiple of the configured step and within [min, max]
//   - TempIndex is in [0, len(color temps))
type DimmerState struct {
	Brightness int
	TempIndex  int
}

// TransportStats counts what the effects stage reported back.
type TransportStats struct {
	LastRequestID uint32
	Sent          uint64
	Failed        uint64
	LastFailureAt time.Time
}

// PanelState is the top-level state container owned by the poll loop.
//
// Only the daemon goroutine reads or writes it. Other goroutines (IPC, the
// state websocket) talk to it by sending events and receiving snapshots.
type PanelState struct {
	Lights    [len(allLights)]LightState
	Dimmer    DimmerState
	Transport TransportStats
}

// NewPanelState returns the power-on state: both lights off, the given
// brightness, first colour temperature.
func NewPanelState(brightness int) *PanelState {
	return &PanelState{
		Dimmer: DimmerState{Brightness: brightness},
	}
}

// Light returns the state of one light.
func (s *PanelState) Light(id LightID) LightState {
	return s.Lights[id]
}

// SetLight overwrites the on/off state of one light.
func (s *PanelState) SetLight(id LightID, on bool) {
	s.Lights[id].On = on
}

// AnyOn reports whether at least one light is believed to be on.
func (s *PanelState) AnyOn() bool {
	for _, l := range s.Lights {
		if l.On {
			return true
		}
	}
	return false
}

// StateSnapshot is a copy of PanelState safe to hand to other goroutines.
type StateSnapshot struct {
	BootID        string    `json:"boot_id"`
	PrimaryOn     bool      `json:"primary_on"`
	SecondaryOn   bool      `json:"secondary_on"`
	Brightness    int       `json:"brightness"`
	TempIndex     int       `json:"temp_index"`
	TempK         int       `json:"temp_k"`
	LastRequestID uint32    `json:"last_request_id"`
	Sent          uint64    `json:"sent"`
	Failed        uint64    `json:"failed"`
	At            time.Time `json:"at"`
}

// Snapshot copies the state for publication.
func (s *PanelState) Snapshot(bootID string, temps []int, now time.Time) StateSnapshot {
	snap := StateSnapshot{
		BootID:        bootID,
		PrimaryOn:     s.Lights[LightPrimary].On,
		SecondaryOn:   s.Lights[LightSecondary].On,
		Brightness:    s.Dimmer.Brightness,
		TempIndex:     s.Dimmer.TempIndex,
		LastRequestID: s.Transport.LastRequestID,
		Sent:          s.Transport.Sent,
		Failed:        s.Transport.Failed,
		At:            now,
	}
	if s.Dimmer.TempIndex >= 0 && s.Dimmer.TempIndex < len(temps) {
		snap.TempK = temps[s.Dimmer.TempIndex]
	}
	return snap
}
