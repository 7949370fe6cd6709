package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// ==============================
// Events
// ==============================

// Event is the input to the reducer.
// It can be a recognized gesture, a detent change, or a report from the
// effects stage about a command it executed.
type Event interface {
	eventMarker()
}

// ButtonSource names the physical button a gesture came from.
type ButtonSource string

const (
	SourceEncoder   ButtonSource = "encoder"
	SourcePrimary   ButtonSource = "primary"
	SourceSecondary ButtonSource = "secondary"
)

// allSources lists the buttons in poll order.
var allSources = [...]ButtonSource{SourceEncoder, SourcePrimary, SourceSecondary}

func parseButtonSource(s string) (ButtonSource, error) {
	switch ButtonSource(s) {
	case SourceEncoder, SourcePrimary, SourceSecondary:
		return ButtonSource(s), nil
	default:
		return "", fmt.Errorf("unknown button %q (must be encoder, primary or secondary)", s)
	}
}

// ClickKind is the gesture a classifier recognized.
type ClickKind string

const (
	KindClick       ClickKind = "click"
	KindDoubleClick ClickKind = "double_click"
)

// ButtonEvent is one recognized gesture. It is consumed once by the reducer.
type ButtonEvent struct {
	Source ButtonSource `json:"source"`
	Kind   ClickKind    `json:"kind"`
}

func (ButtonEvent) eventMarker() {}

// BrightnessChanged is emitted when the clamped detent differs from the
// previously observed one.
type BrightnessChanged struct {
	Detent int `json:"detent"`
}

func (BrightnessChanged) eventMarker() {}

// RotaryTurn nudges the detent counter by Steps. It is injected over IPC and
// handled by the poll loop before decoding, never by the reducer.
type RotaryTurn struct {
	Steps int `json:"steps"`
}

func (RotaryTurn) eventMarker() {}

// RequestStateSnapshot asks the loop to publish a snapshot on Reply.
type RequestStateSnapshot struct {
	Reply chan<- StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// PilotSent is emitted after the transport accepted a setPilot request.
type PilotSent struct {
	Command   CmdSetPilot
	RequestID uint32
	Payload   string
	At        time.Time
}

func (PilotSent) eventMarker() {}

// PilotFailed is emitted when the transport rejected a setPilot request.
type PilotFailed struct {
	Command   CmdSetPilot
	RequestID uint32
	Err       error
	At        time.Time
}

func (PilotFailed) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================
// Only events that make sense to inject from outside the process have a wire
// form: gestures and rotation.
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "button":
		var e ButtonEvent
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal ButtonEvent: %w", err)
		}
		if _, err := parseButtonSource(string(e.Source)); err != nil {
			return nil, err
		}
		switch e.Kind {
		case KindClick:
		case KindDoubleClick:
			if e.Source != SourceEncoder {
				return nil, fmt.Errorf("double_click is only recognized on the encoder button")
			}
		default:
			return nil, fmt.Errorf("unknown button kind %q", e.Kind)
		}
		return e, nil

	case "rotate":
		var e RotaryTurn
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal RotaryTurn: %w", err)
		}
		return e, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case ButtonEvent:
		env.Type = "button"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal ButtonEvent: %w", err)
		}
		env.Data = data

	case RotaryTurn:
		env.Type = "rotate"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal RotaryTurn: %w", err)
		}
		env.Data = data

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}
