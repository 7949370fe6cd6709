package main

import (
	"fmt"
	"time"
)

// ButtonTiming configures one button classifier.
type ButtonTiming struct {
	// Debounce is how long a level must hold before an edge is believed.
	Debounce time.Duration
	// ClickWindow is the longest press that still counts as a click.
	ClickWindow time.Duration
	// DoubleClick enables double-click recognition.
	DoubleClick bool
	// DoubleClickWindow is the longest gap between the first release and the
	// second press of a double-click.
	DoubleClickWindow time.Duration
}

type buttonPhase int

const (
	phaseIdle buttonPhase = iota
	phaseDebouncing
	phasePressed
	phaseAwaitingSecondClick
)

func (p buttonPhase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseDebouncing:
		return "debouncing"
	case phasePressed:
		return "pressed"
	case phaseAwaitingSecondClick:
		return "awaiting_second_click"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// buttonClassifier turns sampled levels of one button into gestures.
//
//	Idle -> Debouncing -> Pressed -> (released within ClickWindow) -> Idle
//
// With DoubleClick enabled a qualifying release moves to AwaitingSecondClick
// instead. From there a timeout emits the deferred click, and a second
// qualifying press/release emits a double-click. A completed double-click
// never also emits the clicks it is made of.
//
// Poll never blocks; time only advances through the now argument.
type buttonClassifier struct {
	source ButtonSource
	timing ButtonTiming

	phase buttonPhase

	// second is set while the press being tracked is the second half of a
	// potential double-click.
	second bool

	debounceStart time.Time // first sample of the candidate press
	pressedAt     time.Time // accepted press start
	releaseAt     time.Time // first released sample while pressed; zero if none
	releasedAt    time.Time // accepted release of the first click
}

func newButtonClassifier(source ButtonSource, timing ButtonTiming) *buttonClassifier {
	return &buttonClassifier{source: source, timing: timing}
}

// Phase reports the current state machine phase.
func (b *buttonClassifier) Phase() buttonPhase { return b.phase }

// Poll feeds one level sample. It returns a gesture when one completes on
// this sample.
func (b *buttonClassifier) Poll(pressed bool, now time.Time) (ButtonEvent, bool) {
	switch b.phase {
	case phaseIdle:
		if pressed {
			b.startPress(now, false)
		}

	case phaseDebouncing:
		if !pressed {
			// Bounce: the press never held long enough.
			if b.second {
				b.phase = phaseAwaitingSecondClick
				return b.checkSecondClickTimeout(now)
			}
			b.phase = phaseIdle
			return ButtonEvent{}, false
		}
		if now.Sub(b.debounceStart) >= b.timing.Debounce {
			b.phase = phasePressed
			b.pressedAt = b.debounceStart
			b.releaseAt = time.Time{}
		}

	case phasePressed:
		if pressed {
			b.releaseAt = time.Time{}
			return ButtonEvent{}, false
		}
		if b.releaseAt.IsZero() {
			b.releaseAt = now
		}
		if now.Sub(b.releaseAt) < b.timing.Debounce {
			return ButtonEvent{}, false
		}
		return b.release(b.releaseAt)

	case phaseAwaitingSecondClick:
		if ev, ok := b.checkSecondClickTimeout(now); ok {
			return ev, true
		}
		if pressed {
			b.startPress(now, true)
		}
	}

	return ButtonEvent{}, false
}

func (b *buttonClassifier) startPress(now time.Time, second bool) {
	b.phase = phaseDebouncing
	b.second = second
	b.debounceStart = now
	if b.timing.Debounce <= 0 {
		b.phase = phasePressed
		b.pressedAt = now
		b.releaseAt = time.Time{}
	}
}

// release handles an accepted release at time at.
func (b *buttonClassifier) release(at time.Time) (ButtonEvent, bool) {
	held := at.Sub(b.pressedAt)
	wasSecond := b.second
	b.second = false
	b.releaseAt = time.Time{}

	if held > b.timing.ClickWindow {
		// Too long to be a click. A pending first click still counts.
		b.phase = phaseIdle
		if wasSecond {
			return b.event(KindClick), true
		}
		return ButtonEvent{}, false
	}

	if !b.timing.DoubleClick {
		b.phase = phaseIdle
		return b.event(KindClick), true
	}

	if wasSecond {
		b.phase = phaseIdle
		return b.event(KindDoubleClick), true
	}

	b.phase = phaseAwaitingSecondClick
	b.releasedAt = at
	return ButtonEvent{}, false
}

// checkSecondClickTimeout emits the deferred single click once the
// double-click window has passed without a second press.
func (b *buttonClassifier) checkSecondClickTimeout(now time.Time) (ButtonEvent, bool) {
	if now.Sub(b.releasedAt) < b.timing.DoubleClickWindow {
		return ButtonEvent{}, false
	}
	b.phase = phaseIdle
	b.second = false
	return b.event(KindClick), true
}

func (b *buttonClassifier) event(kind ClickKind) ButtonEvent {
	return ButtonEvent{Source: b.source, Kind: kind}
}
