package main

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// LevelReader reports the debounced-or-not current level of one button.
// Classification happens in the poll loop; readers only sample.
type LevelReader interface {
	Pressed() (bool, error)
}

// PanelInput is one hardware backend: a detent counter for the encoder and a
// level reader per button.
type PanelInput interface {
	Counter() DetentCounter
	Button(src ButtonSource) LevelReader
	Close() error
}

// atomicLevel is a LevelReader fed by an edge-driven goroutine.
type atomicLevel struct {
	v atomic.Bool
}

func (l *atomicLevel) Pressed() (bool, error) { return l.v.Load(), nil }
func (l *atomicLevel) Set(pressed bool)       { l.v.Store(pressed) }

// nullInput has no hardware: buttons never read pressed and only IPC moves
// the counter.
type nullInput struct {
	counter *stepCounter
	idle    atomicLevel
}

func newNullInput(detent int) *nullInput {
	return &nullInput{counter: newStepCounter(detent)}
}

func (n *nullInput) Counter() DetentCounter          { return n.counter }
func (n *nullInput) Button(ButtonSource) LevelReader { return &n.idle }
func (n *nullInput) Close() error                    { return nil }

// openInput opens the backend selected by cfg.Input.Mode.
func openInput(cfg *Config, logger *slog.Logger) (PanelInput, error) {
	_, _, initial := cfg.DetentRange()

	switch cfg.Input.Mode {
	case InputModeGPIO:
		return openGPIOInput(cfg.Input.GPIO, initial, logger)
	case InputModeEvdev:
		return openEvdevInput(cfg.Input.Evdev, initial, logger)
	case InputModeNone:
		logger.Info("no input hardware; accepting IPC input only")
		return newNullInput(initial), nil
	default:
		return nil, fmt.Errorf("unknown input mode %q", cfg.Input.Mode)
	}
}
