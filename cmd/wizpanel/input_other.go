//go:build !linux

package main

import (
	"errors"
	"log/slog"
)

var errInputUnsupported = errors.New("hardware input requires linux; use input.mode: none")

func openGPIOInput(GPIOConfig, int, *slog.Logger) (PanelInput, error) {
	return nil, errInputUnsupported
}

func openEvdevInput(EvdevConfig, int, *slog.Logger) (PanelInput, error) {
	return nil, errInputUnsupported
}
