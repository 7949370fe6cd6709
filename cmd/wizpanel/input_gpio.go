//go:build linux

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	gpiod "github.com/warthog618/go-gpiocdev"
)

// gpioInput reads the panel straight off the GPIO character device.
//
// The encoder A/B lines are edge-driven: every edge updates the quadrature
// counter from the gpiocdev watcher. Buttons are sampled by level on each
// poll, and the classifier does the debouncing.
type gpioInput struct {
	chip    *gpiod.Chip
	lines   []io.Closer
	encoder *gpioEncoder
	buttons map[ButtonSource]*gpioButton
	logger  *slog.Logger
}

// gpioEncoder tracks the last known level of both encoder lines. A and B are
// requested together so one watcher delivers their edges in kernel order.
type gpioEncoder struct {
	mu      sync.Mutex
	offA    int
	offB    int
	a, b    bool
	counter *quadratureCounter
}

func (e *gpioEncoder) onEdge(evt gpiod.LineEvent) {
	high := evt.Type == gpiod.LineEventRisingEdge

	e.mu.Lock()
	defer e.mu.Unlock()

	switch evt.Offset {
	case e.offA:
		e.a = high
	case e.offB:
		e.b = high
	default:
		return
	}
	if e.counter == nil {
		return
	}
	e.counter.Update(e.a, e.b)
}

// start seeds the encoder from the resting levels returned by request. Edges
// delivered while request runs wait on the lock and apply after the seed.
func (e *gpioEncoder) start(request func() (a, b bool, err error), divisor, detent int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, b, err := request()
	if err != nil {
		return err
	}
	e.a, e.b = a, b
	e.counter = newQuadratureCounter(divisor, a, b, detent)
	return nil
}

type gpioButton struct {
	line *gpiod.Line
}

// Pressed reports the logical level; active-low wiring is inverted by the
// line request.
func (b *gpioButton) Pressed() (bool, error) {
	v, err := b.line.Value()
	if err != nil {
		return false, err
	}
	return v == 1, nil
}

func openGPIOInput(cfg GPIOConfig, initial int, logger *slog.Logger) (PanelInput, error) {
	chip, err := gpiod.NewChip(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("open chip %s: %w", cfg.Chip, err)
	}

	in := &gpioInput{
		chip:    chip,
		buttons: make(map[ButtonSource]*gpioButton, len(allSources)),
		logger:  logger,
	}

	if err := in.setupEncoder(cfg, initial); err != nil {
		in.Close()
		return nil, err
	}

	wiring := map[ButtonSource]GPIOButtonConfig{
		SourceEncoder:   cfg.EncoderSwitch,
		SourcePrimary:   cfg.Primary,
		SourceSecondary: cfg.Secondary,
	}
	for _, src := range allSources {
		if err := in.setupButton(src, wiring[src]); err != nil {
			in.Close()
			return nil, err
		}
	}

	logger.Info("gpio input ready",
		"chip", cfg.Chip,
		"encoder_a", cfg.EncoderA,
		"encoder_b", cfg.EncoderB,
		"quad_divisor", cfg.QuadDivisor,
		"encoder_switch", cfg.EncoderSwitch.Line,
		"primary", cfg.Primary.Line,
		"secondary", cfg.Secondary.Line)

	return in, nil
}

func (in *gpioInput) setupEncoder(cfg GPIOConfig, initial int) error {
	opts := []gpiod.LineReqOption{gpiod.AsInput}
	if cfg.EncoderPullUp {
		opts = append(opts, gpiod.WithPullUp)
	}

	enc := &gpioEncoder{offA: cfg.EncoderA, offB: cfg.EncoderB}
	offsets := []int{cfg.EncoderA, cfg.EncoderB}

	err := enc.start(func() (bool, bool, error) {
		lines, err := in.chip.RequestLines(offsets,
			append(opts, gpiod.WithBothEdges, gpiod.WithEventHandler(enc.onEdge))...)
		if err != nil {
			return false, false, fmt.Errorf("request encoder pins %v: %w", offsets, err)
		}
		in.lines = append(in.lines, lines)

		levels := make([]int, len(offsets))
		if err := lines.Values(levels); err != nil {
			return false, false, fmt.Errorf("read encoder pins %v: %w", offsets, err)
		}
		return levels[0] == 1, levels[1] == 1, nil
	}, cfg.QuadDivisor, initial)
	if err != nil {
		return err
	}

	in.encoder = enc
	return nil
}

func (in *gpioInput) setupButton(src ButtonSource, cfg GPIOButtonConfig) error {
	opts := []gpiod.LineReqOption{gpiod.AsInput}
	if cfg.ActiveLow {
		opts = append(opts, gpiod.AsActiveLow)
	}
	if cfg.PullUp {
		opts = append(opts, gpiod.WithPullUp)
	}

	line, err := in.chip.RequestLine(cfg.Line, opts...)
	if err != nil {
		return fmt.Errorf("request %s button pin %d: %w", src, cfg.Line, err)
	}
	in.lines = append(in.lines, line)
	in.buttons[src] = &gpioButton{line: line}
	return nil
}

func (in *gpioInput) Counter() DetentCounter { return in.encoder.counter }

func (in *gpioInput) Button(src ButtonSource) LevelReader {
	if b, ok := in.buttons[src]; ok {
		return b
	}
	return &atomicLevel{}
}

func (in *gpioInput) Close() error {
	var errs []error

	for _, line := range in.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	in.lines = nil

	if in.chip != nil {
		if err := in.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		in.chip = nil
	}

	return errors.Join(errs...)
}
