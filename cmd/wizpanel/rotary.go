package main

import "sync"

// DetentCounter is a running count of encoder detents since initialization.
//
// Implementations are fed from input goroutines (GPIO edge handlers, the
// evdev reader) while the poll loop reads and reseeds them, so they must be
// safe for concurrent use.
type DetentCounter interface {
	Count() int
	SetCount(v int)
}

// quadratureCounter decodes the two quadrature lines of a mechanical encoder.
//
// Each valid transition of the (A, B) pair is one quarter-cycle. Divisor sets
// how many quarter-cycles make up one detent: 1 counts every transition, 2 is
// half-quad (the usual setting for detented panel encoders), 4 is full-cycle.
type quadratureCounter struct {
	mu      sync.Mutex
	prev    uint8 // last (A<<1 | B)
	quarter int   // net quarter-cycles
	divisor int
}

// quadTransitions maps (prev<<2 | next) to the signed quarter-cycle step.
// Invalid (double-step) transitions count as 0.
var quadTransitions = [16]int{
	0, -1, +1, 0,
	+1, 0, 0, -1,
	-1, 0, 0, +1,
	0, +1, -1, 0,
}

// newQuadratureCounter creates a counter seeded at detent, given the current
// levels of both lines.
func newQuadratureCounter(divisor int, a, b bool, detent int) *quadratureCounter {
	if divisor <= 0 {
		divisor = 2
	}
	return &quadratureCounter{
		prev:    quadBits(a, b),
		quarter: detent * divisor,
		divisor: divisor,
	}
}

func quadBits(a, b bool) uint8 {
	var v uint8
	if a {
		v |= 2
	}
	if b {
		v |= 1
	}
	return v
}

// Update records the current levels of both lines.
func (q *quadratureCounter) Update(a, b bool) {
	next := quadBits(a, b)

	q.mu.Lock()
	defer q.mu.Unlock()

	q.quarter += quadTransitions[q.prev<<2|next]
	q.prev = next
}

// Count returns whole detents, rounding toward negative infinity so that
// partial steps never flip the value back and forth around zero.
func (q *quadratureCounter) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return floorDiv(q.quarter, q.divisor)
}

// SetCount reseeds the counter to an exact detent.
func (q *quadratureCounter) SetCount(v int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.quarter = v * q.divisor
}

func floorDiv(a, b int) int {
	d := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		d--
	}
	return d
}

// stepCounter counts already-decoded detents (kernel relative-axis events,
// IPC rotate requests).
type stepCounter struct {
	mu    sync.Mutex
	count int
}

func newStepCounter(detent int) *stepCounter {
	return &stepCounter{count: detent}
}

// Add moves the counter by steps (positive = clockwise).
func (c *stepCounter) Add(steps int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count += steps
}

func (c *stepCounter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func (c *stepCounter) SetCount(v int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = v
}

// rotaryDecoder turns the raw detent counter into brightness detents.
//
// The clamp runs on every poll, not just when a bound is crossed. Otherwise a
// counter that ran past a bound would have to be rotated back through the
// invisible overshoot before the value moved again.
type rotaryDecoder struct {
	counter   DetentCounter
	minDetent int
	maxDetent int
	last      int
}

// newRotaryDecoder seeds the counter with the detent for the initial brightness.
func newRotaryDecoder(counter DetentCounter, minDetent, maxDetent, initial int) *rotaryDecoder {
	counter.SetCount(initial)
	return &rotaryDecoder{
		counter:   counter,
		minDetent: minDetent,
		maxDetent: maxDetent,
		last:      initial,
	}
}

// Poll clamps the counter into range and reports the detent, plus whether it
// differs from the previous poll.
func (d *rotaryDecoder) Poll() (int, bool) {
	cur := d.counter.Count()
	if cur < d.minDetent {
		d.counter.SetCount(d.minDetent)
		cur = d.minDetent
	} else if cur > d.maxDetent {
		d.counter.SetCount(d.maxDetent)
		cur = d.maxDetent
	}

	if cur == d.last {
		return cur, false
	}
	d.last = cur
	return cur, true
}

// Nudge moves the underlying counter by steps. The target saturates one detent
// outside the range and the next Poll clamps it back.
func (d *rotaryDecoder) Nudge(steps int) {
	lo, hi := d.minDetent-1, d.maxDetent+1
	cur := min(max(d.counter.Count(), lo), hi)

	var target int
	switch {
	case steps > hi-cur:
		target = hi
	case steps < lo-cur:
		target = lo
	default:
		target = cur + steps
	}
	d.counter.SetCount(target)
}
