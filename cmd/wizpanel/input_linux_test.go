//go:build linux

package main

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	gpiod "github.com/warthog618/go-gpiocdev"
)

func newTestEvdev(cfg EvdevConfig) *evdevInput {
	in := &evdevInput{
		cfg:     cfg,
		counter: newStepCounter(25),
		levels:  make(map[ButtonSource]*atomicLevel),
		keys: map[uint16]ButtonSource{
			uint16(cfg.KeyEncoder):   SourceEncoder,
			uint16(cfg.KeyPrimary):   SourcePrimary,
			uint16(cfg.KeySecondary): SourceSecondary,
		},
		logger: discardLogger(),
	}
	for _, src := range allSources {
		in.levels[src] = &atomicLevel{}
	}
	return in
}

func TestEvdev_RelativeStepsMoveCounter(t *testing.T) {
	in := newTestEvdev(DefaultConfig().Input.Evdev)

	in.handle(inputEvent{Type: EV_REL, Code: REL_X, Value: 2})
	in.handle(inputEvent{Type: EV_REL, Code: REL_X, Value: -1})
	in.handle(inputEvent{Type: EV_REL, Code: REL_DIAL, Value: 5}) // other axis
	in.handle(inputEvent{Type: EV_SYN})

	if got := in.Counter().Count(); got != 26 {
		t.Fatalf("count=%d, want 26", got)
	}
}

func TestEvdev_InvertFlipsDirection(t *testing.T) {
	cfg := DefaultConfig().Input.Evdev
	cfg.Invert = true
	in := newTestEvdev(cfg)

	in.handle(inputEvent{Type: EV_REL, Code: REL_X, Value: 3})
	if got := in.Counter().Count(); got != 22 {
		t.Fatalf("count=%d, want 22", got)
	}
}

func TestEvdev_KeysDriveLevels(t *testing.T) {
	in := newTestEvdev(DefaultConfig().Input.Evdev)
	primary := in.Button(SourcePrimary)

	in.handle(inputEvent{Type: EV_KEY, Code: KEY_1, Value: evValuePress})
	if p, _ := primary.Pressed(); !p {
		t.Fatalf("primary not pressed after key press")
	}
	in.handle(inputEvent{Type: EV_KEY, Code: KEY_1, Value: evValueRepeat})
	if p, _ := primary.Pressed(); !p {
		t.Fatalf("autorepeat released the key")
	}
	in.handle(inputEvent{Type: EV_KEY, Code: KEY_1, Value: evValueRelease})
	if p, _ := primary.Pressed(); p {
		t.Fatalf("primary still pressed after release")
	}

	in.handle(inputEvent{Type: EV_KEY, Code: KEY_ENTER, Value: evValuePress})
	in.releaseAll()
	if p, _ := in.Button(SourceEncoder).Pressed(); p {
		t.Fatalf("releaseAll left the encoder pressed")
	}
}

// rawInputEvent lays out a key event the way the kernel writes it for a
// timeval of tv bytes.
func rawInputEvent(tv int, typ, code uint16, value int32) []byte {
	b := make([]byte, inputEventSize(tv))
	if tv == 16 {
		binary.NativeEndian.PutUint64(b[0:], 1700000000)
		binary.NativeEndian.PutUint64(b[8:], 250000)
	} else {
		binary.NativeEndian.PutUint32(b[0:], 1700000000)
		binary.NativeEndian.PutUint32(b[4:], 250000)
	}
	binary.NativeEndian.PutUint16(b[tv:], typ)
	binary.NativeEndian.PutUint16(b[tv+2:], code)
	binary.NativeEndian.PutUint32(b[tv+4:], uint32(value))
	return b
}

func TestDecodeInputEvent_TimevalWidths(t *testing.T) {
	for _, tv := range []int{16, 8} {
		ev, ok := decodeInputEvent(rawInputEvent(tv, EV_REL, REL_X, -2), tv)
		if !ok {
			t.Fatalf("timeval %d: decode failed", tv)
		}
		want := inputEvent{Sec: 1700000000, Usec: 250000, Type: EV_REL, Code: REL_X, Value: -2}
		if ev != want {
			t.Fatalf("timeval %d: got %+v, want %+v", tv, ev, want)
		}
	}
}

func TestDecodeInputEvent_Short(t *testing.T) {
	b := rawInputEvent(16, EV_KEY, KEY_1, evValuePress)
	if _, ok := decodeInputEvent(b[:len(b)-1], 16); ok {
		t.Fatalf("decoded a truncated event")
	}
	if _, ok := decodeInputEvent(b, 12); ok {
		t.Fatalf("decoded with an unknown timeval width")
	}
}

func TestDecodeInputEvent_NativeSize(t *testing.T) {
	if timevalSize != 8 && timevalSize != 16 {
		t.Fatalf("timevalSize=%d", timevalSize)
	}
	in := newTestEvdev(DefaultConfig().Input.Evdev)
	ev, ok := decodeInputEvent(rawInputEvent(timevalSize, EV_KEY, KEY_1, evValuePress), timevalSize)
	if !ok {
		t.Fatalf("decode failed")
	}
	in.handle(ev)
	if p, _ := in.Button(SourcePrimary).Pressed(); !p {
		t.Fatalf("primary not pressed")
	}
}

func TestGPIOEncoder_EdgesDecode(t *testing.T) {
	e := &gpioEncoder{offA: 17, offB: 27, counter: newQuadratureCounter(2, false, false, 25)}

	// One clockwise cycle: A rises, B rises, A falls, B falls.
	for _, evt := range []gpiod.LineEvent{
		{Offset: 17, Type: gpiod.LineEventRisingEdge},
		{Offset: 27, Type: gpiod.LineEventRisingEdge},
		{Offset: 17, Type: gpiod.LineEventFallingEdge},
		{Offset: 27, Type: gpiod.LineEventFallingEdge},
		{Offset: 5, Type: gpiod.LineEventRisingEdge}, // not an encoder line
	} {
		e.onEdge(evt)
	}

	if got := e.counter.Count(); got != 27 {
		t.Fatalf("count=%d, want 27", got)
	}
}

func TestGPIOEncoder_EdgeDuringStartAppliesAfterSeed(t *testing.T) {
	e := &gpioEncoder{offA: 17, offB: 27}

	delivered := make(chan struct{})
	err := e.start(func() (bool, bool, error) {
		// The watcher fires while the request is still being set up.
		go func() {
			e.onEdge(gpiod.LineEvent{Offset: 17, Type: gpiod.LineEventRisingEdge})
			close(delivered)
		}()
		select {
		case <-delivered:
			t.Errorf("edge applied before the encoder was seeded")
		case <-time.After(20 * time.Millisecond):
		}
		return false, false, nil
	}, 1, 25)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatalf("edge never applied")
	}
	if got := e.counter.Count(); got != 26 {
		t.Fatalf("count=%d, want 26", got)
	}
}

func TestGPIOEncoder_FailedStartIgnoresEdges(t *testing.T) {
	e := &gpioEncoder{offA: 17, offB: 27}
	wantErr := errors.New("busy")

	if err := e.start(func() (bool, bool, error) { return false, false, wantErr }, 2, 25); !errors.Is(err, wantErr) {
		t.Fatalf("start err=%v, want %v", err, wantErr)
	}
	e.onEdge(gpiod.LineEvent{Offset: 17, Type: gpiod.LineEventRisingEdge})
	if e.counter != nil {
		t.Fatalf("counter created by a failed start")
	}
}

func TestGPIOEncoder_FastTurnKeepsOrder(t *testing.T) {
	e := &gpioEncoder{offA: 17, offB: 27}
	if err := e.start(func() (bool, bool, error) { return false, false, nil }, 2, 25); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Three clockwise cycles then one counter-clockwise, as one ordered stream.
	cw := []gpiod.LineEvent{
		{Offset: 17, Type: gpiod.LineEventRisingEdge},
		{Offset: 27, Type: gpiod.LineEventRisingEdge},
		{Offset: 17, Type: gpiod.LineEventFallingEdge},
		{Offset: 27, Type: gpiod.LineEventFallingEdge},
	}
	ccw := []gpiod.LineEvent{
		{Offset: 27, Type: gpiod.LineEventRisingEdge},
		{Offset: 17, Type: gpiod.LineEventRisingEdge},
		{Offset: 27, Type: gpiod.LineEventFallingEdge},
		{Offset: 17, Type: gpiod.LineEventFallingEdge},
	}
	for i := 0; i < 3; i++ {
		for _, evt := range cw {
			e.onEdge(evt)
		}
	}
	for _, evt := range ccw {
		e.onEdge(evt)
	}

	if got := e.counter.Count(); got != 29 {
		t.Fatalf("count=%d, want 29", got)
	}
}
