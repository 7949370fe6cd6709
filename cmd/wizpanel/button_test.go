package main

import (
	"testing"
	"time"
)

var testTiming = ButtonTiming{
	Debounce:          20 * time.Millisecond,
	ClickWindow:       200 * time.Millisecond,
	DoubleClickWindow: 250 * time.Millisecond,
}

var encoderTiming = ButtonTiming{
	Debounce:          20 * time.Millisecond,
	ClickWindow:       250 * time.Millisecond,
	DoubleClick:       true,
	DoubleClickWindow: 250 * time.Millisecond,
}

// sample is one level reading at an offset from t0.
type sample struct {
	at      time.Duration
	pressed bool
}

// feed plays samples into b and returns every gesture emitted.
func feed(b *buttonClassifier, t0 time.Time, samples []sample) []ButtonEvent {
	var out []ButtonEvent
	for _, s := range samples {
		if ev, ok := b.Poll(s.pressed, t0.Add(s.at)); ok {
			out = append(out, ev)
		}
	}
	return out
}

// pressAt returns samples for a clean press from start, held for hold.
func pressAt(start, hold time.Duration) []sample {
	return []sample{
		{start, true},
		{start + 20*time.Millisecond, true},
		{start + hold, false},
		{start + hold + 20*time.Millisecond, false},
	}
}

func TestButton_SingleClick(t *testing.T) {
	b := newButtonClassifier(SourcePrimary, testTiming)
	got := feed(b, time.Now(), pressAt(0, ms(100)))

	if len(got) != 1 {
		t.Fatalf("got %d gestures, want 1: %+v", len(got), got)
	}
	if got[0] != (ButtonEvent{Source: SourcePrimary, Kind: KindClick}) {
		t.Fatalf("got %+v, want primary click", got[0])
	}
	if b.Phase() != phaseIdle {
		t.Fatalf("phase=%s after click, want idle", b.Phase())
	}
}

func TestButton_BounceIgnored(t *testing.T) {
	b := newButtonClassifier(SourcePrimary, testTiming)
	got := feed(b, time.Now(), []sample{
		{ms(0), true},
		{ms(5), false},
		{ms(10), true},
		{ms(15), false},
		{ms(60), false},
	})

	if len(got) != 0 {
		t.Fatalf("bounce produced gestures: %+v", got)
	}
	if b.Phase() != phaseIdle {
		t.Fatalf("phase=%s, want idle", b.Phase())
	}
}

func TestButton_ReleaseBounceDoesNotEndPress(t *testing.T) {
	b := newButtonClassifier(SourcePrimary, testTiming)
	got := feed(b, time.Now(), []sample{
		{ms(0), true},
		{ms(20), true},
		{ms(100), false},
		{ms(105), true}, // contact chatter
		{ms(110), false},
		{ms(130), false},
	})

	if len(got) != 1 || got[0].Kind != KindClick {
		t.Fatalf("got %+v, want exactly one click", got)
	}
}

func TestButton_LongPressIsNotAClick(t *testing.T) {
	b := newButtonClassifier(SourceSecondary, testTiming)
	got := feed(b, time.Now(), pressAt(0, ms(500)))

	if len(got) != 0 {
		t.Fatalf("long press produced gestures: %+v", got)
	}
}

func TestButton_DoubleClick(t *testing.T) {
	b := newButtonClassifier(SourceEncoder, encoderTiming)
	t0 := time.Now()

	samples := append(pressAt(0, ms(100)), sample{ms(150), false})
	samples = append(samples, pressAt(ms(200), ms(60))...)
	samples = append(samples, sample{ms(800), false})

	got := feed(b, t0, samples)
	if len(got) != 1 {
		t.Fatalf("got %d gestures, want 1: %+v", len(got), got)
	}
	if got[0] != (ButtonEvent{Source: SourceEncoder, Kind: KindDoubleClick}) {
		t.Fatalf("got %+v, want encoder double_click", got[0])
	}
}

func TestButton_ClickDeferredUntilWindowCloses(t *testing.T) {
	b := newButtonClassifier(SourceEncoder, encoderTiming)
	t0 := time.Now()

	if got := feed(b, t0, pressAt(0, ms(100))); len(got) != 0 {
		t.Fatalf("click emitted before the double-click window closed: %+v", got)
	}
	if b.Phase() != phaseAwaitingSecondClick {
		t.Fatalf("phase=%s, want awaiting_second_click", b.Phase())
	}

	// Release was accepted at 100ms; the window runs until 350ms.
	if _, ok := b.Poll(false, t0.Add(ms(349))); ok {
		t.Fatalf("click emitted inside the window")
	}
	ev, ok := b.Poll(false, t0.Add(ms(350)))
	if !ok || ev.Kind != KindClick {
		t.Fatalf("got (%+v, %v), want a click at window close", ev, ok)
	}
}

func TestButton_TwoClicksOutsideWindow(t *testing.T) {
	b := newButtonClassifier(SourceEncoder, encoderTiming)

	samples := pressAt(0, ms(100))
	samples = append(samples, sample{ms(360), false})
	samples = append(samples, pressAt(ms(400), ms(100))...)
	samples = append(samples, sample{ms(900), false})

	got := feed(b, time.Now(), samples)
	if len(got) != 2 {
		t.Fatalf("got %d gestures, want 2: %+v", len(got), got)
	}
	for i, ev := range got {
		if ev.Kind != KindClick {
			t.Fatalf("gesture %d = %s, want click", i, ev.Kind)
		}
	}
}

func TestButton_LongSecondPressKeepsFirstClick(t *testing.T) {
	b := newButtonClassifier(SourceEncoder, encoderTiming)

	samples := pressAt(0, ms(100))
	samples = append(samples, pressAt(ms(200), ms(400))...)

	got := feed(b, time.Now(), samples)
	if len(got) != 1 || got[0].Kind != KindClick {
		t.Fatalf("got %+v, want the first click only", got)
	}
	if b.Phase() != phaseIdle {
		t.Fatalf("phase=%s, want idle", b.Phase())
	}
}

func TestButton_BounceDuringSecondPress(t *testing.T) {
	b := newButtonClassifier(SourceEncoder, encoderTiming)

	samples := pressAt(0, ms(100))
	samples = append(samples,
		sample{ms(200), true},
		sample{ms(205), false}, // not held long enough to count
		sample{ms(400), false},
	)

	got := feed(b, time.Now(), samples)
	if len(got) != 1 || got[0].Kind != KindClick {
		t.Fatalf("got %+v, want one click", got)
	}
}

func TestButton_NoDebounce(t *testing.T) {
	b := newButtonClassifier(SourcePrimary, ButtonTiming{ClickWindow: ms(200)})
	got := feed(b, time.Now(), []sample{
		{ms(0), true},
		{ms(50), false},
	})
	if len(got) != 1 || got[0].Kind != KindClick {
		t.Fatalf("got %+v, want one click", got)
	}
}
