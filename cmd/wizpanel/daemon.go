package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Poll Loop - Reducer-driven "Panel Brain"
// ============================================================================
//
// Design rules enforced here:
//   - The reducer performs no I/O and computes: next state + commands.
//   - The loop is the only place that executes side effects (UDP sends).
//   - Transport reports are turned into Events and fed back into the reducer.
//   - Inputs are sampled, never waited on: one tick polls housekeeping,
//     the rotation decoder, then each button classifier, in that order.
//   - Explicit event and command queues (no nested/re-entrant execution).
//
// ============================================================================

// polledButton pairs a level reader with its classifier.
type polledButton struct {
	source     ButtonSource
	reader     LevelReader
	classifier *buttonClassifier
	failing    bool
}

// panelLoop owns all controller state. Only the goroutine running runDaemon
// touches it.
type panelLoop struct {
	cfg     ReducerConfig
	state   *PanelState
	decoder *rotaryDecoder
	buttons []*polledButton

	client  *WizClient
	targets lightTargets
	drain   func() int

	net      *netMonitor
	watchdog *watchdog

	broadcasts chan<- StateBroadcast
	logger     *slog.Logger

	eventQueue []Event
	cmdQueue   []Command
}

// panelDeps are the collaborators a panelLoop is built from.
type panelDeps struct {
	Input      PanelInput
	Client     *WizClient
	Targets    lightTargets
	Drain      func() int
	Net        *netMonitor
	Watchdog   *watchdog
	Broadcasts chan<- StateBroadcast
	Logger     *slog.Logger
}

func newPanelLoop(cfg *Config, rcfg ReducerConfig, deps panelDeps) *panelLoop {
	minDetent, maxDetent, initial := cfg.DetentRange()

	p := &panelLoop{
		cfg:        rcfg,
		state:      NewPanelState(rcfg.clampBrightness(initial * rcfg.BrightnessStep)),
		decoder:    newRotaryDecoder(deps.Input.Counter(), minDetent, maxDetent, initial),
		client:     deps.Client,
		targets:    deps.Targets,
		drain:      deps.Drain,
		net:        deps.Net,
		watchdog:   deps.Watchdog,
		broadcasts: deps.Broadcasts,
		logger:     deps.Logger,
	}
	for _, src := range allSources {
		p.buttons = append(p.buttons, &polledButton{
			source:     src,
			reader:     deps.Input.Button(src),
			classifier: newButtonClassifier(src, cfg.ButtonTiming(src)),
		})
	}
	return p
}

// runDaemon is the main loop:
//   - Ticks at pollInterval and samples every input
//   - Accepts injected Events (IPC, state websocket)
//   - Reduces events into (state, commands)
//   - Executes commands and feeds reports back into the reducer
//
// Shutdown semantics:
//   - Exits when ctx is canceled
//   - Exits cleanly when the events channel is closed
func runDaemon(ctx context.Context, events <-chan Event, p *panelLoop, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	p.logger.Info("panel ready",
		"brightness", p.state.Dimmer.Brightness,
		"temp_k", tempAt(p.cfg.ColorTemps, p.state.Dimmer.TempIndex),
		"next_request_id", p.nextRequestID())

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				p.logger.Info("daemon stopping (events channel closed)")
				return
			}
			p.inject(ctx, ev, time.Now())

		case now := <-ticker.C:
			p.tick(ctx, now)
		}
	}
}

// tick runs one pass of the poll loop.
func (p *panelLoop) tick(ctx context.Context, now time.Time) {
	p.net.Check(now)

	if p.drain != nil {
		if n := p.drain(); n > 0 {
			p.logger.Debug("discarded light replies", "count", n)
		}
	}

	p.pollDecoder(ctx, now)

	for _, b := range p.buttons {
		pressed, err := b.reader.Pressed()
		if err != nil {
			if !b.failing {
				p.logger.Error("button read failed; treating as released", "button", string(b.source), "error", err)
				b.failing = true
			}
			pressed = false
		} else if b.failing {
			p.logger.Info("button read recovered", "button", string(b.source))
			b.failing = false
		}

		if ev, ok := b.classifier.Poll(pressed, now); ok {
			p.dispatch(ctx, ev, now)
		}
	}

	if p.watchdog != nil {
		p.watchdog.Kick()
	}
}

func (p *panelLoop) pollDecoder(ctx context.Context, now time.Time) {
	if detent, changed := p.decoder.Poll(); changed {
		p.dispatch(ctx, BrightnessChanged{Detent: detent}, now)
	}
}

// inject handles an event that did not come from polling.
func (p *panelLoop) inject(ctx context.Context, ev Event, now time.Time) {
	switch e := ev.(type) {
	case RotaryTurn:
		// Rotation goes through the decoder so the clamp applies.
		p.decoder.Nudge(e.Steps)
		p.pollDecoder(ctx, now)
	default:
		p.dispatch(ctx, ev, now)
	}
}

// dispatch reduces ev and everything it leads to.
func (p *panelLoop) dispatch(ctx context.Context, ev Event, now time.Time) {
	p.logGesture(ev)
	p.eventQueue = append(p.eventQueue, TimedEvent{Event: ev, At: now})
	p.flushEvents(ctx)
}

// flushEvents reduces all queued events, executing resulting commands in
// order. Reports from the effects stage are reduced before the next command
// runs.
func (p *panelLoop) flushEvents(ctx context.Context) {
	for len(p.eventQueue) > 0 || len(p.cmdQueue) > 0 {
		for len(p.eventQueue) > 0 {
			ev := p.eventQueue[0]
			p.eventQueue = p.eventQueue[1:]

			rr := Reduce(p.state, ev, p.cfg)
			if rr.State != nil {
				p.state = rr.State
			}
			p.logOutcome(ev, rr)
			p.cmdQueue = append(p.cmdQueue, rr.Commands...)
			p.publish(rr.Broadcasts)
		}

		if len(p.cmdQueue) > 0 {
			cmd := p.cmdQueue[0]
			p.cmdQueue = p.cmdQueue[1:]

			runEffect(ctx, p.client, p.targets, cmd, p.logger, func(obs Event) {
				p.eventQueue = append(p.eventQueue, obs)
			})
		}
	}
}

// publish hands broadcasts to observers without blocking the loop.
func (p *panelLoop) publish(bcs []StateBroadcast) {
	if p.broadcasts == nil {
		return
	}
	for _, b := range bcs {
		select {
		case p.broadcasts <- b:
		default:
			p.logger.Debug("broadcast channel full; dropping", "broadcast", b)
		}
	}
}

func (p *panelLoop) logGesture(ev Event) {
	switch e := ev.(type) {
	case ButtonEvent:
		p.logger.Info("gesture", "button", string(e.Source), "kind", string(e.Kind))
	case BrightnessChanged:
		p.logger.Debug("detent changed", "detent", e.Detent)
	}
}

func (p *panelLoop) logOutcome(ev Event, rr ReduceResult) {
	te, ok := ev.(TimedEvent)
	if !ok {
		return
	}
	switch e := te.Event.(type) {
	case BrightnessChanged:
		if len(rr.Commands) == 0 {
			p.logger.Info("both lights off; brightness applies on next power-on",
				"brightness", p.state.Dimmer.Brightness)
		} else {
			p.logger.Info("brightness", "brightness", p.state.Dimmer.Brightness)
		}
	case ButtonEvent:
		if e.Source == SourceEncoder && e.Kind == KindClick {
			next := tempAt(p.cfg.ColorTemps, p.state.Dimmer.TempIndex)
			if len(rr.Commands) == 0 {
				p.logger.Info("both lights off; colour temperature not sent",
					"next_temp_k", next, "next_temp", tempName(next))
				return
			}
			if c, ok := rr.Commands[0].(CmdSetPilot); ok {
				p.logger.Info("colour temperature",
					"temp_k", c.TempK, "temp", tempName(c.TempK),
					"next_temp_k", next, "next_temp", tempName(next))
			}
		}
	}
}

func (p *panelLoop) nextRequestID() uint32 {
	if p.client == nil {
		return 0
	}
	return p.client.NextRequestID()
}
