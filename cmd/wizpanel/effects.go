package main

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"time"
)

// lightTargets maps each light to the address its commands are sent to.
type lightTargets [len(allLights)]netip.AddrPort

// runEffect executes a single reducer-emitted Command (side effect) against the
// lights and emits an observation Event via onEvent.
//
// Design rules:
// - This function is allowed to perform I/O.
// - It must never call Reduce() directly; it only emits Events to be reduced by the daemon loop.
// - A failed send is reported and dropped. There is no retry and no queue; the
//   next gesture re-sends state.
func runEffect(
	ctx context.Context,
	client *WizClient,
	targets lightTargets,
	cmd Command,
	logger *slog.Logger,
	onEvent func(Event),
) {
	switch c := cmd.(type) {
	case CmdSetPilot:
		if client == nil {
			logger.Error("no light client; dropping command", "command", c.String())
			return
		}
		target := targets[c.Light]

		res, err := client.Send(ctx, target, c)
		now := time.Now()
		if err != nil {
			if ctx.Err() != nil && !errors.Is(err, ErrTransportSendFailed) {
				logger.Debug("send abandoned (shutting down)", "light", c.Light.String(), "error", err)
				return
			}
			logger.Error("send failed",
				"light", c.Light.String(),
				"address", target.String(),
				"request_id", res.RequestID,
				"error", err)
			if onEvent != nil {
				onEvent(PilotFailed{Command: c, RequestID: res.RequestID, Err: err, At: now})
			}
			return
		}

		logger.Info("sent",
			"light", c.Light.String(),
			"address", target.String(),
			"request_id", res.RequestID,
			"payload", string(res.Payload))
		if onEvent != nil {
			onEvent(PilotSent{Command: c, RequestID: res.RequestID, Payload: string(res.Payload), At: now})
		}

	case CmdPublishStateSnapshot:
		// Deliver reducer-produced snapshot to the requester.
		// This keeps the reducer pure by moving the channel send into the effects layer.
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}

		// Never block the poll loop.
		select {
		case c.Reply <- c.Snapshot:
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	default:
		logger.Warn("unknown command type", "command", cmd.String())
	}
}
