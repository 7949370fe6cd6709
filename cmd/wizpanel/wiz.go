package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"syscall"
	"time"

	"golang.org/x/time/rate"
)

// ErrTransportSendFailed is returned when the transport accepted zero bytes
// of a request (or failed outright). It is reported and dropped; nothing is
// retried or queued.
var ErrTransportSendFailed = errors.New("transport send failed")

// wizRequest is the setPilot request object. Field order is the wire order.
type wizRequest struct {
	ID     uint32         `json:"id"`
	Method string         `json:"method"`
	Params wizPilotParams `json:"params"`
}

// wizPilotParams uses pointers so that absent fields are omitted while an
// explicit state=false is still written.
type wizPilotParams struct {
	State   *bool `json:"state,omitempty"`
	Dimming *int  `json:"dimming,omitempty"`
	Temp    *int  `json:"temp,omitempty"`
}

// encodePilot serializes cmd as a setPilot request with the given id.
func encodePilot(id uint32, cmd CmdSetPilot) ([]byte, error) {
	req := wizRequest{ID: id, Method: wizMethodSetPilot}

	switch cmd.Kind {
	case PilotPowerOn:
		on := true
		dimming := clampDimming(cmd.Dimming)
		req.Params.State = &on
		req.Params.Dimming = &dimming

	case PilotPowerOff:
		off := false
		req.Params.State = &off

	case PilotBrightnessTemp:
		dimming := clampDimming(cmd.Dimming)
		temp := cmd.TempK
		req.Params.Dimming = &dimming
		req.Params.Temp = &temp

	default:
		return nil, fmt.Errorf("unknown pilot kind %d", int(cmd.Kind))
	}

	return json.Marshal(req)
}

func clampDimming(d int) int {
	if d < wizMinDimming {
		return wizMinDimming
	}
	if d > wizMaxDimming {
		return wizMaxDimming
	}
	return d
}

// PacketSender is the datagram send capability the client calls into.
// It returns the number of bytes accepted.
type PacketSender interface {
	SendTo(payload []byte, addr netip.AddrPort) (int, error)
}

// SendResult describes one send attempt.
type SendResult struct {
	RequestID uint32
	Payload   []byte
}

// WizClient encodes setPilot requests and hands them to the transport.
//
// It owns the process-wide request id counter. The counter starts at 1 and
// advances after every attempt, successful or not, so ids never repeat within
// a process lifetime. After 2^32-1 it wraps back to 1; 0 is never sent. Only
// the poll loop calls Send.
type WizClient struct {
	sender  PacketSender
	limiter *rate.Limiter
	nextID  uint32
}

// NewWizClient creates a client. pacing is the minimum gap between two
// consecutive sends; zero disables pacing.
func NewWizClient(sender PacketSender, pacing time.Duration) *WizClient {
	limit := rate.Inf
	if pacing > 0 {
		limit = rate.Every(pacing)
	}
	return &WizClient{
		sender:  sender,
		limiter: rate.NewLimiter(limit, 1),
		nextID:  1,
	}
}

// NextRequestID returns the id the next attempt will carry.
func (c *WizClient) NextRequestID() uint32 { return c.nextID }

// Send encodes cmd and sends it to target.
func (c *WizClient) Send(ctx context.Context, target netip.AddrPort, cmd CmdSetPilot) (SendResult, error) {
	id := c.nextID
	payload, err := encodePilot(id, cmd)
	if err != nil {
		return SendResult{RequestID: id}, fmt.Errorf("encode %s: %w", cmd, err)
	}
	res := SendResult{RequestID: id, Payload: payload}

	if err := c.limiter.Wait(ctx); err != nil {
		// Shutting down; the attempt never reached the transport.
		return res, fmt.Errorf("pacing wait: %w", err)
	}

	n, sendErr := c.sender.SendTo(payload, target)
	c.nextID++
	if c.nextID == 0 {
		c.nextID = 1
	}

	if sendErr != nil {
		return res, fmt.Errorf("%w: %s: %v", ErrTransportSendFailed, target, sendErr)
	}
	if n == 0 {
		return res, fmt.Errorf("%w: %s: zero bytes accepted", ErrTransportSendFailed, target)
	}
	return res, nil
}

// udpSender is the production PacketSender: one UDP socket bound to a fixed
// local port, used for every light.
type udpSender struct {
	conn *net.UDPConn
	raw  syscall.RawConn
	buf  []byte
}

// newUDPSender binds the local port. Port 0 picks an ephemeral port.
func newUDPSender(localPort int) (*udpSender, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: localPort})
	if err != nil {
		return nil, fmt.Errorf("listen udp :%d: %w", localPort, err)
	}
	raw, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("udp raw conn: %w", err)
	}
	return &udpSender{conn: conn, raw: raw, buf: make([]byte, 1500)}, nil
}

func (u *udpSender) SendTo(payload []byte, addr netip.AddrPort) (int, error) {
	return u.conn.WriteToUDPAddrPort(payload, addr)
}

// Drain reads and discards every datagram already queued on the socket
// without waiting for more. Lights answer each setPilot; the panel never
// looks at the answers. It returns the number of datagrams discarded.
func (u *udpSender) Drain() int {
	n := 0
	for u.discardOne() {
		n++
	}
	return n
}

// LocalAddr returns the bound local address.
func (u *udpSender) LocalAddr() net.Addr { return u.conn.LocalAddr() }

func (u *udpSender) Close() error { return u.conn.Close() }
