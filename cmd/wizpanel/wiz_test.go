package main

import (
	"context"
	"errors"
	"math"
	"net"
	"net/netip"
	"testing"
	"time"
)

type sentPacket struct {
	payload string
	addr    netip.AddrPort
}

// fakeSender records packets; failNext makes the next n sends fail.
type fakeSender struct {
	sent      []sentPacket
	failNext  int
	zeroBytes bool
}

func (f *fakeSender) SendTo(payload []byte, addr netip.AddrPort) (int, error) {
	if f.failNext > 0 {
		f.failNext--
		return 0, errors.New("network is unreachable")
	}
	if f.zeroBytes {
		return 0, nil
	}
	f.sent = append(f.sent, sentPacket{payload: string(payload), addr: addr})
	return len(payload), nil
}

var testTarget = netip.MustParseAddrPort("192.168.1.50:38899")

func TestEncodePilot(t *testing.T) {
	tests := []struct {
		name string
		id   uint32
		cmd  CmdSetPilot
		want string
	}{
		{
			name: "power on",
			id:   1,
			cmd:  CmdSetPilot{Light: LightPrimary, Kind: PilotPowerOn, Dimming: 50},
			want: `{"id":1,"method":"setPilot","params":{"state":true,"dimming":50}}`,
		},
		{
			name: "power off",
			id:   2,
			cmd:  CmdSetPilot{Light: LightPrimary, Kind: PilotPowerOff, Dimming: 50},
			want: `{"id":2,"method":"setPilot","params":{"state":false}}`,
		},
		{
			name: "brightness and temp",
			id:   3,
			cmd:  CmdSetPilot{Light: LightSecondary, Kind: PilotBrightnessTemp, Dimming: 60, TempK: 2700},
			want: `{"id":3,"method":"setPilot","params":{"dimming":60,"temp":2700}}`,
		},
		{
			name: "dimming clamped to device range",
			id:   4,
			cmd:  CmdSetPilot{Light: LightPrimary, Kind: PilotPowerOn, Dimming: 0},
			want: `{"id":4,"method":"setPilot","params":{"state":true,"dimming":10}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodePilot(tt.id, tt.cmd)
			if err != nil {
				t.Fatalf("encodePilot: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("got  %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestEncodePilot_UnknownKind(t *testing.T) {
	if _, err := encodePilot(1, CmdSetPilot{Kind: PilotKind(99)}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestWizClient_IDsIncrement(t *testing.T) {
	fs := &fakeSender{}
	c := NewWizClient(fs, 0)

	if got := c.NextRequestID(); got != 1 {
		t.Fatalf("first id=%d, want 1", got)
	}
	for i := 1; i <= 3; i++ {
		res, err := c.Send(context.Background(), testTarget, CmdSetPilot{Kind: PilotPowerOff})
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		if res.RequestID != uint32(i) {
			t.Fatalf("send %d carried id %d", i, res.RequestID)
		}
	}
	if len(fs.sent) != 3 || fs.sent[0].addr != testTarget {
		t.Fatalf("unexpected packets: %+v", fs.sent)
	}
}

func TestWizClient_IDWrapsToOne(t *testing.T) {
	fs := &fakeSender{}
	c := NewWizClient(fs, 0)
	c.nextID = math.MaxUint32

	for _, want := range []uint32{math.MaxUint32, 1, 2} {
		res, err := c.Send(context.Background(), testTarget, CmdSetPilot{Kind: PilotPowerOff})
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		if res.RequestID != want {
			t.Fatalf("id=%d, want %d", res.RequestID, want)
		}
	}
	want := `{"id":1,"method":"setPilot","params":{"state":false}}`
	if fs.sent[1].payload != want {
		t.Fatalf("payload=%s, want %s", fs.sent[1].payload, want)
	}
}

func TestWizClient_FailedSendAtMaxIDWraps(t *testing.T) {
	fs := &fakeSender{failNext: 1}
	c := NewWizClient(fs, 0)
	c.nextID = math.MaxUint32

	if _, err := c.Send(context.Background(), testTarget, CmdSetPilot{Kind: PilotPowerOff}); !errors.Is(err, ErrTransportSendFailed) {
		t.Fatalf("err=%v, want ErrTransportSendFailed", err)
	}
	if c.NextRequestID() != 1 {
		t.Fatalf("next id=%d, want 1", c.NextRequestID())
	}
}

func TestWizClient_FailureStillAdvancesID(t *testing.T) {
	fs := &fakeSender{failNext: 1}
	c := NewWizClient(fs, 0)

	res, err := c.Send(context.Background(), testTarget, CmdSetPilot{Kind: PilotPowerOff})
	if !errors.Is(err, ErrTransportSendFailed) {
		t.Fatalf("err=%v, want ErrTransportSendFailed", err)
	}
	if res.RequestID != 1 {
		t.Fatalf("failed send carried id %d, want 1", res.RequestID)
	}

	res, err = c.Send(context.Background(), testTarget, CmdSetPilot{Kind: PilotPowerOff})
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	if res.RequestID != 2 {
		t.Fatalf("second send carried id %d, want 2", res.RequestID)
	}
	want := `{"id":2,"method":"setPilot","params":{"state":false}}`
	if fs.sent[0].payload != want {
		t.Fatalf("payload=%s, want %s", fs.sent[0].payload, want)
	}
}

func TestWizClient_ZeroBytesIsFailure(t *testing.T) {
	fs := &fakeSender{zeroBytes: true}
	c := NewWizClient(fs, 0)

	_, err := c.Send(context.Background(), testTarget, CmdSetPilot{Kind: PilotPowerOff})
	if !errors.Is(err, ErrTransportSendFailed) {
		t.Fatalf("err=%v, want ErrTransportSendFailed", err)
	}
	if c.NextRequestID() != 2 {
		t.Fatalf("next id=%d, want 2", c.NextRequestID())
	}
}

func TestWizClient_CanceledContextKeepsID(t *testing.T) {
	fs := &fakeSender{}
	c := NewWizClient(fs, time.Hour)

	// Use up the burst so the next send has to wait.
	if _, err := c.Send(context.Background(), testTarget, CmdSetPilot{Kind: PilotPowerOff}); err != nil {
		t.Fatalf("first send: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Send(ctx, testTarget, CmdSetPilot{Kind: PilotPowerOff})
	if err == nil {
		t.Fatalf("expected error from canceled context")
	}
	if errors.Is(err, ErrTransportSendFailed) {
		t.Fatalf("canceled wait reported as a transport failure: %v", err)
	}
	if c.NextRequestID() != 2 {
		t.Fatalf("next id=%d, want 2", c.NextRequestID())
	}
	if len(fs.sent) != 1 {
		t.Fatalf("sent %d packets, want 1", len(fs.sent))
	}
}

func TestWizClient_Pacing(t *testing.T) {
	fs := &fakeSender{}
	c := NewWizClient(fs, 30*time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.Send(context.Background(), testTarget, CmdSetPilot{Kind: PilotPowerOff}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	// The first send is immediate, the next two wait one gap each.
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("three paced sends took %v, want at least ~60ms", elapsed)
	}
}

func TestUDPSender_SendAndDrain(t *testing.T) {
	lightConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer lightConn.Close()

	s, err := newUDPSender(0)
	if err != nil {
		t.Fatalf("newUDPSender: %v", err)
	}
	defer s.Close()

	light := lightConn.LocalAddr().(*net.UDPAddr).AddrPort()
	c := NewWizClient(s, 0)
	res, err := c.Send(context.Background(), light, CmdSetPilot{Kind: PilotPowerOn, Dimming: 50})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	buf := make([]byte, 1500)
	_ = lightConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, from, err := lightConn.ReadFromUDPAddrPort(buf)
	if err != nil {
		t.Fatalf("light read: %v", err)
	}
	if string(buf[:n]) != string(res.Payload) {
		t.Fatalf("light got %s, want %s", buf[:n], res.Payload)
	}

	// The light answers; Drain discards it.
	reply := []byte(`{"method":"setPilot","env":"pro","result":{"success":true}}`)
	replyTo := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), from.Port())
	if _, err := lightConn.WriteToUDPAddrPort(reply, replyTo); err != nil {
		t.Fatalf("light reply: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	drained := 0
	for drained == 0 && time.Now().Before(deadline) {
		drained += s.Drain()
		if drained == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	if drained != 1 {
		t.Fatalf("drained %d datagrams, want 1", drained)
	}
	if n := s.Drain(); n != 0 {
		t.Fatalf("second drain discarded %d, want 0", n)
	}
}
