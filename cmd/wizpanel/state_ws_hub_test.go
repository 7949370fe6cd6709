package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Hub tests use Clients with a nil conn: nothing here writes to a socket, and
// shutdown skips the close when conn is nil.

func startHub(t *testing.T, sendBuf int) *Hub {
	t.Helper()
	hub := NewHub(discardLogger(), HubConfig{SendBuf: sendBuf, BroadcastBuf: 8})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Errorf("hub did not stop")
		}
	})
	return hub
}

func registerFake(t *testing.T, hub *Hub, name string, buf int) *Client {
	t.Helper()
	c := &Client{
		hub:        hub,
		send:       make(chan []byte, buf),
		remoteAddr: name,
		logger:     discardLogger(),
	}
	hub.register <- c
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c]
		return ok
	}, name+" not registered")
	return c
}

func recvWithin(t *testing.T, ch <-chan []byte, d time.Duration) []byte {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatalf("send channel closed")
		}
		return msg
	case <-time.After(d):
		t.Fatalf("nothing received within %v", d)
		return nil
	}
}

func TestHub_FansOutToEveryClient(t *testing.T) {
	hub := startHub(t, 4)
	a := registerFake(t, hub, "a", 4)
	b := registerFake(t, hub, "b", 4)

	msg := []byte(`{"type":"light_changed","data":{"light":"primary","on":true}}`)
	hub.broadcast <- msg

	for _, c := range []*Client{a, b} {
		if got := recvWithin(t, c.send, 500*time.Millisecond); string(got) != string(msg) {
			t.Fatalf("%s got %s", c.remoteAddr, got)
		}
	}
	if hub.Len() != 2 {
		t.Fatalf("Len=%d, want 2", hub.Len())
	}
}

func TestHub_DropsClientWithFullQueue(t *testing.T) {
	hub := startHub(t, 1)
	stuck := registerFake(t, hub, "stuck", 1)
	live := registerFake(t, hub, "live", 8)

	stuck.send <- []byte(`"backlog"`)

	msg := []byte(`{"type":"dimmer_changed","data":{"brightness":60}}`)
	hub.broadcast <- msg

	if got := recvWithin(t, live.send, 500*time.Millisecond); string(got) != string(msg) {
		t.Fatalf("live client got %s", got)
	}

	// Drain the backlog, then expect the queue to be closed.
	<-stuck.send
	waitUntil(t, 750*time.Millisecond, func() bool {
		select {
		case _, ok := <-stuck.send:
			return !ok
		default:
			return false
		}
	}, "stuck client was not dropped")

	if hub.Len() != 1 {
		t.Fatalf("Len=%d, want 1", hub.Len())
	}
	if stuck.enqueue([]byte("x")) {
		t.Fatalf("enqueue succeeded on a closed client")
	}
}

func TestRunBroadcaster_CoalescesDimmerBursts(t *testing.T) {
	hub := startHub(t, 16)
	c := registerFake(t, hub, "observer", 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := make(chan StateBroadcast, 16)
	go RunBroadcaster(ctx, hub, src, discardLogger())

	for detent := 26; detent <= 30; detent++ {
		src <- BroadcastDimmerChanged{Brightness: detent * 2, TempIndex: 1, TempK: 2700}
	}

	var env struct {
		Type string              `json:"type"`
		Data wsDimmerChangedData `json:"data"`
	}
	if err := json.Unmarshal(recvWithin(t, c.send, time.Second), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != "dimmer_changed" || env.Data.Brightness != 60 || env.Data.TempName != "warm white" {
		t.Fatalf("got %+v, want the latest dimmer value", env)
	}

	select {
	case extra := <-c.send:
		t.Fatalf("burst produced more than one frame: %s", extra)
	case <-time.After(3 * wsDimmerCoalesceWindow):
	}
}

func TestRunBroadcaster_FlushesDimmerBeforeOtherKinds(t *testing.T) {
	hub := startHub(t, 16)
	c := registerFake(t, hub, "observer", 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := make(chan StateBroadcast, 16)
	go RunBroadcaster(ctx, hub, src, discardLogger())

	src <- BroadcastDimmerChanged{Brightness: 40, TempK: 2200}
	src <- BroadcastCommandSent{Light: LightSecondary, RequestID: 9, Payload: `{"id":9}`}

	var types []string
	for i := 0; i < 2; i++ {
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(recvWithin(t, c.send, time.Second), &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		types = append(types, env.Type)
	}
	if strings.Join(types, ",") != "dimmer_changed,command_sent" {
		t.Fatalf("order = %v", types)
	}
}

func TestConvertBroadcast(t *testing.T) {
	at := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	ev, ok := convertBroadcast(BroadcastCommandFailed{Light: LightPrimary, RequestID: 3, Error: "unreachable", At: at})
	if !ok || ev.Type != "command_failed" || !ev.At.Equal(at) {
		t.Fatalf("got (%+v, %v)", ev, ok)
	}
	msg, err := marshalEnvelope(ev)
	if err != nil {
		t.Fatalf("marshalEnvelope: %v", err)
	}
	want := `{"type":"command_failed","ts":"2026-03-01T20:00:00Z","data":{"light":"primary","request_id":3,"error":"unreachable"}}`
	if string(msg) != want {
		t.Fatalf("got  %s\nwant %s", msg, want)
	}

	if _, ok := convertBroadcast(nil); ok {
		t.Fatalf("nil broadcast converted")
	}
}

func TestStateWS_SendsStateInitThenBroadcasts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 4)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				if req, ok := ev.(RequestStateSnapshot); ok {
					req.Reply <- StateSnapshot{BootID: "b2", SecondaryOn: true, Brightness: 70, TempIndex: 2, TempK: 4000}
				}
			}
		}
	}()

	srv := NewServer(discardLogger(), events, ServerConfig{})
	mux := http.NewServeMux()
	srv.Register(mux, "/state")
	go srv.Hub().Run(ctx)

	ts := httptest.NewServer(mux)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/state", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var init struct {
		Type string            `json:"type"`
		Data wsMessageSnapshot `json:"data"`
	}
	if err := conn.ReadJSON(&init); err != nil {
		t.Fatalf("read state_init: %v", err)
	}
	if init.Type != "state_init" || init.Data.BootID != "b2" || !init.Data.Lights.Secondary || init.Data.TempK != 4000 {
		t.Fatalf("unexpected state_init: %+v", init)
	}

	waitUntil(t, time.Second, func() bool { return srv.Hub().Len() == 1 }, "ws client not registered")
	srv.Hub().BroadcastBytes([]byte(`{"type":"light_changed","data":{"light":"primary","on":true}}`))
	var next struct {
		Type string             `json:"type"`
		Data wsLightChangedData `json:"data"`
	}
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if next.Type != "light_changed" || next.Data.Light != "primary" || !next.Data.On {
		t.Fatalf("unexpected broadcast: %+v", next)
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}
