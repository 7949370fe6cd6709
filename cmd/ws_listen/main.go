package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// message is the envelope wizpanel sends on its state websocket.
type message struct {
	Type string          `json:"type"`
	Ts   time.Time       `json:"ts"`
	Data json.RawMessage `json:"data"`
}

type stateInit struct {
	BootID string `json:"boot_id"`
	Lights struct {
		Primary   bool `json:"primary"`
		Secondary bool `json:"secondary"`
	} `json:"lights"`
	Brightness    int    `json:"brightness"`
	TempK         int    `json:"temp_k"`
	LastRequestID uint32 `json:"last_request_id"`
	Sent          uint64 `json:"sent"`
	Failed        uint64 `json:"failed"`
}

type lightChanged struct {
	Light string `json:"light"`
	On    bool   `json:"on"`
}

type dimmerChanged struct {
	Brightness int    `json:"brightness"`
	TempK      int    `json:"temp_k"`
	TempName   string `json:"temp_name"`
}

type command struct {
	Light     string `json:"light"`
	RequestID uint32 `json:"request_id"`
	Payload   string `json:"payload"`
	Error     string `json:"error"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:3001/state", "wizpanel state websocket URL")
		raw   = flag.Bool("raw", false, "Print frames as received instead of a summary")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Mutex to protect concurrent writes to websocket
	var writeMu sync.Mutex

	// The daemon pings every 20s; answer pongs keep our read deadline fresh.
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, frame, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if messageType != websocket.TextMessage {
				fmt.Printf("[BINARY] %d bytes\n", len(frame))
				continue
			}
			if *raw {
				fmt.Printf("%s\n", frame)
				continue
			}
			handleTextMessage(frame)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// handleTextMessage prints a one-line summary per frame.
func handleTextMessage(frame []byte) {
	var m message
	if err := json.Unmarshal(frame, &m); err != nil {
		fmt.Printf("[TEXT] %s\n", string(frame))
		return
	}
	ts := m.Ts.Local().Format("15:04:05.000")

	switch m.Type {
	case "state_init":
		var s stateInit
		if err := json.Unmarshal(m.Data, &s); err != nil {
			break
		}
		fmt.Printf("%s [STATE] boot=%s primary=%s secondary=%s brightness=%d%% temp=%dK last_id=%d sent=%d failed=%d\n",
			ts, s.BootID, onOff(s.Lights.Primary), onOff(s.Lights.Secondary),
			s.Brightness, s.TempK, s.LastRequestID, s.Sent, s.Failed)
		return

	case "light_changed":
		var l lightChanged
		if err := json.Unmarshal(m.Data, &l); err != nil {
			break
		}
		fmt.Printf("%s [LIGHT] %s %s\n", ts, l.Light, onOff(l.On))
		return

	case "dimmer_changed":
		var dc dimmerChanged
		if err := json.Unmarshal(m.Data, &dc); err != nil {
			break
		}
		fmt.Printf("%s [DIMMER] %d%% %dK (%s)\n", ts, dc.Brightness, dc.TempK, dc.TempName)
		return

	case "command_sent":
		var c command
		if err := json.Unmarshal(m.Data, &c); err != nil {
			break
		}
		fmt.Printf("%s [SENT] %s #%d %s\n", ts, c.Light, c.RequestID, c.Payload)
		return

	case "command_failed":
		var c command
		if err := json.Unmarshal(m.Data, &c); err != nil {
			break
		}
		fmt.Printf("%s [FAILED] %s #%d %s\n", ts, c.Light, c.RequestID, c.Error)
		return
	}

	prettyJSON, _ := json.MarshalIndent(json.RawMessage(frame), "", "  ")
	fmt.Printf("[RESPONSE]\n%s\n\n", string(prettyJSON))
}
