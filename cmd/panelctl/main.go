package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// ============================================================================
// panelctl - Command-line IPC Client
// ============================================================================
// Injects gestures and rotation into a running wizpanel daemon, as if they
// came from the panel, and reads back its state.
//
// Usage:
//   panelctl click primary
//   panelctl click encoder
//   panelctl double-click
//   panelctl rotate -3
//   panelctl status
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/wizpanel.sock)
// ============================================================================

const defaultSocketPath = "/tmp/wizpanel.sock"

// envelope mirrors the daemon's line protocol.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type buttonData struct {
	Source string `json:"source"`
	Kind   string `json:"kind"`
}

type rotateData struct {
	Steps int `json:"steps"`
}

// ipcResponse is the daemon's reply; State is only set for status.
type ipcResponse struct {
	Status string         `json:"status"`
	Error  string         `json:"error,omitempty"`
	State  *stateSnapshot `json:"state,omitempty"`
}

type stateSnapshot struct {
	BootID        string    `json:"boot_id"`
	PrimaryOn     bool      `json:"primary_on"`
	SecondaryOn   bool      `json:"secondary_on"`
	Brightness    int       `json:"brightness"`
	TempIndex     int       `json:"temp_index"`
	TempK         int       `json:"temp_k"`
	LastRequestID uint32    `json:"last_request_id"`
	Sent          uint64    `json:"sent"`
	Failed        uint64    `json:"failed"`
	At            time.Time `json:"at"`
}

func main() {
	socketPath := defaultSocketPath

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	req, err := parseCommand(args)
	if err != nil {
		if err == errHelp {
			printUsage()
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		printUsage()
		os.Exit(1)
	}

	resp, err := send(socketPath, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if resp.State != nil {
		printState(*resp.State)
		return
	}
	fmt.Println("ok")
}

var errHelp = errors.New("help requested")

func parseCommand(args []string) (envelope, error) {
	switch args[0] {
	case "click":
		if len(args) < 2 {
			return envelope{}, fmt.Errorf("click requires a button: primary, secondary or encoder")
		}
		switch args[1] {
		case "primary", "secondary", "encoder":
		default:
			return envelope{}, fmt.Errorf("unknown button: %s", args[1])
		}
		return envelope{Type: "button", Data: buttonData{Source: args[1], Kind: "click"}}, nil

	case "double-click", "dbl":
		return envelope{Type: "button", Data: buttonData{Source: "encoder", Kind: "double_click"}}, nil

	case "rotate", "turn":
		if len(args) < 2 {
			return envelope{}, fmt.Errorf("rotate requires a step count")
		}
		steps, err := strconv.Atoi(args[1])
		if err != nil {
			return envelope{}, fmt.Errorf("invalid step count: %v", err)
		}
		return envelope{Type: "rotate", Data: rotateData{Steps: steps}}, nil

	case "status":
		return envelope{Type: "status"}, nil

	case "help", "-h", "--help":
		return envelope{}, errHelp

	default:
		return envelope{}, fmt.Errorf("unknown command: %s", args[0])
	}
}

func send(socketPath string, req envelope) (ipcResponse, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return ipcResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	data, err := json.Marshal(req)
	if err != nil {
		return ipcResponse{}, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return ipcResponse{}, fmt.Errorf("send request: %w", err)
	}

	var resp ipcResponse
	if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&resp); err != nil {
		return ipcResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return resp, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return resp, nil
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func printState(s stateSnapshot) {
	fmt.Printf("boot:        %s\n", s.BootID)
	fmt.Printf("primary:     %s\n", onOff(s.PrimaryOn))
	fmt.Printf("secondary:   %s\n", onOff(s.SecondaryOn))
	fmt.Printf("brightness:  %d%%\n", s.Brightness)
	fmt.Printf("temperature: %dK (index %d)\n", s.TempK, s.TempIndex)
	fmt.Printf("requests:    last id %d, %d sent, %d failed\n", s.LastRequestID, s.Sent, s.Failed)
}

func printUsage() {
	fmt.Println("panelctl - control a running wizpanel daemon")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  panelctl [-socket PATH] COMMAND [ARGS]")
	fmt.Println()
	fmt.Println("COMMANDS:")
	fmt.Println("  click BUTTON      Click primary, secondary or encoder")
	fmt.Println("  double-click      Double-click the encoder (all lights on/off)")
	fmt.Println("  rotate N          Turn the encoder N detents (negative is counter-clockwise)")
	fmt.Println("  status            Print the daemon's state")
	fmt.Println("  help              Show this help")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Printf("  -socket PATH      Unix socket path (default: %s)\n", defaultSocketPath)
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  panelctl click primary")
	fmt.Println("  panelctl rotate 5")
	fmt.Println("  panelctl -socket /run/wizpanel.sock status")
}
