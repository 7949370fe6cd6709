package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("wizpanel v%s\n", version)
	fmt.Println("Wall dimmer panel controller for WiZ lights")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  wizpanel [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Reads a rotary encoder with push switch and two push buttons, and drives")
	fmt.Println("  two WiZ lights over UDP. Turning sets brightness, clicking the encoder")
	fmt.Println("  cycles colour temperature, double-clicking it switches both lights, and")
	fmt.Println("  each button toggles its own light.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML config file (defaults apply when omitted)")
	fmt.Println()
	fmt.Println("  -primary string")
	fmt.Println("        Primary light address, IP or IP:port (overrides lights.primary)")
	fmt.Println()
	fmt.Println("  -secondary string")
	fmt.Println("        Secondary light address, IP or IP:port (overrides lights.secondary)")
	fmt.Println()
	fmt.Println("  -input string")
	fmt.Println("        Input backend: gpio|evdev|none (overrides input.mode)")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Println("        Unix domain socket path for IPC (overrides ipc.socket_path)")
	fmt.Println()
	fmt.Println("  -state-ws-addr string")
	fmt.Println("        State websocket listen address; empty disables it (overrides state_ws.addr)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (overrides logging.level)")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  wizpanel -config /etc/wizpanel.yaml")
	fmt.Println("  wizpanel -input none -primary 192.168.1.50 -secondary 192.168.1.51 -log-level debug")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - gpio input needs access to /dev/gpiochip*, evdev input to /dev/input/event*")
	fmt.Println("  - Request ids restart at 1 on every start; boot_id in logs and state_init")
	fmt.Println("    tells restarts apart")
	fmt.Println()
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func main() {
	var (
		configPath    = flag.String("config", "", "YAML config file")
		primaryAddr   = flag.String("primary", "", "Primary light address (IP or IP:port)")
		secondaryAddr = flag.String("secondary", "", "Secondary light address (IP or IP:port)")
		inputMode     = flag.String("input", "", "Input backend: gpio|evdev|none")
		ipcSocketPath = flag.String("ipc-socket", "", "Unix domain socket path for IPC")
		stateWSAddr   = flag.String("state-ws-addr", "", "State websocket listen address (empty disables)")
		logLevelStr   = flag.String("log-level", "", "Log level: error, warn, info, debug")
		showVersion   = flag.Bool("version", false, "Print version and exit")
		showHelp      = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fatal(err)
		}
		cfg = loaded
	}

	// Only flags given on the command line override the file.
	var overrides FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "primary":
			overrides.PrimaryAddr = primaryAddr
		case "secondary":
			overrides.SecondaryAddr = secondaryAddr
		case "input":
			overrides.InputMode = inputMode
		case "ipc-socket":
			overrides.IPCSocketPath = ipcSocketPath
		case "state-ws-addr":
			overrides.StateWSAddr = stateWSAddr
		case "log-level":
			overrides.LogLevel = logLevelStr
		}
	})
	overrides.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fatal(err)
	}

	bootID := uuid.NewString()
	logger := setupLogger(os.Stdout, logLevel, bootID)

	if err := run(cfg, bootID, logger); err != nil {
		logger.Error("wizpanel stopped", "error", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until shutdown.
func run(cfg Config, bootID string, logger *slog.Logger) error {
	targets, err := cfg.Targets()
	if err != nil {
		return err
	}

	sender, err := newUDPSender(cfg.Transport.LocalPort)
	if err != nil {
		return err
	}
	defer sender.Close()

	client := NewWizClient(sender, ms(cfg.Transport.PacingMS))

	input, err := openInput(&cfg, logger)
	if err != nil {
		return fmt.Errorf("open %s input: %w", cfg.Input.Mode, err)
	}
	defer input.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Central event bus: IPC and the state websocket feed the poll loop.
	events := make(chan Event, 64)

	var broadcasts chan StateBroadcast
	if cfg.StateWS.Enabled {
		broadcasts = make(chan StateBroadcast, 256)
	}

	var wd *watchdog
	if cfg.Loop.WatchdogTimeoutMS > 0 {
		wd = newWatchdog(ms(cfg.Loop.WatchdogTimeoutMS))
	}

	var netMon *netMonitor
	if cfg.Network.Interface != "" {
		netMon = newNetMonitor(cfg.Network.Interface, ms(cfg.Network.CheckIntervalMS), netInterfaceUp, logger)
	}

	loop := newPanelLoop(&cfg, cfg.ToReducerConfig(bootID), panelDeps{
		Input:      input,
		Client:     client,
		Targets:    targets,
		Drain:      sender.Drain,
		Net:        netMon,
		Watchdog:   wd,
		Broadcasts: broadcasts,
		Logger:     logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runDaemon(gctx, events, loop, ms(cfg.Loop.PollMS))
		return nil
	})

	g.Go(func() error {
		return runIPCServer(gctx, cfg.IPC.SocketPath, events, logger)
	})

	if cfg.StateWS.Enabled {
		srv := NewServer(logger, events, ServerConfig{})
		mux := http.NewServeMux()
		srv.Register(mux, cfg.StateWS.Path)

		g.Go(func() error {
			srv.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(gctx, srv.Hub(), broadcasts, logger)
			return nil
		})
		g.Go(func() error {
			return runHTTPServer(gctx, cfg.StateWS.Addr, mux, logger)
		})
	}

	if wd != nil {
		g.Go(func() error {
			wd.Run(gctx, func(since time.Duration) {
				// The loop is wedged and cannot be shut down cleanly; let the
				// supervisor restart the process.
				logger.Error("poll loop stalled; exiting", "since", since.String())
				os.Exit(1)
			})
			return nil
		})
	}

	logger.Info("wizpanel starting",
		"version", version,
		"primary", targets[LightPrimary].String(),
		"secondary", targets[LightSecondary].String(),
		"input", cfg.Input.Mode,
		"local_addr", sender.LocalAddr().String(),
		"ipc", cfg.IPC.SocketPath,
		"state_ws", cfg.StateWS.Addr)

	err = g.Wait()
	logger.Info("shutting down")
	return err
}
