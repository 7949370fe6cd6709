package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the wizpanel daemon.
//
// Keep defaults and validation centralized so the rest of the code can assume
// a well-formed config.
type Config struct {
	// The two lights, as IP or IP:port
	Lights LightsConfig `yaml:"lights"`

	// Shared dimmer policy
	Brightness BrightnessConfig `yaml:"brightness"`

	// Colour temperature cycle in Kelvin
	ColorTemps []int `yaml:"color_temps"`

	// Click / double-click timing
	Buttons ButtonsConfig `yaml:"buttons"`

	// Where levels and detents come from
	Input InputConfig `yaml:"input"`

	// UDP transport
	Transport TransportConfig `yaml:"transport"`

	// Poll loop cadence and watchdog
	Loop LoopConfig `yaml:"loop"`

	// Network interface monitoring
	Network NetworkConfig `yaml:"network"`

	// IPC configuration (used by panelctl)
	IPC IPCConfig `yaml:"ipc"`

	// State websocket
	StateWS StateWSConfig `yaml:"state_ws"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type LightsConfig struct {
	Primary   string `yaml:"primary"`
	Secondary string `yaml:"secondary"`
}

type BrightnessConfig struct {
	Min     int `yaml:"min"`
	Max     int `yaml:"max"`
	Step    int `yaml:"step"`
	Initial int `yaml:"initial"`
}

type ButtonsConfig struct {
	DebounceMS           int `yaml:"debounce_ms"`
	ClickWindowMS        int `yaml:"click_window_ms"`         // primary/secondary
	EncoderClickWindowMS int `yaml:"encoder_click_window_ms"` // encoder switch
	DoubleClickWindowMS  int `yaml:"double_click_window_ms"`
}

// Input modes
const (
	InputModeGPIO  = "gpio"
	InputModeEvdev = "evdev"
	InputModeNone  = "none"
)

type InputConfig struct {
	Mode  string      `yaml:"mode"` // gpio|evdev|none
	GPIO  GPIOConfig  `yaml:"gpio"`
	Evdev EvdevConfig `yaml:"evdev"`
}

// GPIOButtonConfig describes the wiring of one button line.
type GPIOButtonConfig struct {
	Line      int  `yaml:"line"`
	ActiveLow bool `yaml:"active_low"`
	PullUp    bool `yaml:"pull_up"`
}

type GPIOConfig struct {
	Chip string `yaml:"chip"`

	EncoderA      int  `yaml:"encoder_a"`
	EncoderB      int  `yaml:"encoder_b"`
	EncoderPullUp bool `yaml:"encoder_pull_up"`

	// Quarter-cycles per detent: 1, 2 (half-quad) or 4.
	QuadDivisor int `yaml:"quad_divisor"`

	EncoderSwitch GPIOButtonConfig `yaml:"encoder_switch"`
	Primary       GPIOButtonConfig `yaml:"primary"`
	Secondary     GPIOButtonConfig `yaml:"secondary"`
}

type EvdevConfig struct {
	Devices []string `yaml:"devices"`

	// Relative axis code emitted by the rotary-encoder driver.
	RelCode int `yaml:"rel_code"`
	// Invert flips the sign of relative steps.
	Invert bool `yaml:"invert,omitempty"`

	KeyEncoder   int `yaml:"key_encoder"`
	KeyPrimary   int `yaml:"key_primary"`
	KeySecondary int `yaml:"key_secondary"`
}

type TransportConfig struct {
	PacingMS  int `yaml:"pacing_ms"` // 0 disables pacing
	LocalPort int `yaml:"local_port"`
}

type LoopConfig struct {
	PollMS            int `yaml:"poll_ms"`
	WatchdogTimeoutMS int `yaml:"watchdog_timeout_ms"` // 0 disables the watchdog
}

type NetworkConfig struct {
	Interface       string `yaml:"interface"` // empty disables the check
	CheckIntervalMS int    `yaml:"check_interval_ms"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type StateWSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go defaults.
func DefaultConfig() Config {
	return Config{
		Lights: LightsConfig{
			Primary:   "192.168.1.50",
			Secondary: "192.168.1.51",
		},
		Brightness: BrightnessConfig{
			Min:     defaultMinBrightness,
			Max:     defaultMaxBrightness,
			Step:    defaultBrightnessStep,
			Initial: defaultInitialBrightness,
		},
		ColorTemps: append([]int(nil), defaultColorTemps...),
		Buttons: ButtonsConfig{
			DebounceMS:           int(defaultDebounce / time.Millisecond),
			ClickWindowMS:        int(defaultClickWindow / time.Millisecond),
			EncoderClickWindowMS: int(defaultEncoderClickWindow / time.Millisecond),
			DoubleClickWindowMS:  int(defaultDoubleClickWindow / time.Millisecond),
		},
		Input: InputConfig{
			Mode: InputModeGPIO,
			GPIO: GPIOConfig{
				Chip:          "gpiochip0",
				EncoderA:      17,
				EncoderB:      27,
				EncoderPullUp: true,
				QuadDivisor:   2,
				EncoderSwitch: GPIOButtonConfig{Line: 22, ActiveLow: true, PullUp: true},
				Primary:       GPIOButtonConfig{Line: 5},
				Secondary:     GPIOButtonConfig{Line: 6},
			},
			Evdev: EvdevConfig{
				Devices:      []string{"/dev/input/event0", "/dev/input/event1"},
				RelCode:      REL_X,
				KeyEncoder:   KEY_ENTER,
				KeyPrimary:   KEY_1,
				KeySecondary: KEY_2,
			},
		},
		Transport: TransportConfig{
			PacingMS:  int(defaultPacing / time.Millisecond),
			LocalPort: wizLocalPort,
		},
		Loop: LoopConfig{
			PollMS:            int(defaultPollInterval / time.Millisecond),
			WatchdogTimeoutMS: int(defaultWatchdogTimeout / time.Millisecond),
		},
		Network: NetworkConfig{
			Interface:       "wlan0",
			CheckIntervalMS: int(defaultNetCheckInterval / time.Millisecond),
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/wizpanel.sock",
		},
		StateWS: StateWSConfig{
			Enabled: true,
			Addr:    ":3001",
			Path:    "/state",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file.
//
// Notes:
//   - The file must be valid YAML.
//   - Unknown fields are rejected (helps catch typos) via KnownFields(true).
//   - Values not present in the file keep their defaults.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parseConfig(b)
}

func parseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Ensure there's no trailing garbage (only whitespace/comments are allowed after the document).
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies overrides from flags on top of a loaded config.
//
// Flags should pass pointers; each override is only applied if non-nil.
// main.go decides which flags exist.
type FlagOverrides struct {
	PrimaryAddr   *string
	SecondaryAddr *string
	InputMode     *string
	IPCSocketPath *string
	StateWSAddr   *string
	LogLevel      *string
}

// Apply merges the overrides into cfg. If an override pointer is nil, it is ignored.
// If the pointer is non-nil, the value is applied (even if it is a “zero value”).
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.PrimaryAddr != nil {
		cfg.Lights.Primary = *o.PrimaryAddr
	}
	if o.SecondaryAddr != nil {
		cfg.Lights.Secondary = *o.SecondaryAddr
	}
	if o.InputMode != nil {
		cfg.Input.Mode = *o.InputMode
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.StateWSAddr != nil {
		cfg.StateWS.Addr = *o.StateWSAddr
		cfg.StateWS.Enabled = *o.StateWSAddr != ""
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Lights
	if _, err := parseLightAddr(c.Lights.Primary); err != nil {
		return fmt.Errorf("lights.primary: %w", err)
	}
	if _, err := parseLightAddr(c.Lights.Secondary); err != nil {
		return fmt.Errorf("lights.secondary: %w", err)
	}

	// Brightness
	b := c.Brightness
	if b.Step <= 0 {
		return errors.New("brightness.step must be > 0")
	}
	if b.Min < wizMinDimming || b.Max > wizMaxDimming {
		return fmt.Errorf("brightness range must be within %d..%d", wizMinDimming, wizMaxDimming)
	}
	if b.Min > b.Initial || b.Initial > b.Max {
		return errors.New("brightness must satisfy min <= initial <= max")
	}
	if b.Min%b.Step != 0 || b.Max%b.Step != 0 {
		return errors.New("brightness.min and brightness.max must be multiples of brightness.step")
	}

	// Colour temperatures
	if len(c.ColorTemps) != len(defaultColorTemps) {
		return fmt.Errorf("color_temps must list exactly %d values", len(defaultColorTemps))
	}
	seenTemp := make(map[int]bool, len(c.ColorTemps))
	for i, k := range c.ColorTemps {
		if _, ok := colorTempNames[k]; !ok {
			return fmt.Errorf("color_temps[%d]: %dK is not one of %v", i, k, defaultColorTemps)
		}
		if seenTemp[k] {
			return fmt.Errorf("color_temps[%d]: %dK is listed twice", i, k)
		}
		seenTemp[k] = true
	}

	// Buttons
	if c.Buttons.DebounceMS < 0 {
		return errors.New("buttons.debounce_ms must be >= 0")
	}
	if c.Buttons.DebounceMS >= c.Buttons.ClickWindowMS {
		return errors.New("buttons.debounce_ms must be < buttons.click_window_ms")
	}
	if c.Buttons.DebounceMS >= c.Buttons.EncoderClickWindowMS {
		return errors.New("buttons.debounce_ms must be < buttons.encoder_click_window_ms")
	}
	if c.Buttons.DoubleClickWindowMS <= 0 {
		return errors.New("buttons.double_click_window_ms must be > 0")
	}

	// Input
	switch c.Input.Mode {
	case InputModeGPIO:
		if c.Input.GPIO.Chip == "" {
			return errors.New("input.gpio.chip must not be empty")
		}
		switch c.Input.GPIO.QuadDivisor {
		case 1, 2, 4:
		default:
			return errors.New("input.gpio.quad_divisor must be 1, 2 or 4")
		}
		lines := []int{
			c.Input.GPIO.EncoderA,
			c.Input.GPIO.EncoderB,
			c.Input.GPIO.EncoderSwitch.Line,
			c.Input.GPIO.Primary.Line,
			c.Input.GPIO.Secondary.Line,
		}
		seen := make(map[int]bool, len(lines))
		for _, l := range lines {
			if l < 0 {
				return errors.New("input.gpio line offsets must be >= 0")
			}
			if seen[l] {
				return fmt.Errorf("input.gpio line %d is used twice", l)
			}
			seen[l] = true
		}
	case InputModeEvdev:
		if len(c.Input.Evdev.Devices) == 0 {
			return errors.New("input.evdev.devices must not be empty")
		}
		for i, dev := range c.Input.Evdev.Devices {
			if dev == "" {
				return fmt.Errorf("input.evdev.devices[%d] is empty", i)
			}
		}
		keys := map[string]int{
			"key_encoder":   c.Input.Evdev.KeyEncoder,
			"key_primary":   c.Input.Evdev.KeyPrimary,
			"key_secondary": c.Input.Evdev.KeySecondary,
		}
		owner := make(map[int]string, len(keys))
		for _, name := range []string{"key_encoder", "key_primary", "key_secondary"} {
			code := keys[name]
			if code <= 0 || code > 0xffff {
				return fmt.Errorf("input.evdev.%s must be a key code in 1..65535", name)
			}
			if other, ok := owner[code]; ok {
				return fmt.Errorf("input.evdev.%s and input.evdev.%s both use key %d", other, name, code)
			}
			owner[code] = name
		}
	case InputModeNone:
	default:
		return fmt.Errorf("input.mode must be %q, %q or %q", InputModeGPIO, InputModeEvdev, InputModeNone)
	}

	// Transport
	if c.Transport.PacingMS < 0 {
		return errors.New("transport.pacing_ms must be >= 0")
	}
	if c.Transport.LocalPort < 0 || c.Transport.LocalPort > 65535 {
		return errors.New("transport.local_port must be between 0 and 65535")
	}

	// Loop
	if c.Loop.PollMS < 1 || c.Loop.PollMS > 1000 {
		return errors.New("loop.poll_ms must be between 1 and 1000")
	}
	if c.Loop.WatchdogTimeoutMS < 0 {
		return errors.New("loop.watchdog_timeout_ms must be >= 0")
	}
	if c.Loop.WatchdogTimeoutMS > 0 && c.Loop.WatchdogTimeoutMS <= c.Loop.PollMS {
		return errors.New("loop.watchdog_timeout_ms must be > loop.poll_ms")
	}

	// Network
	if c.Network.Interface != "" && c.Network.CheckIntervalMS <= 0 {
		return errors.New("network.check_interval_ms must be > 0")
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// State websocket
	if c.StateWS.Enabled {
		if c.StateWS.Addr == "" {
			return errors.New("state_ws.enabled is true but state_ws.addr is empty")
		}
		if c.StateWS.Path == "" || c.StateWS.Path[0] != '/' {
			return errors.New("state_ws.path must start with /")
		}
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// ToReducerConfig converts file config into the reducer's policy.
func (c *Config) ToReducerConfig(bootID string) ReducerConfig {
	return ReducerConfig{
		MinBrightness:  c.Brightness.Min,
		MaxBrightness:  c.Brightness.Max,
		BrightnessStep: c.Brightness.Step,
		ColorTemps:     append([]int(nil), c.ColorTemps...),
		BootID:         bootID,
	}
}

// DetentRange returns the encoder detent bounds and the initial detent.
func (c *Config) DetentRange() (minDetent, maxDetent, initial int) {
	s := c.Brightness.Step
	return c.Brightness.Min / s, c.Brightness.Max / s, c.Brightness.Initial / s
}

// ButtonTiming returns the classifier timing for one button. Only the encoder
// recognizes double-clicks.
func (c *Config) ButtonTiming(src ButtonSource) ButtonTiming {
	t := ButtonTiming{
		Debounce:          ms(c.Buttons.DebounceMS),
		ClickWindow:       ms(c.Buttons.ClickWindowMS),
		DoubleClickWindow: ms(c.Buttons.DoubleClickWindowMS),
	}
	if src == SourceEncoder {
		t.ClickWindow = ms(c.Buttons.EncoderClickWindowMS)
		t.DoubleClick = true
	}
	return t
}

// Targets resolves both light addresses. Validate must have passed.
func (c *Config) Targets() (lightTargets, error) {
	var t lightTargets
	var err error
	if t[LightPrimary], err = parseLightAddr(c.Lights.Primary); err != nil {
		return t, fmt.Errorf("lights.primary: %w", err)
	}
	if t[LightSecondary], err = parseLightAddr(c.Lights.Secondary); err != nil {
		return t, fmt.Errorf("lights.secondary: %w", err)
	}
	return t, nil
}

// parseLightAddr accepts "ip" or "ip:port". The port defaults to the WiZ
// control port.
func parseLightAddr(s string) (netip.AddrPort, error) {
	if s == "" {
		return netip.AddrPort{}, errors.New("address is empty")
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		if ap.Port() == 0 {
			return netip.AddrPort{}, fmt.Errorf("invalid port in %q", s)
		}
		return ap, nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid IP address %q", s)
	}
	return netip.AddrPortFrom(addr, wizPort), nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
