package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"lednetwf-controller/internal/agent"
	"lednetwf-controller/internal/config"
	"lednetwf-controller/internal/logging"
	"lednetwf-controller/internal/protocol"
)

// Run command and flags
var (
	configPath string
	logLevel   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the agent",
	Long: `Start the agent. It runs until interrupted.

Settings are read from a YAML file. A missing file means defaults.`,
	Example: `  # Run with the default config file
  lednetwf-agent run

  # Run with a specific file and verbose logging
  lednetwf-agent run --config /etc/lednetwf/config.yaml --log-level debug`,
	RunE: runAgent,
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file")
	runCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error), overrides the config file")
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := logging.Initialize(cfg.Log.Level); err != nil {
		return err
	}
	log := logging.GetLogger()
	defer func() { _ = log.Sync() }()

	log.Info("starting LEDnetWF agent",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("built", date),
		zap.String("config", configPath))

	a, err := agent.NewAgent(cfg)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	go a.Run()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down agent")
	a.Shutdown()
	log.Info("agent shut down gracefully")
	return nil
}

// Decode command and flags
var (
	decodeKind     string
	decodeFirmware string
)

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>...",
	Short: "Decode captured advertisements or notifications",
	Long: `Decode captured manufacturer data or notifications and print the
resulting device state as YAML.

With --kind manufacturer the first argument seeds the state and any further
arguments are applied as later advertisements. With --kind notification
every argument is applied in order to a fresh state of the --firmware
version. Legacy notifications are given as the hex of their raw bytes.`,
	Example: `  # Decode an advertisement
  lednetwf-agent decode 5a00...30

  # Decode an extended status notification
  lednetwf-agent decode --kind notification --firmware 80.05 0410800000...`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().StringVar(&decodeKind, "kind", "manufacturer", "Input kind (manufacturer, notification)")
	decodeCmd.Flags().StringVar(&decodeFirmware, "firmware", "80.01", "Firmware version MAJOR.MINOR in hex, for notifications")
}

func runDecode(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(logLevel); err != nil {
		return err
	}
	codec := protocol.NewCodec(logging.Named("protocol"))

	packets := make([][]byte, len(args))
	for i, arg := range args {
		b, err := hex.DecodeString(strings.NewReplacer(" ", "", ":", "").Replace(arg))
		if err != nil {
			return fmt.Errorf("argument %d: %w", i+1, err)
		}
		packets[i] = b
	}

	var state *protocol.DeviceState
	switch decodeKind {
	case "manufacturer":
		s, err := codec.NewDeviceStateFromManufacturerData(packets[0])
		if err != nil {
			return err
		}
		for _, p := range packets[1:] {
			codec.ApplyManufacturerData(s, p)
		}
		state = s
	case "notification":
		major, minor, err := parseFirmware(decodeFirmware)
		if err != nil {
			return err
		}
		state = protocol.NewDeviceState(major, minor)
		for _, p := range packets {
			codec.ApplyNotification(state, p)
		}
	default:
		return fmt.Errorf("unknown kind %q", decodeKind)
	}

	out, err := yaml.Marshal(newStateReport(state.Clone()))
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func parseFirmware(s string) (major, minor byte, err error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("firmware %q: want MAJOR.MINOR", s)
	}
	ma, err := strconv.ParseUint(parts[0], 16, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("firmware major %q: %w", parts[0], err)
	}
	mi, err := strconv.ParseUint(parts[1], 16, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("firmware minor %q: %w", parts[1], err)
	}
	return byte(ma), byte(mi), nil
}

type stateReport struct {
	Firmware     string  `yaml:"firmware"`
	Dialect      string  `yaml:"dialect"`
	Power        string  `yaml:"power"`
	ColorMode    string  `yaml:"color_mode"`
	Hue          float64 `yaml:"hue"`
	Saturation   float64 `yaml:"saturation"`
	Brightness   int     `yaml:"brightness"`
	RGB          string  `yaml:"rgb"`
	Background   string  `yaml:"background,omitempty"`
	BgBrightness *int    `yaml:"background_brightness,omitempty"`
	Effect       string  `yaml:"effect"`
	EffectSpeed  int     `yaml:"effect_speed"`
	LEDCount     int     `yaml:"led_count"`
	ChipType     string  `yaml:"chip_type"`
	ColorOrder   string  `yaml:"color_order"`
	Segments     int     `yaml:"segments"`
}

func newStateReport(s protocol.DeviceState) stateReport {
	r := stateReport{
		Firmware:     s.Firmware(),
		Dialect:      s.Dialect().String(),
		Power:        s.Power.String(),
		ColorMode:    s.ColorMode.String(),
		Hue:          s.HSColor.Hue,
		Saturation:   s.HSColor.Saturation,
		Brightness:   s.Brightness,
		RGB:          s.RGB().String(),
		BgBrightness: s.BgBrightness,
		Effect:       s.Effect,
		EffectSpeed:  s.EffectSpeed,
		LEDCount:     s.LEDCount,
		ChipType:     s.ChipType.String(),
		ColorOrder:   s.ColorOrder.String(),
		Segments:     s.Segments,
	}
	if s.BgHSColor != nil {
		r.Background = s.BgRGB().String()
	}
	return r
}

var effectsCmd = &cobra.Command{
	Use:   "effects",
	Short: "List the effect catalog",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		for _, name := range protocol.EffectNames() {
			code, _ := protocol.EffectCode(name)
			fmt.Fprintf(w, "%6d  %-8s %s\n", code, protocol.EffectFamilyOf(code), name)
		}
	},
}
