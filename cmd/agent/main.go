// Lednetwf-agent controls a LEDnetWF Bluetooth LED strip controller.
//
// It keeps a BLE connection to the controller and exposes it through a web
// UI, MQTT with Home Assistant discovery, Lua patterns and cron schedules.
//
// Usage:
//
//	lednetwf-agent run [flags]
//	lednetwf-agent decode <hex> [flags]
//	lednetwf-agent effects
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// These variables will be set by the build script
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lednetwf-agent",
	Short: "LEDnetWF LED strip controller agent",
	Long: `Controls a LEDnetWF (Zengge) Bluetooth LED strip controller.

The agent scans for the controller, keeps its state in sync from
advertisements and notifications, and accepts commands from the web UI,
MQTT, Lua patterns and scheduled jobs.`,
	Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(effectsCmd)
}
