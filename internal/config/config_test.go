package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lednetwf-controller/internal/protocol"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"LEDnetWF"}, cfg.BLE.NamePrefixes)
	assert.Equal(t, "lednetwf", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 1, cfg.LED.Segments)

	d, err := cfg.Durations()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d.ScanTimeout)
	assert.Equal(t, 60*time.Second, d.StatusInterval)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: " 9090 "
ble:
  name_prefixes: ["LEDnetWF", "IOTWF"]
  address: " aa:bb:cc:dd:ee:ff "
  scan_timeout: 5s
mqtt:
  enabled: true
  broker: tcp://broker:1883
led:
  apply_on_connect: true
  count: 150
  chip_type: ws2812b
  color_order: grb
  segments: 3
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"LEDnetWF", "IOTWF"}, cfg.BLE.NamePrefixes)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", cfg.BLE.Address)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)

	led, err := cfg.LEDSettings()
	require.NoError(t, err)
	assert.Equal(t, 150, *led.LEDCount)
	assert.Equal(t, protocol.ChipWS2812B, *led.ChipType)
	assert.Equal(t, protocol.OrderGRB, *led.ColorOrder)
	assert.Equal(t, 3, led.Segments)
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"bad yaml":          "server: [",
		"bad duration":      "ble:\n  scan_timeout: soon\n",
		"negative duration": "ble:\n  retry_delay: -1s\n",
		"negative rate":     "ble:\n  command_rate_limit: -2\n",
		"bad chip":          "led:\n  apply_on_connect: true\n  count: 10\n  chip_type: nope\n  color_order: rgb\n",
		"bad order":         "led:\n  apply_on_connect: true\n  count: 10\n  chip_type: ws2811\n  color_order: xyz\n",
		"missing count":     "led:\n  apply_on_connect: true\n  chip_type: ws2811\n  color_order: rgb\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLEDSettingsIgnoredUnlessApplied(t *testing.T) {
	cfg, err := Parse([]byte("led:\n  chip_type: nope\n"))
	require.NoError(t, err)
	_, err = cfg.LEDSettings()
	assert.Error(t, err)
}
