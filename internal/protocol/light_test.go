package protocol

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewLight(t *testing.T) {
	l, err := NewLight(manuData(modeEffect, 9, 20, 100), zaptest.NewLogger(t))
	require.NoError(t, err)

	s := l.Snapshot()
	assert.Equal(t, "Effect 9", s.Effect)
	assert.Equal(t, ColorModeBrightness, s.ColorMode)
	assert.Equal(t, LegacyDialect, l.Dialect())
	assert.Len(t, l.QueryPackets(), 2)

	_, err = NewLight(nil, nil)
	assert.ErrorIs(t, err, ErrNoManufacturer)
}

func TestLightSnapshotIsDetached(t *testing.T) {
	l, err := NewLight(manuData(modeColor, selectorColorOnly, 0, 0xff, 0, 0), nil)
	require.NoError(t, err)
	l.SetBgColor(HS{Hue: 10, Saturation: 10}, 10)

	s := l.Snapshot()
	*s.BgBrightness = 99
	s.Effect = "mutated"

	again := l.Snapshot()
	assert.Equal(t, 10, *again.BgBrightness)
	assert.Equal(t, EffectOff, again.Effect)
}

func TestLightConcurrentAccess(t *testing.T) {
	d := manuData(modeColor, selectorColorOnly, 0, 0xff, 0, 0)
	d[0] = extendedFw
	l, err := NewLight(d, nil)
	require.NoError(t, err)

	status := mustHex(t, "0410 800000 0e 0f 16 81 00 23 61 f0 10 00 ff 00")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			l.SetColor(HS{Hue: float64(i * 40), Saturation: 100}, 255)
		}(i)
		go func() {
			defer wg.Done()
			l.HandleNotification(status)
		}()
		go func(i int) {
			defer wg.Done()
			_, _ = l.SetBrightness(100 + i)
			l.ProcessManufacturerData(d)
			_ = l.Snapshot()
		}(i)
	}
	wg.Wait()

	s := l.Snapshot()
	assert.Equal(t, ColorModeHS, s.ColorMode)
	assert.Equal(t, PowerOn, s.Power)
}

func TestLightEncodeOperations(t *testing.T) {
	l, err := NewLight(manuData(modeColor, selectorColorOnly, 0, 0xff, 0, 0), nil)
	require.NoError(t, err)

	p, err := l.SetEffect("Effect 12", 255)
	require.NoError(t, err)
	assert.Equal(t, byte(12), p[effectIDOffset])

	p, err = l.SetBrightness(51)
	require.NoError(t, err)
	assert.Equal(t, byte(20), p[effectBrightnessOffset])

	assert.Equal(t, byte(powerOffByte), l.SetPower(false)[powerStateOffset])
	assert.Equal(t, PowerOff, l.Snapshot().Power)

	_, err = l.SetLEDSettings(LEDSettings{LEDCount: ptr(60)})
	assert.ErrorIs(t, err, ErrMissingLEDOption)
}
