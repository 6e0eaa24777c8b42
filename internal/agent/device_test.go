package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"lednetwf-controller/internal/core"
	"lednetwf-controller/internal/protocol"
)

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Write(payload []byte) { m.Called(payload) }
func (m *mockTransport) Reconnect()           { m.Called() }

func (m *mockTransport) written() [][]byte {
	var out [][]byte
	for _, c := range m.Calls {
		if c.Method == "Write" {
			out = append(out, c.Arguments.Get(0).([]byte))
		}
	}
	return out
}

// advertisement builds a manufacturer payload reporting a solid color.
func advertisement(fwMajor byte, r, g, b byte) []byte {
	d := make([]byte, 25)
	d[0] = fwMajor
	d[10] = 0x03
	d[14] = 0x23
	d[15] = 0x61
	d[16] = 0xf0
	d[17] = 0x10
	d[18], d[19], d[20] = r, g, b
	d[24] = 0x30
	return d
}

func newTestDevice(t *testing.T, settings *protocol.LEDSettings) (*Device, *mockTransport, *core.EventBus, core.Subscriber) {
	t.Helper()
	tr := &mockTransport{}
	tr.On("Write", mock.Anything).Return()
	tr.On("Reconnect").Return()

	bus := core.NewEventBus(nil)
	sub := bus.Subscribe(core.StateChangedEvent, core.ConnectionChangedEvent)
	d := NewDevice(tr, bus, core.NewState(), settings, zaptest.NewLogger(t))
	d.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	return d, tr, bus, sub
}

func nextEvent(t *testing.T, sub core.Subscriber) core.Event {
	t.Helper()
	select {
	case ev := <-sub:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return core.Event{}
	}
}

func TestDeviceCommandsBeforeDiscovery(t *testing.T) {
	d, tr, _, _ := newTestDevice(t, nil)

	assert.ErrorIs(t, d.SetPower(true), ErrNoDevice)
	assert.ErrorIs(t, d.SetEffect("Effect 1"), ErrNoDevice)
	assert.ErrorIs(t, d.SyncTime(), ErrNoDevice)
	assert.ErrorIs(t, d.QueryState(), ErrNoDevice)

	_, ok := d.Snapshot()
	assert.False(t, ok)
	tr.AssertNotCalled(t, "Write", mock.Anything)
}

func TestDeviceAdvertisementSeedsState(t *testing.T) {
	d, _, _, sub := newTestDevice(t, nil)

	d.OnAdvertisement("AA:BB", "LEDnetWF0100", -60, advertisement(0x56, 0xff, 0, 0))

	ev := nextEvent(t, sub)
	require.Equal(t, core.StateChangedEvent, ev.Type)
	s := ev.Payload.(protocol.DeviceState)
	assert.Equal(t, protocol.PowerOn, s.Power)
	assert.Equal(t, protocol.ColorModeHS, s.ColorMode)
	assert.Equal(t, protocol.RGB{R: 0xff}, s.RGB())

	link := d.state.Clone()
	assert.Equal(t, "AA:BB", link.Address)
	assert.Equal(t, int16(-60), link.RSSI)

	// Later advertisements refresh the same light.
	d.OnAdvertisement("AA:BB", "LEDnetWF0100", -58, advertisement(0x56, 0, 0, 0xff))
	s = nextEvent(t, sub).Payload.(protocol.DeviceState)
	assert.Equal(t, protocol.RGB{B: 0xff}, s.RGB())
}

func TestDeviceIgnoresShortAdvertisement(t *testing.T) {
	d, _, _, sub := newTestDevice(t, nil)

	d.OnAdvertisement("AA:BB", "LEDnetWF", -60, nil)

	_, ok := d.Snapshot()
	assert.False(t, ok)
	assert.Empty(t, sub)
}

func TestDeviceConnectLegacy(t *testing.T) {
	d, tr, _, sub := newTestDevice(t, nil)
	d.OnAdvertisement("AA:BB", "LEDnetWF", -60, advertisement(0x56, 0xff, 0, 0))
	nextEvent(t, sub)

	d.OnConnected("AA:BB", -60)

	ev := nextEvent(t, sub)
	assert.Equal(t, core.ConnectionPayload{Connected: true, Address: "AA:BB", RSSI: -60}, ev.Payload)
	assert.Equal(t, protocol.QueryPackets(protocol.LegacyDialect), tr.written())
}

func TestDeviceConnectExtendedSyncsClock(t *testing.T) {
	d, tr, _, _ := newTestDevice(t, nil)
	d.OnAdvertisement("AA:BB", "LEDnetWF", -60, advertisement(protocol.ExtendedFirmwareMajor, 0xff, 0, 0))

	d.OnConnected("AA:BB", -60)

	want := append(protocol.QueryPackets(protocol.ExtendedDialect), protocol.TimeSyncPacket(d.now()))
	assert.Equal(t, want, tr.written())
}

func TestDeviceAppliesLEDSettingsOnce(t *testing.T) {
	count, chip, order := 120, protocol.ChipWS2812B, protocol.OrderGRB
	settings := &protocol.LEDSettings{LEDCount: &count, ChipType: &chip, ColorOrder: &order, Segments: 2}
	d, tr, _, _ := newTestDevice(t, settings)
	d.OnAdvertisement("AA:BB", "LEDnetWF", -60, advertisement(0x56, 0xff, 0, 0))

	d.OnConnected("AA:BB", -60)
	d.OnConnected("AA:BB", -60)

	tr.AssertNumberOfCalls(t, "Reconnect", 1)
	s, ok := d.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 120, s.LEDCount)
	assert.Equal(t, protocol.OrderGRB, s.ColorOrder)
	assert.Equal(t, 2, s.Segments)
}

func TestDeviceSettersWriteAndPublish(t *testing.T) {
	d, tr, _, sub := newTestDevice(t, nil)
	d.OnAdvertisement("AA:BB", "LEDnetWF", -60, advertisement(0x56, 0xff, 0, 0))
	nextEvent(t, sub)

	require.NoError(t, d.SetEffect("Effect 5"))
	s := nextEvent(t, sub).Payload.(protocol.DeviceState)
	assert.Equal(t, "Effect 5", s.Effect)

	require.NoError(t, d.SetPower(false))
	s = nextEvent(t, sub).Payload.(protocol.DeviceState)
	assert.Equal(t, protocol.PowerOff, s.Power)

	assert.Error(t, d.SetEffect("No Such Effect"))
	assert.Empty(t, sub)

	tr.AssertNumberOfCalls(t, "Write", 2)
	for _, p := range tr.written() {
		assert.True(t, protocol.VerifyChecksum(p))
	}
}

func TestDeviceNotificationAndDisconnect(t *testing.T) {
	d, _, _, sub := newTestDevice(t, nil)

	// Dropped without a light.
	d.OnNotification([]byte{0x01})
	assert.Empty(t, sub)

	d.OnAdvertisement("AA:BB", "LEDnetWF", -60, advertisement(0x56, 0xff, 0, 0))
	nextEvent(t, sub)

	d.OnDisconnected()
	ev := nextEvent(t, sub)
	assert.Equal(t, core.ConnectionChangedEvent, ev.Type)
	assert.False(t, ev.Payload.(core.ConnectionPayload).Connected)
}

func TestDeviceHeartbeatQueries(t *testing.T) {
	d, tr, _, _ := newTestDevice(t, nil)
	d.OnHeartbeat()
	tr.AssertNotCalled(t, "Write", mock.Anything)

	d.OnAdvertisement("AA:BB", "LEDnetWF", -60, advertisement(0x56, 0xff, 0, 0))
	require.NoError(t, d.QueryState())
	require.NoError(t, d.SyncTime())

	want := append(protocol.QueryPackets(protocol.LegacyDialect), protocol.TimeSyncPacket(d.now()))
	assert.Equal(t, want, tr.written())
}
