package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lednetwf-controller/internal/core"
	"lednetwf-controller/internal/protocol"
	"lednetwf-controller/internal/scheduler"
)

type mockPatterns struct {
	mock.Mock
}

func (m *mockPatterns) RunPattern(name string) error { return m.Called(name).Error(0) }
func (m *mockPatterns) StopCurrentPattern()          { m.Called() }
func (m *mockPatterns) GetPatternCode(name string) (string, error) {
	args := m.Called(name)
	return args.String(0), args.Error(1)
}
func (m *mockPatterns) SavePatternCode(name, code string) error { return m.Called(name, code).Error(0) }
func (m *mockPatterns) DeletePattern(name string) error         { return m.Called(name).Error(0) }
func (m *mockPatterns) GetPatternList() ([]string, error) {
	args := m.Called()
	return args.Get(0).([]string), args.Error(1)
}

type mockSchedules struct {
	mock.Mock
}

func (m *mockSchedules) Add(spec, command string) (int, error) {
	args := m.Called(spec, command)
	return args.Int(0), args.Error(1)
}
func (m *mockSchedules) Remove(id int) error { return m.Called(id).Error(0) }
func (m *mockSchedules) List() []scheduler.Entry {
	return m.Called().Get(0).([]scheduler.Entry)
}

type handlerFixture struct {
	handler   *CommandHandler
	device    *Device
	transport *mockTransport
	patterns  *mockPatterns
	schedules *mockSchedules
	events    core.Subscriber
}

func newHandlerFixture(t *testing.T) handlerFixture {
	t.Helper()
	d, tr, bus, _ := newTestDevice(t, nil)
	d.OnAdvertisement("AA:BB", "LEDnetWF", -60, advertisement(0x56, 0xff, 0, 0))

	p := &mockPatterns{}
	s := &mockSchedules{}
	events := bus.Subscribe(core.PatternCodeEvent, core.PatternListChangedEvent, core.ScheduleListChangedEvent)
	return handlerFixture{
		handler:   NewCommandHandler(d, p, s, bus, nil),
		device:    d,
		transport: tr,
		patterns:  p,
		schedules: s,
		events:    events,
	}
}

func TestHandleDeviceCommands(t *testing.T) {
	f := newHandlerFixture(t)
	f.patterns.On("StopCurrentPattern").Return()

	require.NoError(t, f.handler.Handle(core.NewCommand(core.CmdSetPower, "isOn", false)))
	s, _ := f.device.Snapshot()
	assert.Equal(t, protocol.PowerOff, s.Power)

	require.NoError(t, f.handler.Handle(core.NewCommand(core.CmdSetColor, "r", 0, "g", 255, "b", 0)))
	s, _ = f.device.Snapshot()
	assert.InDelta(t, 120, s.HSColor.Hue, 0.01)
	assert.Equal(t, 255, s.Brightness)

	require.NoError(t, f.handler.Handle(core.NewCommand(core.CmdSetBrightness, "value", 100.0)))
	s, _ = f.device.Snapshot()
	assert.Equal(t, 100, s.Brightness)

	// Hue and saturation without brightness keep the current brightness.
	require.NoError(t, f.handler.Handle(core.NewCommand(core.CmdSetColor, "hue", 200.0, "saturation", 50.0)))
	s, _ = f.device.Snapshot()
	assert.Equal(t, protocol.HS{Hue: 200, Saturation: 50}, s.HSColor)
	assert.Equal(t, 100, s.Brightness)

	require.NoError(t, f.handler.Handle(core.NewCommand(core.CmdSetEffect, "name", "Effect 3")))
	s, _ = f.device.Snapshot()
	assert.Equal(t, "Effect 3", s.Effect)
	assert.Equal(t, 100, s.Brightness)

	require.NoError(t, f.handler.Handle(core.NewCommand(core.CmdSetBgColor, "hue", 10.0, "saturation", 20.0, "brightness", 30)))
	s, _ = f.device.Snapshot()
	require.NotNil(t, s.BgBrightness)
	assert.Equal(t, 30, *s.BgBrightness)

	f.patterns.AssertNumberOfCalls(t, "StopCurrentPattern", 4)
}

func TestHandleRejectsBadPayloads(t *testing.T) {
	f := newHandlerFixture(t)
	f.patterns.On("StopCurrentPattern").Return()

	tests := []struct {
		name string
		cmd  core.Command
		want error
	}{
		{"missing isOn", core.NewCommand(core.CmdSetPower), core.ErrMissingField},
		{"isOn type", core.NewCommand(core.CmdSetPower, "isOn", "yes"), core.ErrFieldType},
		{"missing green", core.NewCommand(core.CmdSetColor, "r", 1, "b", 2), core.ErrMissingField},
		{"missing saturation", core.NewCommand(core.CmdSetColor, "hue", 1.0), core.ErrMissingField},
		{"unknown effect", core.NewCommand(core.CmdSetEffect, "name", "Nope"), protocol.ErrUnknownEffect},
		{"led settings incomplete", core.NewCommand(core.CmdSetLEDSettings, "ledCount", 10), protocol.ErrMissingLEDOption},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, f.handler.Handle(tt.cmd), tt.want)
		})
	}

	assert.Error(t, f.handler.Handle(core.Command{Type: "bogus"}))
	assert.Error(t, f.handler.Handle(core.NewCommand(core.CmdSetLEDSettings, "chipType", "NOPE")))
}

func TestHandleLEDSettingsReconnects(t *testing.T) {
	f := newHandlerFixture(t)

	err := f.handler.Handle(core.NewCommand(core.CmdSetLEDSettings,
		"ledCount", 60.0, "chipType", "ws2811", "colorOrder", "brg", "segments", 3.0))
	require.NoError(t, err)

	f.transport.AssertNumberOfCalls(t, "Reconnect", 1)
	s, _ := f.device.Snapshot()
	assert.Equal(t, 60, s.LEDCount)
	assert.Equal(t, protocol.ChipWS2811, s.ChipType)
	assert.Equal(t, protocol.OrderBRG, s.ColorOrder)
	assert.Equal(t, 3, s.Segments)
}

func TestHandlePatternCommands(t *testing.T) {
	f := newHandlerFixture(t)
	f.patterns.On("RunPattern", "wave.lua").Return(nil)
	f.patterns.On("StopCurrentPattern").Return()
	f.patterns.On("GetPatternCode", "wave.lua").Return("sleep(1)", nil)
	f.patterns.On("SavePatternCode", "new.lua", "print(1)").Return(nil)
	f.patterns.On("DeletePattern", "gone.lua").Return(errors.New("not found"))
	f.patterns.On("GetPatternList").Return([]string{"new.lua", "wave.lua"}, nil)

	require.NoError(t, f.handler.Handle(core.NewCommand(core.CmdRunPattern, "name", "wave.lua")))
	require.NoError(t, f.handler.Handle(core.NewCommand(core.CmdStopPattern)))

	require.NoError(t, f.handler.Handle(core.NewCommand(core.CmdGetPatternCode, "name", "wave.lua")))
	ev := <-f.events
	assert.Equal(t, core.PatternCodeEvent, ev.Type)
	assert.Equal(t, core.PatternCodePayload{Name: "wave.lua", Code: "sleep(1)"}, ev.Payload)

	require.NoError(t, f.handler.Handle(core.NewCommand(core.CmdSavePattern, "name", "new.lua", "code", "print(1)")))
	ev = <-f.events
	assert.Equal(t, core.PatternListChangedEvent, ev.Type)
	assert.Equal(t, []string{"new.lua", "wave.lua"}, ev.Payload)

	assert.Error(t, f.handler.Handle(core.NewCommand(core.CmdDeletePattern, "name", "gone.lua")))
	assert.ErrorIs(t, f.handler.Handle(core.NewCommand(core.CmdRunPattern)), core.ErrMissingField)
	assert.Empty(t, f.events)

	f.patterns.AssertExpectations(t)
}

func TestHandleScheduleCommands(t *testing.T) {
	f := newHandlerFixture(t)
	entries := []scheduler.Entry{{ID: 1, Spec: "0 7 * * *", Command: "power on"}}
	f.schedules.On("Add", "0 7 * * *", "power on").Return(1, nil)
	f.schedules.On("Remove", 9).Return(scheduler.ErrUnknownSchedule)
	f.schedules.On("List").Return(entries)

	require.NoError(t, f.handler.Handle(core.NewCommand(core.CmdAddSchedule, "spec", "0 7 * * *", "command", "power on")))
	ev := <-f.events
	assert.Equal(t, core.ScheduleListChangedEvent, ev.Type)
	assert.Equal(t, entries, ev.Payload)

	assert.ErrorIs(t, f.handler.Handle(core.NewCommand(core.CmdRemoveSchedule, "id", 9.0)), scheduler.ErrUnknownSchedule)
	assert.Empty(t, f.events)
}

func TestHandleWithoutStores(t *testing.T) {
	d, _, bus, _ := newTestDevice(t, nil)
	h := NewCommandHandler(d, nil, nil, bus, nil)

	assert.Error(t, h.Handle(core.NewCommand(core.CmdRunPattern, "name", "x.lua")))
	assert.Error(t, h.Handle(core.NewCommand(core.CmdAddSchedule, "spec", "* * * * *", "command", "sync")))
	assert.ErrorIs(t, h.Handle(core.NewCommand(core.CmdSetPower, "isOn", true)), ErrNoDevice)
}
