package lua

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"lednetwf-controller/internal/core"
	"lednetwf-controller/internal/protocol"
)

type mockDevice struct {
	mock.Mock
}

func (m *mockDevice) SetPower(on bool) error {
	return m.Called(on).Error(0)
}

func (m *mockDevice) SetColor(hs protocol.HS, brightness int) error {
	return m.Called(hs, brightness).Error(0)
}

func (m *mockDevice) SetBrightness(brightness int) error {
	return m.Called(brightness).Error(0)
}

func (m *mockDevice) SetEffect(name string) error {
	return m.Called(name).Error(0)
}

func runCode(e *Engine, code string) error {
	return e.execute(context.Background(), "test", func(L *lua.LState) error {
		return L.DoString(code)
	})
}

func TestScriptDrivesDevice(t *testing.T) {
	dev := new(mockDevice)
	dev.On("SetPower", true).Return(nil).Once()
	dev.On("SetColor", protocol.HS{Hue: 120, Saturation: 100}, 200).Return(nil).Once()
	dev.On("SetColor", protocol.HS{Hue: 0, Saturation: 100}, 255).Return(nil).Once()
	dev.On("SetEffect", "Static Effect 3").Return(nil).Once()
	dev.On("SetBrightness", 64).Return(nil).Once()

	e := NewEngine(dev, t.TempDir(), nil, nil)
	err := runCode(e, `
		set_power(true)
		set_color(120, 100, 200)
		set_rgb(255, 0, 0)
		set_effect("Static Effect 3")
		set_brightness(64)
	`)
	require.NoError(t, err)
	dev.AssertExpectations(t)
}

func TestEffectsGlobal(t *testing.T) {
	e := NewEngine(new(mockDevice), t.TempDir(), nil, nil)
	err := runCode(e, `
		local list = effects()
		assert(#list == 125, "catalog size " .. #list)
		assert(list[1] == "Solid Color")
	`)
	assert.NoError(t, err)
}

func TestDeviceErrorStopsScript(t *testing.T) {
	dev := new(mockDevice)
	dev.On("SetEffect", "Effect 999").Return(protocol.ErrUnknownEffect)

	e := NewEngine(dev, t.TempDir(), nil, nil)
	err := runCode(e, `set_effect("Effect 999"); set_power(false)`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "effect not in catalog")
	dev.AssertNotCalled(t, "SetPower", false)
}

func TestExecutePublishesPatternState(t *testing.T) {
	bus := core.NewEventBus(nil)
	sub := bus.Subscribe(core.PatternChangedEvent)

	e := NewEngine(new(mockDevice), t.TempDir(), bus, nil)
	require.NoError(t, runCode(e, `print("hi")`))

	assert.Equal(t, core.PatternPayload{Running: "test"}, (<-sub).Payload)
	assert.Equal(t, core.PatternPayload{Running: ""}, (<-sub).Payload)
}

func TestCancelledScriptIsNotAnError(t *testing.T) {
	e := NewEngine(new(mockDevice), t.TempDir(), nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := e.execute(ctx, "loop", func(L *lua.LState) error {
		return L.DoString(`while not should_stop() do sleep(5) end`)
	})
	assert.NoError(t, err)
}

func TestRunPatternStopsPrevious(t *testing.T) {
	dir := t.TempDir()
	bus := core.NewEventBus(nil)
	sub := bus.Subscribe(core.PatternChangedEvent)
	e := NewEngine(new(mockDevice), dir, bus, nil)

	require.NoError(t, e.SavePatternCode("spin.lua", `while true do sleep(10) end`))
	require.NoError(t, e.RunPattern("spin.lua"))

	assert.Equal(t, core.PatternPayload{Running: "spin.lua"}, (<-sub).Payload)
	e.StopCurrentPattern()
	select {
	case ev := <-sub:
		assert.Equal(t, core.PatternPayload{Running: ""}, ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("pattern did not stop")
	}

	assert.ErrorIs(t, e.RunPattern("missing.lua"), os.ErrNotExist)
}

func TestPatternFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "patterns")
	e := NewEngine(new(mockDevice), dir, nil, nil)

	list, err := e.GetPatternList()
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, e.SavePatternCode("a.lua", "print(1)"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644))

	list, err = e.GetPatternList()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.lua"}, list)

	code, err := e.GetPatternCode("a.lua")
	require.NoError(t, err)
	assert.Equal(t, "print(1)", code)

	require.NoError(t, e.DeletePattern("a.lua"))
	_, err = e.GetPatternCode("a.lua")
	assert.Error(t, err)

	for _, bad := range []string{"a.txt", "../x.lua", "dir/x.lua", ".lua"} {
		_, err := e.GetPatternPath(bad)
		assert.True(t, errors.Is(err, ErrInvalidPatternName), bad)
	}
}
