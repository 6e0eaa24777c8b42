package lua

import (
	"context"
	"math"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"lednetwf-controller/internal/protocol"
)

const animationSteps = 100

// registerGoFunctions exposes the light to a script running under ctx.
func (e *Engine) registerGoFunctions(L *lua.LState, ctx context.Context) {
	fns := map[string]lua.LGFunction{
		"set_color":      e.luaSetColor,
		"set_rgb":        e.luaSetRGB,
		"set_effect":     e.luaSetEffect,
		"set_brightness": e.luaSetBrightness,
		"set_power":      e.luaSetPower,
		"effects":        luaEffects,
		"print":          e.luaPrint,
		"sleep":          func(L *lua.LState) int { cancellableSleep(ctx, msArg(L, 1)); return 0 },
		"should_stop": func(L *lua.LState) int {
			L.Push(lua.LBool(ctx.Err() != nil))
			return 1
		},
		"breathe": func(L *lua.LState) int { e.breathe(L, ctx); return 0 },
		"strobe":  func(L *lua.LState) int { e.strobe(L, ctx); return 0 },
		"fade":    func(L *lua.LState) int { e.fade(L, ctx); return 0 },
	}
	for name, fn := range fns {
		L.SetGlobal(name, L.NewFunction(fn))
	}
}

// check raises device errors inside the script.
func check(L *lua.LState, err error) {
	if err != nil {
		L.RaiseError("%s", err.Error())
	}
}

func msArg(L *lua.LState, n int) time.Duration {
	return time.Duration(L.CheckInt(n)) * time.Millisecond
}

func (e *Engine) luaPrint(L *lua.LState) int {
	e.log.Info("lua", zap.String("msg", L.ToString(1)))
	return 0
}

// set_color(hue, saturation [, brightness])
func (e *Engine) luaSetColor(L *lua.LState) int {
	hs := protocol.HS{Hue: float64(L.CheckNumber(1)), Saturation: float64(L.CheckNumber(2))}
	brightness := L.OptInt(3, 255)
	check(L, e.device.SetColor(hs, brightness))
	return 0
}

// set_rgb(r, g, b)
func (e *Engine) luaSetRGB(L *lua.LState) int {
	e.setRGB(L, L.CheckInt(1), L.CheckInt(2), L.CheckInt(3))
	return 0
}

func (e *Engine) setRGB(L *lua.LState, r, g, b int) {
	hs, v := protocol.RGB{R: channel(r), G: channel(g), B: channel(b)}.ToHSV()
	check(L, e.device.SetColor(hs, v))
}

func channel(v int) uint8 {
	return uint8(min(255, max(0, v)))
}

func (e *Engine) luaSetEffect(L *lua.LState) int {
	check(L, e.device.SetEffect(L.CheckString(1)))
	return 0
}

func (e *Engine) luaSetBrightness(L *lua.LState) int {
	check(L, e.device.SetBrightness(L.CheckInt(1)))
	return 0
}

func (e *Engine) luaSetPower(L *lua.LState) int {
	check(L, e.device.SetPower(L.ToBool(1)))
	return 0
}

// effects() returns the catalog names in display order.
func luaEffects(L *lua.LState) int {
	t := L.NewTable()
	for _, name := range protocol.EffectNames() {
		t.Append(lua.LString(name))
	}
	L.Push(t)
	return 1
}

// cancellableSleep reports true if ctx was cancelled first.
func cancellableSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() != nil
	}
	select {
	case <-time.After(d):
		return false
	case <-ctx.Done():
		return true
	}
}

// breathe(duration_ms) ramps brightness up then down over the duration.
func (e *Engine) breathe(L *lua.LState, ctx context.Context) {
	step := msArg(L, 1) / (2 * animationSteps)

	for i := 1; i <= 2*animationSteps; i++ {
		level := i
		if i > animationSteps {
			level = 2*animationSteps - i + 1
		}
		check(L, e.device.SetBrightness(int(math.Round(float64(level)*255/animationSteps))))
		if cancellableSleep(ctx, step) {
			return
		}
	}
}

// strobe(r, g, b, duration_ms, hz) flashes a color against black.
func (e *Engine) strobe(L *lua.LState, ctx context.Context) {
	r, g, b := L.CheckInt(1), L.CheckInt(2), L.CheckInt(3)
	duration := msArg(L, 4)
	hz := float64(L.CheckNumber(5))
	if hz <= 0 {
		return
	}

	check(L, e.device.SetPower(true))
	halfPeriod := time.Duration(float64(time.Second) / hz / 2)
	start := time.Now()

	for time.Since(start) < duration {
		e.setRGB(L, r, g, b)
		if cancellableSleep(ctx, halfPeriod) {
			return
		}
		e.setRGB(L, 0, 0, 0)
		if cancellableSleep(ctx, halfPeriod) {
			return
		}
	}
}

// fade(r1, g1, b1, r2, g2, b2, duration_ms) interpolates between two colors.
func (e *Engine) fade(L *lua.LState, ctx context.Context) {
	r1, g1, b1 := L.CheckInt(1), L.CheckInt(2), L.CheckInt(3)
	r2, g2, b2 := L.CheckInt(4), L.CheckInt(5), L.CheckInt(6)
	step := msArg(L, 7) / animationSteps

	check(L, e.device.SetPower(true))
	lerp := func(a, b int, t float64) int {
		return int(math.Round(float64(a) + t*float64(b-a)))
	}
	for i := 0; i <= animationSteps; i++ {
		t := float64(i) / animationSteps
		e.setRGB(L, lerp(r1, r2, t), lerp(g1, g2, t), lerp(b1, b2, t))
		if i < animationSteps && cancellableSleep(ctx, step) {
			return
		}
	}
}
