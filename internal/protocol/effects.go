package protocol

import "fmt"

// EffectOff is the "no effect" sentinel.
const EffectOff = "off"

// Display names of the special catalog entries.
const (
	SolidColorEffect = "Solid Color"
	CycleModesEffect = "Cycle Modes"
)

// Code layout of the unified effect space. Static and sound-reactive effects
// share native IDs with the general effects, so they are shifted into their
// own ranges.
const (
	generalEffectMax  = 99
	staticEffectMax   = 10
	soundEffectMax    = 15
	soundEffectOffset = 0x32
	cycleModesCode    = 0xff

	staticRangeLow  = 0x0100
	staticRangeHigh = 0x1100
	soundRangeLow   = 0x2100
	soundRangeHigh  = 0x4100
)

// EffectFamily groups effect codes by the packet layout used to select them.
type EffectFamily int

const (
	GeneralEffect EffectFamily = iota
	StaticEffect
	SoundEffect
)

func (f EffectFamily) String() string {
	switch f {
	case StaticEffect:
		return "static"
	case SoundEffect:
		return "sound"
	default:
		return "general"
	}
}

// EffectFamilyOf classifies a unified effect code.
func EffectFamilyOf(code int) EffectFamily {
	switch {
	case code >= staticRangeLow && code <= staticRangeHigh:
		return StaticEffect
	case code >= soundRangeLow && code <= soundRangeHigh:
		return SoundEffect
	default:
		return GeneralEffect
	}
}

// StaticEffectCode maps a native static effect ID (1..10) to its unified code.
func StaticEffectCode(native int) int { return native << 8 }

// SoundEffectCode maps a native sound-reactive effect ID (1..15) to its unified code.
func SoundEffectCode(native int) int { return (native + soundEffectOffset) << 8 }

// nativeEffectID undoes the offset encoding for static and sound codes.
func nativeEffectID(code int) int {
	switch EffectFamilyOf(code) {
	case StaticEffect:
		return code >> 8
	case SoundEffect:
		return (code >> 8) - soundEffectOffset
	default:
		return code
	}
}

type effectCatalog struct {
	order  []string
	byName map[string]int
	byCode map[int]string
}

var catalog = buildCatalog()

func buildCatalog() effectCatalog {
	c := effectCatalog{
		byName: make(map[string]int, 134),
		byCode: make(map[int]string, 134),
	}
	add := func(name string, code int) {
		c.order = append(c.order, name)
		c.byName[name] = code
		c.byCode[code] = name
	}

	add(SolidColorEffect, StaticEffectCode(1))
	for n := 2; n <= staticEffectMax; n++ {
		add(fmt.Sprintf("Static Effect %d", n), StaticEffectCode(n))
	}
	for n := 1; n <= generalEffectMax; n++ {
		add(fmt.Sprintf("Effect %d", n), n)
	}
	for n := 1; n <= soundEffectMax; n++ {
		add(fmt.Sprintf("Sound Reactive %d", n), SoundEffectCode(n))
	}
	add(CycleModesEffect, cycleModesCode)

	return c
}

// EffectNames returns every effect display name in presentation order.
func EffectNames() []string {
	out := make([]string, len(catalog.order))
	copy(out, catalog.order)
	return out
}

// EffectCode resolves a display name to its unified code.
func EffectCode(name string) (int, bool) {
	code, ok := catalog.byName[name]
	return code, ok
}

// EffectName resolves a unified code to its display name.
func EffectName(code int) (string, bool) {
	name, ok := catalog.byCode[code]
	return name, ok
}

// IsEffect reports whether name is a catalog entry.
func IsEffect(name string) bool {
	_, ok := catalog.byName[name]
	return ok
}

// effectLookup is the outcome of resolving a code read off the wire.
type effectLookup struct {
	name  string
	code  int
	known bool
}

func lookupEffect(code int) effectLookup {
	name, ok := catalog.byCode[code]
	return effectLookup{name: name, code: code, known: ok}
}

// nameOr returns the resolved name, or fallback when the code was not recognised.
func (l effectLookup) nameOr(fallback string) string {
	if l.known {
		return l.name
	}
	return fallback
}
