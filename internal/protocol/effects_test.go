package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectNamesOrder(t *testing.T) {
	names := EffectNames()
	require.Len(t, names, 125)

	assert.Equal(t, "Solid Color", names[0])
	assert.Equal(t, "Static Effect 2", names[1])
	assert.Equal(t, "Static Effect 10", names[9])
	assert.Equal(t, "Effect 1", names[10])
	assert.Equal(t, "Effect 99", names[108])
	assert.Equal(t, "Sound Reactive 1", names[109])
	assert.Equal(t, "Sound Reactive 15", names[123])
	assert.Equal(t, "Cycle Modes", names[124])
}

func TestEffectNamesReturnsCopy(t *testing.T) {
	names := EffectNames()
	names[0] = "mutated"
	assert.Equal(t, "Solid Color", EffectNames()[0])
}

func TestEffectCatalogRoundTrip(t *testing.T) {
	seen := make(map[int]string)
	for _, name := range EffectNames() {
		code, ok := EffectCode(name)
		require.True(t, ok, name)

		back, ok := EffectName(code)
		require.True(t, ok, name)
		assert.Equal(t, name, back)

		if prev, dup := seen[code]; dup {
			t.Errorf("code 0x%04x assigned to both %q and %q", code, prev, name)
		}
		seen[code] = name
	}
}

func TestEffectCodes(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		family EffectFamily
	}{
		{"Effect 1", 1, GeneralEffect},
		{"Effect 99", 99, GeneralEffect},
		{"Cycle Modes", 0xff, GeneralEffect},
		{"Solid Color", 0x0100, StaticEffect},
		{"Static Effect 5", 0x0500, StaticEffect},
		{"Static Effect 10", 0x0a00, StaticEffect},
		{"Sound Reactive 1", 0x3300, SoundEffect},
		{"Sound Reactive 15", 0x4100, SoundEffect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := EffectCode(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.family, EffectFamilyOf(code))
		})
	}
}

func TestEffectLookupMisses(t *testing.T) {
	for _, code := range []int{0, 100, 0xfe, 0x0000, 0x0b00, 0x3200, 0x4200} {
		_, ok := EffectName(code)
		assert.False(t, ok, "code 0x%04x", code)
	}
	_, ok := EffectCode("Effect 100")
	assert.False(t, ok)
	assert.False(t, IsEffect("Static Effect 1"))
	assert.True(t, IsEffect("Static Effect 2"))
}

func TestNativeEffectID(t *testing.T) {
	assert.Equal(t, 5, nativeEffectID(StaticEffectCode(5)))
	assert.Equal(t, 15, nativeEffectID(SoundEffectCode(15)))
	assert.Equal(t, 42, nativeEffectID(42))
}

func TestEffectLookupNameOr(t *testing.T) {
	assert.Equal(t, "Effect 3", lookupEffect(3).nameOr(EffectOff))
	assert.Equal(t, EffectOff, lookupEffect(300).nameOr(EffectOff))
}
