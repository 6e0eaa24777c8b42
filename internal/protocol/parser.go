package protocol

import (
	"bytes"
	"encoding/hex"
	"strings"

	"go.uber.org/zap"
)

// Manufacturer data layout.
const (
	manuMinLen           = 25
	manuFwMajorOffset    = 0
	manuFwMinorOffset    = 10
	manuPowerOffset      = 14
	manuModeOffset       = 15
	manuSelectorOffset   = 16
	manuSpeedOffset      = 17
	manuColorOffset      = 18
	manuBrightnessOffset = 18
	manuLEDCountOffset   = 24
)

// Mode bytes shared by advertisements and status notifications.
const (
	modeColor  byte = 0x61
	modeSound  byte = 0x62
	modeEffect byte = 0x25

	// selectorColorOnly in color mode means a plain color with no static effect.
	selectorColorOnly byte = 0xf0
)

// Extended notification markers, all at offset 5.
var (
	extLEDSettingsMarker = []byte{0x0b, 0x0c, 0x15}
	extShortStatusMarker = []byte{0x0e, 0x0f, 0x16, 0x81}
	extLongStatusMarker  = []byte{0x19, 0x1a}
)

const extMarkerOffset = 5

// Legacy payload discriminators.
const (
	legacyStatusTag      byte = 0x81
	legacyLEDSettingsTag byte = 0x63
)

// modeReport is the mode-dependent part of an advertisement or status message.
type modeReport struct {
	mode     byte
	selector byte
	speed    byte
	rgb      RGB
	// brightnessPct is set when the message carries effect brightness as a percentage.
	brightnessPct *byte
	// solidAsOff treats static effect 1 as "no effect", as advertisements do.
	solidAsOff bool
}

// NewDeviceStateFromManufacturerData seeds a state from the first advertisement
// seen for a controller.
func (c *Codec) NewDeviceStateFromManufacturerData(data []byte) (*DeviceState, error) {
	if len(data) == 0 {
		return nil, ErrNoManufacturer
	}
	var minor byte
	if len(data) > manuFwMinorOffset {
		minor = data[manuFwMinorOffset]
	}
	s := NewDeviceState(data[manuFwMajorOffset], minor)
	c.ApplyManufacturerData(s, data)
	return s, nil
}

// ApplyManufacturerData decodes an advertisement payload into s, including the
// LED count byte. Background color is never carried by advertisements and is
// left alone.
func (c *Codec) ApplyManufacturerData(s *DeviceState, data []byte) {
	if len(data) < manuMinLen {
		c.log.Warn("manufacturer data too short", zap.Int("length", len(data)), zap.Int("want", manuMinLen))
		return
	}

	s.Power = c.power(data[manuPowerOffset])
	s.LEDCount = int(data[manuLEDCountOffset])

	r := modeReport{
		mode:       data[manuModeOffset],
		selector:   data[manuSelectorOffset],
		speed:      data[manuSpeedOffset],
		rgb:        rgbAt(data, manuColorOffset),
		solidAsOff: true,
	}
	if r.mode == modeEffect {
		pct := data[manuBrightnessOffset]
		r.brightnessPct = &pct
	}
	c.applyMode(s, r)

	c.log.Debug("state from manufacturer data",
		zap.Stringer("power", s.Power),
		zap.Stringer("color_mode", s.ColorMode),
		zap.Float64("hue", s.HSColor.Hue),
		zap.Float64("saturation", s.HSColor.Saturation),
		zap.Int("brightness", s.Brightness),
		zap.String("effect", s.Effect),
		zap.Int("speed", s.EffectSpeed),
		zap.String("firmware", s.Firmware()))
}

func (c *Codec) power(b byte) PowerState {
	p := decodePower(b)
	if p == PowerUnknown {
		c.log.Warn("unknown power state byte", zap.String("byte", hex.EncodeToString([]byte{b})))
	}
	return p
}

// applyMode routes mode, selector, speed and color through the three effect families.
func (c *Codec) applyMode(s *DeviceState, r modeReport) {
	switch r.mode {
	case modeColor:
		s.setColor(r.rgb)
		s.ColorMode = ColorModeHS
		if r.selector == selectorColorOnly {
			s.Effect = EffectOff
			return
		}
		s.EffectSpeed = int(r.speed)
		switch {
		case r.selector == 1 && r.solidAsOff:
			s.Effect = EffectOff
		case r.selector >= 1 && r.selector <= staticEffectMax:
			s.Effect = c.resolve(lookupEffect(StaticEffectCode(int(r.selector))), "static")
		default:
			c.log.Debug("unexpected static effect selector", zap.Uint8("selector", r.selector))
			s.Effect = EffectOff
		}

	case modeSound:
		l := lookupEffect(SoundEffectCode(int(r.selector)))
		s.Effect = c.resolve(l, "sound reactive")
		if l.known {
			s.ColorMode = ColorModeBrightness
		} else {
			s.ColorMode = ColorModeHS
		}

	case modeEffect:
		l := lookupEffect(int(r.selector))
		s.Effect = c.resolve(l, "general")
		s.EffectSpeed = int(r.speed)
		if r.brightnessPct != nil {
			s.Brightness = percentToByte(*r.brightnessPct)
		}
		if l.known {
			s.ColorMode = ColorModeBrightness
		} else {
			s.ColorMode = ColorModeHS
		}

	default:
		c.log.Debug("unhandled mode", zap.Uint8("mode", r.mode))
	}
}

func (c *Codec) resolve(l effectLookup, family string) string {
	if !l.known {
		c.log.Warn("unknown effect, falling back to off",
			zap.String("family", family),
			zap.Int("code", l.code))
	}
	return l.nameOr(EffectOff)
}

func hasMarker(data []byte, off int, marker []byte) bool {
	return len(data) >= off+len(marker) && bytes.Equal(data[off:off+len(marker)], marker)
}

// Extended LED settings response:
//
//	0404 800000 0b 0c 15 00 63 00 0f 00 01 02 00 0f 01 85
//	             5  6  7  8  9 10 11 12 13 14 15 16 17 18
//
// 11 = LED count, 13 = segments, 14 = chip type, 15 = color order.
const (
	extLEDCountOffset   = 11
	extSegmentsOffset   = 13
	extChipTypeOffset   = 14
	extColorOrderOffset = 15
	extLEDSettingsLen   = 16

	extShortPowerOffset = 10
	extShortModeOffset  = 11
	extShortMinLen      = 14
	extShortColorLen    = 17

	extLongPowerOffset = 14
	extLongModeOffset  = 15
	extLongMinLen      = 21
	extLongBgOffset    = 21
)

func (c *Codec) applyExtendedNotification(s *DeviceState, data []byte) {
	switch {
	case hasMarker(data, extMarkerOffset, extLEDSettingsMarker):
		if len(data) < extLEDSettingsLen {
			c.log.Warn("LED settings response too short", zap.Int("length", len(data)))
			return
		}
		s.LEDCount = int(data[extLEDCountOffset])
		s.Segments = int(data[extSegmentsOffset])
		s.ChipType = ChipType(data[extChipTypeOffset])
		s.ColorOrder = ColorOrder(data[extColorOrderOffset])
		c.log.Debug("LED settings response",
			zap.Int("led_count", s.LEDCount),
			zap.Int("segments", s.Segments),
			zap.Stringer("chip_type", s.ChipType),
			zap.Stringer("color_order", s.ColorOrder))

	case hasMarker(data, extMarkerOffset, extShortStatusMarker):
		if len(data) < extShortMinLen {
			c.log.Warn("status response too short", zap.Int("length", len(data)))
			return
		}
		m := extShortModeOffset
		if data[m] == modeColor && len(data) < extShortColorLen {
			c.log.Warn("color status response too short", zap.Int("length", len(data)))
			return
		}
		r := modeReport{mode: data[m], selector: data[m+1], speed: data[m+2]}
		if r.mode == modeColor {
			r.rgb = rgbAt(data, m+3)
		}
		s.Power = c.power(data[extShortPowerOffset])
		c.applyMode(s, r)

	case hasMarker(data, extMarkerOffset, extLongStatusMarker):
		if len(data) < extLongMinLen {
			c.log.Warn("long status response too short", zap.Int("length", len(data)))
			return
		}
		m := extLongModeOffset
		// Brightness for the general effect family is not decoded here; its
		// offset in this message has not been confirmed against captures.
		r := modeReport{mode: data[m], selector: data[m+1], speed: data[m+2], rgb: rgbAt(data, m+3)}
		s.Power = c.power(data[extLongPowerOffset])
		c.applyMode(s, r)
		// The background triple is unreliable on this firmware; it is logged
		// but the user-controlled background state is kept.
		if len(data) >= extLongBgOffset+3 {
			c.log.Debug("background from device (not stored)",
				zap.Stringer("rgb", rgbAt(data, extLongBgOffset)))
		}

	default:
		c.log.Debug("unknown extended notification", hexField("data", data))
	}
}

// Legacy status payload layout (after hex decoding).
const (
	legacyPowerOffset    = 2
	legacyModeOffset     = 3
	legacySelectorOffset = 4
	legacySpeedOffset    = 5
	legacyColorOffset    = 6
	legacyBgOffset       = 9
	legacyLEDCountOffset = 12
	legacyStatusLen      = 13

	legacyWidthOffset      = 2
	legacySegmentsOffset   = 5
	legacyChipTypeOffset   = 6
	legacyColorOrderOffset = 7
	legacyLEDSettingsLen   = 8
)

func (c *Codec) applyLegacyNotification(s *DeviceState, data []byte) {
	payload, ok := c.legacyPayload(data)
	if !ok {
		return
	}

	switch {
	case payload[0] == legacyStatusTag:
		if len(payload) < legacyStatusLen {
			c.log.Warn("status payload too short", zap.Int("length", len(payload)))
			return
		}
		r := modeReport{
			mode:     payload[legacyModeOffset],
			selector: payload[legacySelectorOffset],
			speed:    payload[legacySpeedOffset],
			rgb:      rgbAt(payload, legacyColorOffset),
		}
		if r.mode == modeEffect {
			pct := payload[legacyColorOffset]
			r.brightnessPct = &pct
		}
		s.Power = c.power(payload[legacyPowerOffset])
		s.LEDCount = int(payload[legacyLEDCountOffset])
		c.applyMode(s, r)
		if r.mode == modeColor {
			c.log.Debug("background from device (not stored)",
				zap.Stringer("rgb", rgbAt(payload, legacyBgOffset)))
		}

	case len(payload) > 1 && payload[1] == legacyLEDSettingsTag:
		if len(payload) < legacyLEDSettingsLen {
			c.log.Warn("LED settings payload too short", zap.Int("length", len(payload)))
			return
		}
		width := int(payload[legacyWidthOffset])<<8 | int(payload[legacyWidthOffset+1])
		s.Segments = int(payload[legacySegmentsOffset])
		s.LEDCount = width * s.Segments
		s.ChipType = ChipType(payload[legacyChipTypeOffset])
		s.ColorOrder = ColorOrder(payload[legacyColorOrderOffset])
		c.log.Debug("LED settings response",
			zap.Int("led_count", s.LEDCount),
			zap.Int("segments", s.Segments),
			zap.Stringer("chip_type", s.ChipType),
			zap.Stringer("color_order", s.ColorOrder))

	default:
		c.log.Debug("unknown legacy payload", hexField("payload", payload))
	}
}

// legacyPayload extracts the last quoted hex string from a text frame and decodes it.
func (c *Codec) legacyPayload(data []byte) ([]byte, bool) {
	text := strings.ToValidUTF8(string(data), "")
	last := strings.LastIndexByte(text, '"')
	if last < 0 {
		c.log.Debug("no quoted payload in notification")
		return nil, false
	}
	first := strings.LastIndexByte(text[:last], '"')
	if first < 0 {
		c.log.Debug("unterminated quoted payload in notification")
		return nil, false
	}

	raw := text[first+1 : last]
	if raw == "" || !isHex(raw) {
		c.log.Debug("non-hex notification ignored", zap.String("payload", raw))
		return nil, false
	}
	payload, err := hex.DecodeString(raw)
	if err != nil {
		c.log.Debug("failed to decode hex payload", zap.String("payload", raw), zap.Error(err))
		return nil, false
	}
	c.log.Debug("legacy payload", hexField("payload", payload))
	return payload, true
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; {
		case ch >= '0' && ch <= '9', ch >= 'a' && ch <= 'f', ch >= 'A' && ch <= 'F':
		default:
			return false
		}
	}
	return true
}
