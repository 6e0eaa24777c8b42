package protocol

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Command templates. Bytes 0..7 are the transport header (sequence, 0x80,
// body length, body length+1, command class); the body follows and the last
// byte is the checksum of the body.
var (
	colorTemplate = [...]byte{
		0x00, 0x00, 0x80, 0x00, 0x00, 0x0d, 0x0e, 0x0b,
		0x41, 0x02, 0xff, 0x00, 0x00, 0x00, 0x00, 0x00, 0x32, 0x00, 0x00, 0xf0,
		0x64,
	}
	soundTemplate = [...]byte{
		0x00, 0x22, 0x80, 0x00, 0x00, 0x0d, 0x0e, 0x0b,
		0x73, 0x00, 0x26, 0x01, 0xff, 0x00, 0x00, 0xff, 0x00, 0x00, 0x20, 0x1a,
		0xd2,
	}
	effectTemplate = [...]byte{
		0x00, 0x00, 0x80, 0x00, 0x00, 0x05, 0x06, 0x0b,
		0x42, 0x01, 0x32, 0x64,
		0xd9,
	}
	ledSettingsTemplate = [...]byte{
		0x00, 0x00, 0x80, 0x00, 0x00, 0x0b, 0x0c, 0x0b,
		0x62, 0x00, 0x64, 0x00, 0x03, 0x01, 0x00, 0x64, 0x03, 0xf0,
		0x21,
	}
	powerTemplate = [...]byte{
		0x00, 0x04, 0x80, 0x00, 0x00, 0x0d, 0x0e, 0x0b,
		0x3b, 0x23, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x32, 0x00, 0x00,
		0x90,
	}
	timeSyncTemplate = [...]byte{
		0x00, 0x01, 0x80, 0x00, 0x00, 0x0c, 0x0d, 0x0b,
		0x10, 0x14, 0x19, 0x09, 0x05, 0x0d, 0x2b, 0x38, 0x05, 0x00, 0x0f,
		0xcf,
	}
)

// Query templates, sent after connecting to make the controller report its state.
var (
	legacyStatusQuery      = [...]byte{0x00, 0x01, 0x80, 0x00, 0x00, 0x04, 0x05, 0x0a, 0x81, 0x8a, 0x8b, 0x96}
	legacyLEDSettingsQuery = [...]byte{0x00, 0x00, 0x80, 0x00, 0x00, 0x05, 0x06, 0x0a, 0x63, 0x12, 0x21, 0xf0, 0x86}
	extStatusQuery         = [...]byte{0x00, 0x14, 0x80, 0x00, 0x00, 0x05, 0x06, 0x0a, 0x44, 0x4a, 0x4b, 0x0f, 0xe8}
	extLEDSettingsQuery    = [...]byte{0x00, 0x05, 0x80, 0x00, 0x00, 0x05, 0x06, 0x0a, 0x63, 0x12, 0x21, 0x0f, 0xa5}
	extDeviceSettingsQuery = [...]byte{0x00, 0x02, 0x80, 0x00, 0x00, 0x02, 0x03, 0x17, 0x22, 0x22}
)

// Field offsets in the color/static effect packet.
const (
	colorSubModeOffset = 9
	colorFgOffset      = 10
	colorBgOffset      = 13
	colorSpeedOffset   = 16

	// subModeUnchanged keeps whichever static effect is running and only
	// replaces its colors.
	subModeUnchanged = 0x00
)

// Field offsets in the sound-reactive effect packet.
const (
	soundOnOffset         = 9
	soundIDOffset         = 11
	soundFgOffset         = 12
	soundBgOffset         = 15
	soundSensitiveOffset  = 18
	soundBrightnessOffset = 19
)

// Field offsets in the general effect packet.
const (
	effectIDOffset         = 9
	effectSpeedOffset      = 10
	effectBrightnessOffset = 11
)

// Field offsets in the LED settings packet.
const (
	ledCountOffset     = 9
	ledSegmentsOffset  = 12
	ledChipTypeOffset  = 13
	ledOrderOffset     = 14
	ledCountLowOffset  = 15
	ledSegments2Offset = 16
)

const powerStateOffset = 9

// unknownEffectPrefix marks placeholder names some front ends show for
// effects they could not resolve. Requests for them are ignored.
const unknownEffectPrefix = "Unknown Effect"

// SetColor records a foreground color and returns the packet that sets it.
// The running static effect, if any, is kept and recolored.
func (c *Codec) SetColor(s *DeviceState, hs HS, brightness int) []byte {
	s.ColorMode = ColorModeHS
	s.HSColor = hs
	s.Brightness = clampByte(brightness)

	p := colorTemplate
	p[colorSubModeOffset] = subModeUnchanged
	s.RGB().put(p[:], colorFgOffset)
	s.BgRGB().put(p[:], colorBgOffset)
	p[colorSpeedOffset] = byte(s.EffectSpeed)
	c.log.Debug("set color packet",
		zap.Stringer("fg", s.RGB()),
		zap.Stringer("bg", s.BgRGB()),
		hexField("packet", p[:]))
	return sealPacket(p[:])
}

// SetBgColor records a background color and returns the packet that sets it.
// The foreground color is preserved.
func (c *Codec) SetBgColor(s *DeviceState, hs HS, brightness int) []byte {
	s.setBackground(hs, clampByte(brightness))

	p := colorTemplate
	p[colorSubModeOffset] = subModeUnchanged
	s.RGB().put(p[:], colorFgOffset)
	s.BgRGB().put(p[:], colorBgOffset)
	p[colorSpeedOffset] = byte(s.EffectSpeed)
	c.log.Debug("set background packet",
		zap.Stringer("fg", s.RGB()),
		zap.Stringer("bg", s.BgRGB()),
		hexField("packet", p[:]))
	return sealPacket(p[:])
}

// SetEffect selects a catalog effect at the given brightness. Names with the
// "Unknown Effect" prefix are ignored and yield a nil packet.
func (c *Codec) SetEffect(s *DeviceState, name string, onBrightness int) ([]byte, error) {
	if strings.HasPrefix(name, unknownEffectPrefix) {
		c.log.Warn("ignoring request for unknown effect", zap.String("effect", name))
		return nil, nil
	}
	code, ok := EffectCode(name)
	if !ok {
		c.log.Error("effect not in catalog", zap.String("effect", name))
		return nil, fmt.Errorf("set effect %q: %w", name, ErrUnknownEffect)
	}

	if s.BgBrightness == nil {
		hs := s.HSColor
		s.setBackground(hs, s.Brightness)
		c.log.Debug("background initialised from foreground",
			zap.Float64("hue", hs.Hue),
			zap.Float64("saturation", hs.Saturation),
			zap.Int("brightness", s.Brightness))
	}

	s.Effect = name
	s.Brightness = clampByte(onBrightness)
	native := nativeEffectID(code)

	var p []byte
	switch family := EffectFamilyOf(code); family {
	case StaticEffect:
		t := colorTemplate
		t[colorSubModeOffset] = byte(native)
		s.RGB().put(t[:], colorFgOffset)
		s.BgRGB().put(t[:], colorBgOffset)
		t[colorSpeedOffset] = byte(s.EffectSpeed)
		p = t[:]

	case SoundEffect:
		t := soundTemplate
		t[soundOnOffset] = 1
		t[soundIDOffset] = byte(native)
		s.RGB().put(t[:], soundFgOffset)
		s.BgRGB().put(t[:], soundBgOffset)
		// Speed doubles as microphone sensitivity.
		t[soundSensitiveOffset] = byte(s.EffectSpeed)
		t[soundBrightnessOffset] = byteToPercent(s.Brightness)
		p = t[:]

	default:
		s.ColorMode = ColorModeBrightness
		t := effectTemplate
		t[effectIDOffset] = byte(native)
		t[effectSpeedOffset] = byte(s.EffectSpeed)
		t[effectBrightnessOffset] = byteToPercent(s.Brightness)
		p = t[:]
	}

	sealPacket(p)
	c.log.Debug("set effect packet",
		zap.String("effect", name),
		zap.Int("code", code),
		zap.Int("native", native),
		hexField("packet", p))
	return p, nil
}

// SetBrightness re-encodes the current color or effect at a new brightness.
// It returns a nil packet if the brightness is unchanged.
func (c *Codec) SetBrightness(s *DeviceState, brightness int) ([]byte, error) {
	if brightness == s.Brightness {
		c.log.Debug("brightness already set", zap.Int("brightness", brightness))
		return nil, nil
	}
	brightness = clampByte(brightness)

	switch s.ColorMode {
	case ColorModeHS:
		return c.SetColor(s, s.HSColor, brightness), nil
	case ColorModeBrightness:
		return c.SetEffect(s, s.Effect, brightness)
	default:
		c.log.Error("cannot set brightness", zap.Stringer("color_mode", s.ColorMode))
		return nil, fmt.Errorf("set brightness: %w: %v", ErrUnknownColorMode, s.ColorMode)
	}
}

// SetPower records the requested power state and returns the packet for it.
func (c *Codec) SetPower(s *DeviceState, on bool) []byte {
	p := powerTemplate
	if on {
		s.Power = PowerOn
		p[powerStateOffset] = powerOnByte
	} else {
		s.Power = PowerOff
		p[powerStateOffset] = powerOffByte
	}
	return sealPacket(p[:])
}

// LEDSettings describes the physical strip. LEDCount, ChipType and ColorOrder
// are required; Segments defaults to 1.
type LEDSettings struct {
	LEDCount   *int
	ChipType   *ChipType
	ColorOrder *ColorOrder
	Segments   int
}

// SetLEDSettings records the strip configuration and returns the packet for it.
// The controller only applies the settings after the caller stops the
// connection once the packet has been written.
func (c *Codec) SetLEDSettings(s *DeviceState, o LEDSettings) ([]byte, error) {
	switch {
	case o.LEDCount == nil:
		return nil, c.ledOptionError("led count")
	case o.ChipType == nil:
		return nil, c.ledOptionError("chip type")
	case o.ColorOrder == nil:
		return nil, c.ledOptionError("color order")
	}
	segments := o.Segments
	if segments == 0 {
		segments = 1
	}
	if *o.LEDCount < 0 || *o.LEDCount > 0xffff {
		return nil, fmt.Errorf("led count %d: %w", *o.LEDCount, ErrLEDOptionRange)
	}
	if segments < 0 || segments > 0xff {
		return nil, fmt.Errorf("segments %d: %w", segments, ErrLEDOptionRange)
	}

	s.LEDCount = *o.LEDCount
	s.ChipType = *o.ChipType
	s.ColorOrder = *o.ColorOrder
	s.Segments = segments

	p := ledSettingsTemplate
	p[ledCountOffset] = byte(s.LEDCount >> 8)
	p[ledCountOffset+1] = byte(s.LEDCount)
	p[ledSegmentsOffset] = byte(segments)
	p[ledChipTypeOffset] = byte(s.ChipType)
	p[ledOrderOffset] = byte(s.ColorOrder)
	p[ledCountLowOffset] = byte(s.LEDCount & 0xff)
	p[ledSegments2Offset] = byte(segments)
	sealPacket(p[:])

	c.log.Debug("LED settings packet",
		zap.Int("led_count", s.LEDCount),
		zap.Int("segments", segments),
		zap.Stringer("chip_type", s.ChipType),
		zap.Stringer("color_order", s.ColorOrder),
		hexField("packet", p[:]))
	return p[:], nil
}

func (c *Codec) ledOptionError(option string) error {
	c.log.Error("LED settings not sent", zap.String("missing", option))
	return fmt.Errorf("%s: %w", option, ErrMissingLEDOption)
}

// TimeSyncPacket sets the controller clock to t.
func TimeSyncPacket(t time.Time) []byte {
	p := timeSyncTemplate
	p[9] = byte(t.Year() / 100)
	p[10] = byte(t.Year() % 100)
	p[11] = byte(t.Month())
	p[12] = byte(t.Day())
	p[13] = byte(t.Hour())
	p[14] = byte(t.Minute())
	p[15] = byte(t.Second())
	wd := t.Weekday()
	if wd == time.Sunday {
		wd = 7
	}
	p[16] = byte(wd)
	return sealPacket(p[:])
}

// QueryPackets returns the packets to send after connecting, in order.
func QueryPackets(d Dialect) [][]byte {
	clone := func(b []byte) []byte { return append([]byte(nil), b...) }
	if d == ExtendedDialect {
		return [][]byte{
			clone(extDeviceSettingsQuery[:]),
			clone(extLEDSettingsQuery[:]),
			clone(extStatusQuery[:]),
		}
	}
	return [][]byte{
		clone(legacyLEDSettingsQuery[:]),
		clone(legacyStatusQuery[:]),
	}
}
