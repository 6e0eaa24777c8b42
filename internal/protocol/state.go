package protocol

import (
	"fmt"
	"strings"
)

// ExtendedFirmwareMajor marks controllers that send raw-hex notifications.
const ExtendedFirmwareMajor = 0x80

// Dialect selects the notification format a controller speaks.
type Dialect int

const (
	LegacyDialect Dialect = iota
	ExtendedDialect
)

func (d Dialect) String() string {
	if d == ExtendedDialect {
		return "extended"
	}
	return "legacy"
}

// PowerState is a tri-state power flag.
type PowerState int

const (
	PowerUnknown PowerState = iota
	PowerOn
	PowerOff
)

func (p PowerState) String() string {
	switch p {
	case PowerOn:
		return "on"
	case PowerOff:
		return "off"
	default:
		return "unknown"
	}
}

// Wire values of the power byte.
const (
	powerOnByte  = 0x23
	powerOffByte = 0x24
)

func decodePower(b byte) PowerState {
	switch b {
	case powerOnByte:
		return PowerOn
	case powerOffByte:
		return PowerOff
	default:
		return PowerUnknown
	}
}

// ColorMode tells whether the foreground is a color or a brightness-only effect.
type ColorMode int

const (
	ColorModeUnknown ColorMode = iota
	ColorModeHS
	ColorModeBrightness
)

func (m ColorMode) String() string {
	switch m {
	case ColorModeHS:
		return "hs"
	case ColorModeBrightness:
		return "brightness"
	default:
		return "unknown"
	}
}

// ChipType is the addressable LED chip the strip is built from.
type ChipType byte

const (
	ChipWS2812B    ChipType = 0x01
	ChipSM16703    ChipType = 0x02
	ChipSM16704    ChipType = 0x03
	ChipWS2811     ChipType = 0x04
	ChipUCS1903    ChipType = 0x05
	ChipSK6812     ChipType = 0x06
	ChipSK6812RGBW ChipType = 0x07
	ChipINK1003    ChipType = 0x08
	ChipUCS2904B   ChipType = 0x09
)

var chipTypeNames = map[ChipType]string{
	ChipWS2812B:    "WS2812B",
	ChipSM16703:    "SM16703",
	ChipSM16704:    "SM16704",
	ChipWS2811:     "WS2811",
	ChipUCS1903:    "UCS1903",
	ChipSK6812:     "SK6812",
	ChipSK6812RGBW: "SK6812RGBW",
	ChipINK1003:    "INK1003",
	ChipUCS2904B:   "UCS2904B",
}

func (c ChipType) String() string {
	if name, ok := chipTypeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(0x%02X)", byte(c))
}

// ParseChipType resolves a chip name such as "WS2812B" (case-insensitive).
func ParseChipType(s string) (ChipType, error) {
	for c, name := range chipTypeNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown chip type %q", s)
}

// ColorOrder is the channel wiring order of the strip.
type ColorOrder byte

const (
	OrderRGB ColorOrder = iota
	OrderRBG
	OrderGRB
	OrderGBR
	OrderBRG
	OrderBGR
)

var colorOrderNames = [...]string{"RGB", "RBG", "GRB", "GBR", "BRG", "BGR"}

func (o ColorOrder) String() string {
	if int(o) < len(colorOrderNames) {
		return colorOrderNames[o]
	}
	return fmt.Sprintf("Unknown(0x%02X)", byte(o))
}

// ParseColorOrder resolves an order name such as "GRB" (case-insensitive).
func ParseColorOrder(s string) (ColorOrder, error) {
	for i, name := range colorOrderNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return ColorOrder(i), nil
		}
	}
	return 0, fmt.Errorf("unknown color order %q", s)
}

// DeviceState is the known condition of one controller.
type DeviceState struct {
	Power        PowerState
	ColorMode    ColorMode
	HSColor      HS
	Brightness   int
	BgHSColor    *HS
	BgBrightness *int
	Effect       string
	EffectSpeed  int

	LEDCount   int
	ChipType   ChipType
	ColorOrder ColorOrder
	Segments   int

	fwMajor byte
	fwMinor byte
}

// Default values of a freshly discovered controller.
const (
	defaultEffectSpeed = 0x32
	defaultBrightness  = 255
)

// NewDeviceState returns a state for a controller with the given firmware version.
func NewDeviceState(fwMajor, fwMinor byte) *DeviceState {
	return &DeviceState{
		ColorMode:   ColorModeHS,
		Brightness:  defaultBrightness,
		Effect:      EffectOff,
		EffectSpeed: defaultEffectSpeed,
		Segments:    1,
		fwMajor:     fwMajor,
		fwMinor:     fwMinor,
	}
}

// FirmwareMajor returns the major firmware version read at construction.
func (s *DeviceState) FirmwareMajor() byte { return s.fwMajor }

// FirmwareMinor returns the minor firmware version read at construction.
func (s *DeviceState) FirmwareMinor() byte { return s.fwMinor }

// Firmware formats the firmware version as "major.minor" in hex.
func (s *DeviceState) Firmware() string {
	return fmt.Sprintf("%02X.%02X", s.fwMajor, s.fwMinor)
}

// Dialect returns the notification dialect selected by the firmware major version.
func (s *DeviceState) Dialect() Dialect {
	if s.fwMajor == ExtendedFirmwareMajor {
		return ExtendedDialect
	}
	return LegacyDialect
}

// RGB returns the foreground color at the current brightness.
func (s *DeviceState) RGB() RGB {
	return HSVToRGB(s.HSColor, s.Brightness)
}

// BgRGB returns the background color, or black if none was ever recorded.
func (s *DeviceState) BgRGB() RGB {
	if s.BgHSColor == nil || s.BgBrightness == nil {
		return RGB{}
	}
	return HSVToRGB(*s.BgHSColor, *s.BgBrightness)
}

// EffectActive reports whether a catalog effect is selected.
func (s *DeviceState) EffectActive() bool {
	return s.Effect != "" && s.Effect != EffectOff
}

// Clone returns a deep copy of s.
func (s *DeviceState) Clone() DeviceState {
	c := *s
	if s.BgHSColor != nil {
		hs := *s.BgHSColor
		c.BgHSColor = &hs
	}
	if s.BgBrightness != nil {
		b := *s.BgBrightness
		c.BgBrightness = &b
	}
	return c
}

func (s *DeviceState) setColor(rgb RGB) {
	s.HSColor, s.Brightness = rgb.ToHSV()
}

func (s *DeviceState) setBackground(hs HS, brightness int) {
	s.BgHSColor = &hs
	s.BgBrightness = &brightness
}
