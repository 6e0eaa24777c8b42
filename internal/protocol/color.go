package protocol

import (
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// HS is a hue/saturation pair. Hue is in degrees [0,360), saturation in percent [0,100].
type HS struct {
	Hue        float64 `json:"hue" yaml:"hue"`
	Saturation float64 `json:"saturation" yaml:"saturation"`
}

// RGB is an 8-bit color triple as carried on the wire.
type RGB struct {
	R, G, B uint8
}

func rgbAt(b []byte, off int) RGB {
	return RGB{R: b[off], G: b[off+1], B: b[off+2]}
}

func (c RGB) put(b []byte, off int) {
	b[off], b[off+1], b[off+2] = c.R, c.G, c.B
}

func (c RGB) String() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// ToHSV converts c into a hue/saturation pair and a 0..255 value channel.
func (c RGB) ToHSV() (HS, int) {
	h, s, v := colorful.Color{
		R: float64(c.R) / 255,
		G: float64(c.G) / 255,
		B: float64(c.B) / 255,
	}.Hsv()
	return HS{Hue: h, Saturation: s * 100}, int(math.Round(v * 255))
}

// HSVToRGB converts a hue/saturation pair and a 0..255 brightness into RGB.
func HSVToRGB(hs HS, brightness int) RGB {
	hue := math.Mod(hs.Hue, 360)
	if hue < 0 {
		hue += 360
	}
	sat := math.Min(math.Max(hs.Saturation, 0), 100) / 100
	val := float64(clampByte(brightness)) / 255

	r, g, b := colorful.Hsv(hue, sat, val).Clamped().RGB255()
	return RGB{R: r, G: g, B: b}
}

// percentToByte rescales a 0..100 percentage to 0..255.
func percentToByte(p byte) int {
	return int(math.Round(float64(p) * 255 / 100))
}

// byteToPercent rescales a 0..255 brightness to 0..100.
func byteToPercent(v int) byte {
	return byte(math.Round(float64(clampByte(v)) * 100 / 255))
}

func clampByte(v int) int {
	return min(255, max(0, v))
}
