package server

import "lednetwf-controller/internal/protocol"

// Outgoing message types.
const (
	MsgDeviceState   = "device_state"
	MsgBLEStatus     = "ble_status"
	MsgEffectList    = "effect_list"
	MsgPatternList   = "pattern_list"
	MsgPatternStatus = "pattern_status"
	MsgPatternCode   = "pattern_code"
	MsgScheduleList  = "schedule_list"
)

// Message represents an outgoing JSON message sent to WebSocket clients.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// NewMessage creates a new structured Message for broadcasting to clients.
func NewMessage(msgType string, payload interface{}) Message {
	return Message{Type: msgType, Payload: payload}
}

// DeviceStateView is the UI rendering of protocol.DeviceState.
type DeviceStateView struct {
	Power        string  `json:"power"`
	ColorMode    string  `json:"colorMode"`
	Hue          float64 `json:"hue"`
	Saturation   float64 `json:"saturation"`
	Brightness   int     `json:"brightness"`
	Hex          string  `json:"hex"`
	BgHex        string  `json:"bgHex"`
	BgBrightness *int    `json:"bgBrightness,omitempty"`
	Effect       string  `json:"effect"`
	EffectSpeed  int     `json:"effectSpeed"`
	LEDCount     int     `json:"ledCount"`
	ChipType     string  `json:"chipType"`
	ColorOrder   string  `json:"colorOrder"`
	Segments     int     `json:"segments"`
	Firmware     string  `json:"firmware"`
}

// NewDeviceStateView flattens a state snapshot for JSON clients.
func NewDeviceStateView(s protocol.DeviceState) DeviceStateView {
	return DeviceStateView{
		Power:        s.Power.String(),
		ColorMode:    s.ColorMode.String(),
		Hue:          s.HSColor.Hue,
		Saturation:   s.HSColor.Saturation,
		Brightness:   s.Brightness,
		Hex:          s.RGB().String(),
		BgHex:        s.BgRGB().String(),
		BgBrightness: s.BgBrightness,
		Effect:       s.Effect,
		EffectSpeed:  s.EffectSpeed,
		LEDCount:     s.LEDCount,
		ChipType:     s.ChipType.String(),
		ColorOrder:   s.ColorOrder.String(),
		Segments:     s.Segments,
		Firmware:     s.Firmware(),
	}
}
