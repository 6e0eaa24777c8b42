package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	"lednetwf-controller/internal/config"
	"lednetwf-controller/internal/core"
	"lednetwf-controller/internal/protocol"
)

// lightPayload is the Home Assistant JSON-schema light message, used for
// both commands and state.
type lightPayload struct {
	State      string   `json:"state,omitempty"`
	Brightness *int     `json:"brightness,omitempty"`
	ColorMode  string   `json:"color_mode,omitempty"`
	Color      *hsColor `json:"color,omitempty"`
	Effect     string   `json:"effect,omitempty"`
}

type hsColor struct {
	H float64 `json:"h"`
	S float64 `json:"s"`
}

func powerString(p protocol.PowerState) string {
	if p == protocol.PowerOn {
		return "ON"
	}
	return "OFF"
}

func lightState(s protocol.DeviceState) lightPayload {
	brightness := s.Brightness
	return lightPayload{
		State:      powerString(s.Power),
		Brightness: &brightness,
		ColorMode:  "hs",
		Color:      &hsColor{H: s.HSColor.Hue, S: s.HSColor.Saturation},
		Effect:     s.Effect,
	}
}

func backgroundState(s protocol.DeviceState) lightPayload {
	p := lightPayload{State: powerString(s.Power), ColorMode: "hs"}
	if s.BgHSColor != nil && s.BgBrightness != nil {
		brightness := *s.BgBrightness
		p.Brightness = &brightness
		p.Color = &hsColor{H: s.BgHSColor.Hue, S: s.BgHSColor.Saturation}
	}
	return p
}

// lightCommands translates a foreground command message.
func lightCommands(data []byte) ([]core.Command, error) {
	var p lightPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("light command: %w", err)
	}

	var cmds []core.Command
	switch strings.ToUpper(p.State) {
	case "OFF":
		return []core.Command{core.NewCommand(core.CmdSetPower, "isOn", false)}, nil
	case "ON":
		cmds = append(cmds, core.NewCommand(core.CmdSetPower, "isOn", true))
	case "":
	default:
		return nil, fmt.Errorf("light command: unknown state %q", p.State)
	}

	switch {
	case p.Effect != "":
		cmds = append(cmds, core.NewCommand(core.CmdSetEffect, "name", p.Effect))
		if p.Brightness != nil {
			cmds = append(cmds, core.NewCommand(core.CmdSetBrightness, "value", *p.Brightness))
		}
	case p.Color != nil:
		cmd := core.NewCommand(core.CmdSetColor, "hue", p.Color.H, "saturation", p.Color.S)
		if p.Brightness != nil {
			cmd.Payload["brightness"] = *p.Brightness
		}
		cmds = append(cmds, cmd)
	case p.Brightness != nil:
		cmds = append(cmds, core.NewCommand(core.CmdSetBrightness, "value", *p.Brightness))
	}
	return cmds, nil
}

// backgroundCommands translates a background command message. Missing parts
// of the color are taken from last.
func backgroundCommands(data []byte, last *protocol.DeviceState) ([]core.Command, error) {
	var p lightPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("background command: %w", err)
	}
	if strings.EqualFold(p.State, "OFF") {
		return []core.Command{core.NewCommand(core.CmdSetBgColor, "hue", 0.0, "saturation", 0.0, "brightness", 0)}, nil
	}
	if p.Color == nil && p.Brightness == nil {
		return nil, nil
	}

	hs, brightness := protocol.HS{}, 255
	if last != nil && last.BgHSColor != nil {
		hs = *last.BgHSColor
	}
	if last != nil && last.BgBrightness != nil {
		brightness = *last.BgBrightness
	}
	if p.Color != nil {
		hs = protocol.HS{Hue: p.Color.H, Saturation: p.Color.S}
	}
	if p.Brightness != nil {
		brightness = *p.Brightness
	}
	return []core.Command{core.NewCommand(core.CmdSetBgColor,
		"hue", hs.Hue, "saturation", hs.Saturation, "brightness", brightness)}, nil
}

// sanitizeID keeps characters Home Assistant accepts in object IDs.
func sanitizeID(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-':
			return r
		}
		return -1
	}, s)
}

type discovery struct {
	topic   string
	payload map[string]interface{}
}

// discoveryConfigs builds the foreground and background light entities.
func discoveryConfigs(cfg config.MQTTConfig, prefix string) []discovery {
	id := sanitizeID(cfg.ClientID)
	device := map[string]interface{}{
		"identifiers":  []string{id},
		"name":         "LEDnetWF Controller",
		"manufacturer": "Zengge",
		"model":        "LEDnetWF BLE strip",
	}
	availability := []map[string]string{
		{
			"topic":                 prefix + "/availability",
			"payload_available":     "online",
			"payload_not_available": "offline",
		},
		{
			"topic":                 prefix + "/connection",
			"payload_available":     "connected",
			"payload_not_available": "disconnected",
		},
	}
	entity := func(kind, name string) map[string]interface{} {
		return map[string]interface{}{
			"name":                  name,
			"unique_id":             id + "_" + kind,
			"object_id":             id + "_" + kind,
			"schema":                "json",
			"command_topic":         fmt.Sprintf("%s/%s/set", prefix, kind),
			"state_topic":           fmt.Sprintf("%s/%s/state", prefix, kind),
			"brightness":            true,
			"brightness_scale":      255,
			"supported_color_modes": []string{"hs"},
			"availability_mode":     "all",
			"availability":          availability,
			"device":                device,
		}
	}

	light := entity("light", "Light")
	light["icon"] = "mdi:led-strip"
	light["effect"] = true
	light["effect_list"] = protocol.EffectNames()

	background := entity("background", "Background")
	background["icon"] = "mdi:led-strip-variant"

	return []discovery{
		{fmt.Sprintf("%s/light/%s/light/config", cfg.HADiscoveryPrefix, id), light},
		{fmt.Sprintf("%s/light/%s/background/config", cfg.HADiscoveryPrefix, id), background},
	}
}
