package agent

import (
	"fmt"

	"go.uber.org/zap"

	"lednetwf-controller/internal/core"
	"lednetwf-controller/internal/protocol"
	"lednetwf-controller/internal/scheduler"
)

// Patterns is the Lua pattern store and runner.
type Patterns interface {
	RunPattern(name string) error
	StopCurrentPattern()
	GetPatternCode(name string) (string, error)
	SavePatternCode(name, code string) error
	DeletePattern(name string) error
	GetPatternList() ([]string, error)
}

// Schedules is the persistent cron schedule store.
type Schedules interface {
	Add(spec, command string) (int, error)
	Remove(id int) error
	List() []scheduler.Entry
}

// CommandHandler executes commands from every front end against the device.
type CommandHandler struct {
	log       *zap.Logger
	device    *Device
	patterns  Patterns
	schedules Schedules
	bus       *core.EventBus
}

// NewCommandHandler wires a handler. patterns and schedules may be nil.
func NewCommandHandler(d *Device, p Patterns, s Schedules, bus *core.EventBus, log *zap.Logger) *CommandHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CommandHandler{log: log, device: d, patterns: p, schedules: s, bus: bus}
}

// Handle runs one command. Errors are returned for the caller to log.
func (h *CommandHandler) Handle(cmd core.Command) error {
	h.log.Debug("handling command", zap.String("type", string(cmd.Type)), zap.Any("payload", cmd.Payload))

	switch cmd.Type {
	case core.CmdSetPower:
		on, err := cmd.Bool("isOn")
		if err != nil {
			return err
		}
		h.stopPattern()
		return h.device.SetPower(on)

	case core.CmdSetColor:
		hs, brightness, err := h.colorFromPayload(cmd)
		if err != nil {
			return err
		}
		h.stopPattern()
		return h.device.SetColor(hs, brightness)

	case core.CmdSetBgColor:
		hs, brightness, err := h.colorFromPayload(cmd)
		if err != nil {
			return err
		}
		return h.device.SetBgColor(hs, brightness)

	case core.CmdSetBrightness:
		v, err := cmd.Int("value")
		if err != nil {
			return err
		}
		return h.device.SetBrightness(v)

	case core.CmdSetEffect:
		name, err := cmd.String("name")
		if err != nil {
			return err
		}
		h.stopPattern()
		return h.device.SetEffect(name)

	case core.CmdSetLEDSettings:
		o, err := ledSettingsFromPayload(cmd)
		if err != nil {
			return err
		}
		return h.device.SetLEDSettings(o)

	case core.CmdSyncTime:
		return h.device.SyncTime()

	case core.CmdQueryState:
		return h.device.QueryState()

	case core.CmdRunPattern, core.CmdStopPattern, core.CmdGetPatternCode, core.CmdSavePattern, core.CmdDeletePattern:
		return h.handlePattern(cmd)

	case core.CmdAddSchedule, core.CmdRemoveSchedule:
		return h.handleSchedule(cmd)

	default:
		return fmt.Errorf("unknown command type %q", cmd.Type)
	}
}

func (h *CommandHandler) stopPattern() {
	if h.patterns != nil {
		h.patterns.StopCurrentPattern()
	}
}

func (h *CommandHandler) handlePattern(cmd core.Command) error {
	if h.patterns == nil {
		return fmt.Errorf("%s: patterns disabled", cmd.Type)
	}
	if cmd.Type == core.CmdStopPattern {
		h.patterns.StopCurrentPattern()
		return nil
	}

	name, err := cmd.String("name")
	if err != nil {
		return err
	}

	switch cmd.Type {
	case core.CmdRunPattern:
		return h.patterns.RunPattern(name)

	case core.CmdGetPatternCode:
		code, err := h.patterns.GetPatternCode(name)
		if err != nil {
			return fmt.Errorf("get pattern code: %w", err)
		}
		h.bus.Publish(core.Event{Type: core.PatternCodeEvent, Payload: core.PatternCodePayload{Name: name, Code: code}})
		return nil

	case core.CmdSavePattern:
		code, err := cmd.String("code")
		if err != nil {
			return err
		}
		if err := h.patterns.SavePatternCode(name, code); err != nil {
			return fmt.Errorf("save pattern: %w", err)
		}

	case core.CmdDeletePattern:
		if err := h.patterns.DeletePattern(name); err != nil {
			return fmt.Errorf("delete pattern '%s': %w", name, err)
		}
	}

	patterns, err := h.patterns.GetPatternList()
	if err != nil {
		return err
	}
	h.bus.Publish(core.Event{Type: core.PatternListChangedEvent, Payload: patterns})
	return nil
}

func (h *CommandHandler) handleSchedule(cmd core.Command) error {
	if h.schedules == nil {
		return fmt.Errorf("%s: scheduler disabled", cmd.Type)
	}

	switch cmd.Type {
	case core.CmdAddSchedule:
		spec, err := cmd.String("spec")
		if err != nil {
			return err
		}
		command, err := cmd.String("command")
		if err != nil {
			return err
		}
		if _, err := h.schedules.Add(spec, command); err != nil {
			return err
		}
	case core.CmdRemoveSchedule:
		id, err := cmd.Int("id")
		if err != nil {
			return err
		}
		if err := h.schedules.Remove(id); err != nil {
			return err
		}
	}

	h.bus.Publish(core.Event{Type: core.ScheduleListChangedEvent, Payload: h.schedules.List()})
	return nil
}

// colorFromPayload accepts either hue/saturation[/brightness] or r/g/b.
// Without an explicit brightness the current one is kept.
func (h *CommandHandler) colorFromPayload(cmd core.Command) (protocol.HS, int, error) {
	if cmd.Has("r") || cmd.Has("g") || cmd.Has("b") {
		var rgb [3]int
		for i, k := range []string{"r", "g", "b"} {
			v, err := cmd.Int(k)
			if err != nil {
				return protocol.HS{}, 0, err
			}
			rgb[i] = v
		}
		hs, brightness := protocol.RGB{R: uint8(clamp(rgb[0])), G: uint8(clamp(rgb[1])), B: uint8(clamp(rgb[2]))}.ToHSV()
		return hs, brightness, nil
	}

	hue, err := cmd.Number("hue")
	if err != nil {
		return protocol.HS{}, 0, err
	}
	sat, err := cmd.Number("saturation")
	if err != nil {
		return protocol.HS{}, 0, err
	}

	brightness := 255
	if cmd.Has("brightness") {
		if brightness, err = cmd.Int("brightness"); err != nil {
			return protocol.HS{}, 0, err
		}
	} else if s, ok := h.device.Snapshot(); ok {
		brightness = s.Brightness
	}
	return protocol.HS{Hue: hue, Saturation: sat}, brightness, nil
}

// ledSettingsFromPayload leaves absent options nil; the codec rejects them.
func ledSettingsFromPayload(cmd core.Command) (protocol.LEDSettings, error) {
	var o protocol.LEDSettings
	if cmd.Has("ledCount") {
		n, err := cmd.Int("ledCount")
		if err != nil {
			return o, err
		}
		o.LEDCount = &n
	}
	if cmd.Has("chipType") {
		s, err := cmd.String("chipType")
		if err != nil {
			return o, err
		}
		chip, err := protocol.ParseChipType(s)
		if err != nil {
			return o, err
		}
		o.ChipType = &chip
	}
	if cmd.Has("colorOrder") {
		s, err := cmd.String("colorOrder")
		if err != nil {
			return o, err
		}
		order, err := protocol.ParseColorOrder(s)
		if err != nil {
			return o, err
		}
		o.ColorOrder = &order
	}
	if cmd.Has("segments") {
		n, err := cmd.Int("segments")
		if err != nil {
			return o, err
		}
		o.Segments = n
	}
	return o, nil
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
