package core

import (
	"errors"
	"fmt"
	"strconv"
)

// CommandType defines the type of command being dispatched.
type CommandType string

const (
	CmdSetPower       CommandType = "setPower"
	CmdSetColor       CommandType = "setColor"
	CmdSetBgColor     CommandType = "setBgColor"
	CmdSetBrightness  CommandType = "setBrightness"
	CmdSetEffect      CommandType = "setEffect"
	CmdSetLEDSettings CommandType = "setLedSettings"
	CmdSyncTime       CommandType = "syncTime"
	CmdQueryState     CommandType = "queryState"
	CmdRunPattern     CommandType = "runPattern"
	CmdStopPattern    CommandType = "stopPattern"
	CmdAddSchedule    CommandType = "addSchedule"
	CmdRemoveSchedule CommandType = "removeSchedule"
	CmdGetPatternCode CommandType = "getPatternCode"
	CmdSavePattern    CommandType = "savePatternCode"
	CmdDeletePattern  CommandType = "deletePattern"
)

var (
	ErrMissingField = errors.New("missing payload field")
	ErrFieldType    = errors.New("payload field has wrong type")
)

// Command is the envelope for incoming requests to change state or perform actions.
// Payload values follow encoding/json conventions: numbers are float64.
type Command struct {
	Type    CommandType            `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

// CommandChannel is the single channel that the core Agent listens to for commands.
type CommandChannel chan Command

// NewCommand builds a command from key/value pairs.
func NewCommand(t CommandType, kv ...interface{}) Command {
	payload := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			payload[k] = kv[i+1]
		}
	}
	return Command{Type: t, Payload: payload}
}

func (c Command) value(key string) (interface{}, error) {
	v, ok := c.Payload[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("%s %q: %w", c.Type, key, ErrMissingField)
	}
	return v, nil
}

// Has reports whether the payload carries key.
func (c Command) Has(key string) bool {
	v, ok := c.Payload[key]
	return ok && v != nil
}

// Bool returns a boolean field.
func (c Command) Bool(key string) (bool, error) {
	v, err := c.value(key)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%s %q: %w", c.Type, key, ErrFieldType)
	}
	return b, nil
}

// String returns a string field.
func (c Command) String(key string) (string, error) {
	v, err := c.value(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s %q: %w", c.Type, key, ErrFieldType)
	}
	return s, nil
}

// Number returns a numeric field. Numeric strings are accepted as well.
func (c Command) Number(key string) (float64, error) {
	v, err := c.value(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("%s %q: %w", c.Type, key, ErrFieldType)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%s %q: %w", c.Type, key, ErrFieldType)
	}
}

// Int returns a numeric field truncated to an int.
func (c Command) Int(key string) (int, error) {
	f, err := c.Number(key)
	return int(f), err
}
