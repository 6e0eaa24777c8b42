package protocol

import (
	"encoding/hex"
	"errors"

	"go.uber.org/zap"
)

var (
	ErrUnknownEffect    = errors.New("effect not in catalog")
	ErrMissingLEDOption = errors.New("missing LED setting")
	ErrLEDOptionRange   = errors.New("LED setting out of range")
	ErrUnknownColorMode = errors.New("unknown color mode")
	ErrNoManufacturer   = errors.New("empty manufacturer data")
)

// Codec decodes inbound messages into a DeviceState and builds outbound packets
// from one. It holds no device state itself.
type Codec struct {
	log *zap.Logger
}

// NewCodec returns a codec that reports diagnostics to log. A nil log is silent.
func NewCodec(log *zap.Logger) *Codec {
	if log == nil {
		log = zap.NewNop()
	}
	return &Codec{log: log}
}

type notificationDecoder func(c *Codec, s *DeviceState, data []byte)

var notificationDecoders = map[Dialect]notificationDecoder{
	ExtendedDialect: (*Codec).applyExtendedNotification,
	LegacyDialect:   (*Codec).applyLegacyNotification,
}

// ApplyNotification decodes a connected-mode notification into s using the
// decoder for the state's dialect. Unrecognised or malformed messages leave
// s unchanged.
func (c *Codec) ApplyNotification(s *DeviceState, data []byte) {
	c.log.Debug("notification received",
		zap.Stringer("dialect", s.Dialect()),
		hexField("data", data))
	notificationDecoders[s.Dialect()](c, s, data)
}

func hexField(key string, b []byte) zap.Field {
	return zap.String(key, hex.EncodeToString(b))
}
