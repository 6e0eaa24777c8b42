package protocol

import (
	"sync"

	"go.uber.org/zap"
)

// Light owns the state of one physical controller and serialises every
// decode and encode against it.
type Light struct {
	mu    sync.Mutex
	codec *Codec
	state *DeviceState
}

// NewLight seeds a Light from the first manufacturer data seen for a controller.
func NewLight(manufacturerData []byte, log *zap.Logger) (*Light, error) {
	codec := NewCodec(log)
	s, err := codec.NewDeviceStateFromManufacturerData(manufacturerData)
	if err != nil {
		return nil, err
	}
	return &Light{codec: codec, state: s}, nil
}

// Snapshot returns a copy of the current state.
func (l *Light) Snapshot() DeviceState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Clone()
}

// Dialect returns the notification dialect of the controller.
func (l *Light) Dialect() Dialect {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Dialect()
}

// ProcessManufacturerData applies an advertisement payload.
func (l *Light) ProcessManufacturerData(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.codec.ApplyManufacturerData(l.state, data)
}

// HandleNotification applies a connected-mode notification.
func (l *Light) HandleNotification(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.codec.ApplyNotification(l.state, data)
}

func (l *Light) SetColor(hs HS, brightness int) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.codec.SetColor(l.state, hs, brightness)
}

func (l *Light) SetBgColor(hs HS, brightness int) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.codec.SetBgColor(l.state, hs, brightness)
}

func (l *Light) SetEffect(name string, onBrightness int) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.codec.SetEffect(l.state, name, onBrightness)
}

// SelectEffect starts an effect at the current brightness.
func (l *Light) SelectEffect(name string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.codec.SetEffect(l.state, name, l.state.Brightness)
}

func (l *Light) SetBrightness(brightness int) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.codec.SetBrightness(l.state, brightness)
}

func (l *Light) SetPower(on bool) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.codec.SetPower(l.state, on)
}

func (l *Light) SetLEDSettings(o LEDSettings) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.codec.SetLEDSettings(l.state, o)
}

// QueryPackets returns the post-connect queries for this controller's dialect.
func (l *Light) QueryPackets() [][]byte {
	return QueryPackets(l.Dialect())
}
