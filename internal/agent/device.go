package agent

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"lednetwf-controller/internal/core"
	"lednetwf-controller/internal/logging"
	"lednetwf-controller/internal/protocol"
)

// ErrNoDevice is returned for commands issued before any controller was seen.
var ErrNoDevice = errors.New("no controller discovered yet")

// Transport carries packets to the controller.
type Transport interface {
	Write(payload []byte)
	Reconnect()
}

// Device binds a protocol.Light to a transport and publishes every state
// change on the event bus. It implements ble.Events.
type Device struct {
	log       *zap.Logger
	codecLog  *zap.Logger
	transport Transport
	bus       *core.EventBus
	state     *core.State
	now       func() time.Time

	mu    sync.Mutex
	light *protocol.Light

	// ledSettings is pushed once per process after the first connection.
	ledSettings *protocol.LEDSettings
	ledApplied  bool
}

// NewDevice creates a Device. ledSettings may be nil.
func NewDevice(t Transport, bus *core.EventBus, state *core.State, ledSettings *protocol.LEDSettings, log *zap.Logger) *Device {
	if log == nil {
		log = zap.NewNop()
	}
	return &Device{
		log:         log,
		codecLog:    log.Named("protocol"),
		transport:   t,
		bus:         bus,
		state:       state,
		now:         time.Now,
		ledSettings: ledSettings,
	}
}

func (d *Device) current() *protocol.Light {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.light
}

// Snapshot returns the decoded state and whether a controller is known.
func (d *Device) Snapshot() (protocol.DeviceState, bool) {
	l := d.current()
	if l == nil {
		return protocol.DeviceState{}, false
	}
	return l.Snapshot(), true
}

func (d *Device) publish() {
	if s, ok := d.Snapshot(); ok {
		d.bus.Publish(core.Event{Type: core.StateChangedEvent, Payload: s})
	}
}

func (d *Device) send(packet []byte) {
	if packet == nil {
		return
	}
	logging.LogRawBytes("tx", packet)
	d.transport.Write(packet)
}

// OnAdvertisement seeds the light from the first advertisement and refreshes
// it from later ones.
func (d *Device) OnAdvertisement(address, name string, rssi int16, manufacturerData []byte) {
	logging.LogRawBytes("advertisement", manufacturerData)
	d.state.SetDevice(address, name, rssi)

	d.mu.Lock()
	if d.light == nil {
		l, err := protocol.NewLight(manufacturerData, d.codecLog)
		if err != nil {
			d.mu.Unlock()
			d.log.Warn("ignoring advertisement", zap.String("address", address), zap.Error(err))
			return
		}
		d.light = l
		d.mu.Unlock()
		s := l.Snapshot()
		d.log.Info("controller discovered",
			zap.String("address", address),
			zap.String("name", name),
			zap.String("firmware", s.Firmware()),
			zap.Stringer("dialect", s.Dialect()))
	} else {
		l := d.light
		d.mu.Unlock()
		l.ProcessManufacturerData(manufacturerData)
	}
	d.publish()
}

// OnConnected sends the post-connect queries, the clock and any configured
// strip settings.
func (d *Device) OnConnected(address string, rssi int16) {
	logging.LogConnection(address, "connected", rssi)
	d.bus.Publish(core.Event{
		Type:    core.ConnectionChangedEvent,
		Payload: core.ConnectionPayload{Connected: true, Address: address, RSSI: rssi},
	})

	l := d.current()
	if l == nil {
		d.log.Warn("connected before any advertisement, state unknown")
		return
	}
	for _, q := range l.QueryPackets() {
		d.send(q)
	}
	if l.Dialect() == protocol.ExtendedDialect {
		d.send(protocol.TimeSyncPacket(d.now()))
	}

	d.mu.Lock()
	apply := d.ledSettings != nil && !d.ledApplied
	d.ledApplied = d.ledApplied || apply
	d.mu.Unlock()
	if apply {
		if err := d.SetLEDSettings(*d.ledSettings); err != nil {
			d.log.Error("configured LED settings rejected", zap.Error(err))
		}
	}
}

// OnDisconnected reports the link loss.
func (d *Device) OnDisconnected() {
	d.log.Info("controller disconnected")
	d.bus.Publish(core.Event{
		Type:    core.ConnectionChangedEvent,
		Payload: core.ConnectionPayload{Connected: false},
	})
}

// OnNotification decodes a status or settings report.
func (d *Device) OnNotification(data []byte) {
	logging.LogRawBytes("rx", data)
	l := d.current()
	if l == nil {
		return
	}
	l.HandleNotification(data)
	d.publish()
}

// OnHeartbeat polls the controller for its state.
func (d *Device) OnHeartbeat() {
	if l := d.current(); l != nil {
		for _, q := range l.QueryPackets() {
			d.send(q)
		}
	}
}

func (d *Device) do(encode func(l *protocol.Light) ([]byte, error)) error {
	l := d.current()
	if l == nil {
		return ErrNoDevice
	}
	packet, err := encode(l)
	if err != nil {
		return err
	}
	d.send(packet)
	d.publish()
	return nil
}

// SetPower switches the strip on or off.
func (d *Device) SetPower(on bool) error {
	return d.do(func(l *protocol.Light) ([]byte, error) { return l.SetPower(on), nil })
}

// SetColor sets the foreground color.
func (d *Device) SetColor(hs protocol.HS, brightness int) error {
	return d.do(func(l *protocol.Light) ([]byte, error) { return l.SetColor(hs, brightness), nil })
}

// SetBgColor sets the background color used by static and sound effects.
func (d *Device) SetBgColor(hs protocol.HS, brightness int) error {
	return d.do(func(l *protocol.Light) ([]byte, error) { return l.SetBgColor(hs, brightness), nil })
}

// SetBrightness re-encodes the current color or effect.
func (d *Device) SetBrightness(brightness int) error {
	return d.do(func(l *protocol.Light) ([]byte, error) { return l.SetBrightness(brightness) })
}

// SetEffect starts a catalog effect at the current brightness.
func (d *Device) SetEffect(name string) error {
	return d.do(func(l *protocol.Light) ([]byte, error) { return l.SelectEffect(name) })
}

// SetLEDSettings writes the strip configuration and reconnects so the
// controller applies it.
func (d *Device) SetLEDSettings(o protocol.LEDSettings) error {
	if err := d.do(func(l *protocol.Light) ([]byte, error) { return l.SetLEDSettings(o) }); err != nil {
		return err
	}
	d.transport.Reconnect()
	return nil
}

// SyncTime sets the controller clock.
func (d *Device) SyncTime() error {
	if d.current() == nil {
		return ErrNoDevice
	}
	d.send(protocol.TimeSyncPacket(d.now()))
	return nil
}

// QueryState asks the controller for a fresh status report.
func (d *Device) QueryState() error {
	if d.current() == nil {
		return ErrNoDevice
	}
	d.OnHeartbeat()
	return nil
}
