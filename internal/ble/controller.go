// Package ble drives a LEDnetWF controller over tinygo bluetooth.
package ble

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"tinygo.org/x/bluetooth"
)

var adapter = bluetooth.DefaultAdapter

var (
	errServiceMissing        = errors.New("LEDnetWF service not found")
	errCharacteristicMissing = errors.New("LEDnetWF characteristics not found")
)

// GATT layout of LEDnetWF controllers.
var (
	ServiceUUID = bluetooth.New16BitUUID(0xffff)
	WriteUUID   = bluetooth.New16BitUUID(0xff01)
	NotifyUUID  = bluetooth.New16BitUUID(0xff02)
)

// Events receives everything the controller observes. Callbacks run on
// bluetooth stack goroutines and must not block.
type Events interface {
	OnAdvertisement(address, name string, rssi int16, manufacturerData []byte)
	OnConnected(address string, rssi int16)
	OnDisconnected()
	OnNotification(data []byte)
	OnHeartbeat()
}

// Options configures a Controller.
type Options struct {
	NamePrefixes   []string
	Address        string
	ScanTimeout    time.Duration
	ConnectTimeout time.Duration
	StatusInterval time.Duration
	RetryDelay     time.Duration
	RateLimit      float64
	RateBurst      int
}

// packetWriter is the write side of the controller's GATT characteristic.
type packetWriter interface {
	WriteWithoutResponse(p []byte) (int, error)
}

// outbound is one entry of the writer queue: a packet, or a request to drop
// the link once everything queued before it has been written.
type outbound struct {
	payload   []byte
	reconnect bool
}

// Controller manages the BLE connection and paces writes.
type Controller struct {
	log    *zap.Logger
	opts   Options
	events Events

	mu        sync.Mutex
	writeChar packetWriter
	ready     bool

	disconnectChan chan struct{}
	commandChan    chan outbound
	limiter        *rate.Limiter
}

// NewController creates a controller and starts its writer loop.
func NewController(ctx context.Context, opts Options, events Events, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Controller{
		log:            log,
		opts:           opts,
		events:         events,
		commandChan:    make(chan outbound, opts.RateBurst*2),
		disconnectChan: make(chan struct{}, 1),
		limiter:        rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
	}
	go c.commandWriterLoop(ctx)
	return c
}

// Write queues a packet for the connected controller.
func (c *Controller) Write(payload []byte) {
	select {
	case c.commandChan <- outbound{payload: payload}:
	default:
		c.log.Warn("command queue full, dropping packet", zap.String("packet", hex.EncodeToString(payload)))
	}
}

// Reconnect drops the current link after the packets already queued have
// been written; Run connects again after the retry delay. The controller
// applies LED settings only across a reconnect.
func (c *Controller) Reconnect() {
	select {
	case c.commandChan <- outbound{reconnect: true}:
	default:
		c.log.Warn("command queue full, reconnecting now")
		c.signalDisconnect()
	}
}

// Connected reports whether the write characteristic is available.
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *Controller) commandWriterLoop(ctx context.Context) {
	c.log.Debug("command writer loop started")
	for {
		select {
		case <-ctx.Done():
			return
		case out := <-c.commandChan:
			if out.reconnect {
				c.signalDisconnect()
				continue
			}
			payload := out.payload
			if err := c.limiter.Wait(ctx); err != nil {
				return
			}

			c.mu.Lock()
			char, ready := c.writeChar, c.ready
			c.mu.Unlock()
			if !ready {
				c.log.Debug("not connected, packet discarded", zap.String("packet", hex.EncodeToString(payload)))
				continue
			}

			if _, err := char.WriteWithoutResponse(payload); err != nil {
				c.log.Warn("write failed, assuming disconnected", zap.Error(err))
				c.signalDisconnect()
			}
		}
	}
}

func (c *Controller) signalDisconnect() {
	select {
	case c.disconnectChan <- struct{}{}:
	default:
	}
}

func (c *Controller) setWriteChar(char packetWriter, ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeChar = char
	c.ready = ready
}

// matches reports whether an advertisement belongs to a controller we drive.
func (c *Controller) matches(address, name string) bool {
	if c.opts.Address != "" {
		return strings.EqualFold(address, c.opts.Address)
	}
	for _, p := range c.opts.NamePrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// manufacturerPayload returns the first manufacturer data element.
func manufacturerPayload(result bluetooth.ScanResult) []byte {
	for _, m := range result.ManufacturerData() {
		if len(m.Data) > 0 {
			return m.Data
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// Run scans, connects and keeps the link alive until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			c.log.Info("BLE controller shutting down")
			return
		}
		if err := adapter.Enable(); err != nil {
			c.log.Error("failed to enable adapter", zap.Error(err))
			if !sleepCtx(ctx, c.opts.RetryDelay) {
				return
			}
			continue
		}

		select {
		case <-c.disconnectChan:
		default:
		}

		result, ok := c.scan(ctx)
		if !ok {
			if !sleepCtx(ctx, c.opts.RetryDelay) {
				return
			}
			continue
		}
		c.session(ctx, result)
		if !sleepCtx(ctx, c.opts.RetryDelay) {
			return
		}
	}
}

func (c *Controller) scan(ctx context.Context) (bluetooth.ScanResult, bool) {
	c.log.Info("scanning for controller", zap.Strings("prefixes", c.opts.NamePrefixes))
	_ = adapter.StopScan()

	found := make(chan bluetooth.ScanResult, 1)
	go func() {
		err := adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
			address, name := result.Address.String(), result.LocalName()
			if !c.matches(address, name) {
				return
			}
			if data := manufacturerPayload(result); data != nil {
				c.events.OnAdvertisement(address, name, result.RSSI, data)
			}
			_ = a.StopScan()
			select {
			case found <- result:
			default:
			}
		})
		if err != nil {
			c.log.Error("scan error", zap.Error(err))
		}
	}()

	scanCtx, cancel := context.WithTimeout(ctx, c.opts.ScanTimeout)
	defer cancel()
	select {
	case result := <-found:
		c.log.Info("found controller",
			zap.String("name", result.LocalName()),
			zap.String("address", result.Address.String()),
			zap.Int16("rssi", result.RSSI))
		return result, true
	case <-scanCtx.Done():
		_ = adapter.StopScan()
		c.log.Info("scan timed out or interrupted")
		return bluetooth.ScanResult{}, false
	}
}

// session connects to one controller and blocks until the link drops.
func (c *Controller) session(ctx context.Context, result bluetooth.ScanResult) {
	address := result.Address.String()

	var device bluetooth.Device
	connectErr := make(chan error, 1)
	go func() {
		d, err := adapter.Connect(result.Address, bluetooth.ConnectionParams{})
		if err == nil {
			device = d
		}
		connectErr <- err
	}()

	select {
	case err := <-connectErr:
		if err != nil {
			c.log.Warn("failed to connect", zap.String("address", address), zap.Error(err))
			return
		}
	case <-time.After(c.opts.ConnectTimeout):
		c.log.Warn("connection attempt timed out", zap.String("address", address))
		return
	case <-ctx.Done():
		return
	}

	discoverErr := make(chan error, 1)
	go func() { discoverErr <- c.discover(device) }()

	select {
	case err := <-discoverErr:
		if err != nil {
			c.log.Warn("service discovery failed", zap.Error(err))
			_ = device.Disconnect()
			return
		}
	case <-time.After(c.opts.ConnectTimeout):
		c.log.Warn("service discovery timed out")
		_ = device.Disconnect()
		return
	case <-ctx.Done():
		_ = device.Disconnect()
		return
	}

	c.log.Info("controller ready", zap.String("address", address))
	c.events.OnConnected(address, result.RSSI)

	ticker := time.NewTicker(c.opts.StatusInterval)
	defer ticker.Stop()

	for running := true; running; {
		select {
		case <-ticker.C:
			c.events.OnHeartbeat()
		case <-c.disconnectChan:
			c.log.Info("disconnect requested, resetting link")
			running = false
		case <-ctx.Done():
			running = false
		}
	}

	c.setWriteChar(nil, false)
	c.events.OnDisconnected()
	if err := device.Disconnect(); err != nil {
		c.log.Debug("disconnect warning", zap.Error(err))
	}
}

func (c *Controller) discover(device bluetooth.Device) error {
	services, err := device.DiscoverServices([]bluetooth.UUID{ServiceUUID})
	if err != nil {
		return err
	}
	if len(services) == 0 {
		return errServiceMissing
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{WriteUUID, NotifyUUID})
	if err != nil {
		return err
	}

	var write, notify *bluetooth.DeviceCharacteristic
	for i := range chars {
		switch chars[i].UUID() {
		case WriteUUID:
			write = &chars[i]
		case NotifyUUID:
			notify = &chars[i]
		}
	}
	if write == nil || notify == nil {
		return errCharacteristicMissing
	}

	if err := notify.EnableNotifications(func(buf []byte) {
		data := make([]byte, len(buf))
		copy(data, buf)
		c.events.OnNotification(data)
	}); err != nil {
		return err
	}
	c.setWriteChar(*write, true)
	return nil
}
