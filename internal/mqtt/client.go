// Package mqtt exposes the light to MQTT and Home Assistant.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"lednetwf-controller/internal/config"
	"lednetwf-controller/internal/core"
	"lednetwf-controller/internal/protocol"
)

const publishTimeout = 5 * time.Second

type Client struct {
	client   mqtt.Client
	cfg      config.MQTTConfig
	log      *zap.Logger
	bus      *core.EventBus
	commands core.CommandChannel
	prefix   string

	mu   sync.Mutex
	last *protocol.DeviceState
}

// NewClient returns nil when MQTT is disabled.
func NewClient(cfg config.MQTTConfig, bus *core.EventBus, commands core.CommandChannel, log *zap.Logger) *Client {
	if !cfg.Enabled {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}

	prefix := strings.TrimSuffix(cfg.TopicPrefix, "/")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetKeepAlive(10 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	// Keep retrying at startup so a late broker does not stop the agent.
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetOrderMatters(false)
	opts.SetWill(prefix+"/availability", "offline", 1, true)

	c := &Client{
		cfg:      cfg,
		log:      log,
		bus:      bus,
		commands: commands,
		prefix:   prefix,
	}

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.log.Warn("connection lost, retrying in background", zap.Error(err))
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		c.log.Info("attempting to reconnect")
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// Connect starts the connection and the state publisher.
func (c *Client) Connect(ctx context.Context) error {
	sub := c.bus.Subscribe(core.StateChangedEvent, core.ConnectionChangedEvent)
	go c.publishEvents(ctx, sub)

	c.log.Info("connecting", zap.String("broker", c.cfg.Broker))
	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		c.log.Error("initial connection error", zap.Error(token.Error()))
		return token.Error()
	}
	return nil
}

// Disconnect publishes offline status, then closes the connection.
func (c *Client) Disconnect() {
	if !c.client.IsConnected() {
		return
	}
	token := c.client.Publish(c.prefix+"/availability", 0, true, "offline")
	if !token.WaitTimeout(2 * time.Second) {
		c.log.Warn("timed out publishing offline status")
	} else if token.Error() != nil {
		c.log.Warn("failed to publish offline status", zap.Error(token.Error()))
	}
	c.client.Disconnect(250)
	c.log.Info("disconnected")
}

// Publish sends payload to prefix/subtopic. Non-string payloads are JSON encoded.
func (c *Client) Publish(subtopic string, payload interface{}, retained bool) {
	if !c.client.IsConnected() {
		return
	}

	var msg interface{}
	switch p := payload.(type) {
	case string, []byte:
		msg = p
	default:
		data, err := json.Marshal(p)
		if err != nil {
			c.log.Error("cannot encode payload", zap.String("topic", subtopic), zap.Error(err))
			return
		}
		msg = data
	}

	topic := fmt.Sprintf("%s/%s", c.prefix, subtopic)
	token := c.client.Publish(topic, 0, retained, msg)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			c.log.Warn("publish timeout", zap.String("topic", topic))
		} else if token.Error() != nil {
			c.log.Warn("publish error", zap.String("topic", topic), zap.Error(token.Error()))
		}
	}()
}

func (c *Client) publishEvents(ctx context.Context, sub core.Subscriber) {
	defer c.bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub:
			switch p := ev.Payload.(type) {
			case protocol.DeviceState:
				c.mu.Lock()
				c.last = &p
				c.mu.Unlock()
				c.Publish("light/state", lightState(p), true)
				c.Publish("background/state", backgroundState(p), true)
			case core.ConnectionPayload:
				status := "disconnected"
				if p.Connected {
					status = "connected"
				}
				c.Publish("connection", status, true)
			}
		}
	}
}

func (c *Client) onConnect(client mqtt.Client) {
	c.log.Info("connected to broker")

	topics := map[string]mqtt.MessageHandler{
		"light/set":      c.handleLight,
		"background/set": c.handleBackground,
		"pattern/run":    c.handlePatternRun,
		"pattern/stop":   c.handlePatternStop,
	}
	for sub, handler := range topics {
		topic := fmt.Sprintf("%s/%s", c.prefix, sub)
		if token := client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
			c.log.Error("subscribe failed", zap.String("topic", topic), zap.Error(token.Error()))
		} else {
			c.log.Debug("subscribed", zap.String("topic", topic))
		}
	}

	// Publish in a goroutine: paho calls onConnect on its own event loop.
	go func() {
		c.Publish("availability", "online", true)
		if c.cfg.HADiscoveryEnabled {
			c.PublishHADiscovery()
		}
	}()
}

// PublishHADiscovery announces the light entities to Home Assistant.
func (c *Client) PublishHADiscovery() {
	for _, d := range discoveryConfigs(c.cfg, c.prefix) {
		data, err := json.Marshal(d.payload)
		if err != nil {
			c.log.Error("cannot encode discovery", zap.Error(err))
			continue
		}
		c.client.Publish(d.topic, 0, true, data)
		c.log.Info("HA discovery sent", zap.String("topic", d.topic))
	}
}

func (c *Client) dispatch(cmds []core.Command, err error) {
	if err != nil {
		c.log.Warn("ignoring MQTT command", zap.Error(err))
		return
	}
	for _, cmd := range cmds {
		select {
		case c.commands <- cmd:
		default:
			c.log.Warn("command queue full, dropping", zap.String("type", string(cmd.Type)))
		}
	}
}

func (c *Client) handleLight(_ mqtt.Client, msg mqtt.Message) {
	c.dispatch(lightCommands(msg.Payload()))
}

func (c *Client) handleBackground(_ mqtt.Client, msg mqtt.Message) {
	c.mu.Lock()
	last := c.last
	c.mu.Unlock()
	c.dispatch(backgroundCommands(msg.Payload(), last))
}

func (c *Client) handlePatternRun(_ mqtt.Client, msg mqtt.Message) {
	c.dispatch([]core.Command{core.NewCommand(core.CmdRunPattern, "name", string(msg.Payload()))}, nil)
}

func (c *Client) handlePatternStop(mqtt.Client, mqtt.Message) {
	c.dispatch([]core.Command{core.NewCommand(core.CmdStopPattern)}, nil)
}
