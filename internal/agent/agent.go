// Package agent wires the BLE transport, the codec and every front end together.
package agent

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"lednetwf-controller/internal/ble"
	"lednetwf-controller/internal/config"
	"lednetwf-controller/internal/core"
	"lednetwf-controller/internal/logging"
	"lednetwf-controller/internal/lua"
	"lednetwf-controller/internal/mqtt"
	"lednetwf-controller/internal/protocol"
	"lednetwf-controller/internal/scheduler"
	"lednetwf-controller/internal/server"
)

type Agent struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config
	log    *zap.Logger
	wg     sync.WaitGroup

	state          *core.State
	eventBus       *core.EventBus
	commandChannel core.CommandChannel

	device        *Device
	handler       *CommandHandler
	bleController *ble.Controller
	luaEngine     *lua.Engine
	scheduler     *scheduler.Scheduler
	server        *server.Server
	mqttClient    *mqtt.Client
}

func NewAgent(cfg *config.Config) (*Agent, error) {
	durations, err := cfg.Durations()
	if err != nil {
		return nil, err
	}
	var ledSettings *protocol.LEDSettings
	if cfg.LED.ApplyOnConnect {
		o, err := cfg.LEDSettings()
		if err != nil {
			return nil, err
		}
		ledSettings = &o
	}

	ctx, cancel := context.WithCancel(context.Background())
	log := logging.Named("agent")

	a := &Agent{
		ctx:            ctx,
		cancel:         cancel,
		config:         cfg,
		log:            log,
		state:          core.NewState(),
		eventBus:       core.NewEventBus(logging.Named("bus")),
		commandChannel: make(core.CommandChannel, 20),
	}

	a.device = NewDevice(nil, a.eventBus, a.state, ledSettings, logging.Named("device"))
	a.bleController = ble.NewController(ctx, ble.Options{
		NamePrefixes:   cfg.BLE.NamePrefixes,
		Address:        cfg.BLE.Address,
		ScanTimeout:    durations.ScanTimeout,
		ConnectTimeout: durations.ConnectTimeout,
		StatusInterval: durations.StatusInterval,
		RetryDelay:     durations.RetryDelay,
		RateLimit:      cfg.BLE.RateLimit,
		RateBurst:      cfg.BLE.RateBurst,
	}, a.device, logging.Named("ble"))
	a.device.transport = a.bleController

	a.luaEngine = lua.NewEngine(a.device, cfg.PatternsDir, a.eventBus, logging.Named("lua"))
	a.scheduler = scheduler.NewScheduler(a.commandChannel, cfg.SchedulesFile, logging.Named("scheduler"))
	a.handler = NewCommandHandler(a.device, a.luaEngine, a.scheduler, a.eventBus, logging.Named("commands"))

	a.server = server.NewServer(
		server.Options{
			Port:           cfg.Server.Port,
			StaticFilesDir: cfg.Server.WebFilesDir,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		},
		server.Sources{
			DeviceState: a.device.Snapshot,
			Link:        a.state.Clone,
			Patterns:    a.luaEngine.GetPatternList,
			Schedules:   a.scheduler.List,
		},
		a.eventBus,
		a.commandChannel,
		logging.Named("server"),
	)

	a.mqttClient = mqtt.NewClient(cfg.MQTT, a.eventBus, a.commandChannel, logging.Named("mqtt"))

	return a, nil
}

// Run starts the agent orchestration loop and blocks until Shutdown.
func (a *Agent) Run() {
	events := a.eventBus.Subscribe(core.ConnectionChangedEvent, core.PatternChangedEvent)
	go a.listenEvents(events)

	a.server.Start(a.ctx)

	if a.mqttClient != nil {
		go func() {
			if err := a.mqttClient.Connect(a.ctx); err != nil {
				a.log.Error("MQTT setup error", zap.Error(err))
			}
		}()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.bleController.Run(a.ctx)
	}()

	a.scheduler.Start()

	a.log.Info("agent running", zap.String("url", "http://localhost:"+a.config.Server.Port))
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server error", zap.Error(err))
		}
	}()

	for {
		select {
		case <-a.ctx.Done():
			a.log.Info("agent orchestrator shutting down")
			return
		case cmd := <-a.commandChannel:
			if err := a.handler.Handle(cmd); err != nil {
				a.log.Error("command failed", zap.String("type", string(cmd.Type)), zap.Error(err))
			}
		}
	}
}

// listenEvents keeps the link state current and resumes the running pattern
// after a reconnect.
func (a *Agent) listenEvents(sub core.Subscriber) {
	for {
		select {
		case <-a.ctx.Done():
			return
		case event := <-sub:
			switch p := event.Payload.(type) {
			case core.ConnectionPayload:
				if a.state.SetConnection(p) {
					if pattern := a.state.Clone().RunningPattern; pattern != "" {
						a.log.Info("resuming pattern", zap.String("pattern", pattern))
						if err := a.luaEngine.RunPattern(pattern); err != nil {
							a.log.Warn("cannot resume pattern", zap.Error(err))
						}
					}
				}
			case core.PatternPayload:
				a.state.SetRunningPattern(p.Running)
				if p.Running == "" {
					if err := a.device.QueryState(); err != nil && !errors.Is(err, ErrNoDevice) {
						a.log.Warn("state query failed", zap.Error(err))
					}
				}
			}
		}
	}
}

func (a *Agent) Shutdown() {
	a.scheduler.Stop()
	a.luaEngine.StopCurrentPattern()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.log.Warn("server shutdown", zap.Error(err))
	}
	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
	}
	a.cancel()
	a.wg.Wait()
}
