// Package server serves the web UI and its websocket channel.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"lednetwf-controller/internal/core"
	"lednetwf-controller/internal/protocol"
	"lednetwf-controller/internal/scheduler"
)

// Sources supplies the snapshot a client receives on connect. Nil fields are skipped.
type Sources struct {
	DeviceState func() (protocol.DeviceState, bool)
	Link        func() core.State
	Patterns    func() ([]string, error)
	Schedules   func() []scheduler.Entry
}

// Options configures the HTTP listener.
type Options struct {
	Port           string
	StaticFilesDir string
	AllowedOrigins []string
}

// Server manages the HTTP and WebSocket services.
type Server struct {
	Hub        *Hub
	log        *zap.Logger
	bus        *core.EventBus
	commands   core.CommandChannel
	sources    Sources
	httpServer *http.Server

	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewServer creates a new server instance.
func NewServer(opts Options, sources Sources, bus *core.EventBus, commands core.CommandChannel, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		Hub:            NewHub(log),
		log:            log,
		bus:            bus,
		commands:       commands,
		sources:        sources,
		allowedOrigins: opts.AllowedOrigins,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.httpServer = &http.Server{Addr: ":" + opts.Port, Handler: s.Handler(opts.StaticFilesDir)}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler(staticFilesDir string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(staticFilesDir)))
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.allowedOrigins) == 0 {
		s.log.Warn("websocket origin check is disabled")
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.allowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	s.log.Warn("websocket connection blocked", zap.String("origin", origin))
	return false
}

// Start runs the hub and the event forwarder until ctx is done.
func (s *Server) Start(ctx context.Context) {
	sub := s.bus.Subscribe(
		core.StateChangedEvent,
		core.ConnectionChangedEvent,
		core.PatternChangedEvent,
		core.PatternListChangedEvent,
		core.PatternCodeEvent,
		core.ScheduleListChangedEvent,
	)
	go s.Hub.Run(ctx)
	go s.forwardEvents(ctx, sub)
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// messageFor maps a bus event onto a client message.
func messageFor(ev core.Event) (Message, bool) {
	switch ev.Type {
	case core.StateChangedEvent:
		if st, ok := ev.Payload.(protocol.DeviceState); ok {
			return NewMessage(MsgDeviceState, NewDeviceStateView(st)), true
		}
	case core.ConnectionChangedEvent:
		return NewMessage(MsgBLEStatus, ev.Payload), true
	case core.PatternChangedEvent:
		return NewMessage(MsgPatternStatus, ev.Payload), true
	case core.PatternListChangedEvent:
		return NewMessage(MsgPatternList, ev.Payload), true
	case core.PatternCodeEvent:
		return NewMessage(MsgPatternCode, ev.Payload), true
	case core.ScheduleListChangedEvent:
		return NewMessage(MsgScheduleList, ev.Payload), true
	}
	return Message{}, false
}

func (s *Server) forwardEvents(ctx context.Context, sub core.Subscriber) {
	defer s.bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub:
			if msg, ok := messageFor(ev); ok {
				s.Hub.Broadcast(msg)
			}
		}
	}
}

// initialMessages is the snapshot a new client receives.
func (s *Server) initialMessages() []Message {
	msgs := []Message{NewMessage(MsgEffectList, protocol.EffectNames())}

	if s.sources.Link != nil {
		link := s.sources.Link()
		msgs = append(msgs,
			NewMessage(MsgBLEStatus, core.ConnectionPayload{Connected: link.IsConnected, Address: link.Address, RSSI: link.RSSI}),
			NewMessage(MsgPatternStatus, core.PatternPayload{Running: link.RunningPattern}))
	}
	if s.sources.DeviceState != nil {
		if st, ok := s.sources.DeviceState(); ok {
			msgs = append(msgs, NewMessage(MsgDeviceState, NewDeviceStateView(st)))
		}
	}
	if s.sources.Patterns != nil {
		if patterns, err := s.sources.Patterns(); err == nil {
			msgs = append(msgs, NewMessage(MsgPatternList, patterns))
		}
	}
	if s.sources.Schedules != nil {
		msgs = append(msgs, NewMessage(MsgScheduleList, s.sources.Schedules()))
	}
	return msgs
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade error", zap.Error(err))
		return
	}

	for _, msg := range s.initialMessages() {
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
			return
		}
	}

	if !s.Hub.add(conn) {
		conn.Close()
		return
	}
	defer s.Hub.remove(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd core.Command
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.Type == "" {
			s.log.Warn("invalid websocket command", zap.ByteString("raw", data), zap.Error(err))
			continue
		}
		select {
		case s.commands <- cmd:
		default:
			s.log.Warn("command queue full, dropping", zap.String("type", string(cmd.Type)))
		}
	}
}
