package core

import (
	"slices"
	"sync"

	"go.uber.org/zap"
)

// EventType defines the type of event being published.
type EventType string

const (
	// StateChangedEvent carries a protocol.DeviceState snapshot.
	StateChangedEvent EventType = "StateChanged"
	// ConnectionChangedEvent carries a ConnectionPayload.
	ConnectionChangedEvent EventType = "ConnectionChanged"
	// PatternChangedEvent carries a PatternPayload.
	PatternChangedEvent EventType = "PatternChanged"
	// PatternListChangedEvent carries the pattern file names.
	PatternListChangedEvent EventType = "PatternListChanged"
	// PatternCodeEvent carries a PatternCodePayload.
	PatternCodeEvent EventType = "PatternCode"
	// ScheduleListChangedEvent carries the scheduler entries.
	ScheduleListChangedEvent EventType = "ScheduleListChanged"
)

// ConnectionPayload describes a BLE link transition.
type ConnectionPayload struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address"`
	RSSI      int16  `json:"rssi"`
}

// PatternPayload names the running Lua pattern, empty when idle.
type PatternPayload struct {
	Running string `json:"running"`
}

// PatternCodePayload is the source of one pattern file.
type PatternCodePayload struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// Event is the envelope for all system events.
type Event struct {
	Type    EventType
	Payload interface{}
}

// Subscriber is a channel that receives events.
type Subscriber chan Event

const subscriberBuffer = 100

// EventBus handles pub/sub messaging for the application.
type EventBus struct {
	mu          sync.RWMutex
	log         *zap.Logger
	subscribers map[EventType][]Subscriber
}

// NewEventBus creates a new EventBus. A nil logger disables drop reports.
func NewEventBus(log *zap.Logger) *EventBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventBus{
		log:         log,
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe returns a channel that receives events of the given types.
func (eb *EventBus) Subscribe(eventTypes ...EventType) Subscriber {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(Subscriber, subscriberBuffer)
	for _, t := range eventTypes {
		eb.subscribers[t] = append(eb.subscribers[t], ch)
	}
	return ch
}

// Unsubscribe detaches ch from every event type and closes it.
func (eb *EventBus) Unsubscribe(ch Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	found := false
	for t, subs := range eb.subscribers {
		n := len(subs)
		subs = slices.DeleteFunc(subs, func(s Subscriber) bool { return s == ch })
		if len(subs) != n {
			found = true
		}
		if len(subs) == 0 {
			delete(eb.subscribers, t)
		} else {
			eb.subscribers[t] = subs
		}
	}
	if found {
		close(ch)
	}
}

// Publish distributes an event to all active subscribers for its type.
// Publishers never block: a full subscriber misses the event.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, sub := range eb.subscribers[event.Type] {
		select {
		case sub <- event:
		default:
			eb.log.Warn("subscriber full, event dropped", zap.String("event", string(event.Type)))
		}
	}
}
