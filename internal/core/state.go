package core

import "sync"

// State holds the agent-side facts about the link. The light itself is
// described by protocol.DeviceState.
type State struct {
	mu             sync.RWMutex
	IsConnected    bool
	Address        string
	Name           string
	RSSI           int16
	RunningPattern string
}

// NewState creates a new State instance.
func NewState() *State {
	return &State{}
}

// Clone returns a snapshot of the current state for safe reading.
func (s *State) Clone() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		IsConnected:    s.IsConnected,
		Address:        s.Address,
		Name:           s.Name,
		RSSI:           s.RSSI,
		RunningPattern: s.RunningPattern,
	}
}

// SetConnection updates connection state and reports whether the link just came up.
func (s *State) SetConnection(p ConnectionPayload) (cameUp bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cameUp = !s.IsConnected && p.Connected
	s.IsConnected = p.Connected
	s.RSSI = p.RSSI
	if p.Address != "" {
		s.Address = p.Address
	}
	return cameUp
}

// SetDevice records the advertised identity of the controller.
func (s *State) SetDevice(address, name string, rssi int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Address = address
	s.Name = name
	s.RSSI = rssi
}

// SetRunningPattern updates the running pattern state.
func (s *State) SetRunningPattern(pattern string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RunningPattern = pattern
}
