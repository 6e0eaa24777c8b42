// Package scheduler runs cron entries that issue light commands.
package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"lednetwf-controller/internal/core"
)

var (
	ErrUnknownSchedule = errors.New("unknown schedule")
	ErrBadCommand      = errors.New("invalid schedule command")
)

// Entry is one saved schedule.
type Entry struct {
	ID      int    `json:"id"`
	Spec    string `json:"spec"`
	Command string `json:"command"`
}

// Scheduler manages all cron-related tasks.
type Scheduler struct {
	log            *zap.Logger
	cron           *cron.Cron
	store          map[cron.EntryID]Entry
	commandChannel core.CommandChannel
	mu             sync.RWMutex
	schedulesFile  string
}

// NewScheduler creates a scheduler and loads the saved entries.
func NewScheduler(cmdChan core.CommandChannel, schedulesFile string, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{
		log:            log,
		cron:           cron.New(),
		store:          make(map[cron.EntryID]Entry),
		commandChannel: cmdChan,
		schedulesFile:  schedulesFile,
	}
	s.load()
	return s
}

// Start begins the cron job ticker.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("cron scheduler started")
}

// Stop halts the cron job ticker.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("cron scheduler stopped")
}

// Add validates and registers a schedule, then persists the store.
func (s *Scheduler) Add(spec, command string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.add(spec, command)
	if err != nil {
		return 0, err
	}
	s.save()
	s.log.Info("added schedule", zap.Int("id", id), zap.String("spec", spec), zap.String("command", command))
	return id, nil
}

func (s *Scheduler) add(spec, command string) (int, error) {
	if _, err := ParseCommand(command); err != nil {
		return 0, err
	}
	id, err := s.cron.AddFunc(spec, func() { s.execute(command) })
	if err != nil {
		return 0, fmt.Errorf("schedule '%s': %w", spec, err)
	}
	s.store[id] = Entry{ID: int(id), Spec: spec, Command: command}
	return int(id), nil
}

// Remove deletes a cron job.
func (s *Scheduler) Remove(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID := cron.EntryID(id)
	if _, ok := s.store[entryID]; !ok {
		return fmt.Errorf("schedule %d: %w", id, ErrUnknownSchedule)
	}
	s.cron.Remove(entryID)
	delete(s.store, entryID)
	s.save()
	s.log.Info("removed schedule", zap.Int("id", id))
	return nil
}

// List returns the schedules ordered by ID.
func (s *Scheduler) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]Entry, 0, len(s.store))
	for _, e := range s.store {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

func (s *Scheduler) execute(command string) {
	cmd, err := ParseCommand(command)
	if err != nil {
		s.log.Error("scheduled command rejected", zap.String("command", command), zap.Error(err))
		return
	}
	s.log.Info("executing scheduled command", zap.String("command", command))
	s.commandChannel <- cmd
}

// ParseCommand turns a schedule command line into a core command:
//
//	power on|off
//	effect <name>
//	color r,g,b | color #rrggbb
//	brightness <0-255>
//	pattern <file.lua>
//	sync
func ParseCommand(command string) (core.Command, error) {
	verb, arg, _ := strings.Cut(strings.TrimSpace(command), " ")
	arg = strings.TrimSpace(arg)

	switch verb {
	case "power":
		switch arg {
		case "on":
			return core.NewCommand(core.CmdSetPower, "isOn", true), nil
		case "off":
			return core.NewCommand(core.CmdSetPower, "isOn", false), nil
		}
	case "effect":
		if arg != "" {
			return core.NewCommand(core.CmdSetEffect, "name", arg), nil
		}
	case "color":
		if r, g, b, ok := parseRGB(arg); ok {
			return core.NewCommand(core.CmdSetColor, "r", r, "g", g, "b", b), nil
		}
	case "brightness":
		if v, err := strconv.Atoi(arg); err == nil && v >= 0 && v <= 255 {
			return core.NewCommand(core.CmdSetBrightness, "value", v), nil
		}
	case "pattern":
		if arg != "" {
			return core.NewCommand(core.CmdRunPattern, "name", arg), nil
		}
	case "sync":
		return core.NewCommand(core.CmdSyncTime), nil
	}
	return core.Command{}, fmt.Errorf("%w: %q", ErrBadCommand, command)
}

func parseRGB(s string) (r, g, b int, ok bool) {
	if hex, found := strings.CutPrefix(s, "#"); found {
		if len(hex) != 6 {
			return 0, 0, 0, false
		}
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return 0, 0, 0, false
		}
		return int(v >> 16), int(v >> 8 & 0xff), int(v & 0xff), true
	}

	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	var rgb [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 || v > 255 {
			return 0, 0, 0, false
		}
		rgb[i] = v
	}
	return rgb[0], rgb[1], rgb[2], true
}

// save writes the store; callers hold mu.
func (s *Scheduler) save() {
	entries := make([]Entry, 0, len(s.store))
	for _, e := range s.store {
		entries = append(entries, Entry{Spec: e.Spec, Command: e.Command})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Spec+entries[i].Command < entries[j].Spec+entries[j].Command
	})
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		s.log.Error("error marshalling schedules", zap.Error(err))
		return
	}
	if err := os.WriteFile(s.schedulesFile, data, 0o644); err != nil {
		s.log.Error("error writing schedules", zap.String("file", s.schedulesFile), zap.Error(err))
	}
}

func (s *Scheduler) load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.schedulesFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Error("error reading schedule file", zap.Error(err))
		}
		return
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.log.Error("error unmarshalling schedule file", zap.Error(err))
		return
	}

	s.log.Info("loading schedules", zap.Int("count", len(entries)), zap.String("file", s.schedulesFile))
	for _, e := range entries {
		if _, err := s.add(e.Spec, e.Command); err != nil {
			s.log.Warn("skipping saved schedule", zap.String("spec", e.Spec), zap.Error(err))
		}
	}
}
