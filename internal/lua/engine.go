// Package lua runs user pattern scripts against the light.
package lua

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"lednetwf-controller/internal/core"
	"lednetwf-controller/internal/protocol"
)

// Device is the subset of light operations exposed to scripts.
type Device interface {
	SetPower(on bool) error
	SetColor(hs protocol.HS, brightness int) error
	SetBrightness(brightness int) error
	SetEffect(name string) error
}

var ErrInvalidPatternName = errors.New("invalid pattern name")

const stopTimeout = 2 * time.Second

type cmdType int

const (
	cmdRunFile cmdType = iota
	cmdRunString
	cmdStop
)

type engineCmd struct {
	kind cmdType
	name string
	code string
}

// Engine runs at most one script at a time on a single worker goroutine.
type Engine struct {
	device      Device
	patternsDir string
	eventBus    *core.EventBus
	log         *zap.Logger

	cmdChan chan engineCmd
}

// NewEngine creates a new Lua engine and starts its background worker.
func NewEngine(device Device, patternsDir string, eb *core.EventBus, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		device:      device,
		patternsDir: patternsDir,
		eventBus:    eb,
		log:         log,
		cmdChan:     make(chan engineCmd, 10),
	}
	go e.runLoop()
	return e
}

func (e *Engine) runLoop() {
	var currentCancel context.CancelFunc
	var scriptDone chan struct{}

	for cmd := range e.cmdChan {
		if currentCancel != nil {
			currentCancel()
			select {
			case <-scriptDone:
			case <-time.After(stopTimeout):
				e.log.Warn("timeout waiting for script to stop")
			}
			currentCancel = nil
			scriptDone = nil
		}

		if cmd.kind == cmdStop {
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		currentCancel = cancel
		scriptDone = make(chan struct{})

		go func(cmd engineCmd, ctx context.Context, done chan struct{}) {
			defer close(done)
			e.execute(ctx, cmd.name, func(L *lua.LState) error {
				if cmd.kind == cmdRunFile {
					return L.DoFile(cmd.code)
				}
				return L.DoString(cmd.code)
			})
		}(cmd, ctx, scriptDone)
	}
}

// StopCurrentPattern stops the currently running script if any.
func (e *Engine) StopCurrentPattern() {
	select {
	case e.cmdChan <- engineCmd{kind: cmdStop}:
	default:
		e.log.Warn("command channel full, could not send stop")
	}
}

// RunPattern queues a pattern file for execution.
func (e *Engine) RunPattern(name string) error {
	path, err := e.GetPatternPath(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("pattern '%s': %w", name, err)
	}
	e.cmdChan <- engineCmd{kind: cmdRunFile, name: name, code: path}
	return nil
}

// ExecuteString queues a one-off chunk of Lua.
func (e *Engine) ExecuteString(code string) {
	e.cmdChan <- engineCmd{kind: cmdRunString, name: "single line command", code: code}
}

// sanitizeFilename rejects directory traversal and non-.lua names.
func sanitizeFilename(name string) (string, error) {
	if !strings.HasSuffix(name, ".lua") {
		return "", fmt.Errorf("%w: must end with .lua", ErrInvalidPatternName)
	}
	cleanName := filepath.Base(name)
	if cleanName != name || cleanName == ".lua" || strings.Contains(cleanName, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPatternName, name)
	}
	return cleanName, nil
}

// GetPatternPath returns the path of a pattern inside the patterns directory,
// creating the directory if needed.
func (e *Engine) GetPatternPath(name string) (string, error) {
	cleanName, err := sanitizeFilename(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(e.patternsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create patterns directory: %w", err)
	}
	return filepath.Join(e.patternsDir, cleanName), nil
}

// GetPatternCode reads and returns the source code of a pattern file.
func (e *Engine) GetPatternCode(name string) (string, error) {
	path, err := e.GetPatternPath(name)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// SavePatternCode writes the provided Lua source code to a pattern file.
func (e *Engine) SavePatternCode(name, code string) error {
	path, err := e.GetPatternPath(name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(code), 0o644)
}

// DeletePattern removes a pattern file by name.
func (e *Engine) DeletePattern(name string) error {
	path, err := e.GetPatternPath(name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// GetPatternList returns the .lua files in the patterns directory.
func (e *Engine) GetPatternList() ([]string, error) {
	patterns := []string{}
	files, err := os.ReadDir(e.patternsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return patterns, nil
		}
		return nil, err
	}
	for _, file := range files {
		if !file.IsDir() && filepath.Ext(file.Name()) == ".lua" {
			patterns = append(patterns, file.Name())
		}
	}
	return patterns, nil
}

func (e *Engine) publishRunning(name string) {
	if e.eventBus != nil {
		e.eventBus.Publish(core.Event{Type: core.PatternChangedEvent, Payload: core.PatternPayload{Running: name}})
	}
}

// execute runs one script in a fresh state bound to ctx.
func (e *Engine) execute(ctx context.Context, name string, executor func(*lua.LState) error) error {
	e.log.Info("starting pattern", zap.String("pattern", name))
	e.publishRunning(name)
	defer func() {
		e.log.Info("pattern finished", zap.String("pattern", name))
		e.publishRunning("")
	}()

	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)
	e.registerGoFunctions(L, ctx)

	err := executor(L)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		e.log.Info("pattern canceled", zap.String("pattern", name))
		err = nil
	default:
		e.log.Error("error executing pattern", zap.String("pattern", name), zap.Error(err))
	}
	return err
}
