//go:build !no_automation

// Package automation runs sandboxed Lua scripts that react to lamp events
// and drive lamp operations.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"gyverlamp-go-home/internal/lamp"
)

const runTimeout = 5 * time.Second

// RunResult is the result of a one-shot script execution.
type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

// luaEventHandler is a registered Lua callback for a specific event pattern.
type luaEventHandler struct {
	eventType string
	lamp      string // filter: only match this lamp ID (empty = any)
	op        string // filter: state_changed operation, e.g. "add_preset"
	kind      string // filter: command kind, e.g. "presets"
	fn        *lua.LFunction
}

// scriptVM is a running Lua VM for a single script.
type scriptVM struct {
	state    *lua.LState
	commands chan func(*lua.LState) // serializes Lua access
	handlers []luaEventHandler
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex // protects handlers

	// logf receives lamp.log and system.log output when set (one-shot runs).
	logf func(string)
}

// Engine manages Lua VMs and dispatches lamp events to scripts.
type Engine struct {
	lamps   *lamp.Lamps
	manager *Manager
	logger  *slog.Logger

	systemCfg SystemConfig

	mu     sync.Mutex
	vms    map[string]*scriptVM // script ID -> running VM
	unsubs []func()
}

// NewEngine creates a new automation engine.
func NewEngine(lamps *lamp.Lamps, mgr *Manager, logger *slog.Logger, sysCfg SystemConfig) *Engine {
	return &Engine{
		lamps:     lamps,
		manager:   mgr,
		logger:    logger.With("component", "automation"),
		systemCfg: sysCfg,
		vms:       make(map[string]*scriptVM),
	}
}

// Start subscribes to every lamp and loads all enabled scripts.
func (e *Engine) Start() {
	for _, m := range e.lamps.All() {
		e.unsubs = append(e.unsubs, m.Subscribe(e.dispatchEvent))
	}

	scripts, err := e.manager.List()
	if err != nil {
		e.logger.Error("load scripts", "err", err)
		return
	}

	for _, s := range scripts {
		if !s.Meta.Enabled {
			continue
		}
		if err := e.startScript(s); err != nil {
			e.logger.Error("start script", "id", s.ID, "err", err)
		}
	}

	e.mu.Lock()
	n := len(e.vms)
	e.mu.Unlock()
	e.logger.Info("automation engine started", "scripts", n)
}

// Stop cancels all VMs and unsubscribes from the lamps.
func (e *Engine) Stop() {
	for _, unsub := range e.unsubs {
		unsub()
	}
	e.unsubs = nil

	e.mu.Lock()
	for id, vm := range e.vms {
		vm.cancel()
		delete(e.vms, id)
	}
	e.mu.Unlock()

	e.logger.Info("automation engine stopped")
}

// ReloadScript stops the old VM (if any) and starts a new one.
func (e *Engine) ReloadScript(id string) error {
	e.stopScript(id)

	s, err := e.manager.Get(id)
	if err != nil {
		return fmt.Errorf("get script: %w", err)
	}
	if !s.Meta.Enabled {
		return nil
	}
	return e.startScript(s)
}

// StopScript stops a running script VM.
func (e *Engine) StopScript(id string) {
	e.stopScript(id)
}

// Running returns the IDs of scripts with a live VM.
func (e *Engine) Running() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.vms))
	for id := range e.vms {
		ids = append(ids, id)
	}
	return ids
}

// RunScript executes a stored script once in a temporary VM.
func (e *Engine) RunScript(id string) *RunResult {
	start := time.Now()

	s, err := e.manager.Get(id)
	if err != nil {
		return &RunResult{OK: false, Error: "script not found: " + err.Error(), Duration: time.Since(start).String()}
	}
	return e.RunLuaCode(s.LuaCode)
}

// RunLuaCode executes Lua code in a temporary sandboxed VM. Handlers the
// code registers with lamp.on are invoked once with a synthetic event so
// their actions actually run.
func (e *Engine) RunLuaCode(code string) *RunResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	var (
		logs  []string
		logMu sync.Mutex
	)
	vm := &scriptVM{
		commands: make(chan func(*lua.LState), 64),
		ctx:      ctx,
		cancel:   cancel,
		logf: func(msg string) {
			logMu.Lock()
			logs = append(logs, msg)
			logMu.Unlock()
		},
	}
	L := e.newState(vm)
	defer L.Close()
	L.SetContext(ctx)

	result := func(err error) *RunResult {
		logMu.Lock()
		defer logMu.Unlock()
		r := &RunResult{OK: err == nil, Logs: append([]string(nil), logs...), Duration: time.Since(start).String()}
		if err != nil {
			r.Error = luaErrorString(err)
		}
		return r
	}

	e.logger.Debug("run lua code", "code_len", len(code))
	if err := L.DoString(code); err != nil {
		e.logger.Warn("script run error", "err", luaErrorString(err))
		return result(err)
	}

	vm.mu.Lock()
	handlers := make([]luaEventHandler, len(vm.handlers))
	copy(handlers, vm.handlers)
	vm.mu.Unlock()

	for i, h := range handlers {
		if err := L.CallByParam(lua.P{Fn: h.fn, NRet: 0, Protect: true}, e.syntheticEvent(L, h)); err != nil {
			e.logger.Warn("script run handler error", "index", i, "event_type", h.eventType, "err", luaErrorString(err))
			return result(err)
		}
	}

	r := result(nil)
	e.logger.Info("script run complete", "handlers", len(handlers), "logs", len(r.Logs), "duration", r.Duration)
	return r
}

// syntheticEvent builds the event table passed to handlers on a one-shot run.
func (e *Engine) syntheticEvent(L *lua.LState, h luaEventHandler) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("type", lua.LString(h.eventType))
	id := h.lamp
	if id == "" {
		if ids := e.lamps.IDs(); len(ids) > 0 {
			id = ids[0]
		}
	}
	t.RawSetString("lamp", lua.LString(id))
	if h.op != "" {
		t.RawSetString("op", lua.LString(h.op))
	}
	if h.kind != "" {
		t.RawSetString("kind", lua.LString(h.kind))
	}
	return t
}

func luaErrorString(err error) string {
	s := err.Error()
	if strings.Contains(s, "context deadline exceeded") {
		return fmt.Sprintf("timeout (%s)", runTimeout)
	}
	return s
}

// newState creates a sandboxed Lua state with the lamp and system modules.
func (e *Engine) newState(vm *scriptVM) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: false})

	for _, name := range []string{"os", "io", "loadfile", "dofile", "require", "load", "debug", "package"} {
		L.SetGlobal(name, lua.LNil)
	}

	vm.state = L
	registerLampModule(L, vm, e)
	registerSystemModule(L, vm, e)
	return L
}

func (e *Engine) stopScript(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if vm, ok := e.vms[id]; ok {
		vm.cancel()
		delete(e.vms, id)
		e.logger.Info("script stopped", "id", id)
	}
}

func (e *Engine) startScript(s *Script) error {
	ctx, cancel := context.WithCancel(context.Background())
	vm := &scriptVM{
		commands: make(chan func(*lua.LState), 64),
		ctx:      ctx,
		cancel:   cancel,
	}
	L := e.newState(vm)

	// Top-level code registers handlers.
	if err := L.DoString(s.LuaCode); err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("execute script %s: %w", s.ID, err)
	}

	e.mu.Lock()
	if old, ok := e.vms[s.ID]; ok {
		old.cancel()
	}
	e.vms[s.ID] = vm
	e.mu.Unlock()

	go func() {
		defer L.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case fn := <-vm.commands:
				fn(L)
			}
		}
	}()

	e.logger.Info("script started", "id", s.ID, "name", s.Meta.Name)
	return nil
}

// dispatchEvent runs inside a lamp operation. It only queues matching
// handlers onto each VM's command channel; Lua never runs here.
func (e *Engine) dispatchEvent(event lamp.Event) {
	e.mu.Lock()
	vms := make([]*scriptVM, 0, len(e.vms))
	for _, vm := range e.vms {
		vms = append(vms, vm)
	}
	e.mu.Unlock()

	for _, vm := range vms {
		if vm.ctx.Err() != nil {
			continue
		}
		vm.mu.Lock()
		handlers := make([]luaEventHandler, len(vm.handlers))
		copy(handlers, vm.handlers)
		vm.mu.Unlock()

		for _, h := range handlers {
			if !matchesHandler(h, event) {
				continue
			}
			fn := h.fn
			select {
			case vm.commands <- func(L *lua.LState) {
				e.callHandler(L, fn, event)
			}:
			default:
				e.logger.Warn("script command channel full, dropping event", "event", event.Type, "lamp", event.Lamp)
			}
		}
	}
}

func matchesHandler(h luaEventHandler, event lamp.Event) bool {
	if h.eventType != "*" && h.eventType != event.Type {
		return false
	}
	if h.lamp != "" && h.lamp != event.Lamp {
		return false
	}

	data, _ := event.Data.(map[string]interface{})
	if h.op != "" {
		if op, _ := data["op"].(string); op != h.op {
			return false
		}
	}
	if h.kind != "" {
		if kind, _ := data["kind"].(string); kind != h.kind {
			return false
		}
	}
	return true
}

func (e *Engine) callHandler(L *lua.LState, fn *lua.LFunction, event lamp.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("lua handler panic", "err", r)
		}
	}()

	eventTable := L.NewTable()
	eventTable.RawSetString("type", lua.LString(event.Type))
	eventTable.RawSetString("lamp", lua.LString(event.Lamp))
	if data, ok := event.Data.(map[string]interface{}); ok {
		for k, v := range data {
			eventTable.RawSetString(k, goToLua(L, v))
		}
	}

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, eventTable); err != nil {
		e.logger.Error("lua handler error", "event", event.Type, "lamp", event.Lamp, "err", err)
	}
}

// goToLua converts a Go value to a Lua value.
func goToLua(L *lua.LState, v interface{}) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case uint8:
		return lua.LNumber(val)
	case uint16:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case int8:
		return lua.LNumber(val)
	case int16:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case time.Time:
		if val.IsZero() {
			return lua.LNil
		}
		return lua.LNumber(val.Unix())
	case map[string]interface{}:
		t := L.NewTable()
		for k, vv := range val {
			t.RawSetString(k, goToLua(L, vv))
		}
		return t
	case []interface{}:
		t := L.NewTable()
		for i, vv := range val {
			t.RawSetInt(i+1, goToLua(L, vv))
		}
		return t
	case []string:
		t := L.NewTable()
		for i, vv := range val {
			t.RawSetInt(i+1, lua.LString(vv))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// luaToGo converts a Lua scalar to the Go value the lamp validators accept.
func luaToGo(v lua.LValue) interface{} {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	default:
		return nil
	}
}
