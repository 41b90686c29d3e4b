//go:build !no_automation

package automation

import (
	"context"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"

	"gyverlamp-go-home/internal/lamp"
	"gyverlamp-go-home/internal/protocol"
)

const (
	maxHandlersPerScript = 100
	opTimeout            = 5 * time.Second
)

// registerLampModule registers the `lamp` global table in a Lua state.
//
// Operations return true on success, or nil plus an error message, so
// scripts can write: local ok, err = lamp.add_preset("living").
func registerLampModule(L *lua.LState, vm *scriptVM, e *Engine) {
	mod := L.NewTable()
	fn := func(name string, f lua.LGFunction) {
		mod.RawSetString(name, L.NewFunction(f))
	}

	fn("on", func(L *lua.LState) int { return lampOn(L, vm) })
	fn("after", func(L *lua.LState) int { return lampAfter(L, vm, e) })
	fn("log", func(L *lua.LState) int { return lampLog(L, vm, e) })
	fn("lamps", func(L *lua.LState) int { return lampList(L, e) })
	fn("state", func(L *lua.LState) int { return lampState(L, e) })

	fn("turn_on", func(L *lua.LState) int {
		return lampOp(L, vm, e, func(ctx context.Context, m *lamp.Manager) error {
			return m.SendControl(ctx, protocol.ActionOn)
		})
	})
	fn("turn_off", func(L *lua.LState) int {
		return lampOp(L, vm, e, func(ctx context.Context, m *lamp.Manager) error {
			return m.SendControl(ctx, protocol.ActionOff)
		})
	})
	fn("control", func(L *lua.LState) int {
		action, err := protocol.ParseAction(L.CheckString(2))
		if err != nil {
			L.ArgError(2, err.Error())
			return 0
		}
		var args []int
		if L.GetTop() >= 3 {
			args = append(args, L.CheckInt(3))
		}
		return lampOp(L, vm, e, func(ctx context.Context, m *lamp.Manager) error {
			return m.SendControl(ctx, action, args...)
		})
	})
	fn("select_preset", func(L *lua.LState) int {
		n := L.CheckInt(2)
		return lampOp(L, vm, e, func(ctx context.Context, m *lamp.Manager) error {
			return m.SendControl(ctx, protocol.ActionSelectPreset, n)
		})
	})
	fn("set_setting", func(L *lua.LState) int {
		field, err := lamp.ParseSettingField(L.CheckString(2))
		if err != nil {
			L.ArgError(2, err.Error())
			return 0
		}
		value := luaToGo(L.CheckAny(3))
		return lampOp(L, vm, e, func(ctx context.Context, m *lamp.Manager) error {
			return m.SetSetting(ctx, field, value)
		})
	})
	fn("update_preset", func(L *lua.LState) int {
		patch, err := presetPatch(L.CheckTable(2))
		if err != nil {
			L.ArgError(2, err.Error())
			return 0
		}
		return lampOp(L, vm, e, func(ctx context.Context, m *lamp.Manager) error {
			return m.UpdateCurrentPreset(ctx, patch)
		})
	})
	fn("add_preset", func(L *lua.LState) int {
		return lampOp(L, vm, e, func(ctx context.Context, m *lamp.Manager) error {
			return m.AddPreset(ctx)
		})
	})
	fn("delete_preset", func(L *lua.LState) int {
		return lampOp(L, vm, e, func(ctx context.Context, m *lamp.Manager) error {
			return m.DeleteLastPreset(ctx)
		})
	})
	fn("reset_presets", func(L *lua.LState) int {
		return lampOp(L, vm, e, func(ctx context.Context, m *lamp.Manager) error {
			return m.ResetPresets(ctx)
		})
	})
	fn("set_group", func(L *lua.LState) int {
		g := L.CheckInt(2)
		return lampOp(L, vm, e, func(ctx context.Context, m *lamp.Manager) error {
			return m.SetCurrentGroup(ctx, g)
		})
	})
	fn("upload", func(L *lua.LState) int {
		return lampOp(L, vm, e, func(ctx context.Context, m *lamp.Manager) error {
			return m.UploadSettings(ctx)
		})
	})

	L.SetGlobal("lamp", mod)
}

// lampOp resolves the lamp named by argument 1 and runs op against it.
func lampOp(L *lua.LState, vm *scriptVM, e *Engine, op func(context.Context, *lamp.Manager) error) int {
	id := L.CheckString(1)
	m, ok := e.lamps.Get(id)
	if !ok {
		e.logger.Warn("lamp not found", "lamp", id)
		L.Push(lua.LNil)
		L.Push(lua.LString("unknown lamp: " + id))
		return 2
	}

	ctx, cancel := context.WithTimeout(vm.ctx, opTimeout)
	defer cancel()
	if err := op(ctx, m); err != nil {
		e.logger.Warn("script operation rejected", "lamp", id, "err", err)
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

func presetPatch(t *lua.LTable) (lamp.PresetPatch, error) {
	patch := make(lamp.PresetPatch)
	var err error
	t.ForEach(func(k, v lua.LValue) {
		if err != nil {
			return
		}
		var f lamp.PresetField
		if f, err = lamp.ParsePresetField(k.String()); err != nil {
			return
		}
		patch[f] = luaToGo(v)
	})
	if err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, fmt.Errorf("empty preset patch")
	}
	return patch, nil
}

// lamp.on(type, filter, callback)
//
// type is an event type ("state_changed", "command_sent", "command_failed")
// or "*". filter may name lamp, op and kind.
func lampOn(L *lua.LState, vm *scriptVM) int {
	h := luaEventHandler{eventType: L.CheckString(1)}

	switch L.GetTop() {
	case 2:
		h.fn = L.CheckFunction(2)
	default:
		filter := L.CheckTable(2)
		h.fn = L.CheckFunction(3)
		if v := filter.RawGetString("lamp"); v != lua.LNil {
			h.lamp = v.String()
		}
		if v := filter.RawGetString("op"); v != lua.LNil {
			h.op = v.String()
		}
		if v := filter.RawGetString("kind"); v != lua.LNil {
			h.kind = v.String()
		}
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if len(vm.handlers) >= maxHandlersPerScript {
		L.RaiseError("too many handlers (max %d)", maxHandlersPerScript)
		return 0
	}
	vm.handlers = append(vm.handlers, h)
	return 0
}

// lamp.after(seconds, callback) runs callback on the script's VM later.
func lampAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
	seconds := L.CheckNumber(1)
	fn := L.CheckFunction(2)

	go func() {
		timer := time.NewTimer(time.Duration(float64(seconds) * float64(time.Second)))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-vm.ctx.Done():
			return
		}

		select {
		case vm.commands <- func(L *lua.LState) {
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
				e.logger.Error("after callback error", "err", err)
			}
		}:
		default:
			e.logger.Warn("after: command channel full")
		}
	}()

	return 0
}

// lamp.log(msg)
func lampLog(L *lua.LState, vm *scriptVM, e *Engine) int {
	msg := L.CheckString(1)
	if vm.logf != nil {
		vm.logf(msg)
	}
	e.logger.Info("script log", "msg", msg)
	return 0
}

// lamp.lamps() returns {{id=..., name=...}, ...} in configuration order.
func lampList(L *lua.LState, e *Engine) int {
	tbl := L.NewTable()
	for i, m := range e.lamps.All() {
		t := L.NewTable()
		t.RawSetString("id", lua.LString(m.ID()))
		t.RawSetString("name", lua.LString(m.Name()))
		tbl.RawSetInt(i+1, t)
	}
	L.Push(tbl)
	return 1
}

// lamp.state(id) returns every entity value keyed by entity key, plus
// the active preset's raw fields under "active".
func lampState(L *lua.LState, e *Engine) int {
	id := L.CheckString(1)
	m, ok := e.lamps.Get(id)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	st := m.Snapshot()

	tbl := goToLua(L, lamp.Values(st)).(*lua.LTable)
	tbl.RawSetString("power", lua.LBool(st.Power))
	tbl.RawSetString("current", lua.LNumber(st.CurrentPreset))
	tbl.RawSetString("current_group", lua.LNumber(st.CurrentGroup))

	active := L.NewTable()
	p := st.ActivePreset()
	for _, f := range lamp.PresetFields {
		active.RawSetString(string(f), goToLua(L, lamp.PresetValue(p, f)))
	}
	tbl.RawSetString("active", active)

	L.Push(tbl)
	return 1
}
