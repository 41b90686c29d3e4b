//go:build !no_automation

package automation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// SystemConfig holds configuration for the system Lua module.
type SystemConfig struct {
	// Location is used for system.datetime and system.time_between.
	// Nil means local time.
	Location *time.Location

	now func() time.Time // test hook
}

func (c SystemConfig) clock() time.Time {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	if c.Location != nil {
		return now().In(c.Location)
	}
	return now()
}

// registerSystemModule registers the `system` global table in a Lua state.
func registerSystemModule(L *lua.LState, vm *scriptVM, e *Engine) {
	mod := L.NewTable()

	mod.RawSetString("datetime", L.NewFunction(func(L *lua.LState) int {
		return systemDatetime(L, e.systemCfg.clock())
	}))
	mod.RawSetString("time_between", L.NewFunction(func(L *lua.LState) int {
		return systemTimeBetween(L, e.systemCfg.clock())
	}))
	mod.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		return systemLog(L, vm, e)
	}))

	L.SetGlobal("system", mod)
}

// system.datetime(component)
func systemDatetime(L *lua.LState, now time.Time) int {
	component := L.CheckString(1)

	switch component {
	case "hour":
		L.Push(lua.LNumber(now.Hour()))
	case "minute":
		L.Push(lua.LNumber(now.Minute()))
	case "second":
		L.Push(lua.LNumber(now.Second()))
	case "weekday":
		L.Push(lua.LNumber(now.Weekday()))
	case "day":
		L.Push(lua.LNumber(now.Day()))
	case "month":
		L.Push(lua.LNumber(now.Month()))
	case "year":
		L.Push(lua.LNumber(now.Year()))
	case "timestamp":
		L.Push(lua.LNumber(now.Unix()))
	case "time_str":
		L.Push(lua.LString(now.Format("15:04:05")))
	case "date_str":
		L.Push(lua.LString(now.Format("2006-01-02")))
	default:
		L.ArgError(1, "unknown component: "+component)
		return 0
	}
	return 1
}

// system.time_between(from, to) takes hours (22) or "HH:MM" strings
// ("22:30") and reports whether now is in [from, to). Ranges may wrap
// midnight.
func systemTimeBetween(L *lua.LState, now time.Time) int {
	from, err := minuteOfDay(L.CheckAny(1))
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	to, err := minuteOfDay(L.CheckAny(2))
	if err != nil {
		L.ArgError(2, err.Error())
		return 0
	}
	L.Push(lua.LBool(inWindow(now.Hour()*60+now.Minute(), from, to)))
	return 1
}

func inWindow(cur, from, to int) bool {
	if from <= to {
		return cur >= from && cur < to
	}
	return cur >= from || cur < to
}

func minuteOfDay(v lua.LValue) (int, error) {
	switch val := v.(type) {
	case lua.LNumber:
		h := int(val)
		if h < 0 || h > 24 {
			return 0, fmt.Errorf("hour out of range: %d", h)
		}
		return h * 60, nil
	case lua.LString:
		hs, ms, ok := strings.Cut(string(val), ":")
		if !ok {
			return 0, fmt.Errorf("want HH:MM, got %q", string(val))
		}
		h, err1 := strconv.Atoi(hs)
		m, err2 := strconv.Atoi(ms)
		if err1 != nil || err2 != nil || h < 0 || h > 24 || m < 0 || m > 59 {
			return 0, fmt.Errorf("want HH:MM, got %q", string(val))
		}
		return h*60 + m, nil
	}
	return 0, fmt.Errorf("want hour or HH:MM, got %s", v.Type())
}

// system.log(level, msg)
func systemLog(L *lua.LState, vm *scriptVM, e *Engine) int {
	level := L.CheckString(1)
	msg := L.CheckString(2)

	if vm.logf != nil {
		vm.logf("[" + level + "] " + msg)
	}

	switch level {
	case "debug":
		e.logger.Debug("script log", "msg", msg)
	case "warn":
		e.logger.Warn("script log", "msg", msg)
	case "error":
		e.logger.Error("script log", "msg", msg)
	default:
		e.logger.Info("script log", "msg", msg)
	}
	return 0
}
