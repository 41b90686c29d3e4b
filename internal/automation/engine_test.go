//go:build !no_automation

package automation

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"

	"gyverlamp-go-home/internal/lamp"
	"gyverlamp-go-home/internal/protocol"
	"gyverlamp-go-home/internal/store"
)

type recordingTx struct {
	mu       sync.Mutex
	payloads []string
}

func (r *recordingTx) Broadcast(_ context.Context, _ string, _ int, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, string(payload))
	return nil
}

func (r *recordingTx) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.payloads) == 0 {
		return ""
	}
	return r.payloads[len(r.payloads)-1]
}

func newTestLamps(t *testing.T) (*lamp.Lamps, *recordingTx) {
	t.Helper()
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	tx := &recordingTx{}
	bus := lamp.NewEventBus(testLogger())
	var managers []*lamp.Manager
	for _, entry := range []lamp.Entry{
		{ID: "living", Name: "Living Room", Address: "192.168.1.", NetworkKey: "GL", Group: 1},
		{ID: "bedroom", Name: "Bedroom", Address: "192.168.1.", NetworkKey: "GL", Group: 2},
	} {
		m, err := lamp.New(entry, st, tx, testLogger(), lamp.WithEventBus(bus))
		if err != nil {
			t.Fatal(err)
		}
		m.Load()
		managers = append(managers, m)
	}
	return lamp.NewLamps(managers...), tx
}

func newLampEngine(t *testing.T) (*Engine, *lamp.Lamps, *recordingTx) {
	t.Helper()
	lamps, tx := newTestLamps(t)
	e := NewEngine(lamps, newTestManager(t), testLogger(), SystemConfig{})
	e.Start()
	t.Cleanup(e.Stop)
	return e, lamps, tx
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestGoToLua(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	tests := []struct {
		name string
		val  interface{}
		want lua.LValueType
	}{
		{"nil", nil, lua.LTNil},
		{"bool", true, lua.LTBool},
		{"string", "hello", lua.LTString},
		{"int", 42, lua.LTNumber},
		{"uint8", uint8(255), lua.LTNumber},
		{"uint16", uint16(1024), lua.LTNumber},
		{"float64", 3.14, lua.LTNumber},
		{"zero time", time.Time{}, lua.LTNil},
		{"time", time.Unix(100, 0), lua.LTNumber},
		{"map", map[string]interface{}{"a": 1}, lua.LTTable},
		{"slice", []interface{}{1, 2, 3}, lua.LTTable},
		{"strings", []string{"a", "b"}, lua.LTTable},
		{"unknown", struct{}{}, lua.LTString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := goToLua(L, tt.val).Type(); got != tt.want {
				t.Errorf("goToLua(%v) type = %v, want %v", tt.val, got, tt.want)
			}
		})
	}
}

func TestLuaToGo(t *testing.T) {
	if v := luaToGo(lua.LNumber(7)); v != float64(7) {
		t.Errorf("number = %v", v)
	}
	if v := luaToGo(lua.LTrue); v != true {
		t.Errorf("bool = %v", v)
	}
	if v := luaToGo(lua.LString("MSK")); v != "MSK" {
		t.Errorf("string = %v", v)
	}
	if v := luaToGo(lua.LNil); v != nil {
		t.Errorf("nil = %v", v)
	}
}

func TestMatchesHandler(t *testing.T) {
	event := lamp.Event{
		Type: lamp.EventStateChanged,
		Lamp: "living",
		Data: map[string]interface{}{"op": "add_preset", "arg": 2},
	}
	sent := lamp.Event{
		Type: lamp.EventCommandSent,
		Lamp: "living",
		Data: map[string]interface{}{"kind": "presets", "command": "GL,2,..."},
	}

	tests := []struct {
		name    string
		handler luaEventHandler
		event   lamp.Event
		want    bool
	}{
		{"type match", luaEventHandler{eventType: lamp.EventStateChanged}, event, true},
		{"wildcard", luaEventHandler{eventType: "*"}, sent, true},
		{"wrong type", luaEventHandler{eventType: lamp.EventCommandFailed}, event, false},
		{"lamp match", luaEventHandler{eventType: lamp.EventStateChanged, lamp: "living"}, event, true},
		{"lamp mismatch", luaEventHandler{eventType: lamp.EventStateChanged, lamp: "bedroom"}, event, false},
		{"op match", luaEventHandler{eventType: lamp.EventStateChanged, op: "add_preset"}, event, true},
		{"op mismatch", luaEventHandler{eventType: lamp.EventStateChanged, op: "reset_presets"}, event, false},
		{"kind match", luaEventHandler{eventType: lamp.EventCommandSent, kind: "presets"}, sent, true},
		{"kind mismatch", luaEventHandler{eventType: lamp.EventCommandSent, kind: "control"}, sent, false},
		{"filter without data", luaEventHandler{eventType: "x", op: "a"}, lamp.Event{Type: "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesHandler(tt.handler, tt.event); got != tt.want {
				t.Errorf("matchesHandler() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunLuaCodeDrivesLamp(t *testing.T) {
	e, lamps, tx := newLampEngine(t)

	res := e.RunLuaCode(`
assert(lamp.add_preset("living"))
assert(lamp.update_preset("living", {effect = 3, speed = 64, from_center = true}))
assert(lamp.set_setting("living", "brightness", 42))
assert(lamp.set_setting("living", "timezone", "EET"))
assert(lamp.select_preset("living", 1))
assert(lamp.turn_on("living"))
local st = lamp.state("living")
lamp.log(st.presets_count .. " " .. st.current .. " " .. tostring(st.power))
`)
	if !res.OK {
		t.Fatalf("run failed: %s", res.Error)
	}
	if len(res.Logs) != 1 || res.Logs[0] != "2 1 true" {
		t.Errorf("logs = %v, want [2 1 true]", res.Logs)
	}

	m, _ := lamps.Get("living")
	st := m.Snapshot()
	if len(st.Presets) != 2 {
		t.Fatalf("presets = %d, want 2", len(st.Presets))
	}
	p := st.Presets[1]
	if p.Effect != 3 || p.Speed != 64 || !p.FromCenter {
		t.Errorf("preset 2 = %+v", p)
	}
	if st.Settings.Brightness != 42 || st.Settings.Timezone != "EET" {
		t.Errorf("settings = %+v", st.Settings)
	}
	if got := tx.last(); got != "GL,0,1" {
		t.Errorf("last payload = %q, want GL,0,1", got)
	}
}

func TestRunLuaCodeRejections(t *testing.T) {
	e, _, _ := newLampEngine(t)

	res := e.RunLuaCode(`
local ok, err = lamp.select_preset("living", 9)
lamp.log(tostring(ok) .. ": " .. err)
ok, err = lamp.delete_preset("living")
lamp.log(tostring(ok) .. ": " .. err)
ok, err = lamp.turn_on("garage")
lamp.log(tostring(ok) .. ": " .. err)
lamp.log(tostring(lamp.state("garage")))
`)
	if !res.OK {
		t.Fatalf("run failed: %s", res.Error)
	}
	if len(res.Logs) != 4 {
		t.Fatalf("logs = %v", res.Logs)
	}
	if !strings.HasPrefix(res.Logs[0], "nil: ") || !strings.Contains(res.Logs[0], "preset") {
		t.Errorf("select out of range log = %q", res.Logs[0])
	}
	if !strings.HasPrefix(res.Logs[1], "nil: ") {
		t.Errorf("delete last preset log = %q", res.Logs[1])
	}
	if res.Logs[2] != "nil: unknown lamp: garage" {
		t.Errorf("unknown lamp log = %q", res.Logs[2])
	}
	if res.Logs[3] != "nil" {
		t.Errorf("unknown lamp state = %q", res.Logs[3])
	}
}

func TestRunLuaCodeArgErrors(t *testing.T) {
	e, _, _ := newLampEngine(t)

	for _, code := range []string{
		`lamp.control("living", "dance")`,
		`lamp.set_setting("living", "colour", 1)`,
		`lamp.update_preset("living", {hue = 1})`,
		`lamp.update_preset("living", {})`,
		`this is not lua`,
	} {
		if res := e.RunLuaCode(code); res.OK {
			t.Errorf("RunLuaCode(%q) succeeded, want error", code)
		}
	}
}

func TestRunLuaCodeInvokesHandlers(t *testing.T) {
	e, lamps, _ := newLampEngine(t)

	res := e.RunLuaCode(`
lamp.on("state_changed", {lamp = "bedroom", op = "set_group"}, function(event)
    lamp.log(event.type .. " " .. event.lamp .. " " .. event.op)
    lamp.control(event.lamp, "next")
end)
`)
	if !res.OK {
		t.Fatalf("run failed: %s", res.Error)
	}
	if len(res.Logs) != 1 || res.Logs[0] != "state_changed bedroom set_group" {
		t.Errorf("logs = %v", res.Logs)
	}
	m, _ := lamps.Get("bedroom")
	if m.Snapshot().LastCommand != "GL,0,5" {
		t.Errorf("last command = %q, want GL,0,5", m.Snapshot().LastCommand)
	}
}

func TestRunLuaCodeTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("slow")
	}
	e, _, _ := newLampEngine(t)
	res := e.RunLuaCode(`while true do end`)
	if res.OK || !strings.HasPrefix(res.Error, "timeout") {
		t.Errorf("result = %+v, want timeout", res)
	}
}

func TestRunLuaCodeSandbox(t *testing.T) {
	e, _, _ := newLampEngine(t)
	for _, code := range []string{`os.exit(1)`, `io.write("x")`, `require("socket")`, `dofile("/etc/passwd")`} {
		if res := e.RunLuaCode(code); res.OK {
			t.Errorf("RunLuaCode(%q) succeeded, want sandbox error", code)
		}
	}
}

func TestScriptReactsToEvents(t *testing.T) {
	e, lamps, _ := newLampEngine(t)

	_, err := e.manager.Save(&Script{
		ID:   "follow",
		Meta: ScriptMeta{Name: "Follow", Enabled: true},
		LuaCode: `
lamp.on("state_changed", {lamp = "living", op = "control"}, function(event)
    if event.arg == "on" then
        lamp.turn_on("bedroom")
    end
end)
`,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.ReloadScript("follow"); err != nil {
		t.Fatal(err)
	}
	if got := e.Running(); len(got) != 1 || got[0] != "follow" {
		t.Fatalf("running = %v, want [follow]", got)
	}

	living, _ := lamps.Get("living")
	bedroom, _ := lamps.Get("bedroom")
	if err := living.SendControl(context.Background(), protocol.ActionOn); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return bedroom.Snapshot().Power })

	e.StopScript("follow")
	if got := e.Running(); len(got) != 0 {
		t.Errorf("running after stop = %v", got)
	}
}

func TestReloadDisabledScript(t *testing.T) {
	e, _, _ := newLampEngine(t)

	if _, err := e.manager.Save(&Script{ID: "off", Meta: ScriptMeta{Name: "Off"}, LuaCode: `lamp.log("x")`}); err != nil {
		t.Fatal(err)
	}
	if err := e.ReloadScript("off"); err != nil {
		t.Fatal(err)
	}
	if got := e.Running(); len(got) != 0 {
		t.Errorf("running = %v, want none", got)
	}
	if err := e.ReloadScript("missing"); err == nil {
		t.Error("expected error for missing script")
	}
}

func TestStartScriptSyntaxError(t *testing.T) {
	e, _, _ := newLampEngine(t)
	if err := e.startScript(&Script{ID: "bad", LuaCode: `lamp.on(`}); err == nil {
		t.Error("expected error")
	}
}

func TestRunScript(t *testing.T) {
	e, _, _ := newLampEngine(t)

	if res := e.RunScript("missing"); res.OK {
		t.Error("expected failure for missing script")
	}
	if _, err := e.manager.Save(&Script{ID: "hello", Meta: ScriptMeta{Name: "Hello"}, LuaCode: `system.log("info", "hi")`}); err != nil {
		t.Fatal(err)
	}
	res := e.RunScript("hello")
	if !res.OK || len(res.Logs) != 1 || res.Logs[0] != "[info] hi" {
		t.Errorf("result = %+v", res)
	}
}
