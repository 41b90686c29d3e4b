//go:build !no_automation

package web

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"gyverlamp-go-home/internal/automation"
)

func setupAutomationServer(t *testing.T) (*Server, *recordingTx) {
	t.Helper()
	lamps, tx := setupTestLamps(t)

	mgr, err := automation.NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	engine := automation.NewEngine(lamps, mgr, testLogger(), automation.SystemConfig{Location: time.UTC})
	engine.Start()
	t.Cleanup(engine.Stop)

	srv := NewServer(lamps, testLogger(), WithAutomation(engine, mgr))
	t.Cleanup(srv.Stop)
	return srv, tx
}

func TestAPIAutomationLifecycle(t *testing.T) {
	srv, _ := setupAutomationServer(t)

	w := doRequest(t, srv, "POST", "/api/automations", `{"name":"Evening Glow","lua_code":"lamp.log('hi')","enabled":true,"lamps":["living"]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var created automationView
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.ID != "evening_glow" || !created.Running {
		t.Errorf("created = id %q running %v", created.ID, created.Running)
	}

	w = doRequest(t, srv, "GET", "/api/automations", "")
	var list []automationView
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Meta.Name != "Evening Glow" {
		t.Fatalf("list = %+v", list)
	}

	w = doRequest(t, srv, "POST", "/api/automations/evening_glow/toggle", "")
	var toggled automationView
	if err := json.NewDecoder(w.Body).Decode(&toggled); err != nil {
		t.Fatal(err)
	}
	if toggled.Meta.Enabled || toggled.Running {
		t.Errorf("after toggle: enabled %v running %v", toggled.Meta.Enabled, toggled.Running)
	}

	w = doRequest(t, srv, "DELETE", "/api/automations/evening_glow", "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = doRequest(t, srv, "GET", "/api/automations/evening_glow", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAPIAutomationValidation(t *testing.T) {
	srv, _ := setupAutomationServer(t)

	w := doRequest(t, srv, "POST", "/api/automations", `{"lua_code":"x = 1"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing name: status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	w = doRequest(t, srv, "POST", "/api/automations", `{"name":"x","lamps":["garage"]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown lamp: status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestAPIRunInlineAutomation(t *testing.T) {
	srv, tx := setupAutomationServer(t)

	w := doRequest(t, srv, "POST", "/api/automations/_inline/run", `{"lua_code":"assert(lamp.turn_on('living'))"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var result automation.RunResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if !result.OK {
		t.Fatalf("run failed: %s", result.Error)
	}
	if sent := tx.sent(); len(sent) != 1 || sent[0] != "GL,0,1" {
		t.Errorf("sent = %v, want [GL,0,1]", sent)
	}
}
