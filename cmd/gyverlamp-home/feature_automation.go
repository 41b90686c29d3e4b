//go:build !no_automation

package main

import (
	"log/slog"
	"time"

	"gyverlamp-go-home/internal/automation"
	"gyverlamp-go-home/internal/lamp"
	"gyverlamp-go-home/internal/web"
)

type autoStopper struct {
	engine *automation.Engine
}

func (a *autoStopper) Stop() {
	if a.engine != nil {
		a.engine.Stop()
	}
}

func initAutomation(lamps *lamp.Lamps, cfg *Config, loc *time.Location, logger *slog.Logger) (*autoStopper, []web.ServerOption) {
	scriptMgr, err := automation.NewManager(cfg.Automation.ScriptsDir)
	if err != nil {
		logger.Error("create script manager", "err", err)
		return &autoStopper{}, nil
	}

	engine := automation.NewEngine(lamps, scriptMgr, logger, automation.SystemConfig{Location: loc})
	engine.Start()

	opts := []web.ServerOption{
		web.WithAutomation(engine, scriptMgr),
	}
	return &autoStopper{engine: engine}, opts
}
