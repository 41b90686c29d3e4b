//go:build no_automation

package main

import (
	"log/slog"
	"time"

	"gyverlamp-go-home/internal/lamp"
	"gyverlamp-go-home/internal/web"
)

type autoStopper struct{}

func (a *autoStopper) Stop() {}

func initAutomation(_ *lamp.Lamps, _ *Config, _ *time.Location, _ *slog.Logger) (*autoStopper, []web.ServerOption) {
	return &autoStopper{}, nil
}
