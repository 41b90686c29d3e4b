//go:build no_mqtt

package main

import (
	"log/slog"

	"gyverlamp-go-home/internal/lamp"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func (m *mqttStopper) RemoveLamps(_ []string) {}

func initMQTT(_ *lamp.Lamps, _ *Config, _ *slog.Logger) *mqttStopper {
	return &mqttStopper{}
}
