//go:build !no_mqtt

package main

import (
	"log/slog"

	mqttbridge "gyverlamp-go-home/internal/mqtt"

	"gyverlamp-go-home/internal/lamp"
)

type mqttStopper struct {
	bridge *mqttbridge.Bridge
}

func (m *mqttStopper) Stop() {
	if m.bridge != nil {
		m.bridge.Stop()
	}
}

// RemoveLamps clears retained discovery for lamps dropped from the config.
func (m *mqttStopper) RemoveLamps(ids []string) {
	if m.bridge == nil {
		return
	}
	for _, id := range ids {
		m.bridge.RemoveLamp(id)
	}
}

func initMQTT(lamps *lamp.Lamps, cfg *Config, logger *slog.Logger) *mqttStopper {
	if !cfg.MQTT.Enabled {
		return &mqttStopper{}
	}
	bridge, err := mqttbridge.NewBridge(lamps, mqttbridge.Config{
		Broker:          cfg.MQTT.Broker,
		Username:        cfg.MQTT.Username,
		Password:        cfg.MQTT.Password,
		ClientID:        cfg.MQTT.ClientID,
		TopicPrefix:     cfg.MQTT.TopicPrefix,
		DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
	}, logger)
	if err != nil {
		logger.Error("mqtt bridge", "err", err)
		return &mqttStopper{}
	}
	bridge.Start()
	return &mqttStopper{bridge: bridge}
}
