//go:build !no_mqtt

// Package mqtt publishes lamps to Home Assistant over MQTT discovery and
// turns command topic messages into lamp operations.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"gyverlamp-go-home/internal/lamp"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker          string
	Username        string
	Password        string
	ClientID        string
	TopicPrefix     string
	DiscoveryPrefix string
}

const commandTimeout = 10 * time.Second

// command is a message received on a lamp's command topic.
type command struct {
	lamp    string
	entity  string
	payload string
}

// Bridge connects the lamp managers to MQTT with HA autodiscovery.
type Bridge struct {
	client pahomqtt.Client
	lamps  *lamp.Lamps
	topics topics
	logger *slog.Logger
	unsubs []func()
	ctx    context.Context
	cancel context.CancelFunc

	// Commands are applied on a worker goroutine so the paho callback
	// never blocks on a lamp operation.
	cmds chan command
	wg   sync.WaitGroup

	// Last published preset option list per lamp; the select's discovery
	// config is republished when it changes.
	mu         sync.Mutex
	presetOpts map[string][]string
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(lamps *lamp.Lamps, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := newBridge(lamps, cfg, logger)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "gyverlamp-go-home"
	}
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(b.topics.bridgeState(), "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.onConnect()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	b.client = client
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		b.cancel()
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		b.cancel()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

func newBridge(lamps *lamp.Lamps, cfg Config, logger *slog.Logger) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	discovery := cfg.DiscoveryPrefix
	if discovery == "" {
		discovery = "homeassistant"
	}
	return &Bridge{
		lamps:      lamps,
		topics:     topics{prefix: cfg.TopicPrefix, discovery: discovery},
		logger:     logger.With("component", "mqtt"),
		ctx:        ctx,
		cancel:     cancel,
		cmds:       make(chan command, 64),
		presetOpts: make(map[string][]string),
	}
}

// Start subscribes to lamp events and begins applying commands.
func (b *Bridge) Start() {
	for _, m := range b.lamps.All() {
		b.unsubs = append(b.unsubs, m.Subscribe(b.handleEvent))
	}
	b.wg.Add(1)
	go b.commandLoop()
	b.logger.Info("MQTT bridge started", "prefix", b.topics.prefix, "lamps", len(b.lamps.All()))
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	for _, unsub := range b.unsubs {
		unsub()
	}
	b.cancel()
	b.wg.Wait()
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

// RemoveLamp clears the retained discovery and state of a lamp that is no
// longer configured.
func (b *Bridge) RemoveLamp(id string) {
	for _, msg := range buildRemoveDiscovery(b.topics, id) {
		b.publish(msg.Topic, msg.Payload, true)
	}
	b.publish(b.topics.lampState(id), nil, true)
	b.logger.Info("removed HA discovery", "lamp", id)
}

func (b *Bridge) onConnect() {
	b.publishBridgeState("online")
	for _, m := range b.lamps.All() {
		st := m.Snapshot()
		b.publishDiscovery(st)
		b.publishState(st)
		b.subscribeCommands(m.ID())
	}
}

// handleEvent runs synchronously inside a lamp operation; it only reads
// state and publishes.
func (b *Bridge) handleEvent(event lamp.Event) {
	m, ok := b.lamps.Get(event.Lamp)
	if !ok {
		return
	}
	st := m.Snapshot()

	if event.Type == lamp.EventStateChanged {
		opts := st.PresetOptions()
		b.mu.Lock()
		changed := !slices.Equal(b.presetOpts[st.ID], opts)
		b.mu.Unlock()
		if changed {
			if e, ok := lamp.EntityByKey("preset"); ok {
				msg := buildEntity(b.topics, st, e)
				b.publish(msg.Topic, msg.Payload, true)
			}
			b.mu.Lock()
			b.presetOpts[st.ID] = opts
			b.mu.Unlock()
		}
	}
	b.publishState(st)
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.topics.bridgeState(), []byte(state), true)
}

func (b *Bridge) publishDiscovery(st lamp.State) {
	for _, msg := range buildDiscovery(b.topics, st) {
		b.publish(msg.Topic, msg.Payload, true)
	}
	b.mu.Lock()
	b.presetOpts[st.ID] = st.PresetOptions()
	b.mu.Unlock()
	b.logger.Info("published HA discovery", "lamp", st.ID, "name", st.Name)
}

func (b *Bridge) publishState(st lamp.State) {
	b.publish(b.topics.lampState(st.ID), mustJSON(lamp.Values(st)), true)
}

func (b *Bridge) subscribeCommands(id string) {
	topic := b.topics.command(id, "+")
	prefix := b.topics.lampBase(id) + "/"
	b.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		key := strings.TrimSuffix(strings.TrimPrefix(msg.Topic(), prefix), "/set")
		b.enqueue(command{lamp: id, entity: key, payload: string(msg.Payload())})
	})
}

func (b *Bridge) enqueue(cmd command) {
	select {
	case b.cmds <- cmd:
	default:
		b.logger.Warn("command queue full, dropping", "lamp", cmd.lamp, "entity", cmd.entity)
	}
}

func (b *Bridge) commandLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case cmd := <-b.cmds:
			b.handleCommand(cmd)
		}
	}
}

func (b *Bridge) handleCommand(cmd command) {
	m, ok := b.lamps.Get(cmd.lamp)
	if !ok {
		b.logger.Warn("command for unknown lamp", "lamp", cmd.lamp)
		return
	}
	e, ok := lamp.EntityByKey(cmd.entity)
	if !ok {
		b.logger.Warn("command for unknown entity", "lamp", cmd.lamp, "entity", cmd.entity)
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()
	if err := m.Apply(ctx, e, cmd.payload); err != nil {
		b.logger.Warn("command rejected", "lamp", cmd.lamp, "entity", cmd.entity, "payload", cmd.payload, "err", err)
		// Republish so HA drops the optimistic value it showed.
		b.publishState(m.Snapshot())
	}
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
