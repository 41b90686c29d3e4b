// Package metrics exports lamp activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gyverlamp-go-home/internal/lamp"
)

const namespace = "gyverlamp"

// Collector keeps per-lamp metrics current by observing manager events.
type Collector struct {
	lamps    *lamp.Lamps
	registry *prometheus.Registry

	commands      *prometheus.CounterVec
	stateChanges  *prometheus.CounterVec
	presets       *prometheus.GaugeVec
	currentPreset *prometheus.GaugeVec
	group         *prometheus.GaugeVec
	port          *prometheus.GaugeVec
	online        *prometheus.GaugeVec
	power         *prometheus.GaugeVec
	lastSent      *prometheus.GaugeVec

	mu     sync.Mutex
	unsubs []func()
}

// New creates a collector with its own registry, including the Go runtime
// and process collectors.
func New(lamps *lamp.Lamps) *Collector {
	labels := []string{"lamp"}
	c := &Collector{
		lamps:    lamps,
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "UDP commands broadcast, by payload kind and result.",
		}, []string{"lamp", "kind", "result"}),
		stateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_changes_total",
			Help:      "Committed lamp operations, by operation.",
		}, []string{"lamp", "op"}),
		presets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "presets",
			Help:      "Number of presets stored for the lamp.",
		}, labels),
		currentPreset: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_preset",
			Help:      "Active preset number (1-based).",
		}, labels),
		group: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "group",
			Help:      "Lamp group the bridge is addressing.",
		}, labels),
		port: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "port",
			Help:      "UDP port derived from network key and group.",
		}, labels),
		online: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online",
			Help:      "1 if the last broadcast succeeded.",
		}, labels),
		power: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "power",
			Help:      "1 if the lamp was last switched on.",
		}, labels),
		lastSent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_command_timestamp_seconds",
			Help:      "Unix time of the last broadcast attempt.",
		}, labels),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.commands, c.stateChanges, c.presets, c.currentPreset,
		c.group, c.port, c.online, c.power, c.lastSent,
	)
	return c
}

// Start records the current state of every lamp and subscribes to events.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.lamps.All() {
		c.observe(m.Snapshot())
		c.unsubs = append(c.unsubs, m.Subscribe(c.handleEvent))
	}
}

// Stop unsubscribes from the lamps.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry exposes the underlying registry for additional collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) handleEvent(event lamp.Event) {
	data, _ := event.Data.(map[string]interface{})

	switch event.Type {
	case lamp.EventCommandSent, lamp.EventCommandFailed:
		kind, _ := data["kind"].(string)
		result := "ok"
		if event.Type == lamp.EventCommandFailed {
			result = "error"
		}
		c.commands.WithLabelValues(event.Lamp, kind, result).Inc()
	case lamp.EventStateChanged:
		op, _ := data["op"].(string)
		c.stateChanges.WithLabelValues(event.Lamp, op).Inc()
	}

	if m, ok := c.lamps.Get(event.Lamp); ok {
		c.observe(m.Snapshot())
	}
}

func (c *Collector) observe(st lamp.State) {
	c.presets.WithLabelValues(st.ID).Set(float64(len(st.Presets)))
	c.currentPreset.WithLabelValues(st.ID).Set(float64(st.CurrentPreset))
	c.group.WithLabelValues(st.ID).Set(float64(st.CurrentGroup))
	c.port.WithLabelValues(st.ID).Set(float64(st.Port))
	c.online.WithLabelValues(st.ID).Set(boolFloat(st.Online()))
	c.power.WithLabelValues(st.ID).Set(boolFloat(st.Power))
	if !st.LastSentAt.IsZero() {
		c.lastSent.WithLabelValues(st.ID).Set(float64(st.LastSentAt.Unix()))
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
