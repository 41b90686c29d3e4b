package main

import (
	"fmt"
	"os"
	"regexp"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"gyverlamp-go-home/internal/lamp"
	"gyverlamp-go-home/internal/schedule"
	"gyverlamp-go-home/internal/store"
	"gyverlamp-go-home/internal/transport"
)

const (
	defaultLampName   = "Gyver Lamp 2"
	defaultNetworkKey = "GL"
	defaultGroup      = 1
	maxNetworkKeyLen  = 32
)

var lampIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// LampConfig is one configured lamp. Address is the lamp network prefix
// ("192.168.1.") or any host address on its /24.
type LampConfig struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Address    string `yaml:"address"`
	NetworkKey string `yaml:"network_key"`
	Group      int    `yaml:"group"`
}

type Config struct {
	Lamps []LampConfig `yaml:"lamps"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	Transport struct {
		SendTimeout string `yaml:"send_timeout"`
	} `yaml:"transport"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		RateLimit      struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"web"`
	MQTT struct {
		Enabled         bool   `yaml:"enabled"`
		Broker          string `yaml:"broker"`
		Username        string `yaml:"username"`
		Password        string `yaml:"password"`
		ClientID        string `yaml:"client_id"`
		TopicPrefix     string `yaml:"topic_prefix"`
		DiscoveryPrefix string `yaml:"discovery_prefix"`
	} `yaml:"mqtt"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Automation struct {
		ScriptsDir string `yaml:"scripts_dir"`
		Timezone   string `yaml:"timezone"`
	} `yaml:"automation"`
	Schedules []schedule.Entry `yaml:"schedules"`
}

func (c *Config) validate() error {
	if len(c.Lamps) == 0 {
		return fmt.Errorf("at least one lamp is required")
	}
	seen := make(map[string]bool, len(c.Lamps))
	for i, l := range c.Lamps {
		if !lampIDRe.MatchString(l.ID) {
			return fmt.Errorf("lamps[%d]: id %q must be lowercase letters, digits, '-' or '_'", i, l.ID)
		}
		if seen[l.ID] {
			return fmt.Errorf("lamps[%d]: duplicate id %q", i, l.ID)
		}
		seen[l.ID] = true
		if _, err := transport.BroadcastAddress(l.Address); err != nil {
			return fmt.Errorf("lamps[%d] (%s): %w", i, l.ID, err)
		}
		if n := utf8.RuneCountInString(l.NetworkKey); n < 1 || n > maxNetworkKeyLen {
			return fmt.Errorf("lamps[%d] (%s): network_key must be 1-%d characters", i, l.ID, maxNetworkKeyLen)
		}
		if l.Group < store.MinGroup || l.Group > store.MaxGroup {
			return fmt.Errorf("lamps[%d] (%s): group must be %d-%d, got %d", i, l.ID, store.MinGroup, store.MaxGroup, l.Group)
		}
	}
	if _, err := c.sendTimeout(); err != nil {
		return err
	}
	if _, err := c.location(); err != nil {
		return err
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.Web.RateLimit.RPS < 0 {
		return fmt.Errorf("web.rate_limit.rps must not be negative")
	}
	return nil
}

func (c *Config) sendTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Transport.SendTimeout)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("transport.send_timeout: invalid duration %q", c.Transport.SendTimeout)
	}
	return d, nil
}

// location resolves automation.timezone; empty means the host's local zone.
func (c *Config) location() (*time.Location, error) {
	if c.Automation.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Automation.Timezone)
	if err != nil {
		return nil, fmt.Errorf("automation.timezone: %w", err)
	}
	return loc, nil
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for i := range cfg.Lamps {
		l := &cfg.Lamps[i]
		if l.Name == "" {
			l.Name = defaultLampName
		}
		if l.NetworkKey == "" {
			l.NetworkKey = defaultNetworkKey
		}
		if l.Group == 0 {
			l.Group = defaultGroup
		}
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "gyverlamp-home.db"
	}
	if cfg.Transport.SendTimeout == "" {
		cfg.Transport.SendTimeout = "2s"
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.Web.RateLimit.Burst == 0 {
		cfg.Web.RateLimit.Burst = 20
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "gyverlamp"
	}
	if cfg.MQTT.DiscoveryPrefix == "" {
		cfg.MQTT.DiscoveryPrefix = "homeassistant"
	}
	if cfg.Automation.ScriptsDir == "" {
		cfg.Automation.ScriptsDir = "scripts"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func (l LampConfig) entry() lamp.Entry {
	return lamp.Entry{ID: l.ID, Name: l.Name, Address: l.Address, NetworkKey: l.NetworkKey, Group: l.Group}
}
