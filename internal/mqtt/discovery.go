//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"strings"

	"gyverlamp-go-home/internal/lamp"
)

// pressPayload is sent by Home Assistant buttons.
const pressPayload = "PRESS"

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/select/gyverlamp_living/preset/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name               string   `json:"name"`
	UniqueID           string   `json:"unique_id"`
	ObjectID           string   `json:"object_id,omitempty"`
	StateTopic         string   `json:"state_topic,omitempty"`
	CommandTopic       string   `json:"command_topic,omitempty"`
	AvailabilityTopic  string   `json:"availability_topic"`
	ValueTemplate      string   `json:"value_template,omitempty"`
	StateValueTemplate string   `json:"state_value_template,omitempty"`
	UnitOfMeasurement  string   `json:"unit_of_measurement,omitempty"`
	EntityCategory     string   `json:"entity_category,omitempty"`
	Icon               string   `json:"icon,omitempty"`
	PayloadOn          string   `json:"payload_on,omitempty"`
	PayloadOff         string   `json:"payload_off,omitempty"`
	PayloadPress       string   `json:"payload_press,omitempty"`
	Options            []string `json:"options,omitempty"`
	Min                *int     `json:"min,omitempty"`
	Max                *int     `json:"max,omitempty"`
	Step               int      `json:"step,omitempty"`
	Mode               string   `json:"mode,omitempty"`
	Device             haDevice `json:"device"`
}

// component maps an entity kind to its HA discovery component.
func component(k lamp.EntityKind) string {
	return string(k)
}

// lampIdentifier returns the unique identifier for HA device registry.
func lampIdentifier(id string) string {
	return "gyverlamp_" + lampTopicName(id)
}

// lampTopicName returns the topic segment for a lamp entry ID.
func lampTopicName(id string) string {
	name := strings.ToLower(id)
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, name)
}

// topics groups the per-lamp topic names.
type topics struct {
	prefix    string
	discovery string
}

func (t topics) bridgeState() string { return t.prefix + "/bridge/state" }

func (t topics) lampBase(id string) string { return t.prefix + "/" + lampTopicName(id) }

func (t topics) lampState(id string) string { return t.lampBase(id) + "/state" }

func (t topics) command(id, key string) string {
	return t.lampBase(id) + "/" + key + "/set"
}

func (t topics) config(comp, nodeID, key string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", t.discovery, comp, nodeID, key)
}

// buildDiscovery generates HA discovery messages for every entity of a lamp.
// Preset options depend on st, so the preset select is rebuilt whenever the
// list changes.
func buildDiscovery(t topics, st lamp.State) []discoveryMsg {
	msgs := make([]discoveryMsg, 0, len(lamp.Entities()))
	for _, e := range lamp.Entities() {
		msgs = append(msgs, buildEntity(t, st, e))
	}
	return msgs
}

func buildEntity(t topics, st lamp.State, e lamp.Entity) discoveryMsg {
	nodeID := lampIdentifier(st.ID)
	p := haDiscovery{
		Name:              e.Name,
		UniqueID:          nodeID + "_" + e.Key,
		ObjectID:          nodeID + "_" + e.Key,
		AvailabilityTopic: t.bridgeState(),
		EntityCategory:    e.Category,
		Icon:              e.Icon,
		Device: haDevice{
			Identifiers:  []string{nodeID},
			Manufacturer: "AlexGyver",
			Model:        "GyverLamp 2",
			Name:         st.Name,
		},
	}
	valueTmpl := fmt.Sprintf("{{ value_json.%s }}", e.Key)

	if e.Kind != lamp.KindButton {
		p.StateTopic = t.lampState(st.ID)
	}
	if !e.ReadOnly() {
		p.CommandTopic = t.command(st.ID, e.Key)
	}

	switch e.Kind {
	case lamp.KindLight:
		p.StateValueTemplate = valueTmpl
		p.PayloadOn = "ON"
		p.PayloadOff = "OFF"
	case lamp.KindSwitch:
		p.ValueTemplate = valueTmpl
		p.PayloadOn = "ON"
		p.PayloadOff = "OFF"
	case lamp.KindSelect:
		p.ValueTemplate = valueTmpl
		p.Options = e.OptionLabels(st)
	case lamp.KindNumber:
		p.ValueTemplate = valueTmpl
		p.Min, p.Max = intPtr(e.Min), intPtr(e.Max)
		p.Step = e.Step
		p.Mode = e.Mode
		p.UnitOfMeasurement = e.Unit
	case lamp.KindButton:
		p.PayloadPress = pressPayload
	case lamp.KindSensor:
		p.ValueTemplate = valueTmpl
	case lamp.KindText:
		p.ValueTemplate = valueTmpl
		p.Min, p.Max = intPtr(1), intPtr(32)
	}

	return discoveryMsg{
		Topic:   t.config(component(e.Kind), nodeID, e.Key),
		Payload: mustJSON(p),
	}
}

func intPtr(v int) *int { return &v }

// buildRemoveDiscovery generates empty retained messages to remove a lamp from HA.
func buildRemoveDiscovery(t topics, id string) []discoveryMsg {
	nodeID := lampIdentifier(id)
	var msgs []discoveryMsg
	for _, e := range lamp.Entities() {
		msgs = append(msgs, discoveryMsg{
			Topic:   t.config(component(e.Kind), nodeID, e.Key),
			Payload: nil, // empty retained = delete
		})
	}
	return msgs
}
