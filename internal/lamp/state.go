package lamp

import (
	"fmt"
	"slices"
	"time"

	"gyverlamp-go-home/internal/store"
)

// State is a read-only copy of a lamp's state plus runtime diagnostics.
type State struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Settings      store.Settings `json:"settings"`
	Presets       []store.Preset `json:"presets"`
	CurrentPreset int            `json:"current_preset"`
	CurrentGroup  int            `json:"current_group"`
	NetworkKey    string         `json:"-"`
	Address       string         `json:"address"`
	Port          int            `json:"port"`
	Power         bool           `json:"power"`
	LastCommand   string         `json:"last_command,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	LastSentAt    time.Time      `json:"last_sent_at"`
}

// Snapshot returns a deep copy of the current state. Safe to call from an
// observer.
func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return State{
		ID:            m.entry.ID,
		Name:          m.entry.Name,
		Settings:      m.state.Settings,
		Presets:       slices.Clone(m.state.Presets),
		CurrentPreset: m.state.CurrentPreset,
		CurrentGroup:  m.state.CurrentGroup,
		NetworkKey:    m.networkKeyLocked(),
		Address:       m.broadcast,
		Port:          m.port,
		Power:         m.power,
		LastCommand:   m.lastCommand,
		LastError:     m.lastError,
		LastSentAt:    m.lastSentAt,
	}
}

// PresetName returns "<effect>-<palette>" for preset n (1-indexed).
func (m *Manager) PresetName(n int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n < 1 || n > len(m.state.Presets) {
		return ""
	}
	return presetName(m.state.Presets[n-1])
}

// Online reports whether the last send succeeded. A lamp nothing was sent
// to yet counts as online.
func (s State) Online() bool { return s.LastError == "" }

// ActivePreset returns the current preset.
func (s State) ActivePreset() store.Preset {
	return s.Presets[s.CurrentPreset-1]
}

// PresetName returns "<effect>-<palette>" for preset n (1-indexed).
func (s State) PresetName(n int) string {
	if n < 1 || n > len(s.Presets) {
		return ""
	}
	return presetName(s.Presets[n-1])
}

// PresetOptions lists every preset as "<n>. <effect>-<palette>".
func (s State) PresetOptions() []string {
	opts := make([]string, len(s.Presets))
	for i, p := range s.Presets {
		opts[i] = fmt.Sprintf("%d. %s", i+1, presetName(p))
	}
	return opts
}

func presetName(p store.Preset) string {
	effect, ok := optionLabel(Effects, int(p.Effect))
	if !ok {
		effect = fmt.Sprintf("Effect %d", p.Effect)
	}
	palette, ok := optionLabel(Palettes, int(p.Palette))
	if !ok {
		palette = fmt.Sprintf("Palette %d", p.Palette)
	}
	return effect + "-" + palette
}
