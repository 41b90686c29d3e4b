package store

import "slices"

// MaxPresets is the firmware's preset table size.
const MaxPresets = 40

// Group bounds for the lamp's sub-channel.
const (
	MinGroup = 1
	MaxGroup = 8
)

// Settings is the lamp-wide configuration sent with the settings command.
// Field order matches the wire order.
type Settings struct {
	Brightness        uint8  `json:"brightness"`
	ADCMode           uint8  `json:"adc_mode"`
	MinBrightness     uint8  `json:"min_brightness"`
	MaxBrightness     uint8  `json:"max_brightness"`
	ModeChange        bool   `json:"mode_change"`
	RandomOrder       bool   `json:"random_order"`
	ChangePeriod      uint8  `json:"change_period"` // minutes
	LampType          uint8  `json:"lamp_type"`
	MaxCurrent        uint16 `json:"max_current"` // mA, sent as MaxCurrent/100
	WorkHoursFrom     uint8  `json:"work_hours_from"`
	WorkHoursTo       uint8  `json:"work_hours_to"`
	MatrixOrientation uint8  `json:"matrix_orientation"`
	MatrixLength      uint16 `json:"matrix_length"`
	MatrixWidth       uint16 `json:"matrix_width"`
	Timezone          string `json:"timezone"`
	CityID            uint32 `json:"city_id"`
}

// Preset is one entry of the lamp's effect table. Field order matches the
// firmware struct and is positional on the wire.
type Preset struct {
	Effect      uint8 `json:"effect"`
	FadeBright  bool  `json:"fade_bright"`
	Bright      uint8 `json:"bright"`
	AdvMode     uint8 `json:"adv_mode"`
	SoundReact  uint8 `json:"sound_react"`
	Min         uint8 `json:"min"`
	Max         uint8 `json:"max"`
	Speed       uint8 `json:"speed"`
	Palette     uint8 `json:"palette"`
	Scale       uint8 `json:"scale"`
	FromCenter  bool  `json:"from_center"`
	Color       uint8 `json:"color"`
	FromPalette bool  `json:"from_palette"`
}

// DeviceState is the persisted state of one lamp entry.
// CurrentPreset is 1-indexed.
type DeviceState struct {
	Settings      Settings `json:"settings"`
	Presets       []Preset `json:"presets"`
	CurrentPreset int      `json:"current_preset"`
	CurrentGroup  int      `json:"current_group"`

	// NetworkKey overrides the configured key when set at runtime.
	NetworkKey string `json:"network_key,omitempty"`

	// Added records presets appended by add, newest last, so deleting one
	// returns to the preset it was copied from.
	Added []AddedPreset `json:"added_presets,omitempty"`
}

// AddedPreset links an appended preset to the preset active before it.
type AddedPreset struct {
	Created int `json:"created"`
	Origin  int `json:"origin"`
}

// Clone returns a deep copy of the state.
func (s *DeviceState) Clone() *DeviceState {
	c := *s
	c.Presets = slices.Clone(s.Presets)
	c.Added = slices.Clone(s.Added)
	return &c
}

// Normalize repairs a loaded state so the preset invariants hold:
// at least one preset, at most MaxPresets, current preset within bounds,
// group within 1..8 (falling back to defaultGroup). Added records that no
// longer point into the list are dropped. Reports whether anything changed.
func (s *DeviceState) Normalize(defaultGroup int) bool {
	changed := false
	if len(s.Presets) == 0 {
		s.Presets = []Preset{DefaultPreset()}
		changed = true
	}
	if len(s.Presets) > MaxPresets {
		s.Presets = s.Presets[:MaxPresets]
		changed = true
	}
	if s.CurrentPreset < 1 {
		s.CurrentPreset = 1
		changed = true
	}
	if s.CurrentPreset > len(s.Presets) {
		s.CurrentPreset = len(s.Presets)
		changed = true
	}
	if s.CurrentGroup < MinGroup || s.CurrentGroup > MaxGroup {
		s.CurrentGroup = defaultGroup
		changed = true
	}
	kept := s.Added[:0]
	for _, a := range s.Added {
		if a.Created >= 2 && a.Created <= len(s.Presets) && a.Origin >= 1 && a.Origin < a.Created {
			kept = append(kept, a)
		}
	}
	if len(kept) != len(s.Added) {
		s.Added = kept
		changed = true
	}
	return changed
}

// DefaultSettings returns the factory settings of a freshly configured lamp.
func DefaultSettings() Settings {
	return Settings{
		Brightness:        255,
		ADCMode:           1,
		MinBrightness:     0,
		MaxBrightness:     255,
		ChangePeriod:      1,
		LampType:          1,
		MaxCurrent:        500,
		WorkHoursFrom:     0,
		WorkHoursTo:       23,
		MatrixOrientation: 1,
		MatrixLength:      16,
		MatrixWidth:       16,
		Timezone:          "MSK",
		CityID:            0,
	}
}

// DefaultPreset returns the preset used for new and reset preset lists.
func DefaultPreset() Preset {
	return Preset{
		Effect:     1,
		Bright:     255,
		AdvMode:    1,
		SoundReact: 1,
		Min:        0,
		Max:        255,
		Speed:      128,
		Palette:    1,
		Scale:      255,
		Color:      0,
	}
}

// DefaultState returns a state with default settings and a single default preset.
func DefaultState(group int) *DeviceState {
	return &DeviceState{
		Settings:      DefaultSettings(),
		Presets:       []Preset{DefaultPreset()},
		CurrentPreset: 1,
		CurrentGroup:  group,
	}
}
