package lamp

import (
	"fmt"
	"slices"

	"gyverlamp-go-home/internal/protocol"
)

// EntityKind is the UI widget type of an entity.
type EntityKind string

const (
	KindLight  EntityKind = "light"
	KindSelect EntityKind = "select"
	KindNumber EntityKind = "number"
	KindSwitch EntityKind = "switch"
	KindButton EntityKind = "button"
	KindSensor EntityKind = "sensor"
	KindText   EntityKind = "text"
)

// Entity categories.
const (
	CategoryConfig     = "config"
	CategoryDiagnostic = "diagnostic"
)

// TargetKind selects which part of the lamp an entity reads and writes.
type TargetKind int

const (
	TargetSetting TargetKind = iota + 1
	TargetPreset
	TargetPresetSelect
	TargetGroup
	TargetPower
	TargetButton
	TargetDiagnostic
	TargetNetworkKey
)

// Button identifies a press-only action.
type Button string

const (
	ButtonPrevPreset   Button = "prev_preset"
	ButtonNextPreset   Button = "next_preset"
	ButtonAddPreset    Button = "add_preset"
	ButtonDeletePreset Button = "delete_preset"
	ButtonResetPresets Button = "reset_presets"
	ButtonReboot       Button = "reboot"
	ButtonUpload       Button = "upload_settings"
)

// Diagnostic identifies a read-only runtime value.
type Diagnostic string

const (
	DiagPort          Diagnostic = "port"
	DiagLastCommand   Diagnostic = "last_command"
	DiagCurrentPreset Diagnostic = "current_preset"
	DiagPresetsCount  Diagnostic = "presets_count"
	DiagOnline        Diagnostic = "online"
)

// Target is a tagged union; only the field matching Kind is set.
type Target struct {
	Kind       TargetKind
	Setting    SettingField
	Preset     PresetField
	Button     Button
	Diagnostic Diagnostic
}

// Entity describes one control or sensor exposed for a lamp.
type Entity struct {
	Key      string     `json:"key"`
	Name     string     `json:"name"`
	Kind     EntityKind `json:"kind"`
	Icon     string     `json:"icon,omitempty"`
	Category string     `json:"category,omitempty"`
	Target   Target     `json:"-"`
	Min      int        `json:"min,omitempty"`
	Max      int        `json:"max,omitempty"`
	Step     int        `json:"step,omitempty"`
	Mode     string     `json:"mode,omitempty"` // number: "slider" or "box"
	Unit     string     `json:"unit,omitempty"`
	Options  []Option   `json:"-"`
}

func settingSelect(f SettingField, name, icon string, opts []Option) Entity {
	return Entity{Key: string(f), Name: name, Kind: KindSelect, Icon: icon, Category: CategoryConfig,
		Target: Target{Kind: TargetSetting, Setting: f}, Options: opts}
}

func settingNumber(f SettingField, name, icon, mode string, unit string) Entity {
	r := settingRanges[f]
	return Entity{Key: string(f), Name: name, Kind: KindNumber, Icon: icon, Category: CategoryConfig,
		Target: Target{Kind: TargetSetting, Setting: f}, Min: r.min, Max: r.max, Step: 1, Mode: mode, Unit: unit}
}

func presetSelect(f PresetField, name, icon string, opts []Option) Entity {
	return Entity{Key: "preset_" + string(f), Name: name, Kind: KindSelect, Icon: icon,
		Target: Target{Kind: TargetPreset, Preset: f}, Options: opts}
}

func presetNumber(f PresetField, name, icon string) Entity {
	r := presetRanges[f]
	return Entity{Key: "preset_" + string(f), Name: name, Kind: KindNumber, Icon: icon,
		Target: Target{Kind: TargetPreset, Preset: f}, Min: r.min, Max: r.max, Step: 1, Mode: "slider"}
}

func presetSwitch(f PresetField, name, icon string) Entity {
	return Entity{Key: "preset_" + string(f), Name: name, Kind: KindSwitch, Icon: icon,
		Target: Target{Kind: TargetPreset, Preset: f}}
}

func button(b Button, name, icon, category string) Entity {
	return Entity{Key: string(b), Name: name, Kind: KindButton, Icon: icon, Category: category,
		Target: Target{Kind: TargetButton, Button: b}}
}

func sensor(d Diagnostic, name, icon string) Entity {
	return Entity{Key: string(d), Name: name, Kind: KindSensor, Icon: icon, Category: CategoryDiagnostic,
		Target: Target{Kind: TargetDiagnostic, Diagnostic: d}}
}

var timezoneOptions = func() []Option {
	tzs := protocol.Timezones()
	opts := make([]Option, len(tzs))
	for i, tz := range tzs {
		opts[i] = Option{Value: protocol.TimezoneCode(tz), Label: tz}
	}
	return opts
}()

var catalogue = []Entity{
	{Key: "light", Name: "Lamp", Kind: KindLight, Icon: "mdi:lamp", Target: Target{Kind: TargetPower}},

	{Key: "preset", Name: "Preset", Kind: KindSelect, Icon: "mdi:palette", Target: Target{Kind: TargetPresetSelect}},
	{Key: "group", Name: "Group", Kind: KindSelect, Icon: "mdi:numeric", Category: CategoryConfig, Target: Target{Kind: TargetGroup}},
	settingSelect(SettingADCMode, "ADC Mode", "mdi:microphone", ADCModes),
	settingSelect(SettingModeChange, "Mode Change", "mdi:autorenew", ModeChanges),
	settingSelect(SettingLampType, "Lamp Type", "mdi:led-strip-variant", LampTypes),
	settingSelect(SettingMatrixOrientation, "Matrix Orientation", "mdi:rotate-right", MatrixOrientations),
	settingSelect(SettingChangePeriod, "Change Period", "mdi:timer-outline", ChangePeriods),
	settingSelect(SettingTimezone, "Timezone", "mdi:map-clock", timezoneOptions),
	presetSelect(PresetEffect, "Effect", "mdi:creation", Effects),
	presetSelect(PresetPalette, "Palette", "mdi:palette-swatch", Palettes),
	presetSelect(PresetAdvMode, "Reaction", "mdi:music", ReactionTypes),
	presetSelect(PresetSoundReact, "Sound Reaction", "mdi:waveform", SoundReactions),

	settingNumber(SettingBrightness, "Brightness", "mdi:brightness-6", "slider", ""),
	settingNumber(SettingMinBrightness, "Min Brightness", "mdi:brightness-4", "slider", ""),
	settingNumber(SettingMaxBrightness, "Max Brightness", "mdi:brightness-7", "slider", ""),
	settingNumber(SettingMaxCurrent, "Max Current", "mdi:current-dc", "box", "mA"),
	settingNumber(SettingWorkHoursFrom, "Work From", "mdi:clock-start", "box", "h"),
	settingNumber(SettingWorkHoursTo, "Work To", "mdi:clock-end", "box", "h"),
	settingNumber(SettingMatrixLength, "Matrix Length", "mdi:arrow-expand-horizontal", "box", ""),
	settingNumber(SettingMatrixWidth, "Matrix Width", "mdi:arrow-expand-vertical", "box", ""),
	settingNumber(SettingCityID, "City ID", "mdi:city", "box", ""),
	presetNumber(PresetSpeed, "Speed", "mdi:speedometer"),
	presetNumber(PresetScale, "Scale", "mdi:arrow-expand-all"),
	presetNumber(PresetMin, "Min", "mdi:arrow-collapse-down"),
	presetNumber(PresetMax, "Max", "mdi:arrow-collapse-up"),
	presetNumber(PresetBright, "Preset Brightness", "mdi:brightness-5"),
	presetNumber(PresetColor, "Color", "mdi:palette-outline"),

	{Key: string(SettingRandomOrder), Name: "Random Order", Kind: KindSwitch, Icon: "mdi:shuffle-variant", Category: CategoryConfig,
		Target: Target{Kind: TargetSetting, Setting: SettingRandomOrder}},
	presetSwitch(PresetFadeBright, "Fade Brightness", "mdi:brightness-auto"),
	presetSwitch(PresetFromCenter, "From Center", "mdi:arrow-expand"),
	presetSwitch(PresetFromPalette, "From Palette", "mdi:palette"),

	button(ButtonPrevPreset, "Previous Preset", "mdi:skip-previous", ""),
	button(ButtonNextPreset, "Next Preset", "mdi:skip-next", ""),
	button(ButtonAddPreset, "Add Preset", "mdi:plus", CategoryConfig),
	button(ButtonDeletePreset, "Delete Last Preset", "mdi:delete", CategoryConfig),
	button(ButtonResetPresets, "Reset Presets", "mdi:restore", CategoryConfig),
	button(ButtonReboot, "Reboot", "mdi:restart", CategoryConfig),
	button(ButtonUpload, "Upload Settings", "mdi:upload", CategoryConfig),

	sensor(DiagPort, "Port", "mdi:ethernet"),
	sensor(DiagLastCommand, "Last Command", "mdi:console"),
	sensor(DiagCurrentPreset, "Current Preset", "mdi:counter"),
	sensor(DiagPresetsCount, "Presets Count", "mdi:format-list-numbered"),
	sensor(DiagOnline, "Online Status", "mdi:lan-connect"),

	{Key: "network_key", Name: "Network Key", Kind: KindText, Icon: "mdi:key", Category: CategoryConfig, Target: Target{Kind: TargetNetworkKey}},
}

// Entities returns the entity catalogue. The slice is a copy.
func Entities() []Entity {
	return slices.Clone(catalogue)
}

// EntityByKey looks up one entity.
func EntityByKey(key string) (Entity, bool) {
	for _, e := range catalogue {
		if e.Key == key {
			return e, true
		}
	}
	return Entity{}, false
}

// ReadOnly reports whether the entity accepts no commands.
func (e Entity) ReadOnly() bool { return e.Kind == KindSensor }

// OptionLabels returns the labels a select offers for the given state.
// Preset and group lists depend on the state; the rest are fixed.
func (e Entity) OptionLabels(st State) []string {
	switch e.Target.Kind {
	case TargetPresetSelect:
		return st.PresetOptions()
	case TargetGroup:
		labels := make([]string, 0, 8)
		for g := 1; g <= 8; g++ {
			labels = append(labels, groupLabel(g))
		}
		return labels
	}
	labels := make([]string, len(e.Options))
	for i, o := range e.Options {
		labels[i] = o.Label
	}
	return labels
}

func groupLabel(g int) string { return fmt.Sprintf("Group %d", g) }

// Value renders the entity's current value: "ON"/"OFF" for lights and
// switches, an option label for selects, an int for numbers, nil for
// buttons.
func (e Entity) Value(st State) any {
	switch e.Target.Kind {
	case TargetPower:
		return onOff(st.Power)
	case TargetPresetSelect:
		opts := st.PresetOptions()
		if st.CurrentPreset < 1 || st.CurrentPreset > len(opts) {
			return nil
		}
		return opts[st.CurrentPreset-1]
	case TargetGroup:
		return groupLabel(st.CurrentGroup)
	case TargetNetworkKey:
		return st.NetworkKey
	case TargetButton:
		return nil
	case TargetDiagnostic:
		switch e.Target.Diagnostic {
		case DiagPort:
			return st.Port
		case DiagLastCommand:
			if st.LastCommand == "" {
				return "No command sent"
			}
			return st.LastCommand
		case DiagCurrentPreset:
			return st.CurrentPreset
		case DiagPresetsCount:
			return len(st.Presets)
		case DiagOnline:
			if st.Online() {
				return "online"
			}
			return "offline"
		}
		return nil
	}

	var raw any
	switch e.Target.Kind {
	case TargetSetting:
		raw = SettingValue(st.Settings, e.Target.Setting)
	case TargetPreset:
		if st.CurrentPreset < 1 || st.CurrentPreset > len(st.Presets) {
			return nil
		}
		raw = PresetValue(st.ActivePreset(), e.Target.Preset)
	}

	switch v := raw.(type) {
	case bool:
		if e.Kind == KindSelect {
			label, _ := optionLabel(e.Options, boolInt(v))
			return label
		}
		return onOff(v)
	case int:
		if e.Kind == KindSelect {
			if label, ok := optionLabel(e.Options, v); ok {
				return label
			}
		}
		return v
	}
	return raw
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Values renders every entity keyed by Entity.Key.
func Values(st State) map[string]any {
	out := make(map[string]any, len(catalogue))
	for _, e := range catalogue {
		if e.Kind == KindButton {
			continue
		}
		out[e.Key] = e.Value(st)
	}
	return out
}
