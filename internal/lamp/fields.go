package lamp

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gyverlamp-go-home/internal/store"
)

// SettingField names one lamp-wide setting. The string is the JSON key.
type SettingField string

const (
	SettingBrightness        SettingField = "brightness"
	SettingADCMode           SettingField = "adc_mode"
	SettingMinBrightness     SettingField = "min_brightness"
	SettingMaxBrightness     SettingField = "max_brightness"
	SettingModeChange        SettingField = "mode_change"
	SettingRandomOrder       SettingField = "random_order"
	SettingChangePeriod      SettingField = "change_period"
	SettingLampType          SettingField = "lamp_type"
	SettingMaxCurrent        SettingField = "max_current"
	SettingWorkHoursFrom     SettingField = "work_hours_from"
	SettingWorkHoursTo       SettingField = "work_hours_to"
	SettingMatrixOrientation SettingField = "matrix_orientation"
	SettingMatrixLength      SettingField = "matrix_length"
	SettingMatrixWidth       SettingField = "matrix_width"
	SettingTimezone          SettingField = "timezone"
	SettingCityID            SettingField = "city_id"
)

// SettingFields lists every setting in wire order.
var SettingFields = []SettingField{
	SettingBrightness, SettingADCMode, SettingMinBrightness, SettingMaxBrightness,
	SettingModeChange, SettingRandomOrder, SettingChangePeriod, SettingLampType,
	SettingMaxCurrent, SettingWorkHoursFrom, SettingWorkHoursTo, SettingMatrixOrientation,
	SettingMatrixLength, SettingMatrixWidth, SettingTimezone, SettingCityID,
}

// PresetField names one field of a preset. The string is the JSON key.
type PresetField string

const (
	PresetEffect      PresetField = "effect"
	PresetFadeBright  PresetField = "fade_bright"
	PresetBright      PresetField = "bright"
	PresetAdvMode     PresetField = "adv_mode"
	PresetSoundReact  PresetField = "sound_react"
	PresetMin         PresetField = "min"
	PresetMax         PresetField = "max"
	PresetSpeed       PresetField = "speed"
	PresetPalette     PresetField = "palette"
	PresetScale       PresetField = "scale"
	PresetFromCenter  PresetField = "from_center"
	PresetColor       PresetField = "color"
	PresetFromPalette PresetField = "from_palette"
)

// PresetFields lists every preset field in wire order.
var PresetFields = []PresetField{
	PresetEffect, PresetFadeBright, PresetBright, PresetAdvMode, PresetSoundReact,
	PresetMin, PresetMax, PresetSpeed, PresetPalette, PresetScale,
	PresetFromCenter, PresetColor, PresetFromPalette,
}

// PresetPatch is a partial update of the active preset.
type PresetPatch map[PresetField]any

// SettingsPatch is a partial update of the lamp-wide settings.
type SettingsPatch map[SettingField]any

// ParseSettingField validates a setting name.
func ParseSettingField(name string) (SettingField, error) {
	for _, f := range SettingFields {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: setting %q", ErrUnknownField, name)
}

// ParsePresetField validates a preset field name.
func ParsePresetField(name string) (PresetField, error) {
	for _, f := range PresetFields {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: preset field %q", ErrUnknownField, name)
}

// rng is an inclusive integer range, optionally restricted to a value set.
type rng struct {
	min, max int
	allowed  []Option
}

func (r rng) check(v int) bool {
	if r.allowed != nil {
		return hasOption(r.allowed, v)
	}
	return v >= r.min && v <= r.max
}

var byteRange = rng{0, 255, nil}

var settingRanges = map[SettingField]rng{
	SettingBrightness:        byteRange,
	SettingADCMode:           {1, 4, nil},
	SettingMinBrightness:     byteRange,
	SettingMaxBrightness:     byteRange,
	SettingChangePeriod:      {allowed: ChangePeriods},
	SettingLampType:          {1, 3, nil},
	SettingMaxCurrent:        {0, 20000, nil},
	SettingWorkHoursFrom:     {0, 23, nil},
	SettingWorkHoursTo:       {0, 23, nil},
	SettingMatrixOrientation: {1, 8, nil},
	SettingMatrixLength:      {0, 1000, nil},
	SettingMatrixWidth:       {0, 1000, nil},
	SettingCityID:            {0, 1000000, nil},
}

var presetRanges = map[PresetField]rng{
	PresetEffect:     {1, len(Effects), nil},
	PresetBright:     byteRange,
	PresetAdvMode:    {1, len(ReactionTypes), nil},
	PresetSoundReact: {1, len(SoundReactions), nil},
	PresetMin:        byteRange,
	PresetMax:        byteRange,
	PresetSpeed:      byteRange,
	PresetPalette:    {1, len(Palettes), nil},
	PresetScale:      byteRange,
	PresetColor:      byteRange,
}

const maxTimezoneLen = 8

// SettingValue reads a setting as int, bool or string.
func SettingValue(s store.Settings, f SettingField) any {
	switch f {
	case SettingBrightness:
		return int(s.Brightness)
	case SettingADCMode:
		return int(s.ADCMode)
	case SettingMinBrightness:
		return int(s.MinBrightness)
	case SettingMaxBrightness:
		return int(s.MaxBrightness)
	case SettingModeChange:
		return s.ModeChange
	case SettingRandomOrder:
		return s.RandomOrder
	case SettingChangePeriod:
		return int(s.ChangePeriod)
	case SettingLampType:
		return int(s.LampType)
	case SettingMaxCurrent:
		return int(s.MaxCurrent)
	case SettingWorkHoursFrom:
		return int(s.WorkHoursFrom)
	case SettingWorkHoursTo:
		return int(s.WorkHoursTo)
	case SettingMatrixOrientation:
		return int(s.MatrixOrientation)
	case SettingMatrixLength:
		return int(s.MatrixLength)
	case SettingMatrixWidth:
		return int(s.MatrixWidth)
	case SettingTimezone:
		return s.Timezone
	case SettingCityID:
		return int(s.CityID)
	}
	return nil
}

// applySetting validates v and writes it into s. s is untouched on error.
func applySetting(s *store.Settings, f SettingField, v any) error {
	switch f {
	case SettingModeChange, SettingRandomOrder:
		b, err := toBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		if f == SettingModeChange {
			s.ModeChange = b
		} else {
			s.RandomOrder = b
		}
		return nil
	case SettingTimezone:
		tz, ok := v.(string)
		tz = strings.TrimSpace(tz)
		if !ok || tz == "" || len(tz) > maxTimezoneLen {
			return fmt.Errorf("%w: timezone %v", ErrInvalidValue, v)
		}
		s.Timezone = tz
		return nil
	}

	r, ok := settingRanges[f]
	if !ok {
		return fmt.Errorf("%w: setting %q", ErrUnknownField, f)
	}
	n, err := toInt(v)
	if err != nil {
		return fmt.Errorf("%s: %w", f, err)
	}
	if !r.check(n) {
		return fmt.Errorf("%w: %s=%d", ErrInvalidValue, f, n)
	}

	switch f {
	case SettingBrightness:
		s.Brightness = uint8(n)
	case SettingADCMode:
		s.ADCMode = uint8(n)
	case SettingMinBrightness:
		s.MinBrightness = uint8(n)
	case SettingMaxBrightness:
		s.MaxBrightness = uint8(n)
	case SettingChangePeriod:
		s.ChangePeriod = uint8(n)
	case SettingLampType:
		s.LampType = uint8(n)
	case SettingMaxCurrent:
		s.MaxCurrent = uint16(n)
	case SettingWorkHoursFrom:
		s.WorkHoursFrom = uint8(n)
	case SettingWorkHoursTo:
		s.WorkHoursTo = uint8(n)
	case SettingMatrixOrientation:
		s.MatrixOrientation = uint8(n)
	case SettingMatrixLength:
		s.MatrixLength = uint16(n)
	case SettingMatrixWidth:
		s.MatrixWidth = uint16(n)
	case SettingCityID:
		s.CityID = uint32(n)
	}
	return nil
}

// PresetValue reads a preset field as int or bool.
func PresetValue(p store.Preset, f PresetField) any {
	switch f {
	case PresetEffect:
		return int(p.Effect)
	case PresetFadeBright:
		return p.FadeBright
	case PresetBright:
		return int(p.Bright)
	case PresetAdvMode:
		return int(p.AdvMode)
	case PresetSoundReact:
		return int(p.SoundReact)
	case PresetMin:
		return int(p.Min)
	case PresetMax:
		return int(p.Max)
	case PresetSpeed:
		return int(p.Speed)
	case PresetPalette:
		return int(p.Palette)
	case PresetScale:
		return int(p.Scale)
	case PresetFromCenter:
		return p.FromCenter
	case PresetColor:
		return int(p.Color)
	case PresetFromPalette:
		return p.FromPalette
	}
	return nil
}

// applyPresetField validates v and writes it into p. p is untouched on error.
func applyPresetField(p *store.Preset, f PresetField, v any) error {
	switch f {
	case PresetFadeBright, PresetFromCenter, PresetFromPalette:
		b, err := toBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		switch f {
		case PresetFadeBright:
			p.FadeBright = b
		case PresetFromCenter:
			p.FromCenter = b
		default:
			p.FromPalette = b
		}
		return nil
	}

	r, ok := presetRanges[f]
	if !ok {
		return fmt.Errorf("%w: preset field %q", ErrUnknownField, f)
	}
	n, err := toInt(v)
	if err != nil {
		return fmt.Errorf("%s: %w", f, err)
	}
	if !r.check(n) {
		return fmt.Errorf("%w: %s=%d", ErrInvalidValue, f, n)
	}
	u := uint8(n)
	switch f {
	case PresetEffect:
		p.Effect = u
	case PresetBright:
		p.Bright = u
	case PresetAdvMode:
		p.AdvMode = u
	case PresetSoundReact:
		p.SoundReact = u
	case PresetMin:
		p.Min = u
	case PresetMax:
		p.Max = u
	case PresetSpeed:
		p.Speed = u
	case PresetPalette:
		p.Palette = u
	case PresetScale:
		p.Scale = u
	case PresetColor:
		p.Color = u
	}
	return nil
}

// toInt accepts the integer shapes produced by JSON, YAML, Lua and MQTT
// payloads. Fractional numbers are rejected.
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidValue, n.String())
		}
		return floatToInt(f)
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.Atoi(s); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidValue, n)
		}
		return floatToInt(f)
	}
	return 0, fmt.Errorf("%w: %v (%T)", ErrInvalidValue, v, v)
}

func floatToInt(f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidValue, f)
	}
	return int(f), nil
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToUpper(strings.TrimSpace(b)) {
		case "ON", "TRUE", "1":
			return true, nil
		case "OFF", "FALSE", "0":
			return false, nil
		}
		return false, fmt.Errorf("%w: %q", ErrInvalidValue, b)
	}
	n, err := toInt(v)
	if err != nil {
		return false, err
	}
	switch n {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("%w: %d", ErrInvalidValue, n)
}
