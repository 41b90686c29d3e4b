package lamp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gyverlamp-go-home/internal/store"
)

func TestSettingFieldsMatchJSONKeys(t *testing.T) {
	raw, err := json.Marshal(store.DefaultSettings())
	require.NoError(t, err)
	var keys map[string]any
	require.NoError(t, json.Unmarshal(raw, &keys))

	require.Len(t, SettingFields, len(keys))
	for _, f := range SettingFields {
		assert.Contains(t, keys, string(f))
		assert.NotNil(t, SettingValue(store.DefaultSettings(), f), f)
	}
}

func TestPresetFieldsMatchJSONKeys(t *testing.T) {
	raw, err := json.Marshal(store.DefaultPreset())
	require.NoError(t, err)
	var keys map[string]any
	require.NoError(t, json.Unmarshal(raw, &keys))

	require.Len(t, PresetFields, len(keys))
	for _, f := range PresetFields {
		assert.Contains(t, keys, string(f))
		assert.NotNil(t, PresetValue(store.DefaultPreset(), f), f)
	}
}

func TestParseFields(t *testing.T) {
	f, err := ParseSettingField("city_id")
	require.NoError(t, err)
	assert.Equal(t, SettingCityID, f)
	_, err = ParseSettingField("colour")
	assert.ErrorIs(t, err, ErrUnknownField)

	p, err := ParsePresetField("from_palette")
	require.NoError(t, err)
	assert.Equal(t, PresetFromPalette, p)
	_, err = ParsePresetField("hue")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestApplySettingBounds(t *testing.T) {
	tests := []struct {
		field SettingField
		value any
		ok    bool
	}{
		{SettingADCMode, 4, true},
		{SettingADCMode, 5, false},
		{SettingChangePeriod, 60, true},
		{SettingChangePeriod, 2, false},
		{SettingLampType, 3, true},
		{SettingLampType, 0, false},
		{SettingMaxCurrent, 20000, true},
		{SettingMaxCurrent, 20001, false},
		{SettingWorkHoursTo, 24, false},
		{SettingMatrixOrientation, 8, true},
		{SettingMatrixOrientation, 9, false},
		{SettingMatrixLength, 1000, true},
		{SettingCityID, 1000000, true},
		{SettingCityID, -1, false},
		{SettingModeChange, 1, true},
		{SettingModeChange, 2, false},
		{SettingTimezone, "ABCDEFGHI", false},
		{SettingTimezone, 3, false},
		{SettingBrightness, json.Number("17"), true},
		{SettingBrightness, "abc", false},
		{SettingBrightness, []int{1}, false},
	}
	for _, tt := range tests {
		s := store.DefaultSettings()
		err := applySetting(&s, tt.field, tt.value)
		if tt.ok {
			assert.NoError(t, err, "%s=%v", tt.field, tt.value)
		} else {
			assert.Error(t, err, "%s=%v", tt.field, tt.value)
			assert.Equal(t, store.DefaultSettings(), s, "%s=%v left settings untouched", tt.field, tt.value)
		}
	}
}

func TestApplyPresetFieldBounds(t *testing.T) {
	tests := []struct {
		field PresetField
		value any
		ok    bool
	}{
		{PresetEffect, 11, true},
		{PresetEffect, 0, false},
		{PresetPalette, 26, true},
		{PresetPalette, 27, false},
		{PresetAdvMode, 5, true},
		{PresetAdvMode, 6, false},
		{PresetSoundReact, 3, true},
		{PresetSoundReact, 4, false},
		{PresetColor, 255, true},
		{PresetColor, 256, false},
		{PresetFromCenter, "OFF", true},
		{PresetFromCenter, "maybe", false},
	}
	for _, tt := range tests {
		p := store.DefaultPreset()
		err := applyPresetField(&p, tt.field, tt.value)
		if tt.ok {
			assert.NoError(t, err, "%s=%v", tt.field, tt.value)
		} else {
			assert.ErrorIs(t, err, ErrInvalidValue, "%s=%v", tt.field, tt.value)
			assert.Equal(t, store.DefaultPreset(), p)
		}
	}
}
