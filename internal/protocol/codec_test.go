package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gyverlamp-go-home/internal/store"
)

func TestPortKnownValue(t *testing.T) {
	// 17*'G' = 1207; 1207*'L' % 65536 = 26196; 26196 % 15000 = 11196.
	assert.Equal(t, 61197, Port("GL", 1))
	assert.Equal(t, 61204, Port("GL", 8))
}

func TestPortDeterministicAndInRange(t *testing.T) {
	keys := []string{"", "GL", "home", "Gyver Lamp network", "ключ", strings.Repeat("z", 32)}
	for _, key := range keys {
		for group := 1; group <= 8; group++ {
			p := Port(key, group)
			assert.Equal(t, p, Port(key, group), "key %q group %d", key, group)
			assert.GreaterOrEqual(t, p, 50000)
			assert.Less(t, p, 65000+group)
		}
	}
}

func TestPortEmptyKey(t *testing.T) {
	assert.Equal(t, 17+50000+3, Port("", 3))
}

func TestEncodeSettingsDefaults(t *testing.T) {
	got := EncodeSettings(store.DefaultSettings())
	assert.Equal(t, "GL,1,255,1,0,255,0,0,1,1,5,0,23,1,16,16,3,0", string(got))
}

func TestEncodeSettingsScalingAndTimezone(t *testing.T) {
	s := store.DefaultSettings()
	s.MaxCurrent = 1999
	s.ModeChange = true
	s.RandomOrder = true
	s.Timezone = "eet"
	s.CityID = 524901

	fields := strings.Split(string(EncodeSettings(s)), ",")
	require.Len(t, fields, 18)
	assert.Equal(t, "1", fields[6], "mode_change")
	assert.Equal(t, "1", fields[7], "random_order")
	assert.Equal(t, "19", fields[10], "max_current truncated")
	assert.Equal(t, "2", fields[16], "timezone")
	assert.Equal(t, "524901", fields[17], "city_id")
}

func TestTimezoneCode(t *testing.T) {
	assert.Equal(t, 3, TimezoneCode("MSK"))
	assert.Equal(t, 0, TimezoneCode("UTC"))
	assert.Equal(t, 2, TimezoneCode("EET"))
	assert.Equal(t, 0, TimezoneCode("utc"))
	assert.Equal(t, 3, TimezoneCode("PST"))
	assert.Equal(t, 3, TimezoneCode(""))
}

func TestEncodePresetsDefault(t *testing.T) {
	got, err := EncodePresets([]store.Preset{store.DefaultPreset()}, 1)
	require.NoError(t, err)
	assert.Equal(t, "GL,2,1,1,0,255,1,1,0,255,128,1,255,0,0,0,1", string(got))
}

func TestEncodePresetsFieldOrder(t *testing.T) {
	p := store.Preset{
		Effect: 11, FadeBright: true, Bright: 2, AdvMode: 3, SoundReact: 4,
		Min: 5, Max: 6, Speed: 7, Palette: 8, Scale: 9, FromCenter: true,
		Color: 10, FromPalette: true,
	}
	got, err := EncodePresets([]store.Preset{store.DefaultPreset(), p}, 2)
	require.NoError(t, err)

	fields := strings.Split(string(got), ",")
	require.Len(t, fields, 3+2*presetFieldCount+1)
	assert.Equal(t, "2", fields[2], "count")
	assert.Equal(t, []string{"11", "1", "2", "3", "4", "5", "6", "7", "8", "9", "1", "10", "1"}, fields[16:29])
	assert.Equal(t, "2", fields[len(fields)-1], "current preset appended once")
}

func TestEncodePresetsEmpty(t *testing.T) {
	_, err := EncodePresets(nil, 1)
	assert.ErrorIs(t, err, ErrNoPresets)
}

func TestEncodeControl(t *testing.T) {
	tests := []struct {
		action Action
		args   []int
		want   string
	}{
		{ActionOff, nil, "GL,0,0"},
		{ActionOn, nil, "GL,0,1"},
		{ActionPrevPreset, nil, "GL,0,4"},
		{ActionNextPreset, nil, "GL,0,5"},
		{ActionSelectPreset, []int{7}, "GL,0,6,7"},
		{ActionReboot, nil, "GL,0,11"},
	}
	for _, tt := range tests {
		got, err := EncodeControl(tt.action, tt.args...)
		require.NoError(t, err, tt.action.String())
		assert.Equal(t, tt.want, string(got))
	}
}

func TestEncodeControlErrors(t *testing.T) {
	_, err := EncodeControl(ActionSelectPreset)
	assert.ErrorIs(t, err, ErrMissingArgument)

	_, err = EncodeControl(Action(9))
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestParseAction(t *testing.T) {
	for name, want := range map[string]Action{
		"on": ActionOn, "OFF": ActionOff, "previous_preset": ActionPrevPreset,
		"next": ActionNextPreset, "select": ActionSelectPreset, " reboot ": ActionReboot,
	} {
		got, err := ParseAction(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseAction("dance")
	assert.ErrorIs(t, err, ErrUnknownAction)
}
