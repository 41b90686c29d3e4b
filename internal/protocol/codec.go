// Package protocol implements the Gyver Lamp 2 UDP command format.
//
// Commands are comma-separated ASCII: a fixed "GL" tag, a mode
// (0 control, 1 settings, 2 presets) and positional fields. The protocol
// is one way; nothing here decodes device responses.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gyverlamp-go-home/internal/store"
)

// Tag prefixes every command.
const Tag = "GL"

// Command modes.
const (
	ModeControl  = 0
	ModeSettings = 1
	ModePresets  = 2
)

// presetFieldCount is the number of positional fields per preset on the wire.
const presetFieldCount = 13

var (
	ErrUnknownAction   = errors.New("unknown control action")
	ErrMissingArgument = errors.New("select preset requires a preset number")
	ErrNoPresets       = errors.New("preset list is empty")
)

// Action is a control command code.
type Action uint8

const (
	ActionOff          Action = 0
	ActionOn           Action = 1
	ActionPrevPreset   Action = 4
	ActionNextPreset   Action = 5
	ActionSelectPreset Action = 6
	ActionReboot       Action = 11
)

var actionNames = map[Action]string{
	ActionOff:          "off",
	ActionOn:           "on",
	ActionPrevPreset:   "prev",
	ActionNextPreset:   "next",
	ActionSelectPreset: "select",
	ActionReboot:       "reboot",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// Valid reports whether a is a known control code.
func (a Action) Valid() bool {
	_, ok := actionNames[a]
	return ok
}

// ParseAction maps an action name ("on", "next", "select_preset", ...) to its code.
func ParseAction(name string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "off", "power_off":
		return ActionOff, nil
	case "on", "power_on":
		return ActionOn, nil
	case "prev", "previous", "prev_preset", "previous_preset":
		return ActionPrevPreset, nil
	case "next", "next_preset":
		return ActionNextPreset, nil
	case "select", "select_preset":
		return ActionSelectPreset, nil
	case "reboot":
		return ActionReboot, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

// timezones maps the supported timezone codes to the firmware's UTC offsets.
var timezones = map[string]int{
	"MSK": 3,
	"UTC": 0,
	"EET": 2,
}

const defaultTimezoneCode = 3

// TimezoneCode returns the numeric code sent for a timezone name.
// Unknown names fall back to MSK.
func TimezoneCode(tz string) int {
	if code, ok := timezones[strings.ToUpper(tz)]; ok {
		return code
	}
	return defaultTimezoneCode
}

// Timezones lists the timezone names with a dedicated code.
func Timezones() []string {
	return []string{"MSK", "UTC", "EET"}
}

// EncodeControl builds "GL,0,<code>[,<arg>]". Select requires exactly one
// argument; other actions take none.
func EncodeControl(a Action, args ...int) ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAction, uint8(a))
	}
	w := newWriter(ModeControl)
	w.int(int(a))
	if a == ActionSelectPreset {
		if len(args) != 1 {
			return nil, ErrMissingArgument
		}
		w.int(args[0])
	}
	return w.bytes(), nil
}

// EncodeSettings builds "GL,1,<16 fields>".
func EncodeSettings(s store.Settings) []byte {
	w := newWriter(ModeSettings)
	w.int(int(s.Brightness))
	w.int(int(s.ADCMode))
	w.int(int(s.MinBrightness))
	w.int(int(s.MaxBrightness))
	w.bool(s.ModeChange)
	w.bool(s.RandomOrder)
	w.int(int(s.ChangePeriod))
	w.int(int(s.LampType))
	w.int(int(s.MaxCurrent) / 100)
	w.int(int(s.WorkHoursFrom))
	w.int(int(s.WorkHoursTo))
	w.int(int(s.MatrixOrientation))
	w.int(int(s.MatrixLength))
	w.int(int(s.MatrixWidth))
	w.int(TimezoneCode(s.Timezone))
	w.int(int(s.CityID))
	return w.bytes()
}

// EncodePresets builds "GL,2,<count>,<13 fields per preset>...,<current>".
// Every preset is sent on each call; the active index is appended once.
func EncodePresets(presets []store.Preset, current int) ([]byte, error) {
	if len(presets) == 0 {
		return nil, ErrNoPresets
	}
	w := newWriter(ModePresets)
	w.grow(len(presets) * presetFieldCount * 4)
	w.int(len(presets))
	for _, p := range presets {
		w.int(int(p.Effect))
		w.bool(p.FadeBright)
		w.int(int(p.Bright))
		w.int(int(p.AdvMode))
		w.int(int(p.SoundReact))
		w.int(int(p.Min))
		w.int(int(p.Max))
		w.int(int(p.Speed))
		w.int(int(p.Palette))
		w.int(int(p.Scale))
		w.bool(p.FromCenter)
		w.int(int(p.Color))
		w.bool(p.FromPalette)
	}
	w.int(current)
	return w.bytes(), nil
}

// writer appends comma-separated decimal fields after the tag and mode.
type writer struct {
	buf []byte
}

func newWriter(mode int) *writer {
	w := &writer{buf: make([]byte, 0, 64)}
	w.buf = append(w.buf, Tag...)
	w.int(mode)
	return w
}

func (w *writer) grow(n int) {
	if cap(w.buf)-len(w.buf) < n {
		nb := make([]byte, len(w.buf), len(w.buf)+n)
		copy(nb, w.buf)
		w.buf = nb
	}
}

func (w *writer) int(v int) {
	w.buf = append(w.buf, ',')
	w.buf = strconv.AppendInt(w.buf, int64(v), 10)
}

func (w *writer) bool(v bool) {
	if v {
		w.int(1)
	} else {
		w.int(0)
	}
}

func (w *writer) bytes() []byte {
	return w.buf
}
