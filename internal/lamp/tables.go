package lamp

import "fmt"

// Option is one selectable value of an enumerated field.
type Option struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

// Effects lists the firmware effects in code order.
var Effects = []Option{
	{1, "Perlin"},
	{2, "Color"},
	{3, "Color Change"},
	{4, "Gradient"},
	{5, "Particles"},
	{6, "Fire"},
	{7, "Fire 2020"},
	{8, "Confetti"},
	{9, "Tornado"},
	{10, "Clock"},
	{11, "Weather"},
}

var Palettes = []Option{
	{1, "Custom"},
	{2, "Heat"},
	{3, "Fire"},
	{4, "Lava"},
	{5, "Party"},
	{6, "Rainbow"},
	{7, "Striped Rainbow"},
	{8, "Clouds"},
	{9, "Ocean"},
	{10, "Forest"},
	{11, "Sunset"},
	{12, "Police"},
	{13, "Optimus Prime"},
	{14, "Warm Lava"},
	{15, "Cold Lava"},
	{16, "Hot Lava"},
	{17, "Pink Lava"},
	{18, "Cozy"},
	{19, "Cyberpunk"},
	{20, "Girly"},
	{21, "Christmas"},
	{22, "Acid"},
	{23, "Blue Smoke"},
	{24, "Bubblegum"},
	{25, "Leopard"},
	{26, "Aurora"},
}

// ReactionTypes are the preset's advanced (sound/clock) modes.
var ReactionTypes = []Option{
	{1, "None"},
	{2, "Volume"},
	{3, "Low"},
	{4, "High"},
	{5, "Clock"},
}

var SoundReactions = []Option{
	{1, "Brightness"},
	{2, "Scale"},
	{3, "Length"},
}

// ChangePeriods are the automatic preset change intervals in minutes.
var ChangePeriods = []Option{
	{1, "1 min"},
	{5, "5 min"},
	{10, "10 min"},
	{15, "15 min"},
	{25, "25 min"},
	{30, "30 min"},
	{40, "40 min"},
	{50, "50 min"},
	{60, "60 min"},
}

var ADCModes = []Option{
	{1, "Off"},
	{2, "Brightness"},
	{3, "Music"},
	{4, "Both"},
}

var LampTypes = []Option{
	{1, "Strip"},
	{2, "Zigzag"},
	{3, "Spiral"},
}

var ModeChanges = []Option{
	{0, "Manual"},
	{1, "Auto"},
}

var MatrixOrientations = func() []Option {
	opts := make([]Option, 8)
	for i := range opts {
		opts[i] = Option{i + 1, fmt.Sprintf("Orientation %d", i+1)}
	}
	return opts
}()

func optionLabel(opts []Option, v int) (string, bool) {
	for _, o := range opts {
		if o.Value == v {
			return o.Label, true
		}
	}
	return "", false
}

func optionValue(opts []Option, label string) (int, bool) {
	for _, o := range opts {
		if o.Label == label {
			return o.Value, true
		}
	}
	return 0, false
}

func hasOption(opts []Option, v int) bool {
	_, ok := optionLabel(opts, v)
	return ok
}
