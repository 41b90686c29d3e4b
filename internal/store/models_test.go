package store

import "testing"

func TestNormalizeEmptyPresets(t *testing.T) {
	s := &DeviceState{Settings: DefaultSettings(), CurrentPreset: 4, CurrentGroup: 2}

	if !s.Normalize(1) {
		t.Fatal("Normalize reported no change")
	}
	if len(s.Presets) != 1 || s.Presets[0] != DefaultPreset() {
		t.Errorf("presets = %+v, want one default preset", s.Presets)
	}
	if s.CurrentPreset != 1 {
		t.Errorf("current preset = %d, want 1", s.CurrentPreset)
	}
	if s.CurrentGroup != 2 {
		t.Errorf("group = %d, want 2", s.CurrentGroup)
	}
}

func TestNormalizeClampsAndDefaultsGroup(t *testing.T) {
	s := DefaultState(0)
	s.Presets = make([]Preset, MaxPresets+5)
	s.CurrentPreset = 0

	s.Normalize(5)

	if len(s.Presets) != MaxPresets {
		t.Errorf("presets = %d, want %d", len(s.Presets), MaxPresets)
	}
	if s.CurrentPreset != 1 {
		t.Errorf("current preset = %d, want 1", s.CurrentPreset)
	}
	if s.CurrentGroup != 5 {
		t.Errorf("group = %d, want 5", s.CurrentGroup)
	}
}

func TestNormalizeValidStateUnchanged(t *testing.T) {
	s := DefaultState(1)
	if s.Normalize(1) {
		t.Error("Normalize changed a valid state")
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := DefaultState(1)
	c := s.Clone()
	c.Presets[0].Effect = 9
	if s.Presets[0].Effect == 9 {
		t.Error("clone shares preset storage with original")
	}

	s.Added = []AddedPreset{{Created: 2, Origin: 1}}
	c = s.Clone()
	c.Added[0].Origin = 5
	if s.Added[0].Origin != 1 {
		t.Error("clone shares added records with original")
	}
}

func TestNormalizeDropsStaleAddedRecords(t *testing.T) {
	s := DefaultState(1)
	s.Presets = make([]Preset, 3)
	s.Added = []AddedPreset{
		{Created: 3, Origin: 1},
		{Created: 5, Origin: 2}, // beyond the list
		{Created: 2, Origin: 2}, // origin not before created
	}

	if !s.Normalize(1) {
		t.Fatal("Normalize reported no change")
	}
	if len(s.Added) != 1 || s.Added[0] != (AddedPreset{Created: 3, Origin: 1}) {
		t.Errorf("added = %+v, want only {3 1}", s.Added)
	}
}
