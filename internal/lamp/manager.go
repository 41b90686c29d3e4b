// Package lamp owns the live state of each configured Gyver Lamp and is the
// single place where that state is mutated.
//
// Every Manager operation runs under a per-lamp operation lock and follows
// the same sequence: mutate the in-memory state, persist it, encode and
// broadcast a command when the change is visible to the lamp, then notify
// observers. Transmission and persistence failures are logged and never
// undo a committed change.
package lamp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"gyverlamp-go-home/internal/protocol"
	"gyverlamp-go-home/internal/store"
	"gyverlamp-go-home/internal/transport"
)

// DefaultSendTimeout bounds a single UDP send.
const DefaultSendTimeout = 2 * time.Second

const maxNetworkKeyLen = 32

// validNetworkKey counts characters, not bytes, like the port hash does.
func validNetworkKey(key string) bool {
	n := utf8.RuneCountInString(key)
	return n >= 1 && n <= maxNetworkKeyLen
}

// Entry is one configured lamp.
type Entry struct {
	ID         string
	Name       string
	Address    string // "192.168.1." or any host address on the lamp's /24
	NetworkKey string
	Group      int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithEventBus makes the manager publish on a shared bus instead of its own.
func WithEventBus(bus *EventBus) ManagerOption {
	return func(m *Manager) { m.events = bus }
}

// WithSendTimeout overrides DefaultSendTimeout.
func WithSendTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.sendTimeout = d }
}

// Manager is the device manager for one lamp entry.
type Manager struct {
	entry       Entry
	broadcast   string
	store       store.Store
	tx          transport.Broadcaster
	events      *EventBus
	logger      *slog.Logger
	sendTimeout time.Duration

	// opMu serializes operations. mu guards the fields below it and is only
	// held briefly so observers can call Snapshot during notification.
	opMu sync.Mutex

	mu          sync.RWMutex
	state       *store.DeviceState
	port        int
	power       bool
	lastCommand string
	lastError   string
	lastSentAt  time.Time
}

// New creates a manager with default state. Call Load to restore the
// persisted state. Returns transport.ErrInvalidAddress for a bad address.
func New(entry Entry, st store.Store, tx transport.Broadcaster, logger *slog.Logger, opts ...ManagerOption) (*Manager, error) {
	if strings.TrimSpace(entry.ID) == "" {
		return nil, errors.New("lamp entry id is required")
	}
	bcast, err := transport.BroadcastAddress(entry.Address)
	if err != nil {
		return nil, err
	}
	if !validNetworkKey(entry.NetworkKey) {
		return nil, fmt.Errorf("lamp %s: %w", entry.ID, ErrNetworkKey)
	}
	if entry.Group < store.MinGroup || entry.Group > store.MaxGroup {
		return nil, fmt.Errorf("lamp %s: %w", entry.ID, ErrGroup)
	}
	if entry.Name == "" {
		entry.Name = entry.ID
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "lamp", "lamp", entry.ID)

	m := &Manager{
		entry:       entry,
		broadcast:   bcast,
		store:       st,
		tx:          tx,
		logger:      logger,
		sendTimeout: DefaultSendTimeout,
		state:       store.DefaultState(entry.Group),
	}
	for _, o := range opts {
		o(m)
	}
	if m.events == nil {
		m.events = NewEventBus(logger)
	}
	m.port = protocol.Port(entry.NetworkKey, entry.Group)
	return m, nil
}

// ID returns the entry ID.
func (m *Manager) ID() string { return m.entry.ID }

// Name returns the display name.
func (m *Manager) Name() string { return m.entry.Name }

// Load restores persisted state. A missing or unreadable record falls back
// to defaults, which are saved immediately. Loaded records that violate the
// preset or group invariants are repaired and saved back.
func (m *Manager) Load() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	st, err := m.store.LoadLampState(m.entry.ID)
	switch {
	case err == nil:
		if st.Normalize(m.entry.Group) {
			m.logger.Warn("repaired stored lamp state", "presets", len(st.Presets), "current", st.CurrentPreset)
			m.persist(st)
		}
	case errors.Is(err, store.ErrNotFound):
		m.logger.Info("no stored state, using defaults")
		st = store.DefaultState(m.entry.Group)
		m.persist(st)
	default:
		m.logger.Error("load lamp state, using defaults", "err", err)
		st = store.DefaultState(m.entry.Group)
		m.persist(st)
	}

	m.mu.Lock()
	m.state = st
	m.port = protocol.Port(m.networkKeyLocked(), st.CurrentGroup)
	m.mu.Unlock()

	m.logger.Debug("lamp state loaded", "presets", len(st.Presets), "current", st.CurrentPreset, "group", st.CurrentGroup)
}

// Subscribe registers an observer for this lamp's events.
func (m *Manager) Subscribe(fn EventHandler) func() {
	id := m.entry.ID
	return m.events.OnAll(func(e Event) {
		if e.Lamp == id {
			fn(e)
		}
	})
}

// SendControl encodes and broadcasts a control command. Preset navigation
// also moves the current preset, wrapping at both ends; on and off track
// the lamp's power locally.
func (m *Manager) SendControl(ctx context.Context, action protocol.Action, args ...int) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	count := len(m.state.Presets)
	current := m.state.CurrentPreset
	m.mu.RUnlock()

	next := current
	switch action {
	case protocol.ActionPrevPreset:
		next = current - 1
		if next < 1 {
			next = count
		}
	case protocol.ActionNextPreset:
		next = current + 1
		if next > count {
			next = 1
		}
	case protocol.ActionSelectPreset:
		if len(args) == 1 && (args[0] < 1 || args[0] > count) {
			m.logger.Warn("select preset out of range", "preset", args[0], "presets", count)
			return fmt.Errorf("%w: %d of %d", ErrPresetIndex, args[0], count)
		}
	}

	payload, err := protocol.EncodeControl(action, args...)
	if err != nil {
		return err
	}
	if action == protocol.ActionSelectPreset {
		next = args[0]
	}

	m.mu.Lock()
	switch action {
	case protocol.ActionOn:
		m.power = true
	case protocol.ActionOff:
		m.power = false
	}
	changed := next != m.state.CurrentPreset
	m.state.CurrentPreset = next
	snap := m.state.Clone()
	m.mu.Unlock()

	if changed {
		m.persist(snap)
	}
	m.transmit(ctx, "control", payload)
	m.notify("control", action.String())
	return nil
}

// UpdateCurrentPreset merges patch into the active preset and broadcasts
// the full preset list. Nothing is changed if any field is invalid.
func (m *Manager) UpdateCurrentPreset(ctx context.Context, patch PresetPatch) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	idx := m.state.CurrentPreset - 1
	p := m.state.Presets[idx]
	m.mu.RUnlock()

	for f := range patch {
		if _, err := ParsePresetField(string(f)); err != nil {
			m.logger.Warn("rejected preset update", "field", f, "err", err)
			return err
		}
	}
	for _, f := range PresetFields {
		v, ok := patch[f]
		if !ok {
			continue
		}
		if err := applyPresetField(&p, f, v); err != nil {
			m.logger.Warn("rejected preset update", "field", f, "value", v, "err", err)
			return err
		}
	}

	m.mu.Lock()
	m.state.Presets[idx] = p
	snap := m.state.Clone()
	m.mu.Unlock()

	m.persist(snap)
	m.sendPresets(ctx, snap)
	m.notify("update_preset", idx+1)
	return nil
}

// SetSetting changes one lamp-wide setting. The lamp only sees it after
// UploadSettings.
func (m *Manager) SetSetting(ctx context.Context, field SettingField, value any) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	s := m.state.Settings
	m.mu.RUnlock()

	if err := applySetting(&s, field, value); err != nil {
		m.logger.Warn("rejected setting", "field", field, "value", value, "err", err)
		return err
	}

	m.mu.Lock()
	m.state.Settings = s
	snap := m.state.Clone()
	m.mu.Unlock()

	m.persist(snap)
	m.notify("set_setting", string(field))
	return nil
}

// UpdateSettings applies several settings at once. Values are checked in
// wire order against a copy, so one bad value leaves all settings unchanged.
// Like SetSetting, nothing is sent until UploadSettings.
func (m *Manager) UpdateSettings(ctx context.Context, patch SettingsPatch) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	s := m.state.Settings
	m.mu.RUnlock()

	for _, f := range SettingFields {
		v, ok := patch[f]
		if !ok {
			continue
		}
		if err := applySetting(&s, f, v); err != nil {
			m.logger.Warn("rejected settings update", "field", f, "value", v, "err", err)
			return err
		}
	}

	m.mu.Lock()
	m.state.Settings = s
	snap := m.state.Clone()
	m.mu.Unlock()

	m.persist(snap)
	m.notify("update_settings", len(patch))
	return nil
}

// SetCurrentPreset moves the active preset locally without telling the lamp.
func (m *Manager) SetCurrentPreset(ctx context.Context, n int) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if n < 1 || n > len(m.state.Presets) {
		count := len(m.state.Presets)
		m.mu.Unlock()
		m.logger.Warn("current preset out of range", "preset", n, "presets", count)
		return fmt.Errorf("%w: %d of %d", ErrPresetIndex, n, count)
	}
	m.state.CurrentPreset = n
	snap := m.state.Clone()
	m.mu.Unlock()

	m.persist(snap)
	m.notify("set_current_preset", n)
	return nil
}

// AddPreset appends a copy of the active preset and makes it active.
func (m *Manager) AddPreset(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if len(m.state.Presets) >= store.MaxPresets {
		m.mu.Unlock()
		m.logger.Warn("preset limit reached", "max", store.MaxPresets)
		return fmt.Errorf("%w: %d", ErrPresetLimit, store.MaxPresets)
	}
	origin := m.state.CurrentPreset
	m.state.Presets = append(m.state.Presets, m.state.Presets[origin-1])
	m.state.CurrentPreset = len(m.state.Presets)
	m.state.Added = append(m.state.Added, store.AddedPreset{Created: m.state.CurrentPreset, Origin: origin})
	snap := m.state.Clone()
	m.mu.Unlock()

	m.persist(snap)
	m.sendPresets(ctx, snap)
	m.notify("add_preset", snap.CurrentPreset)
	return nil
}

// DeleteLastPreset removes the last preset. If it was active, the preset
// it was copied from becomes active again when known; otherwise the
// current preset is clamped to the new list.
func (m *Manager) DeleteLastPreset(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	count := len(m.state.Presets)
	if count <= 1 {
		m.mu.Unlock()
		m.logger.Warn("refusing to delete the only preset")
		return ErrLastPreset
	}
	m.state.Presets = m.state.Presets[:count-1]

	origin := 0
	if n := len(m.state.Added); n > 0 && m.state.Added[n-1].Created == count {
		origin = m.state.Added[n-1].Origin
		m.state.Added = m.state.Added[:n-1]
	}
	if m.state.CurrentPreset > count-1 {
		if origin >= 1 && origin <= count-1 {
			m.state.CurrentPreset = origin
		} else {
			m.state.CurrentPreset = count - 1
		}
	}
	snap := m.state.Clone()
	m.mu.Unlock()

	m.persist(snap)
	m.sendPresets(ctx, snap)
	m.notify("delete_preset", count)
	return nil
}

// ResetPresets replaces the list with a single default preset.
func (m *Manager) ResetPresets(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	m.state.Presets = []store.Preset{store.DefaultPreset()}
	m.state.CurrentPreset = 1
	m.state.Added = nil
	snap := m.state.Clone()
	m.mu.Unlock()

	m.persist(snap)
	m.sendPresets(ctx, snap)
	m.notify("reset_presets", nil)
	return nil
}

// SetCurrentGroup switches the group and with it the target port.
func (m *Manager) SetCurrentGroup(ctx context.Context, group int) error {
	if group < store.MinGroup || group > store.MaxGroup {
		m.logger.Warn("group out of range", "group", group)
		return fmt.Errorf("%w: %d", ErrGroup, group)
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	m.state.CurrentGroup = group
	m.port = protocol.Port(m.networkKeyLocked(), group)
	snap := m.state.Clone()
	port := m.port
	m.mu.Unlock()

	m.persist(snap)
	m.logger.Info("group changed", "group", group, "port", port)
	m.notify("set_group", group)
	return nil
}

// UploadSettings broadcasts the settings command. It is the only operation
// that sends settings to the lamp.
func (m *Manager) UploadSettings(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	payload := protocol.EncodeSettings(m.state.Settings)
	m.mu.RUnlock()

	m.transmit(ctx, "settings", payload)
	m.notify("upload_settings", nil)
	return nil
}

// SetNetworkKey overrides the configured network key and recomputes the port.
func (m *Manager) SetNetworkKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if !validNetworkKey(key) {
		m.logger.Warn("rejected network key", "len", utf8.RuneCountInString(key))
		return ErrNetworkKey
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	m.state.NetworkKey = key
	if key == m.entry.NetworkKey {
		m.state.NetworkKey = ""
	}
	m.port = protocol.Port(key, m.state.CurrentGroup)
	snap := m.state.Clone()
	port := m.port
	m.mu.Unlock()

	m.persist(snap)
	m.logger.Info("network key changed", "port", port)
	m.notify("set_network_key", nil)
	return nil
}

// networkKeyLocked returns the effective key. Caller holds mu.
func (m *Manager) networkKeyLocked() string {
	if m.state.NetworkKey != "" {
		return m.state.NetworkKey
	}
	return m.entry.NetworkKey
}

func (m *Manager) persist(st *store.DeviceState) {
	if err := m.store.SaveLampState(m.entry.ID, st); err != nil {
		m.logger.Error("save lamp state", "err", err)
	}
}

func (m *Manager) sendPresets(ctx context.Context, st *store.DeviceState) {
	payload, err := protocol.EncodePresets(st.Presets, st.CurrentPreset)
	if err != nil {
		m.logger.Error("encode presets", "err", err)
		return
	}
	m.transmit(ctx, "presets", payload)
}

// transmit sends payload and records the outcome for diagnostics.
// Failures are logged and published, never returned.
func (m *Manager) transmit(ctx context.Context, kind string, payload []byte) {
	m.mu.RLock()
	port := m.port
	m.mu.RUnlock()

	sendCtx, cancel := context.WithTimeout(ctx, m.sendTimeout)
	err := m.tx.Broadcast(sendCtx, m.broadcast, port, payload)
	cancel()

	cmd := string(payload)
	m.mu.Lock()
	m.lastCommand = cmd
	m.lastSentAt = time.Now()
	if err != nil {
		m.lastError = err.Error()
	} else {
		m.lastError = ""
	}
	m.mu.Unlock()

	data := map[string]interface{}{
		"kind":    kind,
		"command": cmd,
		"addr":    m.broadcast,
		"port":    port,
	}
	if err != nil {
		m.logger.Error("command failed", "kind", kind, "addr", m.broadcast, "port", port, "err", err)
		data["error"] = err.Error()
		m.events.Emit(Event{Type: EventCommandFailed, Lamp: m.entry.ID, Data: data})
		return
	}
	m.logger.Debug("command sent", "kind", kind, "cmd", cmd, "addr", m.broadcast, "port", port)
	m.events.Emit(Event{Type: EventCommandSent, Lamp: m.entry.ID, Data: data})
}

func (m *Manager) notify(op string, arg interface{}) {
	data := map[string]interface{}{"op": op}
	if arg != nil {
		data["arg"] = arg
	}
	m.events.Emit(Event{Type: EventStateChanged, Lamp: m.entry.ID, Data: data})
}
