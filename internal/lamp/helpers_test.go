package lamp

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"gyverlamp-go-home/internal/store"
)

var errDisk = errors.New("disk full")

type memStore struct {
	mu      sync.Mutex
	states  map[string]*store.DeviceState
	loadErr error
	saveErr error
	saves   int
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]*store.DeviceState)}
}

func (s *memStore) LoadLampState(id string) (*store.DeviceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	st, ok := s.states[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return st.Clone(), nil
}

func (s *memStore) SaveLampState(id string, st *store.DeviceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.states[id] = st.Clone()
	return nil
}

func (s *memStore) DeleteLampState(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, id)
	return nil
}

func (s *memStore) ListLampIDs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) saved(id string) *store.DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[id]
}

type sent struct {
	addr    string
	port    int
	payload string
}

type fakeTx struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeTx) Broadcast(_ context.Context, addr string, port int, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{addr, port, string(payload)})
	return f.err
}

func (f *fakeTx) payloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, s := range f.sent {
		out[i] = s.payload
	}
	return out
}

func (f *fakeTx) last() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sent{}
	}
	return f.sent[len(f.sent)-1]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testEntry() Entry {
	return Entry{ID: "living", Name: "Living Room", Address: "192.168.1.", NetworkKey: "GL", Group: 1}
}

func newTestManager(t *testing.T) (*Manager, *memStore, *fakeTx) {
	t.Helper()
	st := newMemStore()
	tx := &fakeTx{}
	m, err := New(testEntry(), st, tx, testLogger())
	require.NoError(t, err)
	m.Load()
	return m, st, tx
}

// withPresets seeds the manager with n default presets whose speed is the
// preset number, and makes preset current active.
func withPresets(t *testing.T, m *Manager, n, current int) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Presets = make([]store.Preset, n)
	for i := range m.state.Presets {
		p := store.DefaultPreset()
		p.Speed = uint8(i + 1)
		m.state.Presets[i] = p
	}
	m.state.CurrentPreset = current
}
