package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gyverlamp-go-home/internal/lamp"
	"gyverlamp-go-home/internal/protocol"
	"gyverlamp-go-home/internal/store"
)

type switchTx struct {
	mu  sync.Mutex
	err error
}

func (s *switchTx) Broadcast(context.Context, string, int, []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *switchTx) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func newTestCollector(t *testing.T) (*Collector, *lamp.Manager, *switchTx) {
	t.Helper()
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	tx := &switchTx{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m, err := lamp.New(lamp.Entry{ID: "living", Name: "Living", Address: "192.168.1.", NetworkKey: "GL", Group: 1}, st, tx, logger)
	require.NoError(t, err)
	m.Load()

	c := New(lamp.NewLamps(m))
	c.Start()
	t.Cleanup(c.Stop)
	return c, m, tx
}

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, w.Code)
	return w.Body.String()
}

func TestCollectorInitialState(t *testing.T) {
	c, _, _ := newTestCollector(t)
	body := scrape(t, c)

	assert.Contains(t, body, `gyverlamp_presets{lamp="living"} 1`)
	assert.Contains(t, body, `gyverlamp_current_preset{lamp="living"} 1`)
	assert.Contains(t, body, `gyverlamp_group{lamp="living"} 1`)
	assert.Contains(t, body, `gyverlamp_port{lamp="living"} 61197`)
	assert.Contains(t, body, `gyverlamp_online{lamp="living"} 1`)
	assert.Contains(t, body, `gyverlamp_power{lamp="living"} 0`)
	assert.Contains(t, body, "go_goroutines")
}

func TestCollectorCountsCommands(t *testing.T) {
	c, m, tx := newTestCollector(t)
	ctx := context.Background()

	require.NoError(t, m.SendControl(ctx, protocol.ActionOn))
	require.NoError(t, m.AddPreset(ctx))
	tx.fail(errors.New("network unreachable"))
	require.NoError(t, m.SendControl(ctx, protocol.ActionNextPreset))

	body := scrape(t, c)
	assert.Contains(t, body, `gyverlamp_commands_total{kind="control",lamp="living",result="ok"} 1`)
	assert.Contains(t, body, `gyverlamp_commands_total{kind="presets",lamp="living",result="ok"} 1`)
	assert.Contains(t, body, `gyverlamp_commands_total{kind="control",lamp="living",result="error"} 1`)
	assert.Contains(t, body, `gyverlamp_state_changes_total{lamp="living",op="add_preset"} 1`)
	assert.Contains(t, body, `gyverlamp_state_changes_total{lamp="living",op="control"} 2`)
	assert.Contains(t, body, `gyverlamp_presets{lamp="living"} 2`)
	assert.Contains(t, body, `gyverlamp_current_preset{lamp="living"} 1`)
	assert.Contains(t, body, `gyverlamp_online{lamp="living"} 0`)
	assert.Contains(t, body, `gyverlamp_power{lamp="living"} 1`)
	assert.Contains(t, body, "gyverlamp_last_command_timestamp_seconds")
}

func TestCollectorTracksGroup(t *testing.T) {
	c, m, _ := newTestCollector(t)

	require.NoError(t, m.SetCurrentGroup(context.Background(), 8))
	body := scrape(t, c)
	assert.Contains(t, body, `gyverlamp_group{lamp="living"} 8`)
	assert.Contains(t, body, `gyverlamp_port{lamp="living"} 61204`)
}

func TestCollectorStop(t *testing.T) {
	c, m, _ := newTestCollector(t)
	c.Stop()

	require.NoError(t, m.SendControl(context.Background(), protocol.ActionOn))
	assert.NotContains(t, scrape(t, c), "gyverlamp_commands_total{")
}
