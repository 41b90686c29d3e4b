package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"gyverlamp-go-home/internal/lamp"
	"gyverlamp-go-home/internal/protocol"
	"gyverlamp-go-home/internal/schedule"
)

// lampView is the API representation of a lamp.
type lampView struct {
	lamp.State
	Online        bool           `json:"online"`
	PresetOptions []string       `json:"preset_options"`
	Values        map[string]any `json:"values"`
}

func newLampView(st lamp.State) lampView {
	return lampView{
		State:         st,
		Online:        st.Online(),
		PresetOptions: st.PresetOptions(),
		Values:        lamp.Values(st),
	}
}

type entityView struct {
	lamp.Entity
	Options  []string `json:"options,omitempty"`
	Value    any      `json:"value"`
	ReadOnly bool     `json:"read_only,omitempty"`
}

// rejections are validation failures; the lamp state is unchanged.
var rejections = []error{
	lamp.ErrPresetLimit,
	lamp.ErrLastPreset,
	lamp.ErrPresetIndex,
	lamp.ErrGroup,
	lamp.ErrInvalidValue,
	lamp.ErrUnknownField,
	lamp.ErrNetworkKey,
	lamp.ErrReadOnly,
	protocol.ErrUnknownAction,
	protocol.ErrMissingArgument,
	protocol.ErrNoPresets,
}

func errorStatus(err error) int {
	for _, target := range rejections {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// lampFromPath resolves {id}, writing a 404 if the lamp is not configured.
func (s *Server) lampFromPath(w http.ResponseWriter, r *http.Request) (*lamp.Manager, bool) {
	m, ok := s.lamps.Get(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "lamp not found")
		return nil, false
	}
	return m, true
}

// runOp executes a lamp operation and responds with the resulting state.
func (s *Server) runOp(w http.ResponseWriter, r *http.Request, m *lamp.Manager, status int, op func(context.Context) error) {
	if err := op(r.Context()); err != nil {
		code := errorStatus(err)
		if code == http.StatusInternalServerError {
			s.logger.Error("lamp operation failed", "lamp", m.ID(), "path", r.URL.Path, "err", err)
			s.writeError(w, code, "internal server error")
			return
		}
		s.writeError(w, code, err.Error())
		return
	}
	s.writeJSON(w, status, newLampView(m.Snapshot()))
}

func (s *Server) handleAPIListLamps(w http.ResponseWriter, r *http.Request) {
	managers := s.lamps.All()
	views := make([]lampView, 0, len(managers))
	for _, m := range managers {
		views = append(views, newLampView(m.Snapshot()))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPIGetLamp(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lampFromPath(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, newLampView(m.Snapshot()))
}

func (s *Server) handleAPIListEntities(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lampFromPath(w, r)
	if !ok {
		return
	}
	st := m.Snapshot()
	entities := lamp.Entities()
	views := make([]entityView, 0, len(entities))
	for _, e := range entities {
		v := entityView{Entity: e, Value: e.Value(st), ReadOnly: e.ReadOnly()}
		if e.Kind == lamp.KindSelect {
			v.Options = e.OptionLabels(st)
		}
		views = append(views, v)
	}
	s.writeJSON(w, http.StatusOK, views)
}

type applyEntityRequest struct {
	Value any `json:"value"`
}

// handleAPIApplyEntity accepts the same payloads as the MQTT command
// topics: {"value": "ON"}, {"value": "Fire"}, {"value": 120}.
func (s *Server) handleAPIApplyEntity(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lampFromPath(w, r)
	if !ok {
		return
	}
	e, ok := lamp.EntityByKey(r.PathValue("key"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "entity not found")
		return
	}

	var req applyEntityRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	payload := ""
	switch v := req.Value.(type) {
	case nil:
	case string:
		payload = v
	case json.Number:
		payload = v.String()
	case bool:
		payload = "OFF"
		if v {
			payload = "ON"
		}
	default:
		s.writeError(w, http.StatusBadRequest, "value must be a string, number or bool")
		return
	}

	s.runOp(w, r, m, http.StatusOK, func(ctx context.Context) error {
		return m.Apply(ctx, e, payload)
	})
}

type controlRequest struct {
	Action string `json:"action"`
	Preset *int   `json:"preset,omitempty"`
}

func (s *Server) handleAPIControl(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lampFromPath(w, r)
	if !ok {
		return
	}
	var req controlRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	action, err := protocol.ParseAction(req.Action)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var args []int
	if action == protocol.ActionSelectPreset {
		if req.Preset == nil {
			s.writeError(w, http.StatusBadRequest, protocol.ErrMissingArgument.Error())
			return
		}
		args = append(args, *req.Preset)
	}

	s.runOp(w, r, m, http.StatusOK, func(ctx context.Context) error {
		return m.SendControl(ctx, action, args...)
	})
}

// handleAPIUpdateSettings applies {"brightness": 120, "timezone": "EET"}.
// The update is all or nothing: an unknown field or a bad value changes
// no setting.
func (s *Server) handleAPIUpdateSettings(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lampFromPath(w, r)
	if !ok {
		return
	}
	var req map[string]any
	if !s.decodeBody(w, r, &req) {
		return
	}
	if len(req) == 0 {
		s.writeError(w, http.StatusBadRequest, "no settings given")
		return
	}
	patch := make(lamp.SettingsPatch, len(req))
	for name, v := range req {
		f, err := lamp.ParseSettingField(name)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		patch[f] = v
	}

	s.runOp(w, r, m, http.StatusOK, func(ctx context.Context) error {
		return m.UpdateSettings(ctx, patch)
	})
}

func (s *Server) handleAPIUploadSettings(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lampFromPath(w, r)
	if !ok {
		return
	}
	s.runOp(w, r, m, http.StatusOK, m.UploadSettings)
}

// handleAPIUpdatePreset patches the active preset: {"effect": 3, "speed": 90}.
func (s *Server) handleAPIUpdatePreset(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lampFromPath(w, r)
	if !ok {
		return
	}
	var req map[string]any
	if !s.decodeBody(w, r, &req) {
		return
	}
	if len(req) == 0 {
		s.writeError(w, http.StatusBadRequest, "no preset fields given")
		return
	}
	patch := make(lamp.PresetPatch, len(req))
	for name, v := range req {
		f, err := lamp.ParsePresetField(name)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		patch[f] = v
	}

	s.runOp(w, r, m, http.StatusOK, func(ctx context.Context) error {
		return m.UpdateCurrentPreset(ctx, patch)
	})
}

type presetRequest struct {
	Preset int `json:"preset"`
}

func (s *Server) handleAPISetCurrentPreset(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lampFromPath(w, r)
	if !ok {
		return
	}
	var req presetRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.runOp(w, r, m, http.StatusOK, func(ctx context.Context) error {
		return m.SetCurrentPreset(ctx, req.Preset)
	})
}

func (s *Server) handleAPIAddPreset(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lampFromPath(w, r)
	if !ok {
		return
	}
	s.runOp(w, r, m, http.StatusCreated, m.AddPreset)
}

func (s *Server) handleAPIDeleteLastPreset(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lampFromPath(w, r)
	if !ok {
		return
	}
	s.runOp(w, r, m, http.StatusOK, m.DeleteLastPreset)
}

func (s *Server) handleAPIResetPresets(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lampFromPath(w, r)
	if !ok {
		return
	}
	s.runOp(w, r, m, http.StatusOK, m.ResetPresets)
}

type groupRequest struct {
	Group int `json:"group"`
}

func (s *Server) handleAPISetGroup(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lampFromPath(w, r)
	if !ok {
		return
	}
	var req groupRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.runOp(w, r, m, http.StatusOK, func(ctx context.Context) error {
		return m.SetCurrentGroup(ctx, req.Group)
	})
}

type networkKeyRequest struct {
	NetworkKey string `json:"network_key"`
}

func (s *Server) handleAPISetNetworkKey(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lampFromPath(w, r)
	if !ok {
		return
	}
	var req networkKeyRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.runOp(w, r, m, http.StatusOK, func(ctx context.Context) error {
		return m.SetNetworkKey(ctx, req.NetworkKey)
	})
}

func (s *Server) handleAPIListSchedules(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		s.writeJSON(w, http.StatusOK, []schedule.Status{})
		return
	}
	entries := s.scheduler.Entries()
	if lampID := r.URL.Query().Get("lamp"); lampID != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.Lamp == lampID {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	s.writeJSON(w, http.StatusOK, entries)
}
