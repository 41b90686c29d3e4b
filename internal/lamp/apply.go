package lamp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gyverlamp-go-home/internal/protocol"
)

// Apply parses a UI payload for entity e and runs the matching operation.
// Payloads are strings as they arrive over MQTT: "ON"/"OFF", an option
// label, a number, a preset option such as "3. Fire-Heat", or anything for
// a button press.
func (m *Manager) Apply(ctx context.Context, e Entity, payload string) error {
	payload = strings.TrimSpace(payload)

	switch e.Target.Kind {
	case TargetPower:
		on, err := parseLightPayload(payload)
		if err != nil {
			return err
		}
		if on {
			return m.SendControl(ctx, protocol.ActionOn)
		}
		return m.SendControl(ctx, protocol.ActionOff)

	case TargetPresetSelect:
		n, err := leadingInt(payload)
		if err != nil {
			return err
		}
		return m.SendControl(ctx, protocol.ActionSelectPreset, n)

	case TargetGroup:
		n, err := leadingInt(strings.TrimPrefix(payload, "Group "))
		if err != nil {
			return err
		}
		return m.SetCurrentGroup(ctx, n)

	case TargetNetworkKey:
		return m.SetNetworkKey(ctx, payload)

	case TargetButton:
		return m.press(ctx, e.Target.Button)

	case TargetDiagnostic:
		return fmt.Errorf("%s: %w", e.Key, ErrReadOnly)

	case TargetSetting:
		v, err := entityValue(e, payload)
		if err != nil {
			return err
		}
		return m.SetSetting(ctx, e.Target.Setting, v)

	case TargetPreset:
		v, err := entityValue(e, payload)
		if err != nil {
			return err
		}
		return m.UpdateCurrentPreset(ctx, PresetPatch{e.Target.Preset: v})
	}
	return fmt.Errorf("%w: entity %q", ErrUnknownField, e.Key)
}

func (m *Manager) press(ctx context.Context, b Button) error {
	switch b {
	case ButtonPrevPreset:
		return m.SendControl(ctx, protocol.ActionPrevPreset)
	case ButtonNextPreset:
		return m.SendControl(ctx, protocol.ActionNextPreset)
	case ButtonAddPreset:
		return m.AddPreset(ctx)
	case ButtonDeletePreset:
		return m.DeleteLastPreset(ctx)
	case ButtonResetPresets:
		return m.ResetPresets(ctx)
	case ButtonReboot:
		return m.SendControl(ctx, protocol.ActionReboot)
	case ButtonUpload:
		return m.UploadSettings(ctx)
	}
	return fmt.Errorf("%w: button %q", ErrUnknownField, b)
}

// entityValue converts a payload for a setting or preset entity.
func entityValue(e Entity, payload string) (any, error) {
	switch e.Kind {
	case KindSwitch:
		return toBool(payload)
	case KindSelect:
		if e.Target.Setting == SettingTimezone {
			return payload, nil
		}
		if v, ok := optionValue(e.Options, payload); ok {
			return v, nil
		}
		// Numeric option values are accepted as well as labels.
		return toInt(payload)
	case KindNumber:
		return toInt(payload)
	}
	return nil, fmt.Errorf("%w: %s does not take %q", ErrInvalidValue, e.Key, payload)
}

// parseLightPayload accepts "ON"/"OFF" and the JSON schema form
// {"state":"ON"}.
func parseLightPayload(payload string) (bool, error) {
	if strings.HasPrefix(payload, "{") {
		var msg struct {
			State string `json:"state"`
		}
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			return false, fmt.Errorf("%w: light payload: %v", ErrInvalidValue, err)
		}
		payload = msg.State
	}
	switch strings.ToUpper(payload) {
	case "ON":
		return true, nil
	case "OFF":
		return false, nil
	}
	return false, fmt.Errorf("%w: light payload %q", ErrInvalidValue, payload)
}

// leadingInt parses the number at the start of "3. Fire-Heat" or "3".
func leadingInt(s string) (int, error) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidValue, s)
	}
	return n, nil
}
