package browser

import (
	"encoding/json"
	"fmt"
)

// DecodeFocusState converts the result of FocusScript into a FocusState.
// raw may be a decoded JSON object or its encoded bytes. Every field must be
// present and boolean.
func DecodeFocusState(raw interface{}) (FocusState, error) {
	var obj map[string]interface{}

	switch v := raw.(type) {
	case map[string]interface{}:
		obj = v
	case []byte:
		if err := json.Unmarshal(v, &obj); err != nil {
			return FocusState{}, fmt.Errorf("decode focus state: %w", err)
		}
	default:
		return FocusState{}, fmt.Errorf("decode focus state: unexpected result type %T", raw)
	}

	var state FocusState
	fields := []struct {
		name string
		dst  *bool
	}{
		{"visible", &state.Visible},
		{"hidden", &state.Hidden},
		{"hasFocus", &state.HasFocus},
	}

	for _, f := range fields {
		val, ok := obj[f.name]
		if !ok {
			return FocusState{}, fmt.Errorf("decode focus state: missing %q", f.name)
		}
		b, ok := val.(bool)
		if !ok {
			return FocusState{}, fmt.Errorf("decode focus state: %q is %T, not bool", f.name, val)
		}
		*f.dst = b
	}

	return state, nil
}
