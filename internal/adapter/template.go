package adapter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	devicePlaceholder = "{deviceId}"
	valuePlaceholder  = "{value}"
)

// expandTopic substitutes the device placeholder in a topic template.
func expandTopic(template, deviceID string) string {
	return strings.ReplaceAll(template, devicePlaceholder, deviceID)
}

// renderPayload fills a JSON payload template with the command value.
// String values that are exactly the placeholder are replaced with the
// typed value; strings containing the placeholder get a textual
// substitution. All other values pass through unchanged.
func renderPayload(template json.RawMessage, value any) ([]byte, error) {
	var doc any
	if err := json.Unmarshal(template, &doc); err != nil {
		return nil, fmt.Errorf("adapter: invalid payload template: %w", err)
	}
	rendered := substituteValue(doc, value)
	out, err := json.Marshal(rendered)
	if err != nil {
		return nil, fmt.Errorf("adapter: rendering payload: %w", err)
	}
	return out, nil
}

func substituteValue(doc any, value any) any {
	switch v := doc.(type) {
	case string:
		if v == valuePlaceholder {
			return value
		}
		if strings.Contains(v, valuePlaceholder) {
			return strings.ReplaceAll(v, valuePlaceholder, formatValue(value))
		}
		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, elem := range v {
			out[k] = substituteValue(elem, value)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = substituteValue(elem, value)
		}
		return out
	}
	return doc
}

func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", value)
}

// lookupPath resolves a dot-separated path into a decoded JSON document.
func lookupPath(doc map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = doc
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// asFloat coerces a JSON value to a float64 reading.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// asBool coerces a JSON value to a boolean. Devices report power in a
// variety of shapes: true/false, "on"/"off", 1/0.
func asBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case float64:
		return b != 0, true
	case string:
		switch strings.ToLower(b) {
		case "on", "true", "1":
			return true, true
		case "off", "false", "0":
			return false, true
		}
	}
	return false, false
}

// asString coerces a JSON value to a string.
func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
