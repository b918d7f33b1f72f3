package alert

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// maxSafeInteger is the largest integer a JSON number round-trips exactly.
const maxSafeInteger = 1<<53 - 1

// Validate type-checks and coerces a decoded payload (typically the result of
// json.Unmarshal into any, with or without UseNumber) into a Payload.
//
// It never mutates raw. Numeric strings are accepted for integer fields,
// "expires" falls back to an RFC 3339 "datetime" string, category/tag default
// to "" and vibrate defaults to false. Unknown keys are dropped.
func Validate(raw any) (Payload, error) {
	m, ok := raw.(map[string]any)
	if !ok || m == nil {
		return Payload{}, invalid("data", "needs to be an object")
	}

	var (
		p   Payload
		err error
	)
	if p.Title, err = stringField(m, "title", nil); err != nil {
		return Payload{}, err
	}
	if p.Body, err = stringField(m, "body", nil); err != nil {
		return Payload{}, err
	}
	if p.DueAt, err = dueAtField(m); err != nil {
		return Payload{}, err
	}
	if p.RepeatInterval, err = intField("repeat", m["repeat"]); err != nil {
		return Payload{}, err
	}
	if v, present := m["actions"]; present && v != nil {
		return Payload{}, invalid("actions", "must be null")
	}
	empty := ""
	if p.Category, err = stringField(m, "category", &empty); err != nil {
		return Payload{}, err
	}
	if p.Persistent, err = boolField(m, "persistent", nil); err != nil {
		return Payload{}, err
	}
	if p.Tag, err = stringField(m, "tag", &empty); err != nil {
		return Payload{}, err
	}
	no := false
	if p.Vibrate, err = boolField(m, "vibrate", &no); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// ValidateJSON decodes b and validates the result.
func ValidateJSON(b []byte) (Payload, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return Payload{}, invalid("data", "needs to be an object")
	}
	return Validate(raw)
}

// Check validates an already typed payload and returns a fresh copy.
func (p Payload) Check() (Payload, error) {
	if p.Actions != nil {
		return Payload{}, invalid("actions", "must be null")
	}
	if p.DueAt < -maxSafeInteger || p.DueAt > maxSafeInteger {
		return Payload{}, invalid("expires", "needs to be an integer")
	}
	if p.RepeatInterval < -maxSafeInteger || p.RepeatInterval > maxSafeInteger {
		return Payload{}, invalid("repeat", "needs to be an integer")
	}
	return Payload{
		Title:          p.Title,
		Body:           p.Body,
		DueAt:          p.DueAt,
		RepeatInterval: p.RepeatInterval,
		Category:       p.Category,
		Persistent:     p.Persistent,
		Tag:            p.Tag,
		Vibrate:        p.Vibrate,
	}, nil
}

// Due returns DueAt as a time.Time.
func (p Payload) Due() time.Time { return time.UnixMilli(p.DueAt) }

func stringField(m map[string]any, name string, def *string) (string, error) {
	v, present := m[name]
	if !present && def != nil {
		return *def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid(name, "needs to be a string")
	}
	return s, nil
}

func boolField(m map[string]any, name string, def *bool) (bool, error) {
	v, present := m[name]
	if !present && def != nil {
		return *def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, invalid(name, "needs to be a boolean")
	}
	return b, nil
}

func dueAtField(m map[string]any) (int64, error) {
	v, present := m["expires"]
	if !present {
		if s, ok := m["datetime"].(string); ok {
			t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
			if err != nil {
				return 0, invalid("expires", "needs to be an integer")
			}
			return t.UnixMilli(), nil
		}
	}
	return intField("expires", v)
}

func intField(name string, v any) (int64, error) {
	bad := invalid(name, "needs to be an integer")
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		if x < -maxSafeInteger || x > maxSafeInteger {
			return 0, bad
		}
		return x, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || math.Trunc(x) != x || math.Abs(x) > maxSafeInteger {
			return 0, bad
		}
		return int64(x), nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return intField(name, n)
		}
		f, err := x.Float64()
		if err != nil {
			return 0, bad
		}
		return intField(name, f)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, bad
		}
		return intField(name, n)
	default:
		return 0, bad
	}
}
