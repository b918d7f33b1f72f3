package alert

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func validRaw() map[string]any {
	return map[string]any{
		"title":      "Harvest",
		"body":       "Your goods are ready",
		"expires":    float64(1700000000000),
		"repeat":     float64(0),
		"actions":    nil,
		"category":   "production",
		"persistent": true,
		"tag":        "goods",
		"vibrate":    false,
	}
}

func TestValidateAcceptsAndStripsUnknownFields(t *testing.T) {
	t.Parallel()
	raw := validRaw()
	raw["smuggled"] = "payload"

	p, err := Validate(raw)
	require.NoError(t, err)
	require.Equal(t, Payload{
		Title:      "Harvest",
		Body:       "Your goods are ready",
		DueAt:      1700000000000,
		Category:   "production",
		Persistent: true,
		Tag:        "goods",
	}, p)

	// raw must not be touched.
	require.Equal(t, "payload", raw["smuggled"])
	require.Equal(t, float64(1700000000000), raw["expires"])

	b, err := json.Marshal(p)
	require.NoError(t, err)
	require.NotContains(t, string(b), "smuggled")
}

func TestValidateIsPure(t *testing.T) {
	t.Parallel()
	raw := validRaw()
	a, err := Validate(raw)
	require.NoError(t, err)
	b, err := Validate(raw)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestValidateCoercionsAndDefaults(t *testing.T) {
	t.Parallel()
	raw := map[string]any{
		"title":      "t",
		"body":       "b",
		"expires":    "1700000000000",
		"repeat":     json.Number("60000"),
		"persistent": false,
	}
	p, err := Validate(raw)
	require.NoError(t, err)
	require.Equal(t, int64(1700000000000), p.DueAt)
	require.Equal(t, int64(60000), p.RepeatInterval)
	require.Equal(t, "", p.Category)
	require.Equal(t, "", p.Tag)
	require.False(t, p.Vibrate)
	require.Nil(t, p.Actions)
}

func TestValidateDatetimeFallback(t *testing.T) {
	t.Parallel()
	raw := validRaw()
	delete(raw, "expires")
	raw["datetime"] = "2024-01-02T03:04:05Z"

	p, err := Validate(raw)
	require.NoError(t, err)
	require.Equal(t, int64(1704164645000), p.DueAt)
}

func TestValidateNamesOffendingField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		field string
		value any
	}{
		{field: "title", value: 12.0},
		{field: "body", value: nil},
		{field: "expires", value: 1.5},
		{field: "expires", value: "soon"},
		{field: "repeat", value: true},
		{field: "actions", value: []any{"open"}},
		{field: "category", value: 3.0},
		{field: "persistent", value: "yes"},
		{field: "tag", value: false},
		{field: "vibrate", value: 1.0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.field, func(t *testing.T) {
			t.Parallel()
			raw := validRaw()
			raw[tt.field] = tt.value

			_, err := Validate(raw)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidPayload))
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			require.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidateMissingRequired(t *testing.T) {
	t.Parallel()
	for _, field := range []string{"title", "body", "expires", "repeat", "persistent"} {
		raw := validRaw()
		delete(raw, field)
		_, err := Validate(raw)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve, field)
		require.Equal(t, field, ve.Field)
	}
}

func TestValidateRejectsNonObject(t *testing.T) {
	t.Parallel()
	for _, raw := range []any{nil, "x", []any{}, 3.0} {
		_, err := Validate(raw)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		require.Equal(t, "data", ve.Field)
	}
}

func TestValidateJSONKeepsLargeIntegers(t *testing.T) {
	t.Parallel()
	p, err := ValidateJSON([]byte(`{"title":"a","body":"b","expires":1700000000123,"repeat":0,"persistent":false,"extra":{"x":1}}`))
	require.NoError(t, err)
	require.Equal(t, int64(1700000000123), p.DueAt)

	_, err = ValidateJSON([]byte(`not json`))
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestPayloadCheck(t *testing.T) {
	t.Parallel()
	p := Payload{Title: "a", DueAt: 10, Actions: []any{"x"}}
	_, err := p.Check()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "actions", ve.Field)

	p.Actions = nil
	got, err := p.Check()
	require.NoError(t, err)
	require.Equal(t, p, got)
}
