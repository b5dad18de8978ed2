package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateOfUsesLocation(t *testing.T) {
	instant := time.Date(2024, time.March, 31, 22, 30, 0, 0, time.UTC)

	assert.Equal(t, "2024-03-31", DateOf(instant, time.UTC).String())
	assert.Equal(t, "2024-04-01", DateOf(instant, time.FixedZone("CEST", 2*60*60)).String())
	assert.Equal(t, "2024-03-31", DateOf(instant, nil).String())
}

func TestDateArithmeticCrossesMonthAndYear(t *testing.T) {
	assert.Equal(t, "2024-03-01", NewDate(2024, time.February, 28).AddDays(2).String())
	assert.Equal(t, "2025-01-03", NewDate(2024, time.December, 30).AddDays(4).String())
	assert.Equal(t, "2023-12-31", NewDate(2024, time.January, 1).AddDays(-1).String())

	a := NewDate(2024, time.January, 1)
	b := NewDate(2024, time.January, 2)
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.True(t, a.Equal(DateOf(time.Date(2024, time.January, 1, 23, 59, 0, 0, time.UTC), time.UTC)))
}

func TestParseDate(t *testing.T) {
	parsed, err := ParseDate(" 2024-02-29 ")
	require.NoError(t, err)
	assert.Equal(t, NewDate(2024, time.February, 29), parsed)

	for _, bad := range []string{"", "2024-2-3", "2023-02-29", "29/02/2024"} {
		_, err := ParseDate(bad)
		assert.Error(t, err, bad)
	}
}

func TestDateJSON(t *testing.T) {
	payload, err := json.Marshal(struct {
		Due  Date `json:"due"`
		Zero Date `json:"zero"`
	}{Due: NewDate(2024, time.January, 5)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"due":"2024-01-05","zero":null}`, string(payload))

	var decoded struct {
		Due  Date `json:"due"`
		Zero Date `json:"zero"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"due":"2024-01-10","zero":null}`), &decoded))
	assert.Equal(t, "2024-01-10", decoded.Due.String())
	assert.True(t, decoded.Zero.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"due":"tomorrow"}`), &decoded))
}

func TestDateScan(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"time", time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC), "2024-01-05"},
		{"date string", "2024-01-06", "2024-01-06"},
		{"datetime string", "2024-01-07 00:00:00+00:00", "2024-01-07"},
		{"bytes", []byte("2024-01-08T00:00:00Z"), "2024-01-08"},
		{"null", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Date
			require.NoError(t, d.Scan(tt.value))
			assert.Equal(t, tt.want, d.String())
		})
	}

	var d Date
	assert.Error(t, d.Scan(42))
	assert.Error(t, d.Scan("soon"))
}

func TestDateValue(t *testing.T) {
	value, err := Date{}.Value()
	require.NoError(t, err)
	assert.Nil(t, value)

	value, err = NewDate(2024, time.January, 5).Value()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC), value)
}
