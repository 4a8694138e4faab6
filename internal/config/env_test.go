// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseString(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		envSet bool
		want   string
	}{
		{name: "environment variable set", value: "from-env", envSet: true, want: "from-env"},
		{name: "environment variable not set", want: "default"},
		{name: "environment variable empty string", value: "", envSet: true, want: "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envSet {
				t.Setenv("TEST_WABRIDGE_STRING", tt.value)
			}
			assert.Equal(t, tt.want, ParseString("TEST_WABRIDGE_STRING", "default"))
		})
	}
}

func TestParseInt(t *testing.T) {
	t.Setenv("TEST_WABRIDGE_INT", "42")
	assert.Equal(t, 42, ParseInt("TEST_WABRIDGE_INT", 1))

	t.Setenv("TEST_WABRIDGE_INT", "forty-two")
	assert.Equal(t, 1, ParseInt("TEST_WABRIDGE_INT", 1))
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true}, {"YES", true}, {"1", true},
		{"false", false}, {"no", false}, {"0", false},
		{"maybe", true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_WABRIDGE_BOOL", tt.value)
			assert.Equal(t, tt.want, ParseBool("TEST_WABRIDGE_BOOL", true))
		})
	}
}

func TestParseDurationAndFloat(t *testing.T) {
	t.Setenv("TEST_WABRIDGE_DUR", "1500ms")
	assert.Equal(t, 1500*time.Millisecond, ParseDuration("TEST_WABRIDGE_DUR", time.Second))

	t.Setenv("TEST_WABRIDGE_DUR", "later")
	assert.Equal(t, time.Second, ParseDuration("TEST_WABRIDGE_DUR", time.Second))

	t.Setenv("TEST_WABRIDGE_FLOAT", "0.25")
	assert.InDelta(t, 0.25, ParseFloat("TEST_WABRIDGE_FLOAT", 1), 1e-9)
}

func TestParseList(t *testing.T) {
	t.Setenv("TEST_WABRIDGE_LIST", " a, ,b ,c")
	assert.Equal(t, []string{"a", "b", "c"}, ParseList("TEST_WABRIDGE_LIST", nil))
}
