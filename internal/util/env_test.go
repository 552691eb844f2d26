package util

import (
	"testing"
	"time"
)

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("WEEKPILOT_TEST_STR", "value")
	if got := EnvOrDefault("WEEKPILOT_TEST_STR", "fallback"); got != "value" {
		t.Errorf("got %q", got)
	}
	t.Setenv("WEEKPILOT_TEST_STR", "   ")
	if got := EnvOrDefault("WEEKPILOT_TEST_STR", "fallback"); got != "fallback" {
		t.Errorf("blank value should fall back, got %q", got)
	}
	if got := EnvOrDefault("WEEKPILOT_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("got %q", got)
	}
}

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", true},
		{"YES", true},
		{"on", true},
		{"false", false},
		{"0", false},
		{"no", false},
		{"OFF", false},
		{"maybe", true}, // invalid falls back to the default
	}
	for _, tc := range cases {
		t.Setenv("WEEKPILOT_TEST_BOOL", tc.value)
		if got := ParseBoolEnv("WEEKPILOT_TEST_BOOL", true); got != tc.want {
			t.Errorf("ParseBoolEnv(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
	if !ParseBoolEnv("WEEKPILOT_TEST_BOOL_UNSET", true) {
		t.Error("unset variable should return the default")
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("WEEKPILOT_TEST_DUR", "90s")
	if got := ParseDurationEnv("WEEKPILOT_TEST_DUR", time.Minute); got != 90*time.Second {
		t.Errorf("got %v", got)
	}
	t.Setenv("WEEKPILOT_TEST_DUR", "soon")
	if got := ParseDurationEnv("WEEKPILOT_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("invalid duration should fall back, got %v", got)
	}
	if got := ParseDurationEnv("WEEKPILOT_TEST_DUR_UNSET", time.Minute); got != time.Minute {
		t.Errorf("got %v", got)
	}
}
