package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      bool
		expected bool
	}{
		{"unset uses default", "", true, true},
		{"true", "true", false, true},
		{"numeric true", "1", false, true},
		{"yes", "yes", false, true},
		{"on with whitespace", " ON ", false, true},
		{"false", "false", true, false},
		{"numeric false", "0", true, false},
		{"off", "off", true, false},
		{"garbage uses default", "banana", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("VOICEFORM_TEST_BOOL", tt.value)
			}
			got := ParseBoolEnv("VOICEFORM_TEST_BOOL", tt.def)
			if got != tt.expected {
				t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.expected)
			}
		})
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      time.Duration
		expected time.Duration
	}{
		{"unset uses default", "", time.Minute, time.Minute},
		{"minutes", "30m", time.Minute, 30 * time.Minute},
		{"seconds with whitespace", " 45s ", time.Minute, 45 * time.Second},
		{"garbage uses default", "soon", time.Minute, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("VOICEFORM_TEST_DURATION", tt.value)
			}
			got := ParseDurationEnv("VOICEFORM_TEST_DURATION", tt.def)
			if got != tt.expected {
				t.Errorf("ParseDurationEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.expected)
			}
		})
	}
}
