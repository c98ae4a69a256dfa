package utils

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"milliseconds", 45 * time.Millisecond, "45ms"},
		{"seconds", 1500 * time.Millisecond, "1.5s"},
		{"minutes and seconds", 2*time.Minute + 30*time.Second, "2m 30s"},
		{"whole minutes", 5 * time.Minute, "5m"},
		{"hours and minutes", time.Hour + 15*time.Minute, "1h 15m"},
		{"whole hours", 2 * time.Hour, "2h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDuration(tt.duration); got != tt.want {
				t.Errorf("FormatDuration(%v) = %q, want %q", tt.duration, got, tt.want)
			}
		})
	}
}

func TestTruncateText(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		want   string
	}{
		{"short text unchanged", "disk full", 20, "disk full"},
		{"truncated with ellipsis", "disk usage above threshold", 15, "disk usage a..."},
		{"newlines flattened", "line one\nline two", 50, "line one line two"},
		{"tiny max", "abcdef", 3, "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateText(tt.text, tt.maxLen); got != tt.want {
				t.Errorf("TruncateText(%q, %d) = %q, want %q", tt.text, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestEscapeForLogging(t *testing.T) {
	got := EscapeForLogging("bad\nalert\tmessage", 100)
	want := "bad\\nalert\\tmessage"
	if got != want {
		t.Errorf("EscapeForLogging = %q, want %q", got, want)
	}

	long := EscapeForLogging("aaaaaaaaaa", 5)
	if long != "aaaaa..." {
		t.Errorf("EscapeForLogging truncation = %q", long)
	}
}
