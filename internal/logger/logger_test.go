package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{" WARN ", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Fatalf("ParseLevel(%q): expected %s, got %s", tc.in, tc.want, got)
		}
	}
}

func TestNew(t *testing.T) {
	for _, env := range []string{"dev", "prod", "PROD", ""} {
		l, err := New(Config{Env: env, Level: "warn", Service: "jobauth"})
		if err != nil {
			t.Fatalf("env %q: %v", env, err)
		}
		if l.Core().Enabled(zapcore.InfoLevel) {
			t.Fatalf("env %q: info must be disabled at warn level", env)
		}
		if !l.Core().Enabled(zapcore.WarnLevel) {
			t.Fatalf("env %q: warn must be enabled", env)
		}
	}
}
