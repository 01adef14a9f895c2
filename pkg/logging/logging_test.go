package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", DefaultLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{" INFO ", zerolog.InfoLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"loud", zerolog.NoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestInitWriter(t *testing.T) {
	t.Setenv(LevelEnv, "")

	var out bytes.Buffer
	logger, err := InitWriter(&out, "apdu-script", "info")
	if err != nil {
		t.Fatalf("InitWriter() error: %v", err)
	}

	logger.Debug().Msg("hidden")
	logger.Info().Msg("visible")

	if strings.Contains(out.String(), "hidden") {
		t.Error("debug message written at info level")
	}
	if !strings.Contains(out.String(), "visible") || !strings.Contains(out.String(), "apdu-script") {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestInitWriter_EnvOverride(t *testing.T) {
	t.Setenv(LevelEnv, "debug")

	var out bytes.Buffer
	logger, err := InitWriter(&out, "apdu-script", "error")
	if err != nil {
		t.Fatalf("InitWriter() error: %v", err)
	}
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Errorf("level = %v, want debug", logger.GetLevel())
	}

	t.Setenv(LevelEnv, "nope")
	if _, err := InitWriter(&out, "apdu-script", ""); err == nil {
		t.Error("expected error for invalid env level")
	}
}
