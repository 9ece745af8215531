package store

import (
	"io"
	"log/slog"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxFanOut != 0 {
		t.Errorf("expected MaxFanOut 0, got %d", cfg.MaxFanOut)
	}
	if cfg.IndexTablePrefix != "" {
		t.Errorf("expected empty IndexTablePrefix, got %q", cfg.IndexTablePrefix)
	}
	if cfg.Logger == nil {
		t.Error("expected default logger")
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig([]byte("max_fan_out: 4\nindex_table_prefix: idx_\n"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.MaxFanOut != 4 {
		t.Errorf("expected MaxFanOut 4, got %d", cfg.MaxFanOut)
	}
	if cfg.IndexTablePrefix != "idx_" {
		t.Errorf("expected IndexTablePrefix 'idx_', got %q", cfg.IndexTablePrefix)
	}
	if cfg.Logger == nil {
		t.Error("expected default logger to survive parsing")
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed", "max_fan_out: [1"},
		{"wrong type", "max_fan_out: many"},
		{"negative fan-out", "max_fan_out: -1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestConfigValidate_Defaults(t *testing.T) {
	cfg := Config{MaxFanOut: -3}
	cfg.validate()

	if cfg.MaxFanOut != 0 {
		t.Errorf("expected MaxFanOut 0, got %d", cfg.MaxFanOut)
	}
	if cfg.Logger != slog.Default() {
		t.Error("expected slog.Default() logger")
	}
}

func TestConfigValidate_PreservesCustomValues(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := Config{MaxFanOut: 8, IndexTablePrefix: "p_", Logger: logger}
	cfg.validate()

	if cfg.MaxFanOut != 8 || cfg.IndexTablePrefix != "p_" || cfg.Logger != logger {
		t.Errorf("expected custom values preserved, got %+v", cfg)
	}
}
