package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaultsWhenEnvUnset(t *testing.T) {
	cfg := Load()
	if cfg.BlockSize != 1024 {
		t.Errorf("BlockSize = %d, want 1024", cfg.BlockSize)
	}
	if cfg.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000", cfg.SampleRate)
	}
	if cfg.RollInterval != time.Hour {
		t.Errorf("RollInterval = %v, want 1h", cfg.RollInterval)
	}
	if cfg.OperatorToken != "" {
		t.Errorf("OperatorToken default = %q, want empty", cfg.OperatorToken)
	}
}

func TestLoadReadsOverridesFromEnv(t *testing.T) {
	t.Setenv("BLOCK_SIZE", "2048")
	t.Setenv("STATION_NAME", "Test Station")
	t.Setenv("OPERATOR_TOKEN", "s3cret")

	cfg := Load()
	if cfg.BlockSize != 2048 {
		t.Errorf("BlockSize = %d, want 2048", cfg.BlockSize)
	}
	if cfg.StationName != "Test Station" {
		t.Errorf("StationName = %q, want %q", cfg.StationName, "Test Station")
	}
	if cfg.OperatorToken != "s3cret" {
		t.Errorf("OperatorToken = %q, want %q", cfg.OperatorToken, "s3cret")
	}
}

func TestGetEnvAsIntIgnoresUnparsableValue(t *testing.T) {
	t.Setenv("SAMPLE_RATE", "not-a-number")
	cfg := Load()
	if cfg.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want default 48000 on unparsable env value", cfg.SampleRate)
	}
}
