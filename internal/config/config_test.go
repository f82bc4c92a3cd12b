package config

import (
	"testing"
	"time"
)

func validBase() *Config {
	return &Config{
		Database: Database{Driver: "sqlite"},
		Matcher:  Matcher{InitialThreshold: 0.7, MaxResults: 5, BackfillWorkers: 3},
	}
}

func TestValidateConfig(t *testing.T) {
	if err := validateConfig(validBase()); err != nil {
		t.Errorf("Expected valid config to pass, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"postgres without url", func(c *Config) { c.Database.Driver = "postgres" }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"threshold above 1", func(c *Config) { c.Matcher.InitialThreshold = 1.5 }},
		{"negative threshold", func(c *Config) { c.Matcher.InitialThreshold = -0.1 }},
		{"zero max results", func(c *Config) { c.Matcher.MaxResults = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			tt.mutate(cfg)
			if err := validateConfig(cfg); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestGeminiTimeout(t *testing.T) {
	cfg := validBase()

	cfg.AI.Gemini.Timeout = "45s"
	if got := cfg.GeminiTimeout(); got != 45*time.Second {
		t.Errorf("Expected 45s, got %v", got)
	}

	cfg.AI.Gemini.Timeout = "not-a-duration"
	if got := cfg.GeminiTimeout(); got != 30*time.Second {
		t.Errorf("Expected fallback 30s, got %v", got)
	}

	cfg.AI.Gemini.Timeout = "-5s"
	if got := cfg.GeminiTimeout(); got != 30*time.Second {
		t.Errorf("Expected fallback 30s for non-positive, got %v", got)
	}
}
