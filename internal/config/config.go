// Package config provides centralized configuration management using Viper
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      App      `mapstructure:"app"`
	Telegram Telegram `mapstructure:"telegram"`
	AI       AI       `mapstructure:"ai"`
	Database Database `mapstructure:"database"`
	Matcher  Matcher  `mapstructure:"matcher"`
}

// App holds general application configuration
type App struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
	DataDir  string `mapstructure:"data_dir"`
}

// Telegram holds bot configuration
type Telegram struct {
	BotToken string `mapstructure:"bot_token"`
	Debug    bool   `mapstructure:"debug"`
}

// AI holds AI/LLM configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey              string  `mapstructure:"api_key"`
	EmbeddingModel      string  `mapstructure:"embedding_model"`
	EmbeddingDimensions int32   `mapstructure:"embedding_dimensions"`
	Timeout             string  `mapstructure:"timeout"`
	RequestsPerSecond   float64 `mapstructure:"requests_per_second"`
}

// Database holds persistence configuration.
// Driver selects the backend: "postgres" (pgvector similarity) or "sqlite"
// (zero-setup local file, brute-force similarity scan).
type Database struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

// Matcher holds progressive threshold matcher configuration
type Matcher struct {
	InitialThreshold float64 `mapstructure:"initial_threshold"`
	MaxResults       int     `mapstructure:"max_results"`
	BackfillWorkers  int     `mapstructure:"backfill_workers"`
}

var globalConfig *Config

// Load reads configuration from file, environment variables, and defaults
func Load(configFile string) (*Config, error) {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".clarity")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("app.data_dir", ".clarity")

	// AI defaults
	viper.SetDefault("ai.gemini.embedding_model", "gemini-embedding-001")
	viper.SetDefault("ai.gemini.embedding_dimensions", 768)
	viper.SetDefault("ai.gemini.timeout", "30s")
	viper.SetDefault("ai.gemini.requests_per_second", 2.0)

	// Database defaults
	viper.SetDefault("database.driver", "sqlite")

	// Matcher defaults (fixed ladder starts at the initial threshold)
	viper.SetDefault("matcher.initial_threshold", 0.7)
	viper.SetDefault("matcher.max_results", 5)
	viper.SetDefault("matcher.backfill_workers", 3)

	// Telegram defaults
	viper.SetDefault("telegram.debug", false)
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	// Gemini API key - support multiple formats
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	// Telegram bot token
	bindEnvKeys("telegram.bot_token", []string{
		"BOT_TOKEN",
		"TELEGRAM_BOT_TOKEN",
	})

	// Database connection
	bindEnvKeys("database.url", []string{
		"DATABASE_URL",
		"CLARITY_DATABASE_URL",
	})
	bindEnvKeys("database.driver", []string{
		"CLARITY_DATABASE_DRIVER",
	})
}

// bindEnvKeys binds multiple environment variable names to a single config key
func bindEnvKeys(configKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(configKey, value)
			return
		}
	}
}

// validateConfig performs basic sanity checks on the loaded configuration
func validateConfig(config *Config) error {
	switch config.Database.Driver {
	case "postgres":
		if config.Database.URL == "" {
			return fmt.Errorf("database.url is required when database.driver is postgres")
		}
	case "sqlite", "":
		// SQLite derives its path from app.data_dir
	default:
		return fmt.Errorf("unknown database driver %q (expected postgres or sqlite)", config.Database.Driver)
	}

	if config.Matcher.InitialThreshold < 0 || config.Matcher.InitialThreshold > 1 {
		return fmt.Errorf("matcher.initial_threshold must be in [0, 1], got %f", config.Matcher.InitialThreshold)
	}
	if config.Matcher.MaxResults <= 0 {
		return fmt.Errorf("matcher.max_results must be positive, got %d", config.Matcher.MaxResults)
	}

	return nil
}

// GeminiTimeout parses the configured embedding timeout, falling back to 30s
func (c *Config) GeminiTimeout() time.Duration {
	d, err := time.ParseDuration(c.AI.Gemini.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
