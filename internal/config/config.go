// Package config loads configuration from the environment with optional
// YAML file overrides, and sets up logging.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Model provider names.
const (
	ProviderGoogleAI  = "googleai"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderBedrock   = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// Patient database connection
	DBDriver   string `yaml:"db_driver"` // "mysql" or "sqlite3"
	DBHost     string `yaml:"db_host"`
	DBPort     int    `yaml:"db_port"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name"`
	DBParams   string `yaml:"db_params"` // extra mysql DSN params
	DBPath     string `yaml:"db_path"`   // sqlite file path

	// Language model
	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	GoogleAPIKey    string `yaml:"google_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OllamaHost      string `yaml:"ollama_host"`

	// Agent
	RowLimit     int           `yaml:"row_limit"`
	MaxRounds    int           `yaml:"max_rounds"`
	CycleTimeout time.Duration `yaml:"cycle_timeout"`

	// Speech synthesis (Amazon Polly)
	SpeechVoice  string `yaml:"speech_voice"`
	SpeechEngine string `yaml:"speech_engine"`
	AWSRegion    string `yaml:"aws_region"`

	// Server
	ServerAddr string `yaml:"server_addr"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`

	// LogLevelName is the textual level from file config; LoadFile resolves
	// it into LogLevel.
	LogLevelName string `yaml:"log_level"`
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		DBDriver:   getEnv("CAREQUERY_DB_DRIVER", "mysql"),
		DBHost:     getEnv("CAREQUERY_DB_HOST", "localhost"),
		DBPort:     getEnvInt("CAREQUERY_DB_PORT", 3306),
		DBUser:     getEnv("CAREQUERY_DB_USER", "carequery"),
		DBPassword: getEnv("CAREQUERY_DB_PASSWORD", ""),
		DBName:     getEnv("CAREQUERY_DB_NAME", "patients"),
		DBParams:   getEnv("CAREQUERY_DB_PARAMS", "parseTime=true"),
		DBPath:     getEnv("CAREQUERY_DB_PATH", "carequery.db"),

		LLMProvider:     getEnv("CAREQUERY_LLM_PROVIDER", ProviderGoogleAI),
		LLMModel:        getEnv("CAREQUERY_LLM_MODEL", "gemini-2.0-flash"),
		GoogleAPIKey:    getEnv("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY")),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),

		RowLimit:     getEnvInt("CAREQUERY_ROW_LIMIT", 100),
		MaxRounds:    getEnvInt("CAREQUERY_MAX_ROUNDS", 8),
		CycleTimeout: getEnvDuration("CAREQUERY_CYCLE_TIMEOUT", 3*time.Minute),

		SpeechVoice:  getEnv("CAREQUERY_SPEECH_VOICE", "Ruth"),
		SpeechEngine: getEnv("CAREQUERY_SPEECH_ENGINE", "neural"),
		AWSRegion:    getEnv("AWS_REGION", "us-east-1"),

		ServerAddr: getEnv("CAREQUERY_SERVER_ADDR", ":9180"),

		LogFile:  getEnv("CAREQUERY_LOG_FILE", "/tmp/carequery.log"),
		LogLevel: parseLogLevel(getEnv("CAREQUERY_LOG_LEVEL", "INFO")),
	}
}

// LoadFile reads environment configuration and applies overrides from a
// YAML file on top of it.
func LoadFile(path string) (Config, error) {
	cfg := Load()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	if cfg.LogLevelName != "" {
		cfg.LogLevel = parseLogLevel(cfg.LogLevelName)
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
