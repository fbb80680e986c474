package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"

	"github.com/MimeLyc/transcription-orchestrator/pkg/log"
)

// Config holds all application configuration.
//
// Values come from the environment, after loading the optional dotenv file
// named by TRANSCRIBE_ENV_FILE (default .env). Variables already set in the
// environment win over the file.
//
// Environment Variables:
// Transcription Service:
// - TRANSCRIBE_SERVICE_URL: base URL of the service (default: http://127.0.0.1:8000)
// - TRANSCRIBE_REQUEST_TIMEOUT: timeout in seconds for status, delete and health calls (default: 30)
// - TRANSCRIBE_POLL_INTERVAL_MS: delay between status polls (default: 1000)
// - TRANSCRIBE_LANGUAGE: default language hint for uploads (optional)
// - TRANSCRIBE_SETTINGS_FILE: runtime settings file (default: settings.json)
//
// Local Surface:
// - HTTP_ADDR: listen address of the HTTP API (default: :8080)
// - UI_STATIC_DIR: directory of a single-page UI served at / (optional)
// - HEALTH_CRON_EXPR: schedule of the health probe (default: @every 30s)
// - LOG_LEVEL: debug, info, warn or error (default: info)
// - LOG_FILE: serve also writes its log to this file (optional)
type Config struct {
	Service    ServiceConfig    `json:"service"`
	Poll       PollConfig       `json:"poll"`
	Transcribe TranscribeConfig `json:"transcribe"`
	HTTP       HTTPConfig       `json:"http"`
	Health     HealthConfig     `json:"health"`
	Log        LogConfig        `json:"log"`
}

type ServiceConfig struct {
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout"`
}

type PollConfig struct {
	Interval time.Duration `json:"interval"`
}

type TranscribeConfig struct {
	DefaultLanguage string `json:"default_language"`
	SettingsFile    string `json:"settings_file"`
}

type HTTPConfig struct {
	Addr        string `json:"addr"`
	UIStaticDir string `json:"ui_static_dir"`
}

type HealthConfig struct {
	CronExpr string `json:"cron_expr"`
}

type LogConfig struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// WithServiceURL overrides the service base URL, typically from a CLI flag.
func WithServiceURL(u string) Option {
	return func(c *Config) {
		if strings.TrimSpace(u) != "" {
			c.Service.URL = u
		}
	}
}

func WithHTTPAddr(addr string) Option {
	return func(c *Config) {
		if strings.TrimSpace(addr) != "" {
			c.HTTP.Addr = addr
		}
	}
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	envFile := getEnvString("TRANSCRIBE_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	config := &Config{
		Service: ServiceConfig{
			URL:     getEnvString("TRANSCRIBE_SERVICE_URL", "http://127.0.0.1:8000"),
			Timeout: time.Duration(getEnvInt("TRANSCRIBE_REQUEST_TIMEOUT", 30)) * time.Second,
		},
		Poll: PollConfig{
			Interval: time.Duration(getEnvInt("TRANSCRIBE_POLL_INTERVAL_MS", 1000)) * time.Millisecond,
		},
		Transcribe: TranscribeConfig{
			DefaultLanguage: getEnvString("TRANSCRIBE_LANGUAGE", ""),
			SettingsFile:    getEnvString("TRANSCRIBE_SETTINGS_FILE", DefaultRuntimeSettingsFile),
		},
		HTTP: HTTPConfig{
			Addr:        getEnvString("HTTP_ADDR", ":8080"),
			UIStaticDir: getEnvString("UI_STATIC_DIR", ""),
		},
		Health: HealthConfig{
			CronExpr: getEnvString("HEALTH_CRON_EXPR", "@every 30s"),
		},
		Log: LogConfig{
			Level: getEnvString("LOG_LEVEL", "info"),
			File:  getEnvString("LOG_FILE", ""),
		},
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: %+v", config)
	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	u, err := url.Parse(c.Service.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("TRANSCRIBE_SERVICE_URL must be an absolute http(s) URL, got %q", c.Service.URL)
	}
	if c.Service.Timeout <= 0 {
		return fmt.Errorf("TRANSCRIBE_REQUEST_TIMEOUT must be positive")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("TRANSCRIBE_POLL_INTERVAL_MS must be positive")
	}
	if _, err := cron.ParseStandard(c.Health.CronExpr); err != nil {
		return fmt.Errorf("invalid HEALTH_CRON_EXPR: %w", err)
	}
	if c.Transcribe.DefaultLanguage != "" {
		if _, err := language.Parse(c.Transcribe.DefaultLanguage); err != nil {
			return fmt.Errorf("invalid TRANSCRIBE_LANGUAGE: %w", err)
		}
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
