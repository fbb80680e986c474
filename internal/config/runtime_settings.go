package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
)

const DefaultRuntimeSettingsFile = "settings.json"

// RuntimeSettings are the user-editable subset of Config. They are persisted
// by the HTTP API and applied on top of the environment at the next start.
type RuntimeSettings struct {
	ServiceURL      string `json:"service_url"`
	DefaultLanguage string `json:"default_language"`
	PollIntervalMS  int    `json:"poll_interval_ms"`
	HealthCronExpr  string `json:"health_cron_expr"`
}

func (s RuntimeSettings) Validate() error {
	if strings.TrimSpace(s.ServiceURL) == "" {
		return fmt.Errorf("service_url is required")
	}
	if u, err := url.Parse(s.ServiceURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid service_url %q", s.ServiceURL)
	}
	if s.PollIntervalMS <= 0 {
		return fmt.Errorf("poll_interval_ms must be positive")
	}
	if strings.TrimSpace(s.HealthCronExpr) == "" {
		return fmt.Errorf("health_cron_expr is required")
	}
	if _, err := cron.ParseStandard(s.HealthCronExpr); err != nil {
		return fmt.Errorf("invalid health_cron_expr: %w", err)
	}
	if s.DefaultLanguage != "" {
		if _, err := language.Parse(s.DefaultLanguage); err != nil {
			return fmt.Errorf("invalid default_language: %w", err)
		}
	}
	return nil
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		ServiceURL:      c.Service.URL,
		DefaultLanguage: c.Transcribe.DefaultLanguage,
		PollIntervalMS:  int(c.Poll.Interval / time.Millisecond),
		HealthCronExpr:  c.Health.CronExpr,
	}
}

func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if strings.TrimSpace(settings.ServiceURL) != "" {
			c.Service.URL = settings.ServiceURL
		}
		if settings.PollIntervalMS > 0 {
			c.Poll.Interval = time.Duration(settings.PollIntervalMS) * time.Millisecond
		}
		if strings.TrimSpace(settings.HealthCronExpr) != "" {
			c.Health.CronExpr = settings.HealthCronExpr
		}
		if _, err := language.Parse(settings.DefaultLanguage); err == nil {
			c.Transcribe.DefaultLanguage = settings.DefaultLanguage
		}
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	// Write then rename so readers never observe a partial file.
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next, nil
}
