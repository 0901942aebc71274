package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/video-sub-translator/internal/transcribe"
	"github.com/MimeLyc/video-sub-translator/internal/translator"
)

// RuntimeSettings are the options a user may change while the process
// runs. Empty fields leave the loaded configuration untouched.
type RuntimeSettings struct {
	DeepLKey        string `json:"deepl_key"`
	OpenAIKey       string `json:"openai_key"`
	WhisperModel    string `json:"whisper_model"`
	DefaultLanguage string `json:"default_language"`
	DefaultService  string `json:"default_service"`
	JanitorCron     string `json:"janitor_cron,omitempty"`
}

func (s RuntimeSettings) Validate() error {
	if strings.TrimSpace(s.WhisperModel) != "" {
		if _, err := transcribe.ParseModelTier(s.WhisperModel); err != nil {
			return fmt.Errorf("invalid whisper_model: %w", err)
		}
	}
	if strings.TrimSpace(s.DefaultLanguage) != "" {
		if _, err := translator.ParseTarget(s.DefaultLanguage); err != nil {
			return fmt.Errorf("invalid default_language: %w", err)
		}
	}
	if strings.TrimSpace(s.DefaultService) != "" {
		if _, err := translator.ParseService(s.DefaultService); err != nil {
			return fmt.Errorf("invalid default_service: %w", err)
		}
	}
	if strings.TrimSpace(s.JanitorCron) != "" {
		if _, err := cron.ParseStandard(s.JanitorCron); err != nil {
			return fmt.Errorf("invalid janitor_cron: %w", err)
		}
	}
	return nil
}

// Redacted hides the API keys, keeping only whether they are set.
func (s RuntimeSettings) Redacted() RuntimeSettings {
	s.DeepLKey = redact(s.DeepLKey)
	s.OpenAIKey = redact(s.OpenAIKey)
	return s
}

func redact(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		DeepLKey:        c.DeepL.APIKey,
		OpenAIKey:       c.LLM.APIKey,
		WhisperModel:    c.Whisper.Model,
		DefaultLanguage: c.Translate.DefaultLanguage,
		DefaultService:  c.Translate.DefaultService,
		JanitorCron:     c.Janitor.CronExpr,
	}
}

func WithRuntimeSettings(settings RuntimeSettings) func(*Config) {
	return func(c *Config) {
		if strings.TrimSpace(settings.DeepLKey) != "" {
			c.DeepL.APIKey = strings.TrimSpace(settings.DeepLKey)
		}
		if strings.TrimSpace(settings.OpenAIKey) != "" {
			c.LLM.APIKey = strings.TrimSpace(settings.OpenAIKey)
		}
		if strings.TrimSpace(settings.WhisperModel) != "" {
			c.Whisper.Model = strings.ToLower(strings.TrimSpace(settings.WhisperModel))
		}
		if strings.TrimSpace(settings.DefaultLanguage) != "" {
			c.Translate.DefaultLanguage = strings.TrimSpace(settings.DefaultLanguage)
		}
		if strings.TrimSpace(settings.DefaultService) != "" {
			c.Translate.DefaultService = strings.TrimSpace(settings.DefaultService)
		}
		if strings.TrimSpace(settings.JanitorCron) != "" {
			c.Janitor.CronExpr = settings.JanitorCron
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
	if err := settings.Validate(); err != nil {
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

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// RuntimeSettingsStore is the live, persisted set of runtime settings on
// top of a base configuration.
type RuntimeSettingsStore struct {
	path string
	base Config

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, base Config) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	initial := base.RuntimeSettings()
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		base:    base,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() RuntimeSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// UpdateRuntimeSettings merges next over the current settings, persists the
// result and returns it. Empty fields in next keep their current value.
func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := s.base
	WithRuntimeSettings(s.current)(&merged)
	WithRuntimeSettings(next)(&merged)
	settings := merged.RuntimeSettings()

	if err := WriteRuntimeSettingsFile(s.path, settings); err != nil {
		return RuntimeSettings{}, err
	}
	s.current = settings
	return settings, nil
}

// Config returns the base configuration with the current settings applied.
func (s *RuntimeSettingsStore) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.base
	WithRuntimeSettings(s.current)(&cfg)
	return cfg
}

// Snapshot freezes the current configuration for one job.
func (s *RuntimeSettingsStore) Snapshot() (Snapshot, error) {
	cfg := s.Config()
	return cfg.Snapshot()
}
