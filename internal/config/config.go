package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/MimeLyc/video-sub-translator/internal/transcribe"
	"github.com/MimeLyc/video-sub-translator/internal/translator"
	"github.com/MimeLyc/video-sub-translator/pkg/log"
)

// Config holds all application configuration.
//
// Values are layered: built-in defaults, then the TOML file, then a .env
// file next to the working directory, then the process environment, then
// the runtime settings file written from the settings API.
//
// Environment Variables:
// Translation:
// - DEEPL_API_KEY: DeepL API key
// - DEEPL_API_URL: DeepL endpoint (default: chosen from the key type)
// - OPENAI_API_KEY: OpenAI compatible API key
// - OPENAI_API_URL: endpoint (default: https://api.openai.com/v1)
// - OPENAI_MODEL: chat model (default: gpt-4o-mini)
// - DEFAULT_LANGUAGE: target language when a request names none (default: EN)
// - DEFAULT_SERVICE: ChatGPT or DeepL (default: DeepL)
// - TRANSLATE_BATCH_SIZE: entries per request (default: 50)
// - TRANSLATE_TIMEOUT: per request timeout in seconds (default: 60)
//
// Speech to text:
// - WHISPER_MODEL: tiny|base|small|medium|large|large-v3-turbo (default: small)
// - WHISPER_BIN: whisper executable (default: whisper)
//
// System:
// - DATA_DIR: history db, lock, logs and settings (default: /app/data)
// - OUTPUT_DIR: job output folders (default: output)
// - TEMP_DIR: job workspaces (default: OS temp dir)
// - HTTP_ADDR: serve address (default: :8080)
// - LOG_LEVEL: debug|info|warn|error (default: info)
// - AMQP_URL: mirror terminal commands to RabbitMQ when set
type Config struct {
	Paths     PathsConfig     `toml:"paths" json:"paths"`
	Translate TranslateConfig `toml:"translate" json:"translate"`
	DeepL     DeepLConfig     `toml:"deepl" json:"deepl"`
	LLM       LLMConfig       `toml:"llm" json:"llm"`
	Whisper   WhisperConfig   `toml:"whisper" json:"whisper"`
	Download  DownloadConfig  `toml:"download" json:"download"`
	Assemble  AssembleConfig  `toml:"assemble" json:"assemble"`
	HTTP      HTTPConfig      `toml:"http" json:"http"`
	Watch     WatchConfig     `toml:"watch" json:"watch"`
	Notify    NotifyConfig    `toml:"notify" json:"notify"`
	Janitor   JanitorConfig   `toml:"janitor" json:"janitor"`
	Logging   LoggingConfig   `toml:"logging" json:"logging"`
}

type PathsConfig struct {
	DataDir      string `toml:"data_dir" json:"data_dir"`
	OutputDir    string `toml:"output_dir" json:"output_dir"`
	TempDir      string `toml:"temp_dir" json:"temp_dir"`
	SettingsFile string `toml:"settings_file" json:"settings_file"`
}

type TranslateConfig struct {
	DefaultLanguage string `toml:"default_language" json:"default_language"`
	DefaultService  string `toml:"default_service" json:"default_service"`
	BatchSize       int    `toml:"batch_size" json:"batch_size"`
	TimeoutSeconds  int    `toml:"timeout_seconds" json:"timeout_seconds"`
}

type DeepLConfig struct {
	APIKey string `toml:"api_key" json:"-"`
	APIURL string `toml:"api_url" json:"api_url"`
}

// LLMConfig is the chat completion backend. Any OpenAI compatible
// provider works.
type LLMConfig struct {
	APIKey      string  `toml:"api_key" json:"-"`
	APIURL      string  `toml:"api_url" json:"api_url"`
	Model       string  `toml:"model" json:"model"`
	MaxTokens   int     `toml:"max_tokens" json:"max_tokens"`
	Temperature float64 `toml:"temperature" json:"temperature"`
}

type WhisperConfig struct {
	Model  string `toml:"model" json:"model"`
	Binary string `toml:"binary" json:"binary"`
}

type DownloadConfig struct {
	TimeoutSeconds int    `toml:"timeout_seconds" json:"timeout_seconds"`
	YTDLPBinary    string `toml:"ytdlp_binary" json:"ytdlp_binary"`
}

// AssembleConfig controls what goes into the output folder besides the
// two subtitle files.
type AssembleConfig struct {
	CopyVideo bool `toml:"copy_video" json:"copy_video"`
	MuxVideo  bool `toml:"mux_video" json:"mux_video"`
}

type HTTPConfig struct {
	Addr string `toml:"addr" json:"addr"`
}

type WatchConfig struct {
	InboxDir     string `toml:"inbox_dir" json:"inbox_dir"`
	SettleMillis int    `toml:"settle_ms" json:"settle_ms"`
	UseGPU       bool   `toml:"use_gpu" json:"use_gpu"`
}

type NotifyConfig struct {
	AMQPURL    string `toml:"amqp_url" json:"-"`
	Exchange   string `toml:"exchange" json:"exchange"`
	RoutingKey string `toml:"routing_key" json:"routing_key"`
}

// JanitorConfig removes job workspaces left behind by a crashed process.
type JanitorConfig struct {
	CronExpr    string `toml:"cron_expr" json:"cron_expr"`
	MaxAgeHours int    `toml:"max_age_hours" json:"max_age_hours"`
}

type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
	File  bool   `toml:"file" json:"file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Paths: PathsConfig{
			DataDir:   "/app/data",
			OutputDir: "output",
		},
		Translate: TranslateConfig{
			DefaultLanguage: "EN",
			DefaultService:  translator.ServiceDeepL.String(),
			BatchSize:       translator.DefaultBatchSize,
			TimeoutSeconds:  60,
		},
		LLM: LLMConfig{
			APIURL:      "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			MaxTokens:   4096,
			Temperature: 0.3,
		},
		Whisper: WhisperConfig{
			Model:  transcribe.TierSmall.String(),
			Binary: "whisper",
		},
		Download: DownloadConfig{
			TimeoutSeconds: 1800,
			YTDLPBinary:    "yt-dlp",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Watch: WatchConfig{
			SettleMillis: 2000,
		},
		Notify: NotifyConfig{
			Exchange:   "vidsub",
			RoutingKey: "jobs.terminal",
		},
		Janitor: JanitorConfig{
			CronExpr:    "@every 1h",
			MaxAgeHours: 24,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  true,
		},
	}
}

// Load builds the configuration from path (optional), .env and the
// environment, then overlays the runtime settings file if one exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()

	settings, err := LoadRuntimeSettingsFile(cfg.SettingsPath())
	switch {
	case err == nil:
		WithRuntimeSettings(settings)(&cfg)
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Debug("Config loaded: output=%s data=%s whisper=%s service=%s",
		cfg.Paths.OutputDir, cfg.Paths.DataDir, cfg.Whisper.Model, cfg.Translate.DefaultService)
	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.DeepL.APIKey = getEnvString("DEEPL_API_KEY", c.DeepL.APIKey)
	c.DeepL.APIURL = getEnvString("DEEPL_API_URL", c.DeepL.APIURL)
	c.LLM.APIKey = getEnvString("OPENAI_API_KEY", c.LLM.APIKey)
	c.LLM.APIURL = getEnvString("OPENAI_API_URL", c.LLM.APIURL)
	c.LLM.Model = getEnvString("OPENAI_MODEL", c.LLM.Model)
	c.LLM.MaxTokens = getEnvInt("OPENAI_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.Temperature = getEnvFloat("OPENAI_TEMPERATURE", c.LLM.Temperature)

	c.Translate.DefaultLanguage = getEnvString("DEFAULT_LANGUAGE", c.Translate.DefaultLanguage)
	c.Translate.DefaultService = getEnvString("DEFAULT_SERVICE", c.Translate.DefaultService)
	c.Translate.BatchSize = getEnvInt("TRANSLATE_BATCH_SIZE", c.Translate.BatchSize)
	c.Translate.TimeoutSeconds = getEnvInt("TRANSLATE_TIMEOUT", c.Translate.TimeoutSeconds)

	c.Whisper.Model = getEnvString("WHISPER_MODEL", c.Whisper.Model)
	c.Whisper.Binary = getEnvString("WHISPER_BIN", c.Whisper.Binary)

	c.Paths.DataDir = getEnvString("DATA_DIR", c.Paths.DataDir)
	c.Paths.OutputDir = getEnvString("OUTPUT_DIR", c.Paths.OutputDir)
	c.Paths.TempDir = getEnvString("TEMP_DIR", c.Paths.TempDir)
	c.Paths.SettingsFile = getEnvString("SETTINGS_FILE", c.Paths.SettingsFile)

	c.Assemble.CopyVideo = getEnvBool("ASSEMBLE_COPY_VIDEO", c.Assemble.CopyVideo)
	c.Assemble.MuxVideo = getEnvBool("ASSEMBLE_MUX_VIDEO", c.Assemble.MuxVideo)
	c.HTTP.Addr = getEnvString("HTTP_ADDR", c.HTTP.Addr)
	c.Watch.InboxDir = getEnvString("WATCH_DIR", c.Watch.InboxDir)
	c.Notify.AMQPURL = getEnvString("AMQP_URL", c.Notify.AMQPURL)
	c.Logging.Level = getEnvString("LOG_LEVEL", c.Logging.Level)
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = absPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.OutputDir, err = absPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		c.Paths.TempDir = os.TempDir()
	}
	if c.Watch.InboxDir != "" {
		if c.Watch.InboxDir, err = absPath(c.Watch.InboxDir); err != nil {
			return fmt.Errorf("watch.inbox_dir: %w", err)
		}
	}
	if c.Translate.BatchSize <= 0 {
		c.Translate.BatchSize = translator.DefaultBatchSize
	}
	if c.Translate.TimeoutSeconds <= 0 {
		c.Translate.TimeoutSeconds = 60
	}
	if c.Download.TimeoutSeconds <= 0 {
		c.Download.TimeoutSeconds = 1800
	}
	c.Whisper.Model = strings.ToLower(strings.TrimSpace(c.Whisper.Model))
	return nil
}

// Validate checks the values Snapshot depends on.
func (c *Config) Validate() error {
	if _, err := transcribe.ParseModelTier(c.Whisper.Model); err != nil {
		return fmt.Errorf("whisper.model: %w", err)
	}
	if _, err := translator.ParseTarget(c.Translate.DefaultLanguage); err != nil {
		return fmt.Errorf("translate.default_language: %w", err)
	}
	if _, err := translator.ParseService(c.Translate.DefaultService); err != nil {
		return fmt.Errorf("translate.default_service: %w", err)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}
	if c.Assemble.CopyVideo && c.Assemble.MuxVideo {
		return fmt.Errorf("assemble.copy_video and assemble.mux_video are mutually exclusive")
	}
	return nil
}

func (c *Config) DBPath() string {
	return filepath.Join(c.Paths.DataDir, "vidsub.db")
}

func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "vidsub.lock")
}

func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.DataDir, "logs", "app.log")
}

func (c *Config) SettingsPath() string {
	if c.Paths.SettingsFile != "" {
		return c.Paths.SettingsFile
	}
	return filepath.Join(c.Paths.DataDir, "settings.json")
}

func absPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Abs(path)
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

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
