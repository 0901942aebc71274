package config

import (
	"time"

	"golang.org/x/text/language"

	"github.com/MimeLyc/video-sub-translator/internal/transcribe"
	"github.com/MimeLyc/video-sub-translator/internal/translator"
)

// Snapshot is the immutable per-job view of the configuration. A running
// job keeps its copy even if settings change underneath it.
type Snapshot struct {
	DeepLKey    string
	DeepLURL    string
	OpenAIKey   string
	OpenAIURL   string
	OpenAIModel string
	MaxTokens   int
	Temperature float64
	TimeoutSec  int
	BatchSize   int

	WhisperModel  transcribe.ModelTier
	WhisperBinary string

	DefaultLanguage language.Tag
	DefaultService  translator.Service

	OutputDir string
	TempDir   string
	CopyVideo bool
	MuxVideo  bool

	TakenAt time.Time
}

// Snapshot resolves the typed values. It fails only when the config has
// not been validated.
func (c Config) Snapshot() (Snapshot, error) {
	tier, err := transcribe.ParseModelTier(c.Whisper.Model)
	if err != nil {
		return Snapshot{}, err
	}
	lang, err := translator.ParseTarget(c.Translate.DefaultLanguage)
	if err != nil {
		return Snapshot{}, err
	}
	service, err := translator.ParseService(c.Translate.DefaultService)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		DeepLKey:        c.DeepL.APIKey,
		DeepLURL:        c.DeepL.APIURL,
		OpenAIKey:       c.LLM.APIKey,
		OpenAIURL:       c.LLM.APIURL,
		OpenAIModel:     c.LLM.Model,
		MaxTokens:       c.LLM.MaxTokens,
		Temperature:     c.LLM.Temperature,
		TimeoutSec:      c.Translate.TimeoutSeconds,
		BatchSize:       c.Translate.BatchSize,
		WhisperModel:    tier,
		WhisperBinary:   c.Whisper.Binary,
		DefaultLanguage: lang,
		DefaultService:  service,
		OutputDir:       c.Paths.OutputDir,
		TempDir:         c.Paths.TempDir,
		CopyVideo:       c.Assemble.CopyVideo,
		MuxVideo:        c.Assemble.MuxVideo,
		TakenAt:         time.Now(),
	}, nil
}

// Credentials is the translation backend part of the snapshot.
func (s Snapshot) Credentials() translator.Credentials {
	return translator.Credentials{
		DeepLKey:    s.DeepLKey,
		DeepLURL:    s.DeepLURL,
		OpenAIKey:   s.OpenAIKey,
		OpenAIURL:   s.OpenAIURL,
		OpenAIModel: s.OpenAIModel,
		TimeoutSec:  s.TimeoutSec,
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
	}
}
