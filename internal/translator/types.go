package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// ErrCountMismatch is returned when a backend answers with a different
// number of entries than it was given.
var ErrCountMismatch = errors.New("translation count mismatch")

// Backend translates an ordered batch of texts. The result has the same
// length and order as texts.
type Backend interface {
	Name() string
	Service() Service
	Translate(ctx context.Context, texts []string, target language.Tag) ([]string, error)
}

// Service identifies a backend family.
type Service int

const (
	ServiceChatGPT Service = iota + 1
	ServiceDeepL
)

func (s Service) String() string {
	switch s {
	case ServiceChatGPT:
		return "ChatGPT"
	case ServiceDeepL:
		return "DeepL"
	default:
		return "unknown"
	}
}

// ParseService accepts the display names case-insensitively plus a few
// common aliases.
func ParseService(value string) (Service, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "chatgpt", "openai", "chat", "gpt":
		return ServiceChatGPT, nil
	case "deepl", "neuralmt":
		return ServiceDeepL, nil
	default:
		return 0, fmt.Errorf("unknown translation service %q (want ChatGPT or DeepL)", value)
	}
}

func (s Service) MarshalText() ([]byte, error) {
	if s != ServiceChatGPT && s != ServiceDeepL {
		return nil, fmt.Errorf("unknown translation service %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Service) UnmarshalText(text []byte) error {
	parsed, err := ParseService(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Credentials is the per-job backend configuration. It is copied by value
// into each job so later edits never reach an in-flight translation.
type Credentials struct {
	DeepLKey    string
	DeepLURL    string // empty selects the endpoint from the key type
	OpenAIKey   string
	OpenAIURL   string
	OpenAIModel string
	TimeoutSec  int
	MaxTokens   int
	Temperature float64
}

func checkCount(got, want int) error {
	if got != want {
		return fmt.Errorf("%w: got %d entries, want %d", ErrCountMismatch, got, want)
	}
	return nil
}
