package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/MimeLyc/video-sub-translator/pkg/retry"
)

const (
	deeplFreeURL = "https://api-free.deepl.com"
	deeplProURL  = "https://api.deepl.com"
	// deeplMaxTexts is the API's limit of text parameters per request.
	deeplMaxTexts = 50
)

// NeuralMT is a DeepL compatible machine translation backend.
type NeuralMT struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retry      retry.Policy
}

type deeplRequest struct {
	Text               []string `json:"text"`
	TargetLang         string   `json:"target_lang"`
	PreserveFormatting bool     `json:"preserve_formatting"`
	SplitSentences     string   `json:"split_sentences"`
}

type deeplResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
	Message string `json:"message"`
}

// NewNeuralMT builds the backend from creds. Keys ending in ":fx" are
// free-tier keys and go to the free endpoint unless DeepLURL is set.
func NewNeuralMT(creds Credentials, opts ...Option) (*NeuralMT, error) {
	key := strings.TrimSpace(creds.DeepLKey)
	if key == "" {
		return nil, fmt.Errorf("DeepL API key is not configured")
	}

	baseURL := strings.TrimRight(creds.DeepLURL, "/")
	if baseURL == "" {
		baseURL = deeplProURL
		if strings.HasSuffix(key, ":fx") {
			baseURL = deeplFreeURL
		}
	}

	o := newBackendOptions(creds, opts)
	return &NeuralMT{
		apiKey:     key,
		baseURL:    baseURL,
		httpClient: o.httpClient,
		retry:      o.retry,
	}, nil
}

func (b *NeuralMT) Name() string     { return "DeepL" }
func (b *NeuralMT) Service() Service { return ServiceDeepL }

func (b *NeuralMT) Translate(ctx context.Context, texts []string, target language.Tag) ([]string, error) {
	out := make([]string, 0, len(texts))
	for start := 0; start < len(texts); start += deeplMaxTexts {
		end := min(start+deeplMaxTexts, len(texts))
		chunk, err := b.translateChunk(ctx, texts[start:end], target)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func (b *NeuralMT) translateChunk(ctx context.Context, texts []string, target language.Tag) ([]string, error) {
	payload, err := json.Marshal(deeplRequest{
		Text:               texts,
		TargetLang:         deeplTargetCode(target),
		PreserveFormatting: true,
		SplitSentences:     "nonewlines",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var translated []string
	err = b.retry.Do(ctx, "deepl translate", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v2/translate", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "DeepL-Auth-Key "+b.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := b.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to make request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		var parsed deeplResponse
		decodeErr := json.Unmarshal(body, &parsed)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := retry.NewStatusError(resp, body)
			if decodeErr == nil && parsed.Message != "" {
				statusErr.Body = parsed.Message
			}
			return describeDeepLStatus(statusErr)
		}
		if decodeErr != nil {
			return fmt.Errorf("failed to parse response: %w", decodeErr)
		}

		translated = make([]string, len(parsed.Translations))
		for i, tr := range parsed.Translations {
			translated[i] = tr.Text
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := checkCount(len(translated), len(texts)); err != nil {
		return nil, err
	}
	return translated, nil
}

// describeDeepLStatus adds a hint for the statuses users can act on. The
// StatusError stays in the chain so retry classification still works.
func describeDeepLStatus(err *retry.StatusError) error {
	switch err.StatusCode {
	case http.StatusForbidden, http.StatusUnauthorized:
		return fmt.Errorf("DeepL rejected the API key: %w", err)
	case 456:
		return fmt.Errorf("DeepL quota exceeded: %w", err)
	default:
		return err
	}
}

// deeplTargetCode maps a tag to the codes DeepL accepts as target_lang.
func deeplTargetCode(tag language.Tag) string {
	base, _ := tag.Base()
	// guessed regions don't count: bare "pt" means European Portuguese
	region, conf := tag.Region()
	if conf != language.Exact {
		region = language.Region{}
	}
	switch base.String() {
	case "en":
		if region.String() == "GB" {
			return "EN-GB"
		}
		return "EN-US"
	case "pt":
		if region.String() == "BR" {
			return "PT-BR"
		}
		return "PT-PT"
	case "no", "nb":
		return "NB"
	default:
		return strings.ToUpper(base.String())
	}
}

// Option tunes the HTTP side of a backend.
type Option func(*backendOptions)

type backendOptions struct {
	httpClient *http.Client
	retry      retry.Policy
}

// WithHTTPClient replaces the HTTP client a backend uses.
func WithHTTPClient(client *http.Client) Option {
	return func(o *backendOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithRetryPolicy replaces the retry policy a backend uses.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(o *backendOptions) {
		o.retry = policy
	}
}

func newBackendOptions(creds Credentials, opts []Option) backendOptions {
	timeout := time.Duration(creds.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	o := backendOptions{
		httpClient: &http.Client{Timeout: timeout},
		retry:      retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
