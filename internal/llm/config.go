package llm

import (
	"errors"
	"net/http"
	"strings"
)

const DefaultAPIURL = "https://api.openai.com/v1"

// Config is one chat completion endpoint. Any OpenAI compatible provider
// works.
type Config struct {
	APIKey      string
	APIURL      string
	Model       string
	MaxTokens   int
	Temperature float64
	// Timeout is the per request timeout in seconds.
	Timeout int
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, errors.New("API key is required"))
	}
	if strings.TrimSpace(c.APIURL) == "" {
		errs = append(errs, errors.New("API URL is required"))
	}
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if c.MaxTokens < 1 {
		errs = append(errs, errors.New("max tokens must be greater than 0"))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, errors.New("temperature must be between 0 and 2"))
	}
	if c.Timeout < 1 {
		errs = append(errs, errors.New("timeout must be greater than 0"))
	}
	return errors.Join(errs...)
}

func (c *Config) setHeaders(h http.Header) {
	h.Set("Authorization", "Bearer "+c.APIKey)
	h.Set("Content-Type", "application/json")
}
