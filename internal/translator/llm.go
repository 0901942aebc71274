package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/language"

	"github.com/MimeLyc/video-sub-translator/internal/llm"
)

const inlineBreakerPlaceholder = "%%inline_breaker%%"

// ChatCompletion translates through a general purpose chat model. Each
// batch is sent as indexed JSON and must come back with the same indices.
type ChatCompletion struct {
	client *llm.Client
}

// NewChatCompletion builds the backend from creds.
func NewChatCompletion(creds Credentials, opts ...Option) (*ChatCompletion, error) {
	if strings.TrimSpace(creds.OpenAIKey) == "" {
		return nil, fmt.Errorf("OpenAI API key is not configured")
	}

	apiURL := creds.OpenAIURL
	if apiURL == "" {
		apiURL = llm.DefaultAPIURL
	}
	model := creds.OpenAIModel
	if model == "" {
		model = "gpt-4o-mini"
	}
	maxTokens := creds.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	timeout := creds.TimeoutSec
	if timeout <= 0 {
		timeout = 60
	}

	o := newBackendOptions(creds, opts)
	client, err := llm.NewClient(&llm.Config{
		APIKey:      creds.OpenAIKey,
		APIURL:      apiURL,
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: creds.Temperature,
		Timeout:     timeout,
	}, llm.WithHTTPClient(o.httpClient), llm.WithRetryPolicy(o.retry))
	if err != nil {
		return nil, err
	}
	return &ChatCompletion{client: client}, nil
}

func (b *ChatCompletion) Name() string     { return "ChatGPT (" + b.client.Model() + ")" }
func (b *ChatCompletion) Service() Service { return ServiceChatGPT }

func (b *ChatCompletion) Translate(ctx context.Context, texts []string, target language.Tag) ([]string, error) {
	if len(texts) == 0 {
		return []string{}, nil
	}

	formatted := make([]string, len(texts))
	for i, text := range texts {
		// Keep original line breaks out of the JSON payload the model edits.
		formatted[i] = strings.ReplaceAll(text, "\n", inlineBreakerPlaceholder)
	}

	userMessage, err := buildTranslationUserMessage(formatted)
	if err != nil {
		return nil, err
	}

	completion, err := b.client.Complete(ctx, buildSystemPrompt(target), userMessage)
	if err != nil {
		return nil, err
	}

	translated, err := parseTranslationOutput(completion.Content, len(texts))
	if err != nil {
		return nil, err
	}

	fixInlineBreakers(formatted, translated)
	for i := range translated {
		translated[i] = strings.ReplaceAll(translated[i], inlineBreakerPlaceholder, "\n")
	}
	return translated, nil
}

type indexedLine struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

func buildTranslationUserMessage(lines []string) (string, error) {
	payload := struct {
		Lines []indexedLine `json:"lines"`
	}{Lines: make([]indexedLine, len(lines))}
	for i, line := range lines {
		payload.Lines[i] = indexedLine{Index: i + 1, Text: line}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to build translation payload: %w", err)
	}
	return string(data), nil
}

func buildSystemPrompt(target language.Tag) string {
	targetLanguage := DisplayName(target)

	var prompt strings.Builder
	prompt.WriteString("You are a professional subtitle translator. Translate every subtitle line into " + targetLanguage + ".\n\n")

	prompt.WriteString("=== INPUT ===\n")
	prompt.WriteString("A JSON object {\"lines\":[{\"index\":N,\"text\":\"...\"}]} with lines in playback order.\n")

	prompt.WriteString("\n=== RULES ===\n")
	prompt.WriteString("1. Translate each line on its own; do NOT merge, split, reorder, or drop lines\n")
	prompt.WriteString("2. Keep subtitle length appropriate for screen reading\n")
	prompt.WriteString("3. MUST preserve the count of " + inlineBreakerPlaceholder + " markers in each line\n")
	prompt.WriteString("4. If an input line is empty, output text for that index MUST be an empty string\n")
	prompt.WriteString("5. Do NOT output literal newline characters in JSON text\n")

	prompt.WriteString("\n=== OUTPUT FORMAT ===\n")
	prompt.WriteString("Return ONLY a JSON array [{\"index\":N,\"text\":\"...\"}] with one element per input index.\n")
	prompt.WriteString("Do not include any explanations, notes, or markdown.\n")

	return prompt.String()
}

// parseTranslationOutput decodes the model answer. It accepts an indexed
// array (any order), a {"lines": [...]} wrapper, or a plain string array.
func parseTranslationOutput(content string, want int) ([]string, error) {
	content = stripCodeFence(strings.TrimSpace(content))
	if content == "" {
		return nil, fmt.Errorf("empty translation output")
	}

	var indexed []indexedLine
	if err := json.Unmarshal([]byte(content), &indexed); err != nil || !hasIndices(indexed) {
		var wrapped struct {
			Lines []indexedLine `json:"lines"`
		}
		if werr := json.Unmarshal([]byte(content), &wrapped); werr == nil && hasIndices(wrapped.Lines) {
			indexed = wrapped.Lines
		} else {
			var plain []string
			if perr := json.Unmarshal([]byte(content), &plain); perr != nil {
				return nil, fmt.Errorf("translation output is not valid json: %w", perr)
			}
			if err := checkCount(len(plain), want); err != nil {
				return nil, err
			}
			return plain, nil
		}
	}

	if err := checkCount(len(indexed), want); err != nil {
		return nil, err
	}
	out := make([]string, want)
	seen := make([]bool, want)
	for _, line := range indexed {
		if line.Index < 1 || line.Index > want {
			return nil, fmt.Errorf("translation output has out of range index %d", line.Index)
		}
		if seen[line.Index-1] {
			return nil, fmt.Errorf("translation output has duplicate index %d", line.Index)
		}
		seen[line.Index-1] = true
		out[line.Index-1] = line.Text
	}
	return out, nil
}

func hasIndices(lines []indexedLine) bool {
	if len(lines) == 0 {
		return false
	}
	for _, line := range lines {
		if line.Index == 0 {
			return false
		}
	}
	return true
}

func stripCodeFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	if nl := strings.IndexByte(content, '\n'); nl >= 0 {
		content = content[nl+1:]
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

// fixInlineBreakers makes every translated line carry as many inline
// markers as its source line, so restored line breaks match the original.
func fixInlineBreakers(source, translated []string) {
	for i := range translated {
		if i >= len(source) {
			return
		}
		want := strings.Count(source[i], inlineBreakerPlaceholder)
		if strings.Count(translated[i], inlineBreakerPlaceholder) == want {
			continue
		}
		plain := strings.ReplaceAll(translated[i], inlineBreakerPlaceholder, " ")
		plain = strings.Join(strings.Fields(plain), " ")
		translated[i] = insertBreakers(plain, want)
	}
}

// insertBreakers splits text into want+1 roughly equal parts, preferring
// to cut at spaces.
func insertBreakers(text string, want int) string {
	if want <= 0 {
		return text
	}
	runes := []rune(text)
	var b strings.Builder
	prev := 0
	for k := 1; k <= want; k++ {
		cut := len(runes) * k / (want + 1)
		cut = nearestSpace(runes, cut, prev)
		b.WriteString(strings.TrimSpace(string(runes[prev:cut])))
		b.WriteString(inlineBreakerPlaceholder)
		prev = cut
	}
	b.WriteString(strings.TrimSpace(string(runes[prev:])))
	return b.String()
}

func nearestSpace(runes []rune, cut, floor int) int {
	cut = max(cut, floor)
	for d := 0; d < 8; d++ {
		if i := cut + d; i < len(runes) && unicode.IsSpace(runes[i]) {
			return i
		}
		if i := cut - d; i > floor && i < len(runes) && unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return min(cut, len(runes))
}
