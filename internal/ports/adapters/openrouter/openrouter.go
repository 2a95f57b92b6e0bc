package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/forPelevin/clipscout/internal/apperr"
	"github.com/forPelevin/clipscout/internal/domain/prompt"
)

type Adapter struct {
	key         string
	model       string
	baseURL     string
	temperature float64
	client      *http.Client
}

const (
	requestTimeout = 90 * time.Second

	defaultModel       = "openai/gpt-4o"
	defaultTemperature = 0.7
)

func New(apiKey, model, baseURL string) *Adapter {
	if model == "" {
		model = defaultModel
	}
	baseURL = normalizeBaseURL(baseURL)
	return &Adapter{
		key:         apiKey,
		model:       model,
		baseURL:     baseURL,
		temperature: defaultTemperature,
		client:      &http.Client{Timeout: 5 * time.Minute},
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model          string            `json:"model"`
	Stream         bool              `json:"stream"`
	Temperature    float64           `json:"temperature"`
	Messages       []message         `json:"messages"`
	ResponseFormat map[string]string `json:"response_format"`
}

// Complete sends the prompt as a system + user chat and returns the first
// choice's content unmodified. A response without choices is reported as an
// empty JSON array so the caller sees "no candidates" rather than an error.
func (a *Adapter) Complete(ctx context.Context, p prompt.Prompt) (string, error) {
	body, err := json.Marshal(request{
		Model:       a.model,
		Temperature: a.temperature,
		Messages: []message{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeProvider, "marshal openrouter request")
	}
	url := a.baseURL + "/api/v1/chat/completions"

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeProvider, "build openrouter request")
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return "", apperr.Newf(apperr.CodeProvider, "openrouter timeout after %s (model=%s)", requestTimeout, a.model)
		}
		return "", apperr.Wrap(errors.New(redactSecrets(err.Error(), a.key)), apperr.CodeProvider, "openrouter request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if readErr != nil {
			return "", apperr.Newf(apperr.CodeProvider, "openrouter status %d and read body failed: %v", resp.StatusCode, readErr)
		}
		return "", apperr.Newf(apperr.CodeProvider, "openrouter status %d: %s", resp.StatusCode, truncate(redactSecrets(string(rb), a.key), 400))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", apperr.Wrap(err, apperr.CodeProvider, "decode openrouter response")
	}
	if len(raw.Choices) == 0 {
		return "[]", nil
	}

	content, err := messageContentToString(raw.Choices[0].Message.Content)
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeProvider, "read openrouter message")
	}
	return content, nil
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case []any:
		// Some providers return an array of {type,text} parts.
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		return b.String(), nil
	default:
		return "", fmt.Errorf("openrouter: unexpected content type %T", v)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
