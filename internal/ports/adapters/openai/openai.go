package openai

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/forPelevin/clipscout/internal/apperr"
	"github.com/forPelevin/clipscout/internal/domain/prompt"
)

const (
	DefaultModel = "gpt-4o"

	requestTimeout = 90 * time.Second
	temperature    = 0.7
)

// Adapter asks an OpenAI-compatible chat completion endpoint for clip
// candidates in JSON mode.
type Adapter struct {
	client openai.Client
	model  string
}

func New(apiKey, model, baseURL string, opts ...option.RequestOption) *Adapter {
	if model == "" {
		model = DefaultModel
	}
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}
	clientOpts = append(clientOpts, opts...)
	return &Adapter{client: openai.NewClient(clientOpts...), model: model}
}

func (a *Adapter) Complete(ctx context.Context, p prompt.Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.System),
			openai.UserMessage(p.User),
		},
		Model:       a.model,
		Temperature: openai.Float(temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", apperr.Wrapf(err, apperr.CodeProvider, "openai status %d", apiErr.StatusCode)
		}
		return "", apperr.Wrap(err, apperr.CodeProvider, "openai request failed")
	}
	if len(resp.Choices) == 0 {
		return "[]", nil
	}
	return resp.Choices[0].Message.Content, nil
}
