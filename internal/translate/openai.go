package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient translates with a chat completion model. Used as the
// fallback provider when no DeepL key is configured.
type OpenAIClient struct {
	client     *openai.Client
	model      string
	sourceLang string
	targetLang string
}

// NewOpenAIClient creates an OpenAI-backed translator.
func NewOpenAIClient(apiKey, model, sourceLang, targetLang string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}
	if sourceLang == "" || targetLang == "" {
		return nil, fmt.Errorf("source and target languages cannot be empty")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{
		client:     openai.NewClient(apiKey),
		model:      model,
		sourceLang: sourceLang,
		targetLang: targetLang,
	}, nil
}

// Name identifies the provider in logs and metrics.
func (c *OpenAIClient) Name() string { return "openai" }

// Translate performs one chat completion call.
func (c *OpenAIClient) Translate(ctx context.Context, text string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(
					"Translate the user's text from %s to %s. Reply with the translation only.",
					c.sourceLang, c.targetLang),
			},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrTranslation)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case apiErr.HTTPStatusCode >= 500:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		default:
			return fmt.Errorf("%w: %v", ErrTranslation, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
