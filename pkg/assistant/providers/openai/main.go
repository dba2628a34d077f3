package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/eduardohotta/cortex-sub000/pkg/assistant"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// Provider speaks the OpenAI chat completions protocol. Groq exposes the
// same wire format, so a base URL swap covers both.
type Provider struct {
	name    string
	baseURL string
}

func New() *Provider {
	return &Provider{name: "openai"}
}

// NewGroq returns a provider pointed at Groq's OpenAI-compatible endpoint.
func NewGroq() *Provider {
	return &Provider{name: "groq", baseURL: groqBaseURL}
}

func (p *Provider) Name() string { return p.name }

// Stream runs one streamed chat completion. The client is rebuilt per call
// because the engine rotates credentials between attempts.
func (p *Provider) Stream(ctx context.Context, req assistant.Request, onDelta func(string)) (string, error) {
	clientOpts := []option.RequestOption{option.WithAPIKey(req.APIKey)}
	if p.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(p.baseURL))
	}
	client := openai.NewClient(clientOpts...)

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	}
	msgs = append(msgs, openai.UserMessage(req.Question))

	params := openai.ChatCompletionNewParams{
		Messages:    msgs,
		Model:       req.Options.Model,
		Temperature: openai.Float(req.Options.Temperature),
		TopP:        openai.Float(req.Options.TopP),
	}
	if req.Options.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.Options.MaxTokens))
	}

	stream := client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var full strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		onDelta(delta)
	}
	if err := stream.Err(); err != nil {
		return "", wrapError(err)
	}
	return full.String(), nil
}

func wrapError(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return &assistant.ProviderError{StatusCode: apierr.StatusCode, Err: err}
	}
	return err
}
