package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/eduardohotta/cortex-sub000/pkg/assistant"
)

const defaultModel = "gemini-1.5-flash"

type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Name() string { return "gemini" }

// Stream runs one streamed Gemini generation. A fresh client per call keeps
// credential rotation simple; the SDK client is cheap to construct.
func (p *Provider) Stream(ctx context.Context, req assistant.Request, onDelta func(string)) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(req.APIKey))
	if err != nil {
		return "", fmt.Errorf("failed to create Gemini client: %w", err)
	}
	defer client.Close()

	modelName := req.Options.Model
	if modelName == "" {
		modelName = defaultModel
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(float32(req.Options.Temperature))
	model.SetTopP(float32(req.Options.TopP))
	if req.Options.TopK > 0 {
		model.SetTopK(int32(req.Options.TopK))
	}
	if req.Options.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.Options.MaxTokens))
	}
	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemPrompt)},
		}
	}

	iter := model.GenerateContentStream(ctx, genai.Text(req.Question))

	var full strings.Builder
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", wrapError(err)
		}
		delta := textOf(resp)
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		onDelta(delta)
	}
	return full.String(), nil
}

func textOf(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}

func wrapError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &assistant.ProviderError{StatusCode: gerr.Code, Err: err}
	}
	return err
}
