package ollama

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/presbrey/ollamafarm"

	"github.com/eduardohotta/cortex-sub000/pkg/assistant"
)

// Small local models occasionally latch onto a token and repeat it forever;
// past this many identical consecutive deltas the stream is cut short.
const repeatLimit = 6

var errLoopDetected = errors.New("repetition loop detected")

// Provider runs generation against local ollama servers through a farm, so
// multiple hosts can back the "local" provider. No credentials involved.
type Provider struct {
	farm *ollamafarm.Farm
}

func New(urls ...string) (*Provider, error) {
	farm := ollamafarm.New()
	for _, u := range urls {
		if err := farm.RegisterURL(u, nil); err != nil {
			return nil, fmt.Errorf("failed to register ollama server %s: %w", u, err)
		}
	}
	return &Provider{farm: farm}, nil
}

func (p *Provider) Name() string { return "local" }

// Stream runs one local chat turn. Every call starts from a clean message
// slate: the caller owns conversational memory, not the model.
func (p *Provider) Stream(ctx context.Context, req assistant.Request, onDelta func(string)) (string, error) {
	server := p.farm.First(&ollamafarm.Where{Offline: false})
	if server == nil {
		return "", fmt.Errorf("no ollama server online for model %s", req.Options.Model)
	}

	msgs := make([]api.Message, 0, 2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, api.Message{Role: string(assistant.SYSTEM), Content: req.SystemPrompt})
	}
	msgs = append(msgs, api.Message{Role: string(assistant.USER), Content: req.Question})

	stream := true
	chatReq := api.ChatRequest{
		Model:    req.Options.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  buildOptions(req.Options),
	}

	var full strings.Builder
	var lastDelta string
	repeats := 0

	err := server.Client().Chat(ctx, &chatReq, func(resp api.ChatResponse) error {
		delta := resp.Message.Content
		if delta == "" {
			return nil
		}
		if delta == lastDelta {
			repeats++
			if repeats > repeatLimit {
				return errLoopDetected
			}
		} else {
			lastDelta = delta
			repeats = 0
		}
		full.WriteString(delta)
		onDelta(delta)
		return nil
	})
	if err != nil && !errors.Is(err, errLoopDetected) {
		return "", err
	}
	return full.String(), nil
}

func buildOptions(opts assistant.Options) map[string]interface{} {
	m := map[string]interface{}{
		"temperature":    opts.Temperature,
		"top_p":          opts.TopP,
		"top_k":          opts.TopK,
		"repeat_penalty": opts.RepeatPenalty,
	}
	if opts.MaxTokens > 0 {
		m["num_predict"] = opts.MaxTokens
	}
	if opts.Threads > 0 {
		m["num_thread"] = opts.Threads
	}
	if opts.GPULayers > 0 {
		m["num_gpu"] = opts.GPULayers
	}
	if opts.BatchSize > 0 {
		m["num_batch"] = opts.BatchSize
	}
	return m
}
