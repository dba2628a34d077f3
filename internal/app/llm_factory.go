package app

import (
	"fmt"

	"github.com/eduardohotta/cortex-sub000/pkg/assistant"
	"github.com/eduardohotta/cortex-sub000/pkg/assistant/providers/gemini"
	ollamap "github.com/eduardohotta/cortex-sub000/pkg/assistant/providers/ollama"
	openaip "github.com/eduardohotta/cortex-sub000/pkg/assistant/providers/openai"
)

const defaultOllamaURL = "http://localhost:11434"

// setupLLMEngine registers every provider with the generation engine and
// applies the configured options. Cloud providers share the rotation pool;
// "local" goes through the ollama farm without credentials.
func (a *App) setupLLMEngine() (*assistant.Engine, error) {
	ollamaURL := a.Config.LLM.OllamaURL
	if ollamaURL == "" {
		ollamaURL = defaultOllamaURL
	}
	local, err := ollamap.New(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create local provider: %w", err)
	}

	providers := map[string]assistant.Provider{}
	for _, p := range []assistant.Provider{
		openaip.New(),
		openaip.NewGroq(),
		gemini.New(),
		local,
	} {
		providers[p.Name()] = p
	}

	engine := assistant.NewEngine(providers, a.Logger)
	engine.Configure(assistant.Options{
		Provider:      a.Config.LLM.Provider,
		Model:         a.Config.LLM.Model,
		APIKeys:       a.Config.LLM.APIKeys,
		Temperature:   a.Config.LLM.Temperature,
		TopP:          a.Config.LLM.TopP,
		TopK:          a.Config.LLM.TopK,
		RepeatPenalty: a.Config.LLM.RepeatPenalty,
		MaxTokens:     a.Config.LLM.MaxTokens,
		Threads:       a.Config.LLM.Threads,
		GPULayers:     a.Config.LLM.GPULayers,
		BatchSize:     a.Config.LLM.BatchSize,
		Timeout:       a.Config.LLM.Timeout,
	})

	if _, ok := providers[a.Config.LLM.Provider]; !ok {
		return nil, fmt.Errorf("unknown LLM provider: %s", a.Config.LLM.Provider)
	}
	return engine, nil
}
