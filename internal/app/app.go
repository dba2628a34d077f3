package app

import (
	"fmt"

	"github.com/eduardohotta/cortex-sub000/internal/config"
	"github.com/eduardohotta/cortex-sub000/internal/history"
	"github.com/eduardohotta/cortex-sub000/internal/pipeline"
	"github.com/eduardohotta/cortex-sub000/internal/server"
	"github.com/eduardohotta/cortex-sub000/pkg/Logger"
	"github.com/eduardohotta/cortex-sub000/pkg/assistant"
	"github.com/eduardohotta/cortex-sub000/pkg/audio"
	"github.com/eduardohotta/cortex-sub000/pkg/stt"
)

// App represents the application with all its dependencies
type App struct {
	Config      *config.Settings
	Logger      *Logger.Logger
	Capture     *audio.Capture
	STT         stt.Engine
	LLM         *assistant.Engine
	History     *history.Store
	Coordinator *pipeline.Coordinator
	ServerDeps  server.Dependencies
}

// NewApp creates a new application instance with all dependencies properly wired
func NewApp(cfg *config.Settings, logger *Logger.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}
	if err := app.setupDependencies(); err != nil {
		return nil, err
	}
	return app, nil
}

func (a *App) setupDependencies() error {
	a.Capture = audio.NewCapture(a.Config.Audio, a.Logger)
	a.History = history.NewStore(a.Config.History.Path, a.Config.History.MaxTurns, a.Logger)

	engine, err := a.setupTranscription()
	if err != nil {
		return err
	}
	a.STT = engine

	llm, err := a.setupLLMEngine()
	if err != nil {
		return err
	}
	a.LLM = llm

	a.Coordinator = pipeline.NewCoordinator(a.Config, a.Capture, a.STT, a.LLM, a.History, a.Logger)
	a.ServerDeps = server.NewServerDependencies(a.Coordinator, a.Capture, a.Logger, a.Config)
	return nil
}

// setupTranscription builds the configured transcription backend.
func (a *App) setupTranscription() (stt.Engine, error) {
	cfg := a.Config.STT
	var engine stt.Engine
	switch cfg.Provider {
	case "streaming":
		engine = stt.NewStreamingEngine(cfg.StreamURL, a.Logger)
	case "chunked":
		engine = stt.NewChunkedEngine(cfg.ChunkURL, cfg.ChunkInterval, a.Config.Audio.SampleRate, a.Logger)
	case "local":
		engine = stt.NewLocalEngine(a.Config.Audio.PythonPath, cfg.ScriptPath, a.Logger)
	default:
		return nil, fmt.Errorf("unknown transcription provider: %s", cfg.Provider)
	}

	if err := engine.Configure(stt.Config{
		APIKey:   cfg.APIKey,
		Language: cfg.Language,
		Model:    cfg.Model,
		Device:   cfg.Device,
	}); err != nil {
		return nil, fmt.Errorf("failed to configure transcription: %w", err)
	}
	return engine, nil
}

// GetServerDependencies returns the server dependencies
func (a *App) GetServerDependencies() server.Dependencies {
	return a.ServerDeps
}
