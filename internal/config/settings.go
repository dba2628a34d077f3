package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type AudioConfig struct {
	PythonPath  string `mapstructure:"python_path"`
	GrabberPath string `mapstructure:"grabber_path"`
	SampleRate  int    `mapstructure:"sample_rate"`
	Device      string `mapstructure:"device"`
}

type STTConfig struct {
	Provider      string        `mapstructure:"provider"` // streaming | chunked | local
	APIKey        string        `mapstructure:"api_key"`
	Language      string        `mapstructure:"language"`
	Model         string        `mapstructure:"model"`
	Device        string        `mapstructure:"device"` // local backend: cpu | cuda | auto
	StreamURL     string        `mapstructure:"stream_url"`
	ChunkURL      string        `mapstructure:"chunk_url"`
	ChunkInterval time.Duration `mapstructure:"chunk_interval"`
	ScriptPath    string        `mapstructure:"script_path"`
}

type LLMConfig struct {
	Provider      string        `mapstructure:"provider"` // openai | groq | gemini | local
	Model         string        `mapstructure:"model"`
	APIKeys       []string      `mapstructure:"api_keys"`
	Temperature   float64       `mapstructure:"temperature"`
	TopP          float64       `mapstructure:"top_p"`
	TopK          int           `mapstructure:"top_k"`
	RepeatPenalty float64       `mapstructure:"repeat_penalty"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	Threads       int           `mapstructure:"threads"`
	GPULayers     int           `mapstructure:"gpu_layers"`
	BatchSize     int           `mapstructure:"batch_size"`
	OllamaURL     string        `mapstructure:"ollama_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// ProfileConfig is the assistant profile supplied by the settings
// collaborator: the pieces the coordinator concatenates into a system prompt.
type ProfileConfig struct {
	SystemPrompt          string `mapstructure:"system_prompt"`
	AssistantInstructions string `mapstructure:"assistant_instructions"`
	AdditionalContext     string `mapstructure:"additional_context"`
}

type HistoryConfig struct {
	Path     string `mapstructure:"path"`
	MaxTurns int    `mapstructure:"max_turns"`
}

type Settings struct {
	Server  ServerConfig  `mapstructure:"server"`
	Audio   AudioConfig   `mapstructure:"audio"`
	STT     STTConfig     `mapstructure:"stt"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Profile ProfileConfig `mapstructure:"profile"`
	History HistoryConfig `mapstructure:"history"`
	Env     string        `mapstructure:"env"`
	Debug   bool          `mapstructure:"debug"`
}

func Load() (*Settings, error) {
	viper.SetConfigName("config_" + genEnv())
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var settings Settings
	if err := viper.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	settings.ApplyDefaults()

	return &settings, nil
}

// ApplyDefaults fills in the values the config file may omit.
func (s *Settings) ApplyDefaults() {
	if s.Server.Addr == "" {
		s.Server.Addr = ":8591"
	}
	if s.Audio.PythonPath == "" {
		s.Audio.PythonPath = "python"
	}
	if s.Audio.SampleRate == 0 {
		s.Audio.SampleRate = 16000
	}
	if s.Audio.Device == "" {
		s.Audio.Device = "default"
	}
	if s.STT.Provider == "" {
		s.STT.Provider = "chunked"
	}
	if s.STT.Language == "" {
		s.STT.Language = "pt"
	}
	if s.STT.ChunkInterval == 0 {
		s.STT.ChunkInterval = 2 * time.Second
	}
	if s.LLM.Provider == "" {
		s.LLM.Provider = "openai"
	}
	if s.LLM.Temperature == 0 {
		s.LLM.Temperature = 0.3
	}
	if s.LLM.TopP == 0 {
		s.LLM.TopP = 0.9
	}
	if s.LLM.TopK == 0 {
		s.LLM.TopK = 40
	}
	if s.LLM.RepeatPenalty == 0 {
		s.LLM.RepeatPenalty = 1.15
	}
	if s.LLM.MaxTokens == 0 {
		s.LLM.MaxTokens = 512
	}
	if s.LLM.Threads == 0 {
		s.LLM.Threads = 4
	}
	if s.LLM.BatchSize == 0 {
		s.LLM.BatchSize = 512
	}
	if s.LLM.Timeout == 0 {
		s.LLM.Timeout = 60 * time.Second
	}
	if s.History.Path == "" {
		s.History.Path = "session-history.json"
	}
	if s.History.MaxTurns == 0 {
		s.History.MaxTurns = 50
	}
}

func genEnv() string {
	env := viper.GetString("ENV")
	if env == "" {
		return "dev"
	}
	return env
}
