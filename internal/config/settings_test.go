package config

import (
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	var s Settings
	s.ApplyDefaults()

	if s.Server.Addr != ":8591" {
		t.Errorf("addr = %q", s.Server.Addr)
	}
	if s.Audio.SampleRate != 16000 {
		t.Errorf("sample rate = %d", s.Audio.SampleRate)
	}
	if s.STT.Provider != "chunked" {
		t.Errorf("stt provider = %q", s.STT.Provider)
	}
	if s.STT.ChunkInterval != 2*time.Second {
		t.Errorf("chunk interval = %v", s.STT.ChunkInterval)
	}
	if s.LLM.Temperature != 0.3 || s.LLM.TopP != 0.9 || s.LLM.TopK != 40 {
		t.Errorf("sampling defaults = %v/%v/%v", s.LLM.Temperature, s.LLM.TopP, s.LLM.TopK)
	}
	if s.LLM.RepeatPenalty != 1.15 {
		t.Errorf("repeat penalty = %v", s.LLM.RepeatPenalty)
	}
	if s.LLM.MaxTokens != 512 {
		t.Errorf("max tokens = %d", s.LLM.MaxTokens)
	}
	if s.LLM.Timeout != 60*time.Second {
		t.Errorf("timeout = %v", s.LLM.Timeout)
	}
	if s.History.MaxTurns != 50 {
		t.Errorf("max turns = %d", s.History.MaxTurns)
	}
	if s.History.Path != "session-history.json" {
		t.Errorf("history path = %q", s.History.Path)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	s := Settings{}
	s.Server.Addr = ":9000"
	s.LLM.Provider = "gemini"
	s.LLM.Temperature = 0.7
	s.History.MaxTurns = 10
	s.ApplyDefaults()

	if s.Server.Addr != ":9000" {
		t.Errorf("addr overwritten: %q", s.Server.Addr)
	}
	if s.LLM.Provider != "gemini" {
		t.Errorf("provider overwritten: %q", s.LLM.Provider)
	}
	if s.LLM.Temperature != 0.7 {
		t.Errorf("temperature overwritten: %v", s.LLM.Temperature)
	}
	if s.History.MaxTurns != 10 {
		t.Errorf("max turns overwritten: %d", s.History.MaxTurns)
	}
}
