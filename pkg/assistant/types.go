package assistant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	USER      Role = "user"
	ASSISTANT Role = "assistant"
	SYSTEM    Role = "system"
)

// Options selects the provider and shapes generation. Thread/GPU/batch hints
// only apply to the local provider.
type Options struct {
	Provider      string
	Model         string
	APIKeys       []string
	Temperature   float64
	TopP          float64
	TopK          int
	RepeatPenalty float64
	MaxTokens     int
	Threads       int
	GPULayers     int
	BatchSize     int
	Timeout       time.Duration
}

// Request is one provider call. APIKey is filled in by the engine's
// credential rotation; the local provider ignores it.
type Request struct {
	ID           uuid.UUID
	Question     string
	SystemPrompt string
	APIKey       string
	Options      Options
}

// Provider streams an answer for a request, invoking onDelta for every text
// delta, and returns the full concatenated text.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request, onDelta func(string)) (string, error)
}

// ProviderError carries the HTTP status of a failed provider call so the
// engine can tell quota exhaustion from fatal errors.
type ProviderError struct {
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider call failed (status %d): %v", e.StatusCode, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

type EventType string

const (
	EventChunk         EventType = "chunk"
	EventComplete      EventType = "complete"
	EventError         EventType = "error"
	EventAborted       EventType = "aborted"
	EventKeyFailed     EventType = "key_failed"
	EventKeyRotated    EventType = "key_rotated"
	EventQuotaExceeded EventType = "quota_exceeded"
	EventModelStatus   EventType = "model_status"
)

type Event struct {
	Type      EventType
	RequestID uuid.UUID
	Chunk     string
	Text      string
	Err       error
	Keys      KeyStatus
	Status    string
}
