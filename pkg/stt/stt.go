package stt

import (
	"context"
	"strings"
)

// Config is the backend-independent transcription configuration. Configure
// must be called before Start.
type Config struct {
	APIKey   string
	Language string
	Model    string
	Device   string // local backend compute device: cpu | cuda | auto
}

type EventType string

const (
	EventTranscript       EventType = "transcript"
	EventError            EventType = "error"
	EventReady            EventType = "ready"
	EventDownloadProgress EventType = "download_progress"
	EventFallback         EventType = "fallback"
	EventStopped          EventType = "stopped"
)

// Transcript is one recognized fragment. Partial fragments are superseded by
// the next event of the same utterance; finals feed the transcript buffer.
type Transcript struct {
	Text     string
	IsFinal  bool
	Provider string
}

type Progress struct {
	Percent int // -1 when the backend reports activity without a percentage
	Message string
}

type Event struct {
	Type       EventType
	Transcript Transcript
	Err        error
	Progress   Progress
	Message    string
}

// Engine converts PCM frames into transcript events. Start and Stop are
// idempotent; ProcessAudio is a no-op while inactive. Call failures emit
// EventError and leave the engine running: streaming failures are expected
// to be transient.
type Engine interface {
	Configure(cfg Config) error
	Start(ctx context.Context) error
	Stop()
	ProcessAudio(frame []byte)
	Events() <-chan Event
}

// emitter is the shared event sink. Empty or whitespace-only transcripts are
// heartbeats, never surfaced.
type emitter struct {
	ch       chan Event
	provider string
}

func newEmitter(provider string) emitter {
	return emitter{ch: make(chan Event, 32), provider: provider}
}

func (e *emitter) transcript(text string, isFinal bool) {
	if strings.TrimSpace(text) == "" {
		return
	}
	e.send(Event{Type: EventTranscript, Transcript: Transcript{
		Text:     text,
		IsFinal:  isFinal,
		Provider: e.provider,
	}})
}

func (e *emitter) error(err error) {
	e.send(Event{Type: EventError, Err: err})
}

func (e *emitter) send(ev Event) {
	select {
	case e.ch <- ev:
	default:
		// consumer stalled, drop rather than block a read loop
	}
}
