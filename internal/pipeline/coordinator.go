package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/eduardohotta/cortex-sub000/internal/config"
	"github.com/eduardohotta/cortex-sub000/internal/constants/prompts"
	"github.com/eduardohotta/cortex-sub000/internal/history"
	"github.com/eduardohotta/cortex-sub000/pkg/Logger"
	"github.com/eduardohotta/cortex-sub000/pkg/assistant"
	"github.com/eduardohotta/cortex-sub000/pkg/audio"
	"github.com/eduardohotta/cortex-sub000/pkg/stt"
)

// historyWindow is how many past turns go into the prompt.
const historyWindow = 3

// minAnswerLen guards the turn log: anything this short is an aborted or
// degenerate answer and is not worth remembering.
const minAnswerLen = 5

var ErrEmptyTranscript = errors.New("no text to ask")

type EventType string

const (
	EventVolume        EventType = "volume"
	EventPartial       EventType = "partial_transcript"
	EventFinal         EventType = "final_transcript"
	EventAnswerChunk   EventType = "answer_chunk"
	EventAnswerDone    EventType = "answer_done"
	EventAborted       EventType = "aborted"
	EventError         EventType = "error"
	EventKeys          EventType = "keys"
	EventCaptureEnded  EventType = "capture_ended"
	EventEngineStatus  EventType = "engine_status"
	EventModelProgress EventType = "model_progress"
)

// Event is the coordinator's outward stream, the one surface the command
// layer subscribes to.
type Event struct {
	Type    EventType            `json:"type"`
	Volume  int                  `json:"volume,omitempty"`
	Text    string               `json:"text,omitempty"`
	Error   string               `json:"error,omitempty"`
	Keys    *assistant.KeyStatus `json:"keys,omitempty"`
	Percent int                  `json:"percent,omitempty"`
}

// Coordinator owns the listen → transcribe → converse loop. The Run
// goroutine is the only writer of the transcript buffer from the audio side;
// Ask drains it under the same lock.
type Coordinator struct {
	settings *config.Settings
	logger   *Logger.Logger
	capture  *audio.Capture
	engine   stt.Engine
	llm      *assistant.Engine
	store    *history.Store

	events chan Event

	mu     sync.Mutex
	buffer strings.Builder
}

func NewCoordinator(
	settings *config.Settings,
	capture *audio.Capture,
	engine stt.Engine,
	llm *assistant.Engine,
	store *history.Store,
	logger *Logger.Logger,
) *Coordinator {
	return &Coordinator{
		settings: settings,
		logger:   logger.Named("pipeline"),
		capture:  capture,
		engine:   engine,
		llm:      llm,
		store:    store,
		events:   make(chan Event, 128),
	}
}

func (c *Coordinator) Events() <-chan Event { return c.events }

// Run pumps frames into transcription and fans events outward until ctx is
// cancelled. Call it once, in its own goroutine.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.capture.Frames():
			c.engine.ProcessAudio(frame)
		case level := <-c.capture.Levels():
			c.emit(Event{Type: EventVolume, Volume: level})
		case <-c.capture.Stopped():
			c.emit(Event{Type: EventCaptureEnded})
		case ev := <-c.engine.Events():
			c.handleTranscription(ev)
		case ev := <-c.llm.Events():
			c.handleGeneration(ev)
		}
	}
}

func (c *Coordinator) handleTranscription(ev stt.Event) {
	switch ev.Type {
	case stt.EventTranscript:
		if ev.Transcript.IsFinal {
			c.appendTranscript(ev.Transcript.Text)
			// the local bridge finalizes on chunk boundaries, mid-clause;
			// demote incomplete fragments to partial display
			if ev.Transcript.Provider == "faster-whisper" && !stt.AnalyzeFragment(ev.Transcript.Text).Complete {
				c.emit(Event{Type: EventPartial, Text: ev.Transcript.Text})
			} else {
				c.emit(Event{Type: EventFinal, Text: ev.Transcript.Text})
			}
		} else {
			c.emit(Event{Type: EventPartial, Text: ev.Transcript.Text})
		}
	case stt.EventError:
		c.logger.Warnf("transcription error: %v", ev.Err)
		c.emit(Event{Type: EventError, Error: ev.Err.Error()})
	case stt.EventReady:
		c.emit(Event{Type: EventEngineStatus, Text: "ready"})
	case stt.EventFallback:
		c.emit(Event{Type: EventEngineStatus, Text: ev.Message})
	case stt.EventDownloadProgress:
		c.emit(Event{Type: EventModelProgress, Percent: ev.Progress.Percent, Text: ev.Progress.Message})
	case stt.EventStopped:
		c.emit(Event{Type: EventEngineStatus, Text: "stopped"})
	}
}

func (c *Coordinator) handleGeneration(ev assistant.Event) {
	switch ev.Type {
	case assistant.EventChunk:
		c.emit(Event{Type: EventAnswerChunk, Text: ev.Chunk})
	case assistant.EventComplete:
		c.emit(Event{Type: EventAnswerDone, Text: ev.Text})
	case assistant.EventAborted:
		c.emit(Event{Type: EventAborted})
	case assistant.EventError:
		c.emit(Event{Type: EventError, Error: ev.Err.Error()})
	case assistant.EventModelStatus:
		c.emit(Event{Type: EventEngineStatus, Text: ev.Status})
	case assistant.EventKeyFailed, assistant.EventKeyRotated, assistant.EventQuotaExceeded:
		keys := ev.Keys
		c.emit(Event{Type: EventKeys, Text: string(ev.Type), Keys: &keys})
	}
}

// StartCapture begins a listening session on the configured device.
func (c *Coordinator) StartCapture(ctx context.Context) error {
	if err := c.engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start transcription: %w", err)
	}
	return c.capture.Start(ctx, c.settings.Audio.Device)
}

// StopCapture ends the listening session. The transcript buffer survives so
// a follow-up Ask still sees what was heard.
func (c *Coordinator) StopCapture() {
	c.capture.Stop()
	c.engine.Stop()
}

func (c *Coordinator) appendTranscript(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.mu.Lock()
	if c.buffer.Len() > 0 {
		c.buffer.WriteByte(' ')
	}
	c.buffer.WriteString(text)
	c.mu.Unlock()
}

// Transcript returns the accumulated final transcript text.
func (c *Coordinator) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.String()
}

// TokenEstimate approximates the buffered prompt cost at four characters per
// token, rounded up.
func (c *Coordinator) TokenEstimate() int {
	c.mu.Lock()
	n := c.buffer.Len()
	c.mu.Unlock()
	return (n + 3) / 4
}

// ClearTranscript drops the buffered text without generating.
func (c *Coordinator) ClearTranscript() {
	c.mu.Lock()
	c.buffer.Reset()
	c.mu.Unlock()
}

// Ask sends the buffered transcript (or the override question when given) to
// the generation engine. An empty transcript fails before any provider call.
// Substantial answers are recorded and clear the buffer; aborted or
// degenerate ones leave it intact for a retry.
func (c *Coordinator) Ask(ctx context.Context, override string) (string, error) {
	question := strings.TrimSpace(override)
	if question == "" {
		question = strings.TrimSpace(c.Transcript())
	}
	if question == "" {
		return "", ErrEmptyTranscript
	}

	answer, err := c.llm.Generate(ctx, question, c.systemPrompt())
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}

	if len(strings.TrimSpace(answer)) > minAnswerLen {
		if rerr := c.store.RecordTurn(question, answer); rerr != nil {
			c.logger.Warnf("failed to record turn: %v", rerr)
		}
		c.ClearTranscript()
	}
	return answer, nil
}

// AskDefinition looks up a single term through the side channel. It never
// touches the transcript buffer or the turn log.
func (c *Coordinator) AskDefinition(ctx context.Context, term string) (string, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return "", errors.New("no term to define")
	}
	prompt := strings.TrimSpace(prompts.DEFINITION_PROMPT.GetCurrentPrompt().Content)
	if recent := c.store.RecentHistory(1); len(recent) > 0 {
		prompt += "\n\nThe term came up around this question: " + recent[0].Question
	}
	answer, err := c.llm.GenerateDefinition(ctx, term, prompt)
	if err != nil {
		return "", fmt.Errorf("definition failed: %w", err)
	}
	return answer, nil
}

// Abort cancels the in-flight generation.
func (c *Coordinator) Abort() {
	c.llm.Abort()
}

// History exposes the turn log for the command layer.
func (c *Coordinator) History() *history.Store { return c.store }

// KeyStatus reports the credential rotation state.
func (c *Coordinator) KeyStatus() assistant.KeyStatus { return c.llm.KeyStatus() }

// systemPrompt joins the profile pieces, then the recent exchange window so
// the model keeps short-term context.
func (c *Coordinator) systemPrompt() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{
		c.settings.Profile.SystemPrompt,
		c.settings.Profile.AssistantInstructions,
		c.settings.Profile.AdditionalContext,
	} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, strings.TrimSpace(prompts.DEFAULT_PROMPT.GetCurrentPrompt().Content))
	}
	if block := c.historyBlock(); block != "" {
		parts = append(parts, block)
	}
	return strings.Join(parts, "\n\n")
}

func (c *Coordinator) historyBlock() string {
	exchanges := c.store.RecentHistory(historyWindow)
	if len(exchanges) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for _, ex := range exchanges {
		fmt.Fprintf(&b, "Human: %s\nAI: %s\n", ex.Question, ex.Answer)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Coordinator) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		// slow consumer, drop rather than stall the pipeline
	}
}
