package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/eduardohotta/cortex-sub000/pkg/Logger"
	"github.com/eduardohotta/cortex-sub000/pkg/audio"
	"github.com/eduardohotta/cortex-sub000/pkg/audio/ring"
)

const chunkRingSize = 512 * 1024 // ~16s of 16kHz mono s16le plus framing

// chunkResponse is the transcription endpoint's JSON reply.
type chunkResponse struct {
	Text string `json:"text"`
}

// ChunkedEngine accumulates frames and flushes them on a wall-clock interval
// as one self-contained WAV clip per blocking transcription call. The buffer
// is drained before each call regardless of outcome: a failed call loses that
// chunk's audio instead of growing a backlog.
type ChunkedEngine struct {
	endpoint   string
	interval   time.Duration
	httpClient *http.Client
	logger     *Logger.Logger
	emitter

	mu         sync.Mutex
	cfg        Config
	configured bool
	active     bool
	cancel     context.CancelFunc
	buffer     ring.Buffer
	sampleRate int
}

func NewChunkedEngine(endpoint string, interval time.Duration, sampleRate int, logger *Logger.Logger) *ChunkedEngine {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &ChunkedEngine{
		endpoint:   endpoint,
		interval:   interval,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.Named("stt.chunked"),
		emitter:    newEmitter("chunked"),
		buffer:     ring.New(chunkRingSize),
		sampleRate: sampleRate,
	}
}

func (c *ChunkedEngine) Events() <-chan Event { return c.ch }

func (c *ChunkedEngine) Configure(cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return fmt.Errorf("cannot reconfigure while active")
	}
	c.cfg = cfg
	c.configured = true
	return nil
}

func (c *ChunkedEngine) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.configured {
		return fmt.Errorf("chunked engine not configured")
	}
	if c.active {
		return nil
	}
	if c.cfg.APIKey == "" {
		return fmt.Errorf("chunked engine requires an api key")
	}

	flushCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.active = true

	go c.flushLoop(flushCtx)
	c.send(Event{Type: EventReady})
	return nil
}

func (c *ChunkedEngine) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.flush(ctx)
		}
	}
}

func (c *ChunkedEngine) flush(ctx context.Context) {
	c.mu.Lock()
	frames := c.buffer.DrainAll()
	cfg := c.cfg
	c.mu.Unlock()
	if len(frames) == 0 {
		return
	}

	var pcm []byte
	for _, f := range frames {
		pcm = append(pcm, f.Data...)
	}

	text, err := c.transcribe(ctx, pcm, cfg)
	if err != nil {
		// chunk is gone either way; at-most-once delivery by design
		c.error(fmt.Errorf("chunk transcription failed: %w", err))
		return
	}
	c.transcript(text, true)
}

func (c *ChunkedEngine) transcribe(ctx context.Context, pcm []byte, cfg Config) (string, error) {
	wavData := audio.BuildWAV(pcm, c.sampleRate)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}
	if cfg.Model != "" {
		_ = writer.WriteField("model", cfg.Model)
	}
	if cfg.Language != "" && cfg.Language != "auto" {
		_ = writer.WriteField("language", strings.SplitN(cfg.Language, "-", 2)[0])
	}
	_ = writer.WriteField("response_format", "json")
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription service returned status %d: %s", resp.StatusCode, string(responseBody))
	}

	var parsed chunkResponse
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		// some deployments answer with the bare transcript
		if text := strings.TrimSpace(string(responseBody)); text != "" {
			return text, nil
		}
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return parsed.Text, nil
}

// ProcessAudio queues the frame for the next flush; no-op while inactive.
func (c *ChunkedEngine) ProcessAudio(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	err := c.buffer.Enqueue(ring.Frame{
		Data:       frame,
		Timestamp:  time.Now(),
		SampleRate: int32(c.sampleRate),
		Channels:   1,
	})
	if err != nil {
		c.logger.Warnf("dropping frame: %v", err)
	}
}

func (c *ChunkedEngine) Stop() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	cancel := c.cancel
	c.cancel = nil
	c.buffer.DrainAll()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.send(Event{Type: EventStopped})
}
