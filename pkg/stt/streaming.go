package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/eduardohotta/cortex-sub000/pkg/Logger"
)

// streamResult is the wire shape of the streaming provider's transcript
// messages (Deepgram-style).
type streamResult struct {
	IsFinal bool `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// StreamingEngine keeps one persistent duplex socket to the provider and
// forwards every frame the moment it arrives; partial and final results come
// back asynchronously on the same socket.
type StreamingEngine struct {
	baseURL string
	logger  *Logger.Logger
	emitter

	mu         sync.Mutex
	cfg        Config
	configured bool
	active     bool
	conn       *websocket.Conn
}

func NewStreamingEngine(baseURL string, logger *Logger.Logger) *StreamingEngine {
	return &StreamingEngine{
		baseURL: baseURL,
		logger:  logger.Named("stt.streaming"),
		emitter: newEmitter("streaming"),
	}
}

func (s *StreamingEngine) Events() <-chan Event { return s.ch }

func (s *StreamingEngine) Configure(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return fmt.Errorf("cannot reconfigure while active")
	}
	s.cfg = cfg
	s.configured = true
	return nil
}

func (s *StreamingEngine) Start(ctx context.Context) error {
	s.mu.Lock()
	if !s.configured {
		s.mu.Unlock()
		return fmt.Errorf("streaming engine not configured")
	}
	if s.active {
		s.mu.Unlock()
		return nil
	}
	cfg := s.cfg
	s.mu.Unlock()

	u, err := url.Parse(s.baseURL)
	if err != nil {
		return fmt.Errorf("invalid stream url: %w", err)
	}
	q := u.Query()
	if cfg.Model != "" {
		q.Set("model", cfg.Model)
	}
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	u.RawQuery = q.Encode()

	header := http.Header{"Authorization": {"Token " + cfg.APIKey}}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("stream dial failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("stream dial failed: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.active = true
	s.mu.Unlock()

	s.send(Event{Type: EventReady})
	go s.readLoop(conn)
	return nil
}

func (s *StreamingEngine) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			active := s.active && s.conn == conn
			s.mu.Unlock()
			if active {
				s.error(fmt.Errorf("stream read failed: %w", err))
			}
			return
		}

		var result streamResult
		if err := json.Unmarshal(message, &result); err != nil {
			// non-result control messages arrive on the same socket
			continue
		}
		if len(result.Channel.Alternatives) == 0 {
			continue
		}
		s.transcript(result.Channel.Alternatives[0].Transcript, result.IsFinal)
	}
}

// ProcessAudio forwards the frame immediately, no buffering. Write failures
// are reported but do not stop the engine.
func (s *StreamingEngine) ProcessAudio(frame []byte) {
	s.mu.Lock()
	conn := s.conn
	active := s.active
	s.mu.Unlock()
	if !active || conn == nil {
		return
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		s.error(fmt.Errorf("stream write failed: %w", err))
	}
}

func (s *StreamingEngine) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	s.send(Event{Type: EventStopped})
}
