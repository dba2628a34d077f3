package history

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eduardohotta/cortex-sub000/pkg/Logger"
)

// Turn is one recorded question/answer exchange. Immutable once stored.
type Turn struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
}

// Exchange is the trimmed view handed out for prompt construction.
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Store is the append-only turn log. Every mutation rewrites the whole file:
// with the cap at a few dozen entries, simplicity wins over efficiency.
type Store struct {
	path     string
	maxTurns int
	logger   *Logger.Logger

	mu    sync.Mutex
	turns []Turn
}

func NewStore(path string, maxTurns int, logger *Logger.Logger) *Store {
	if maxTurns <= 0 {
		maxTurns = 50
	}
	s := &Store{
		path:     path,
		maxTurns: maxTurns,
		logger:   logger.Named("history"),
	}
	s.load()
	return s
}

// load tolerates a missing or corrupt file: history degrades to empty
// rather than blocking startup.
func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warnf("failed to load history, starting empty: %v", err)
		}
		return
	}
	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		s.logger.Warnf("history file corrupt, starting empty: %v", err)
		return
	}
	s.turns = turns
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.turns, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

// RecordTurn appends a turn and evicts the oldest beyond the cap.
func (s *Store) RecordTurn(question, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, Turn{
		ID:        uuid.New(),
		Timestamp: time.Now(),
		Question:  question,
		Answer:    answer,
	})
	if len(s.turns) > s.maxTurns {
		s.turns = s.turns[len(s.turns)-s.maxTurns:]
	}
	return s.persistLocked()
}

// RecentHistory returns the last limit turns, newest last. A non-positive
// limit yields nothing.
func (s *Store) RecentHistory(limit int) []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit < 0 {
		limit = 0
	}
	start := len(s.turns) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Exchange, 0, len(s.turns)-start)
	for _, t := range s.turns[start:] {
		out = append(out, Exchange{Question: t.Question, Answer: t.Answer})
	}
	return out
}

// Len reports the stored turn count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Clear empties the log and persists the empty state.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	return s.persistLocked()
}
