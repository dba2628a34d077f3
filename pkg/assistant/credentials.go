package assistant

import (
	"strings"
	"sync"
)

// KeyStatus is the externally visible shape of the credential set.
type KeyStatus struct {
	Index     int    `json:"index"`
	Total     int    `json:"total"`
	Failed    int    `json:"failed"`
	Available int    `json:"available"`
	Masked    string `json:"masked"`
}

// KeySet is an ordered list of API keys with in-memory failure flags and a
// rotating cursor. Flags reset on process restart or full exhaustion — a
// quota window passing is the common reason a key comes back.
type KeySet struct {
	mu     sync.Mutex
	keys   []string
	failed map[string]struct{}
	cursor int
}

func NewKeySet(keys []string) *KeySet {
	filtered := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.TrimSpace(k) != "" {
			filtered = append(filtered, strings.TrimSpace(k))
		}
	}
	return &KeySet{keys: filtered, failed: make(map[string]struct{})}
}

// Current returns a non-failed key, advancing the cursor past failed ones.
// When every key is failed, all flags are cleared atomically and the cursor
// key is returned — exhaustion earns one more global round, not an instant
// failure. ok is false only when no keys are configured.
func (s *KeySet) Current() (key string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.keys) == 0 {
		return "", false
	}

	for range s.keys {
		k := s.keys[s.cursor]
		if _, bad := s.failed[k]; !bad {
			return k, true
		}
		s.cursor = (s.cursor + 1) % len(s.keys)
	}

	// full exhaustion: reset and retry
	s.failed = make(map[string]struct{})
	return s.keys[s.cursor], true
}

// MarkFailed flags a key as quota-exhausted.
func (s *KeySet) MarkFailed(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[key] = struct{}{}
}

// Rotate advances the cursor to the next key.
func (s *KeySet) Rotate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.keys) == 0 {
		return
	}
	s.cursor = (s.cursor + 1) % len(s.keys)
}

func (s *KeySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

func (s *KeySet) Status() KeyStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := KeyStatus{
		Index:     s.cursor,
		Total:     len(s.keys),
		Failed:    len(s.failed),
		Available: len(s.keys) - len(s.failed),
	}
	if len(s.keys) > 0 {
		st.Masked = MaskKey(s.keys[s.cursor])
	}
	return st
}

// MaskKey keeps only a recognizable prefix and suffix for logs and events.
func MaskKey(key string) string {
	if len(key) <= 11 {
		return strings.Repeat("*", len(key))
	}
	return key[:7] + "..." + key[len(key)-4:]
}
