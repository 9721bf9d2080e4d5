package uploads

import (
	"sync"
	"time"
)

// Level classifies a status banner.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Message is a self-expiring status banner keyed by the item it concerns.
type Message struct {
	Key       string    `json:"key"`
	Level     Level     `json:"level"`
	Text      string    `json:"text"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// MessageStore holds terminal result banners for a fixed display window.
// Expired entries are swept on every read, so expiry needs no timers and
// is testable with an injected clock.
type MessageStore struct {
	ttl     time.Duration
	now     func() time.Time
	entries map[string]Message
	mu      sync.Mutex
}

// NewMessageStore creates a store whose entries expire after ttl.
func NewMessageStore(ttl time.Duration) *MessageStore {
	return &MessageStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]Message),
	}
}

// Put records a banner for key, replacing any previous one.
func (s *MessageStore) Put(key string, level Level, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = Message{
		Key:       key,
		Level:     level,
		Text:      text,
		ExpiresAt: s.now().Add(s.ttl),
	}
}

// Get returns the live banner for key, if any.
func (s *MessageStore) Get(key string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	msg, ok := s.entries[key]
	return msg, ok
}

// All returns every live banner.
func (s *MessageStore) All() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	out := make([]Message, 0, len(s.entries))
	for _, msg := range s.entries {
		out = append(out, msg)
	}
	return out
}

// Delete drops the banner for key before its window ends.
func (s *MessageStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

func (s *MessageStore) sweepLocked() {
	now := s.now()
	for key, msg := range s.entries {
		if now.After(msg.ExpiresAt) {
			delete(s.entries, key)
		}
	}
}
