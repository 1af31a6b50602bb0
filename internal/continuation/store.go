// Package continuation keeps per-client call history so an interrupted
// interview can be resumed on the next call.
package continuation

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/codebuildervaibhav/content-pipeline/internal/vapi"
)

// CallRecord is one finished call
type CallRecord struct {
	CallID     string         `json:"callId"`
	Timestamp  time.Time      `json:"timestamp"`
	Transcript []vapi.Message `json:"transcript"`
	Analysis   *vapi.Analysis `json:"analysis,omitempty"`
}

// Conversation is the call history of one client
type Conversation struct {
	FullName    string       `json:"fullName"`
	CallHistory []CallRecord `json:"callHistory"`
	LastUpdated time.Time    `json:"lastUpdated"`
	IsComplete  bool         `json:"isComplete"`
}

// Store is a key-value store of conversations keyed by normalized email.
// It is loaded from a JSON file at startup and written back by Flush.
type Store struct {
	path string
	now  func() time.Time

	mu            sync.RWMutex
	conversations map[string]*Conversation
	dirty         bool
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewStore creates an empty store that flushes to path. An empty path keeps
// the store in memory only.
func NewStore(path string) *Store {
	return &Store{
		path:          path,
		now:           time.Now,
		conversations: make(map[string]*Conversation),
	}
}

// Load reads the backing file. A missing file leaves the store empty.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read conversation store: %w", err)
	}

	loaded := make(map[string]*Conversation)
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parse conversation store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = make(map[string]*Conversation, len(loaded))
	for email, c := range loaded {
		s.conversations[NormalizeEmail(email)] = c
	}
	s.dirty = false
	return nil
}

// Flush writes the store to its backing file if anything changed
func (s *Store) Flush() error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	data, err := json.MarshalIndent(s.conversations, "", "  ")
	if err != nil {
		return fmt.Errorf("encode conversation store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write conversation store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace conversation store: %w", err)
	}
	s.dirty = false
	return nil
}

// Append adds a call to the client's history and records whether the
// interview is complete
func (s *Store) Append(email, fullName string, call CallRecord, complete bool) {
	key := NormalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[key]
	if !ok {
		conv = &Conversation{}
		s.conversations[key] = conv
	}
	conv.FullName = fullName
	conv.CallHistory = append(conv.CallHistory, call)
	conv.LastUpdated = s.now().UTC()
	conv.IsComplete = complete
	s.dirty = true
}

// Get returns a copy of the client's conversation
func (s *Store) Get(email string) (*Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[NormalizeEmail(email)]
	if !ok {
		return nil, false
	}
	cp := *conv
	cp.CallHistory = append([]CallRecord(nil), conv.CallHistory...)
	return &cp, true
}

// Len is the number of clients with stored conversations
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}
