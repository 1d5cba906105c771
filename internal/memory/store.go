// Package memory persists the small facts the robot remembers about
// the child. Storage is a flat JSON list in memories.json.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/orbi-bot/orbi/internal/logging"
)

// Entry is one remembered fact.
type Entry struct {
	Fact      string    `json:"fact"`
	CreatedAt time.Time `json:"created_at"`
}

// Store holds memories with a hard cap. When full, the oldest entry
// is evicted to make room.
type Store struct {
	mu      sync.Mutex
	path    string
	max     int
	entries []Entry
	log     *logging.Logger
}

// NewStore creates a memory store backed by memories.json under dataDir.
func NewStore(dataDir string, maxMemories int) *Store {
	if maxMemories <= 0 {
		maxMemories = 50
	}
	s := &Store{
		path: filepath.Join(dataDir, "memories.json"),
		max:  maxMemories,
		log:  logging.Component("memory"),
	}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		s.log.Warn("memories file unreadable, starting fresh: %v", err)
		s.entries = nil
	}
}

func (s *Store) persist() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Save remembers a fact. Duplicate facts (case-insensitive) are
// silently skipped; the returned bool reports whether the fact was
// actually stored. When the store is full the oldest memory is
// evicted.
func (s *Store) Save(fact string) (bool, error) {
	fact = strings.TrimSpace(fact)
	if fact == "" {
		return false, fmt.Errorf("empty fact")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lower := strings.ToLower(fact)
	for _, e := range s.entries {
		if strings.ToLower(e.Fact) == lower {
			return false, nil
		}
	}

	if len(s.entries) >= s.max {
		s.entries = s.entries[1:]
	}
	s.entries = append(s.entries, Entry{Fact: fact, CreatedAt: time.Now()})

	if err := s.persist(); err != nil {
		return false, fmt.Errorf("save memory: %w", err)
	}
	s.log.Info("remembered: %s", fact)
	return true, nil
}

// Update replaces the first memory mentioning topic with newFact.
// If no memory matches, newFact is saved as a new memory.
func (s *Store) Update(topic, newFact string) error {
	topic = strings.ToLower(strings.TrimSpace(topic))
	newFact = strings.TrimSpace(newFact)
	if newFact == "" {
		return fmt.Errorf("empty fact")
	}

	s.mu.Lock()
	for i, e := range s.entries {
		if topic != "" && strings.Contains(strings.ToLower(e.Fact), topic) {
			s.entries[i] = Entry{Fact: newFact, CreatedAt: time.Now()}
			err := s.persist()
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	_, err := s.Save(newFact)
	return err
}

// Forget removes the first memory mentioning topic and returns the
// deleted fact. Later matches stay: forgetting one dinosaur fact must
// not wipe them all.
func (s *Store) Forget(topic string) (string, bool, error) {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == "" {
		return "", false, fmt.Errorf("empty topic")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if !strings.Contains(strings.ToLower(e.Fact), topic) {
			continue
		}
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
		if err := s.persist(); err != nil {
			return e.Fact, true, err
		}
		s.log.Info("forgot: %s", e.Fact)
		return e.Fact, true, nil
	}
	return "", false, nil
}

// Clear removes every memory.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return s.persist()
}

// All returns a copy of the stored memories, oldest first.
func (s *Store) All() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Count returns the number of stored memories.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stats summarizes the store for the admin surfaces.
func (s *Store) Stats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := map[string]interface{}{
		"count": len(s.entries),
		"max":   s.max,
	}
	if len(s.entries) > 0 {
		stats["oldest"] = s.entries[0].CreatedAt
		stats["newest"] = s.entries[len(s.entries)-1].CreatedAt
	}
	return stats
}

// PromptSection renders the memories as a block for the system prompt.
// Returns "" when there is nothing to include.
func (s *Store) PromptSection(childName string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return ""
	}

	who := childName
	if who == "" {
		who = "your friend"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Things you remember about %s:\n", who)
	for _, e := range s.entries {
		fmt.Fprintf(&b, "- %s\n", e.Fact)
	}
	return b.String()
}
