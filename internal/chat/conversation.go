package chat

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/orbi-bot/orbi/internal/llm"
	"github.com/orbi-bot/orbi/internal/logging"
)

// Conversations holds per-conversation message histories, trimmed to
// a fixed window and persisted so a restart doesn't lose the thread.
type Conversations struct {
	mu       sync.Mutex
	path     string
	maxMsgs  int
	sessions map[string][]llm.Message
	log      *logging.Logger
}

// NewConversations loads conversation state from conversations.json
// under dataDir. Empty histories are dropped on load.
func NewConversations(dataDir string, maxMessages int) *Conversations {
	if maxMessages <= 0 {
		maxMessages = 20
	}
	c := &Conversations{
		path:     filepath.Join(dataDir, "conversations.json"),
		maxMsgs:  maxMessages,
		sessions: map[string][]llm.Message{},
		log:      logging.Component("chat"),
	}
	c.load()
	return c
}

func (c *Conversations) load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return
	}
	var stored map[string][]llm.Message
	if err := json.Unmarshal(data, &stored); err != nil {
		c.log.Warn("conversations file unreadable, starting fresh: %v", err)
		return
	}
	for id, msgs := range stored {
		if len(msgs) > 0 {
			c.sessions[id] = msgs
		}
	}
}

func (c *Conversations) persist() {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		c.log.Warn("could not save conversations: %v", err)
		return
	}
	data, err := json.MarshalIndent(c.sessions, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		c.log.Warn("could not save conversations: %v", err)
	}
}

// Append adds a message to a conversation and trims the history to
// the configured window.
func (c *Conversations) Append(conversationID string, msg llm.Message) []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	history := append(c.sessions[conversationID], msg)
	if len(history) > c.maxMsgs {
		history = history[len(history)-c.maxMsgs:]
	}
	c.sessions[conversationID] = history
	c.persist()

	out := make([]llm.Message, len(history))
	copy(out, history)
	return out
}

// History returns a copy of a conversation's messages.
func (c *Conversations) History(conversationID string) []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	history := c.sessions[conversationID]
	out := make([]llm.Message, len(history))
	copy(out, history)
	return out
}

// Clear drops a conversation.
func (c *Conversations) Clear(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, conversationID)
	c.persist()
}
