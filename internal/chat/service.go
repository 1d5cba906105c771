package chat

import (
	"context"
	"encoding/json"

	"github.com/orbi-bot/orbi/internal/actions"
	"github.com/orbi-bot/orbi/internal/llm"
	"github.com/orbi-bot/orbi/internal/logging"
)

// Claude is what the service needs from the language model client.
type Claude interface {
	ChatWithHistory(ctx context.Context, system string, messages []llm.Message) (string, error)
	IsConfigured() bool
}

// Service runs the conversational loop: history, prompt, model call,
// parse, action dispatch.
type Service struct {
	claude        Claude
	conversations *Conversations
	prompt        *PromptBuilder
	dispatcher    *actions.Dispatcher
	log           *logging.Logger
}

// NewService wires the chat loop.
func NewService(claude Claude, convs *Conversations, prompt *PromptBuilder, dispatcher *actions.Dispatcher) *Service {
	return &Service{
		claude:        claude,
		conversations: convs,
		prompt:        prompt,
		dispatcher:    dispatcher,
		log:           logging.Component("chat"),
	}
}

// Response is what the voice layer and UI get back for one message.
type Response struct {
	Response        string            `json:"response"`
	Emotion         string            `json:"emotion"`
	ConversationID  string            `json:"conversation_id"`
	Actions         []json.RawMessage `json:"actions"`
	EndConversation bool              `json:"end_conversation"`
	Results         *actions.Results  `json:"results,omitempty"`
}

// Failures stay in character; the child always hears something kind.
const (
	msgNoAPIKey = "I need my brain connected! Ask a grown-up to add the Claude API key in settings."
	msgConfused = "My brain got confused. Can you try again?"
)

// Handle processes one chat message end to end.
func (s *Service) Handle(ctx context.Context, conversationID, message string) Response {
	if conversationID == "" {
		conversationID = "default"
	}

	if !s.claude.IsConfigured() {
		return Response{
			Response:       msgNoAPIKey,
			Emotion:        "sad",
			ConversationID: conversationID,
			Actions:        []json.RawMessage{},
		}
	}

	history := s.conversations.Append(conversationID, llm.Message{Role: "user", Content: message})

	raw, err := s.claude.ChatWithHistory(ctx, s.prompt.Build(), history)
	if err != nil {
		s.log.Error("chat error: %v", err)
		return Response{
			Response:       msgConfused,
			Emotion:        "thinking",
			ConversationID: conversationID,
			Actions:        []json.RawMessage{},
		}
	}

	reply := ParseReply(raw)
	results := s.dispatcher.Dispatch(ctx, actions.DecodeAll(reply.Actions), message)

	// Proposals are echoed into history so a later "yes" still has
	// the context even after a restart.
	stored := reply.Message
	if len(results.ExtensionProposals) > 0 {
		p := results.ExtensionProposals[0]
		stored += "\n\n[I proposed creating: \"" + p["title"].(string) + "\" - " + p["description"].(string) + "]"
	}
	s.conversations.Append(conversationID, llm.Message{Role: "assistant", Content: stored})

	s.log.Info("chat: %q -> %q [%s]", message, reply.Message, reply.Emotion)

	return Response{
		Response:        reply.Message,
		Emotion:         reply.Emotion,
		ConversationID:  conversationID,
		Actions:         reply.Actions,
		EndConversation: results.EndConversation,
		Results:         results,
	}
}

// Ready reports whether the chat loop can answer.
func (s *Service) Ready() bool {
	return s.claude.IsConfigured()
}

// ClearConversation drops one conversation's history.
func (s *Service) ClearConversation(conversationID string) {
	s.conversations.Clear(conversationID)
}
