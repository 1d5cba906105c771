package chat

import (
	"encoding/json"
	"strings"
)

// Reply is the structured form the language model is asked to return.
type Reply struct {
	Message string            `json:"message"`
	Emotion string            `json:"emotion"`
	Actions []json.RawMessage `json:"actions"`
}

// ParseReply extracts the structured reply from model output. The
// model sometimes wraps its JSON in prose, so parsing looks at the
// span from the first '{' to the last '}'. When no valid JSON is
// found the whole text becomes the spoken message; the child hears
// something either way.
func ParseReply(text string) Reply {
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		var reply Reply
		if err := json.Unmarshal([]byte(text[start:end+1]), &reply); err == nil {
			if reply.Message == "" {
				reply.Message = "I'm not sure what to say!"
			}
			if reply.Emotion == "" {
				reply.Emotion = "happy"
			}
			if reply.Actions == nil {
				reply.Actions = []json.RawMessage{}
			}
			return reply
		}
	}

	message := text
	if message == "" {
		message = "I'm not sure what to say!"
	}
	return Reply{
		Message: message,
		Emotion: "thinking",
		Actions: []json.RawMessage{},
	}
}
