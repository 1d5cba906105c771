// Package actions decodes and executes the structured actions the
// language model attaches to its replies.
package actions

import (
	"encoding/json"
)

// Action is a closed set of typed variants. Decode maps the wire
// form's "type" field to the matching variant; anything else becomes
// Unknown so a malformed reply degrades instead of failing.
type Action interface {
	ActionType() string
}

// Remember saves a new fact about the child.
type Remember struct {
	Fact string `json:"fact"`
}

// UpdateMemory replaces a remembered fact about a topic.
type UpdateMemory struct {
	Topic   string `json:"topic"`
	NewFact string `json:"new_fact"`
}

// Forget removes memories about a topic.
type Forget struct {
	Topic string `json:"topic"`
}

// EndConversation signals the exchange is over.
type EndConversation struct{}

// TellJoke picks a joke, optionally from a named pool.
type TellJoke struct {
	JokeType string `json:"joke_type,omitempty"`
}

// ExtensionProposal describes a new power for the child to confirm.
type ExtensionProposal struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ExtensionConfirmed files the request after the child said yes.
type ExtensionConfirmed struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	ChildRequest string `json:"child_request,omitempty"`
}

// ListPowers enumerates installed extensions.
type ListPowers struct{}

// TogglePower enables or disables an extension on disk. Meant for the
// admin surfaces; voice on/off goes through ActivateMode.
type TogglePower struct {
	PowerName string `json:"power_name"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

// UndoPower rolls an extension back to its latest snapshot.
type UndoPower struct {
	PowerName string `json:"power_name"`
}

// ActivateMode turns a mode extension on or off and calls its handler.
type ActivateMode struct {
	ModeName string `json:"mode_name"`
	Active   *bool  `json:"active,omitempty"`
}

// ReportBug files a bug report about an extension.
type ReportBug struct {
	PowerName   string `json:"power_name"`
	Description string `json:"description,omitempty"`
}

// Unknown preserves an action the decoder does not recognize.
type Unknown struct {
	Raw json.RawMessage
}

func (Remember) ActionType() string           { return "remember" }
func (UpdateMemory) ActionType() string       { return "update_memory" }
func (Forget) ActionType() string             { return "forget" }
func (EndConversation) ActionType() string    { return "end_conversation" }
func (TellJoke) ActionType() string           { return "tell_joke" }
func (ExtensionProposal) ActionType() string  { return "extension_proposal" }
func (ExtensionConfirmed) ActionType() string { return "extension_confirmed" }
func (ListPowers) ActionType() string         { return "list_powers" }
func (TogglePower) ActionType() string        { return "toggle_power" }
func (UndoPower) ActionType() string          { return "undo_power" }
func (ActivateMode) ActionType() string       { return "activate_mode" }
func (ReportBug) ActionType() string          { return "report_bug" }
func (Unknown) ActionType() string            { return "unknown" }

// Decode turns one wire-form action into its typed variant.
func Decode(raw json.RawMessage) Action {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return Unknown{Raw: raw}
	}

	decodeInto := func(v Action) Action {
		if err := json.Unmarshal(raw, v); err != nil {
			return Unknown{Raw: raw}
		}
		return v
	}

	switch head.Type {
	case "remember":
		return decodeInto(&Remember{})
	case "update_memory":
		return decodeInto(&UpdateMemory{})
	case "forget":
		return decodeInto(&Forget{})
	case "end_conversation":
		return EndConversation{}
	case "tell_joke":
		return decodeInto(&TellJoke{})
	case "extension_proposal":
		return decodeInto(&ExtensionProposal{})
	case "extension_confirmed":
		return decodeInto(&ExtensionConfirmed{})
	case "list_powers":
		return ListPowers{}
	case "toggle_power":
		return decodeInto(&TogglePower{})
	case "undo_power":
		return decodeInto(&UndoPower{})
	case "activate_mode":
		return decodeInto(&ActivateMode{})
	case "report_bug":
		return decodeInto(&ReportBug{})
	default:
		return Unknown{Raw: raw}
	}
}

// DecodeAll decodes a reply's actions array in order.
func DecodeAll(raws []json.RawMessage) []Action {
	out := make([]Action, 0, len(raws))
	for _, raw := range raws {
		out = append(out, Decode(raw))
	}
	return out
}
