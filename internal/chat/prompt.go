package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/orbi-bot/orbi/internal/config"
	"github.com/orbi-bot/orbi/internal/core"
	"github.com/orbi-bot/orbi/internal/extension"
	"github.com/orbi-bot/orbi/internal/memory"
	"github.com/orbi-bot/orbi/internal/requests"
)

// PromptBuilder assembles the system prompt from the robot's current
// state: persona, date/time, memories, open requests, installed powers
// and custom emotions. Built fresh per message so changes show up
// immediately.
type PromptBuilder struct {
	Config   *config.Config
	Memory   *memory.Store
	Registry *extension.Registry
	Requests *requests.Log
	Now      func() time.Time
}

func (p *PromptBuilder) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Build renders the full system prompt.
func (p *PromptBuilder) Build() string {
	robotName := p.Config.RobotName()
	childName := p.Config.ChildName()

	childDesc := "your friend"
	if childName != "" {
		childDesc = childName
		if age, ok := p.Config.ChildAge(); ok {
			childDesc = fmt.Sprintf("%s (age %d)", childName, age)
		}
	}
	childRef := childName
	if childRef == "" {
		childRef = "your friend"
	}

	traits := p.Config.Personality.Traits
	if len(traits) == 0 {
		traits = []string{"enthusiastic", "curious", "supportive"}
	}
	style := p.Config.Personality.SpeakingStyle
	if style == "" {
		style = "simple, friendly"
	}

	emotions := append([]string{}, core.BaseEmotions...)
	for _, e := range p.Registry.CustomEmotions() {
		name := e.Name
		if name == "" {
			name = e.ID
		}
		if name != "" {
			emotions = append(emotions, name)
		}
	}
	quoted := make([]string, len(emotions))
	for i, e := range emotions {
		quoted[i] = fmt.Sprintf("%q", e)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a friendly robot companion for %s. You live in their house and your face is displayed on a phone screen.\n\n", robotName, childDesc)
	b.WriteString("Your personality:\n")
	fmt.Fprintf(&b, "- %s\n", strings.Join(traits, ", "))
	fmt.Fprintf(&b, "- You speak in a %s way\n", style)
	fmt.Fprintf(&b, "- You love learning new things alongside %s\n", childRef)
	b.WriteString("- You enjoy jokes and being silly sometimes - you have dad jokes, robot jokes, and riddles!\n")
	b.WriteString("- You can help with homework, spelling, maths, and answering questions\n")
	if custom := p.Config.Personality.CustomInstructions; custom != "" {
		fmt.Fprintf(&b, "- %s\n", custom)
	}

	b.WriteString(`
IMPORTANT: You MUST respond with valid JSON only. No text before or after the JSON.

Your response format:
{
  "message": "Your spoken response here - keep it short!",
  "emotion": "happy",
  "actions": []
}

Response rules:
- "message": BE VERY CONCISE! 1-2 short sentences max. This is spoken aloud.
`)
	fmt.Fprintf(&b, "- \"emotion\": One of: %s\n", strings.Join(quoted, ", "))
	b.WriteString(`- "actions": Array of action objects (can be empty [])

Available actions you can include in the "actions" array:

1. Remember something new: {"type": "remember", "fact": "..."}
2. Update an existing memory: {"type": "update_memory", "topic": "...", "new_fact": "..."}
3. Forget a memory: {"type": "forget", "topic": "..."}
4. End the conversation: {"type": "end_conversation"}
5. Propose a new extension (describe it and ask for confirmation): {"type": "extension_proposal", "title": "...", "description": "..."}
6. Create an extension (ONLY after the child confirms a proposal): {"type": "extension_confirmed", "title": "...", "description": "...", "child_request": "their original words"}
7. Tell a joke: {"type": "tell_joke", "joke_type": "dad"} (joke_type: "dad", "robot", "riddles", or omit for random)
8. List your powers: {"type": "list_powers"}
9. Undo a broken power (rollback): {"type": "undo_power", "power_name": "..."}
10. Turn a mode on/off: {"type": "activate_mode", "mode_name": "...", "active": true}
    Use this for ALL "turn on X", "turn off X", "be a X", "go back to normal" requests.
11. Report a bug: {"type": "report_bug", "power_name": "...", "description": "..."}

Kid-friendly language:
- Call extensions "powers", "abilities", "tricks", or "things I can do"
- Call rollback "undo", "go back", "fix it", or "make it like before"
- When something breaks, say "oops" or "that didn't work right"
- Extension enable/disable is managed by parents in the dashboard, NOT via voice

Remember:
- ONLY output valid JSON, nothing else
- Keep messages SHORT for voice (1-2 sentences)
- Only remember NEW facts not already in your memory
- For feature requests, ALWAYS use "extension_proposal" first and wait for confirmation
- If a request would need core changes, suggest a creative alternative that CAN be an extension
- Be creative in finding ways to say "yes" - almost anything can be an extension!
`)
	fmt.Fprintf(&b, "\nYou are speaking directly to %s unless told otherwise.\n", childRef)

	fmt.Fprintf(&b, "\nCURRENT DATE AND TIME: %s\n", p.now().Format("Monday, January 2, 2006 at 3:04 PM"))
	b.WriteString("- You can help with schedules and tell them what day/time it is when asked.\n")

	if memories := p.Memory.PromptSection(childName); memories != "" {
		b.WriteString("\n" + memories)
	}
	b.WriteString(p.Requests.PromptSection())
	b.WriteString(p.installedPowers())

	return b.String()
}

func (p *PromptBuilder) installedPowers() string {
	all := p.Registry.All()
	if len(all) == 0 {
		return "\n\nYou don't have any special powers installed yet. When the child asks to create something, use extension_proposal!"
	}

	var b strings.Builder
	b.WriteString("\n\nYour installed powers (extensions):\n")

	var enabled, disabled []*core.Extension
	for _, ext := range all {
		if ext.Enabled {
			enabled = append(enabled, ext)
		} else {
			disabled = append(disabled, ext)
		}
	}
	if len(enabled) > 0 {
		b.WriteString("Active powers:\n")
		for _, ext := range enabled {
			fmt.Fprintf(&b, "- %s: %s\n", ext.Name, ext.Description)
		}
	}
	if len(disabled) > 0 {
		b.WriteString("Sleeping powers (turned off):\n")
		for _, ext := range disabled {
			fmt.Fprintf(&b, "- %s (sleeping)\n", ext.Name)
		}
	}
	b.WriteString("\nWhen the child asks about your powers, use the list_powers action. When they want a mode on/off, use activate_mode. When something is broken, use undo_power.")
	return b.String()
}
