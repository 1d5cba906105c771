// Package builtin registers the handlers that ship compiled into
// ORBI. Each extension still needs its directory with a manifest; the
// handler binds to the directory of the same id at discovery time.
package builtin

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/orbi-bot/orbi/internal/core"
	"github.com/orbi-bot/orbi/internal/extension"
)

func init() {
	extension.RegisterHandler("cat_mode", &catMode{})
}

// catMode gives the robot cat ears, whiskers, and an attitude.
type catMode struct {
	api *extension.API
}

var catGreetings = []string{
	"Meow! I'm a sleek cat now! 🐱",
	"Purrrr... I'm ready to be fabulous! ✨",
	"Meow meow! Time for some cat adventures! 🐾",
	"Purrfect! I'm feeling very feline today! 😸",
}

var catSounds = []string{
	"Meow!", "Mrow mrow!", "Purrrrr...", "Mew mew!", "Prrt prrt!", "Meooooow!",
}

var catActions = []string{
	"stretches gracefully",
	"flicks tail elegantly",
	"does a little cat yawn",
	"sits with perfect posture",
	"twitches whiskers curiously",
	"does a slow cat blink",
}

func (c *catMode) OnLoad(api *extension.API) error {
	c.api = api
	// Never boot already in cat mode.
	return api.SetData("active", false)
}

func (c *catMode) VoiceTriggers() []core.VoiceTrigger {
	return []core.VoiceTrigger{
		{Phrases: []string{"make a cat sound", "say meow"}, Action: "make_cat_sound"},
	}
}

func (c *catMode) HandleAction(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	switch action {
	case "activate_cat_mode":
		c.api.ShowFaceOverlay("cat_ears_whiskers")
		c.api.SetMode("cat_mode", true)
		c.api.PlaySound("meow_hello.wav")
		c.api.Speak(catGreetings[rand.Intn(len(catGreetings))])
		c.api.SetEmotion("happy")
		c.api.SetData("active", true)
		return map[string]interface{}{"success": true, "message": "Cat mode activated! Meow!"}, nil

	case "deactivate_cat_mode":
		c.api.HideFaceOverlay("cat_ears_whiskers")
		c.api.SetMode("cat_mode", false)
		c.api.PlaySound("meow_goodbye.wav")
		c.api.Speak("Mrow... I suppose I can be a regular robot again. Purr!")
		c.api.SetEmotion("happy")
		c.api.SetData("active", false)
		return map[string]interface{}{"success": true, "message": "Cat mode deactivated"}, nil

	case "make_cat_sound":
		active, _ := c.api.GetData("active", false).(bool)
		sound := catSounds[rand.Intn(len(catSounds))]
		if active {
			c.api.PlaySound("meow1.wav")
			c.api.Speak(sound)
			c.api.ShowMessage(fmt.Sprintf("🐱 *%s* %s", catActions[rand.Intn(len(catActions))], sound), "")
		} else {
			c.api.PlaySound("meow1.wav")
			c.api.Speak("Meow! (Activate cat mode for more feline fun!)")
		}
		return map[string]interface{}{"success": true, "message": "Meow!"}, nil
	}

	return map[string]interface{}{"success": false, "message": "Unknown action"}, nil
}
