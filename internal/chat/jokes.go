package chat

import (
	"math/rand"
)

// Built-in joke pools. Extensions contribute more through the registry.
var jokePools = map[string][]string{
	"dad": {
		"Why don't scientists trust atoms? Because they make up everything!",
		"Why don't eggs tell jokes? They'd crack each other up!",
		"What do you call a fake noodle? An impasta!",
		"How do you organize a space party? You planet!",
		"What's the best time to go to the dentist? Tooth-hurty!",
		"Why did the math book look so sad? Because it was full of problems!",
		"What do you call a bear with no teeth? A gummy bear!",
		"Why don't oysters donate? Because they are shellfish!",
		"How does a penguin build its house? Igloos it together!",
	},
	"robot": {
		"Why did the robot go on a diet? It had a byte problem!",
		"What do you call a robot who takes the long way around? R2-Detour!",
		"Why was the robot tired? It had a hard drive!",
		"What's a robot's favorite type of music? Heavy metal!",
		"Why don't robots ever panic? They have good backup systems!",
		"What do you call a robot that loves to dance? A disco-very machine!",
		"Why did the robot break up with the computer? There was no connection!",
		"What's a robot's favorite snack? Computer chips!",
		"Why did the robot go to therapy? It had too many bugs!",
	},
	"riddles": {
		"What has keys but no locks, space but no room, and you can enter but not go inside? A keyboard!",
		"What gets wetter the more it dries? A towel!",
		"What has hands but cannot clap? A clock!",
		"What can travel around the world while staying in a corner? A stamp!",
		"What has one eye but cannot see? A needle!",
		"What goes up but never comes down? Your age!",
		"What has a neck but no head? A bottle!",
		"What can you catch but not throw? A cold!",
		"What has teeth but cannot bite? A zipper!",
	},
}

// ExtensionJokes supplies jokes contributed by enabled extensions.
type ExtensionJokes interface {
	CustomJokes() []string
}

// JokeBox picks jokes from the built-in pools plus extension jokes.
type JokeBox struct {
	extensions ExtensionJokes
}

// NewJokeBox creates a joke box. extensions may be nil.
func NewJokeBox(extensions ExtensionJokes) *JokeBox {
	return &JokeBox{extensions: extensions}
}

// RandomJoke returns a joke from the named pool, or any pool plus
// extension jokes when jokeType is empty or unknown.
func (j *JokeBox) RandomJoke(jokeType string) string {
	if pool, ok := jokePools[jokeType]; ok {
		return pool[rand.Intn(len(pool))]
	}

	var all []string
	for _, pool := range jokePools {
		all = append(all, pool...)
	}
	if j.extensions != nil {
		all = append(all, j.extensions.CustomJokes()...)
	}
	if len(all) == 0 {
		return "I'm still learning jokes!"
	}
	return all[rand.Intn(len(all))]
}
