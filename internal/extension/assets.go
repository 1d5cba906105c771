package extension

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/orbi-bot/orbi/internal/core"
)

// Asset files are optional and best-effort: a malformed file
// contributes nothing rather than failing the load.

func loadEmotions(dir string) []core.Emotion {
	var emotions []core.Emotion

	if data, err := os.ReadFile(filepath.Join(dir, "emotion.json")); err == nil {
		var e core.Emotion
		if json.Unmarshal(data, &e) == nil {
			emotions = append(emotions, e)
		}
	}

	if data, err := os.ReadFile(filepath.Join(dir, "emotions.json")); err == nil {
		var list []core.Emotion
		if json.Unmarshal(data, &list) == nil {
			emotions = append(emotions, list...)
		} else {
			var wrapped struct {
				Emotions []core.Emotion `json:"emotions"`
			}
			if json.Unmarshal(data, &wrapped) == nil {
				emotions = append(emotions, wrapped.Emotions...)
			}
		}
	}

	return emotions
}

func loadJokes(dir string) []string {
	data, err := os.ReadFile(filepath.Join(dir, "jokes.json"))
	if err != nil {
		return nil
	}

	var list []string
	if json.Unmarshal(data, &list) == nil {
		return list
	}
	var wrapped struct {
		Jokes []string `json:"jokes"`
	}
	if json.Unmarshal(data, &wrapped) == nil {
		return wrapped.Jokes
	}
	return nil
}

func loadOverlays(dir string) []core.FaceOverlay {
	var overlays []core.FaceOverlay

	if data, err := os.ReadFile(filepath.Join(dir, "overlay.svg")); err == nil {
		overlays = append(overlays, core.FaceOverlay{
			Type:    "svg",
			Content: string(data),
		})
	}

	if data, err := os.ReadFile(filepath.Join(dir, "overlays.json")); err == nil {
		var list []core.FaceOverlay
		if json.Unmarshal(data, &list) == nil {
			overlays = append(overlays, list...)
		}
	}

	return overlays
}

// HasSounds reports whether an extension ships a sounds directory.
func HasSounds(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, "sounds"))
	return err == nil && info.IsDir()
}
