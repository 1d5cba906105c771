package extension

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/orbi-bot/orbi/internal/config"
	"github.com/orbi-bot/orbi/internal/memory"
)

// Broadcaster delivers messages to connected face-UI clients.
type Broadcaster interface {
	Broadcast(message map[string]interface{})
}

// Asker answers one-off questions for extension logic.
type Asker interface {
	Ask(ctx context.Context, prompt, extra string) (string, error)
}

// APIDeps are the shared services each extension API wraps.
type APIDeps struct {
	Config      *config.Config
	Memory      *memory.Store
	Broadcaster Broadcaster
	Asker       Asker
}

// API is the capability surface a handler drives the robot through.
// Every instance is scoped to one extension: broadcasts are tagged
// with its id and all file operations stay inside its directory.
type API struct {
	extensionID string
	dir         string
	deps        APIDeps
	stopped     atomic.Bool
}

// NewAPI builds the capability API for one extension.
func NewAPI(extensionID, dir string, deps APIDeps) *API {
	return &API{extensionID: extensionID, dir: dir, deps: deps}
}

// ExtensionID returns the owning extension's id.
func (a *API) ExtensionID() string {
	return a.extensionID
}

// Broadcast sends a message to all connected clients, tagged with the
// extension's id. Best effort; a missing hub drops the message.
func (a *API) Broadcast(message map[string]interface{}) {
	if a.deps.Broadcaster == nil {
		return
	}
	message["_extension"] = a.extensionID
	a.deps.Broadcaster.Broadcast(message)
}

// Speak makes the robot say something out loud.
func (a *API) Speak(text string) {
	a.Broadcast(map[string]interface{}{
		"type":   "speak",
		"text":   text,
		"source": a.extensionID,
	})
}

// ShowMessage displays text in the chat UI.
func (a *API) ShowMessage(text, messageType string) {
	if messageType == "" {
		messageType = "extension"
	}
	a.Broadcast(map[string]interface{}{
		"type":         "message",
		"text":         text,
		"message_type": messageType,
		"source":       a.extensionID,
	})
}

// SetEmotion changes the robot's facial expression.
func (a *API) SetEmotion(emotion string) {
	a.Broadcast(map[string]interface{}{
		"type":    "emotion",
		"emotion": emotion,
	})
}

// ShowFaceOverlay layers an overlay (ears, hats) over the face.
func (a *API) ShowFaceOverlay(overlayID string) {
	a.Broadcast(map[string]interface{}{
		"type":         "show_overlay",
		"overlay_id":   overlayID,
		"extension_id": a.extensionID,
	})
}

// HideFaceOverlay removes an overlay; empty id removes all of this
// extension's overlays.
func (a *API) HideFaceOverlay(overlayID string) {
	a.Broadcast(map[string]interface{}{
		"type":         "hide_overlay",
		"overlay_id":   overlayID,
		"extension_id": a.extensionID,
	})
}

// SetMode turns a named mode on or off.
func (a *API) SetMode(mode string, enabled bool) {
	a.Broadcast(map[string]interface{}{
		"type":         "set_mode",
		"mode":         mode,
		"enabled":      enabled,
		"extension_id": a.extensionID,
	})
}

// ShowPanel displays a fullscreen UI panel.
func (a *API) ShowPanel(html, panelID, panelType string) {
	if panelID == "" {
		panelID = a.extensionID + "_panel"
	}
	if panelType == "" {
		panelType = "feature"
	}
	a.Broadcast(map[string]interface{}{
		"type":         "show_panel",
		"html":         html,
		"panel_id":     panelID,
		"extension_id": a.extensionID,
		"panel_type":   panelType,
	})
}

// HidePanel closes a panel.
func (a *API) HidePanel(panelID string) {
	if panelID == "" {
		panelID = a.extensionID + "_panel"
	}
	a.Broadcast(map[string]interface{}{
		"type":         "hide_panel",
		"panel_id":     panelID,
		"extension_id": a.extensionID,
	})
}

// UpdatePanel pushes content updates into a displayed panel.
func (a *API) UpdatePanel(updates map[string]interface{}, panelID string) {
	if panelID == "" {
		panelID = a.extensionID + "_panel"
	}
	a.Broadcast(map[string]interface{}{
		"type":     "update_panel",
		"updates":  updates,
		"panel_id": panelID,
	})
}

// PlaySound plays a file from the extension's sounds directory.
// Missing files are silently ignored.
func (a *API) PlaySound(soundFile string) {
	path := filepath.Join(a.dir, "sounds", soundFile)
	if _, err := os.Stat(path); err != nil {
		return
	}
	a.Broadcast(map[string]interface{}{
		"type":         "play_sound",
		"path":         path,
		"extension_id": a.extensionID,
	})
}

// Data storage: one JSON file per key under the extension's data dir.

func (a *API) dataDir() string {
	return filepath.Join(a.dir, "data")
}

func (a *API) dataPath(key string) string {
	// Keys must not escape the data directory.
	return filepath.Join(a.dataDir(), filepath.Base(key)+".json")
}

type dataRecord struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// GetData reads a stored value, returning def when absent or unreadable.
func (a *API) GetData(key string, def interface{}) interface{} {
	data, err := os.ReadFile(a.dataPath(key))
	if err != nil {
		return def
	}
	var rec dataRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return def
	}
	if rec.Value == nil {
		return def
	}
	return rec.Value
}

// SetData stores a value under key.
func (a *API) SetData(key string, value interface{}) error {
	if err := os.MkdirAll(a.dataDir(), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(dataRecord{Key: key, Value: value}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(a.dataPath(key), data, 0o644)
}

// DeleteData removes a stored value. Reports whether anything was removed.
func (a *API) DeleteData(key string) bool {
	path := a.dataPath(key)
	if _, err := os.Stat(path); err != nil {
		return false
	}
	return os.Remove(path) == nil
}

// AllData returns every stored key/value pair for this extension.
func (a *API) AllData() map[string]interface{} {
	out := map[string]interface{}{}
	entries, err := os.ReadDir(a.dataDir())
	if err != nil {
		return out
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(a.dataDir(), e.Name()))
		if err != nil {
			continue
		}
		var rec dataRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		key := rec.Key
		if key == "" {
			key = strings.TrimSuffix(e.Name(), ".json")
		}
		out[key] = rec.Value
	}
	return out
}

// Config passthroughs.

// RobotName returns the robot's configured name.
func (a *API) RobotName() string {
	if a.deps.Config == nil {
		return "ORBI"
	}
	return a.deps.Config.RobotName()
}

// ChildName returns the child's configured name.
func (a *API) ChildName() string {
	if a.deps.Config == nil {
		return ""
	}
	return a.deps.Config.ChildName()
}

// ChildAge returns the child's age when a birthdate is configured.
func (a *API) ChildAge() (int, bool) {
	if a.deps.Config == nil {
		return 0, false
	}
	return a.deps.Config.ChildAge()
}

// ConfigValue reads a config value by dot path.
func (a *API) ConfigValue(path string, def interface{}) interface{} {
	if a.deps.Config == nil {
		return def
	}
	return a.deps.Config.Value(path, def)
}

// Memory passthroughs.

// Memories returns everything the robot remembers about the child.
func (a *API) Memories() []string {
	if a.deps.Memory == nil {
		return nil
	}
	entries := a.deps.Memory.All()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Fact
	}
	return out
}

// AddMemory remembers a new fact.
func (a *API) AddMemory(fact string) error {
	if a.deps.Memory == nil {
		return fmt.Errorf("memory store unavailable")
	}
	_, err := a.deps.Memory.Save(fact)
	return err
}

// AskClaude asks a one-off question for extension logic. The error
// form is friendlier to handler code than a structured failure.
func (a *API) AskClaude(ctx context.Context, prompt, extra string) (string, error) {
	if a.deps.Asker == nil {
		return "", fmt.Errorf("language model unavailable")
	}
	return a.deps.Asker.Ask(ctx, prompt, extra)
}

// Asset helpers. All paths resolve inside the extension directory.

// AssetPath returns the path of a file shipped with the extension.
func (a *API) AssetPath(filename string) string {
	return filepath.Join(a.dir, filepath.Base(filename))
}

// ReadAsset reads a text asset. Returns "" when the file is missing.
func (a *API) ReadAsset(filename string) string {
	data, err := os.ReadFile(a.AssetPath(filename))
	if err != nil {
		return ""
	}
	return string(data)
}

// ReadJSONAsset unmarshals a JSON asset into v.
func (a *API) ReadJSONAsset(filename string, v interface{}) error {
	data, err := os.ReadFile(a.AssetPath(filename))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Cooperative stop. Long-running handlers poll StopRequested and wind
// down when the emergency stop raises it.

// StopRequested reports whether an emergency stop is in progress.
func (a *API) StopRequested() bool {
	return a.stopped.Load()
}

// RequestStop raises the stop flag.
func (a *API) RequestStop() {
	a.stopped.Store(true)
}

// ClearStop lowers the stop flag.
func (a *API) ClearStop() {
	a.stopped.Store(false)
}
