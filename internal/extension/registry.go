package extension

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/orbi-bot/orbi/internal/core"
	"github.com/orbi-bot/orbi/internal/logging"
)

// TriggerMatch is the result of a voice trigger lookup.
type TriggerMatch struct {
	ExtensionID string `json:"extension_id"`
	Action      string `json:"action"`
	Phrase      string `json:"phrase"`
}

type triggerEntry struct {
	phrase      string
	extensionID string
	action      string
}

// Registry discovers extensions from the extensions directory and
// holds the live set. Discover rebuilds everything from disk; the
// registry is the only writer of its own state.
type Registry struct {
	mu         sync.RWMutex
	dir        string
	extensions map[string]*core.Extension
	order      []string
	triggers   []triggerEntry
	apis       map[string]*API
	deps       APIDeps
	log        *logging.Logger
}

// NewRegistry creates a registry over extensionsDir. deps are handed
// to each bound handler's API.
func NewRegistry(extensionsDir string, deps APIDeps) *Registry {
	return &Registry{
		dir:        extensionsDir,
		extensions: map[string]*core.Extension{},
		apis:       map[string]*API{},
		deps:       deps,
		log:        logging.Component("registry"),
	}
}

// Dir returns the extensions directory.
func (r *Registry) Dir() string {
	return r.dir
}

// Discover clears the registry and rebuilds it from disk. Directories
// without a valid manifest are skipped with a log line. Safe to call
// again at any time; ids seen later override earlier ones.
func (r *Registry) Discover() ([]*core.Extension, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create extensions dir: %w", err)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read extensions dir: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.extensions = map[string]*core.Extension{}
	r.order = nil
	r.triggers = nil
	r.apis = map[string]*API{}

	var loaded []*core.Extension
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ext := r.loadOne(filepath.Join(r.dir, entry.Name()))
		if ext == nil {
			continue
		}
		if _, dup := r.extensions[ext.ID]; !dup {
			r.order = append(r.order, ext.ID)
		}
		r.extensions[ext.ID] = ext
		loaded = append(loaded, ext)
		r.log.Info("loaded extension: %s (v%s)", ext.Name, ext.Version)
	}

	// Voice triggers register in extension load order; within an
	// extension, manifest triggers come before handler triggers.
	for _, id := range r.order {
		ext := r.extensions[id]
		for _, t := range ext.VoiceTriggers {
			for _, phrase := range t.Phrases {
				r.triggers = append(r.triggers, triggerEntry{
					phrase:      strings.ToLower(strings.TrimSpace(phrase)),
					extensionID: ext.ID,
					action:      t.Action,
				})
			}
		}
	}

	return loaded, nil
}

func (r *Registry) loadOne(dir string) *core.Extension {
	manifest := LoadManifest(dir)
	if manifest == nil {
		r.log.Warn("skipping %s: no valid manifest.json", filepath.Base(dir))
		return nil
	}
	ApplyDefaults(manifest, dir)

	ext := &core.Extension{
		ID:            manifest.ID,
		Name:          manifest.Name,
		Description:   manifest.Description,
		Version:       manifest.Version,
		Author:        manifest.Author,
		Type:          manifest.Type,
		Category:      manifest.Category,
		Enabled:       IsEnabled(manifest),
		Path:          dir,
		Manifest:      *manifest,
		VoiceTriggers: manifest.VoiceTriggers,
		UIComponents:  manifest.UIComponents,
	}

	ext.Emotions = loadEmotions(dir)
	ext.Jokes = loadJokes(dir)
	ext.FaceOverlays = loadOverlays(dir)

	if h, ok := LookupHandler(ext.ID); ok {
		ext.HasHandler = true
		ext.VoiceTriggers = append(ext.VoiceTriggers, h.VoiceTriggers()...)

		api := NewAPI(ext.ID, dir, r.deps)
		r.apis[ext.ID] = api
		if err := h.OnLoad(api); err != nil {
			r.log.Warn("handler OnLoad failed for %s: %v", ext.ID, err)
		}
	}

	return ext
}

// Get returns an extension by id.
func (r *Registry) Get(id string) (*core.Extension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext, ok := r.extensions[id]
	return ext, ok
}

// Find looks an extension up by id or name, case-insensitive exact
// match only.
func (r *Registry) Find(nameOrID string) (*core.Extension, bool) {
	needle := strings.ToLower(strings.TrimSpace(nameOrID))

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		ext := r.extensions[id]
		if strings.ToLower(ext.ID) == needle || strings.ToLower(ext.Name) == needle {
			return ext, true
		}
	}
	return nil, false
}

// All returns every extension in load order.
func (r *Registry) All() []*core.Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*core.Extension, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.extensions[id])
	}
	return out
}

// Enabled returns only enabled extensions, in load order. Always
// non-nil: these slices end up in JSON responses where clients expect
// a list.
func (r *Registry) Enabled() []*core.Extension {
	out := []*core.Extension{}
	for _, ext := range r.All() {
		if ext.Enabled {
			out = append(out, ext)
		}
	}
	return out
}

// ByCategory returns enabled extensions in a category.
func (r *Registry) ByCategory(category core.Category) []*core.Extension {
	out := []*core.Extension{}
	for _, ext := range r.Enabled() {
		if ext.Category == category {
			out = append(out, ext)
		}
	}
	return out
}

// CategoryCounts returns enabled extension counts per category.
func (r *Registry) CategoryCounts() map[core.Category]int {
	counts := map[core.Category]int{}
	for _, ext := range r.Enabled() {
		counts[ext.Category]++
	}
	return counts
}

// CustomEmotions aggregates emotions from enabled extensions, each
// tagged with its source extension id.
func (r *Registry) CustomEmotions() []core.Emotion {
	out := []core.Emotion{}
	for _, ext := range r.Enabled() {
		for _, e := range ext.Emotions {
			e.ExtensionID = ext.ID
			out = append(out, e)
		}
	}
	return out
}

// CustomJokes aggregates jokes from enabled extensions.
func (r *Registry) CustomJokes() []string {
	out := []string{}
	for _, ext := range r.Enabled() {
		out = append(out, ext.Jokes...)
	}
	return out
}

// FaceOverlays aggregates overlays from enabled extensions.
func (r *Registry) FaceOverlays() []core.FaceOverlay {
	out := []core.FaceOverlay{}
	for _, ext := range r.Enabled() {
		for _, o := range ext.FaceOverlays {
			o.ExtensionID = ext.ID
			out = append(out, o)
		}
	}
	return out
}

// SetEnabled flips an extension's enabled flag and rewrites its
// manifest so the change survives restart.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ext, ok := r.extensions[id]
	if !ok {
		return core.ErrExtensionNotFound
	}

	ext.Enabled = enabled
	ext.Manifest.Enabled = &enabled
	if err := SaveManifest(ext.Path, &ext.Manifest); err != nil {
		return fmt.Errorf("update manifest: %w", err)
	}
	r.log.Info("extension %s %s", id, enabledWord(enabled))
	return nil
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

// Delete removes an extension's directory and registry entry. The
// files are gone for good; backups under .backups are untouched.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ext, ok := r.extensions[id]
	if !ok {
		return core.ErrExtensionNotFound
	}
	if err := os.RemoveAll(ext.Path); err != nil {
		return fmt.Errorf("remove extension files: %w", err)
	}

	delete(r.extensions, id)
	delete(r.apis, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	kept := r.triggers[:0]
	for _, t := range r.triggers {
		if t.extensionID != id {
			kept = append(kept, t)
		}
	}
	r.triggers = kept

	r.log.Info("deleted extension %s", id)
	return nil
}

// CheckVoiceTrigger matches spoken text against registered triggers.
// Exact matches win over substring matches; within each pass the
// first registered trigger wins, so overlapping phrases resolve by
// extension load order.
func (r *Registry) CheckVoiceTrigger(text string) (TriggerMatch, bool) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return TriggerMatch{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.triggers {
		if t.phrase == needle {
			return TriggerMatch{ExtensionID: t.extensionID, Action: t.action, Phrase: t.phrase}, true
		}
	}
	for _, t := range r.triggers {
		if t.phrase != "" && strings.Contains(needle, t.phrase) {
			return TriggerMatch{ExtensionID: t.extensionID, Action: t.action, Phrase: t.phrase}, true
		}
	}
	return TriggerMatch{}, false
}

// ExecuteAction routes an action to an extension's handler.
func (r *Registry) ExecuteAction(ctx context.Context, extensionID, action string, params map[string]interface{}) (interface{}, error) {
	r.mu.RLock()
	_, exists := r.extensions[extensionID]
	r.mu.RUnlock()
	if !exists {
		return nil, core.ErrExtensionNotFound
	}

	h, ok := LookupHandler(extensionID)
	if !ok {
		return nil, fmt.Errorf("extension %s has no action handler", extensionID)
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	return h.HandleAction(ctx, action, params)
}

// APIFor returns the capability API bound to an extension, if its
// handler was loaded.
func (r *Registry) APIFor(extensionID string) (*API, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	api, ok := r.apis[extensionID]
	return api, ok
}

// StopAll raises every bound extension's stop flag. Used by the
// emergency stop path.
func (r *Registry) StopAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, api := range r.apis {
		api.RequestStop()
	}
}

// ResetStops clears stop flags after an emergency stop completes.
func (r *Registry) ResetStops() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, api := range r.apis {
		api.ClearStop()
	}
}
