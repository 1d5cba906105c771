// Package extension implements ORBI's plugin system: manifest loading,
// directory discovery, versioned backups, and the capability API
// handlers use to drive the robot.
package extension

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/orbi-bot/orbi/internal/core"
	"github.com/orbi-bot/orbi/internal/logging"
)

// typeCategories maps an extension type to its default UI category.
var typeCategories = map[string]core.Category{
	"game":    core.CategoryGames,
	"mode":    core.CategoryModes,
	"utility": core.CategoryTools,
	"tool":    core.CategoryTools,
	"action":  core.CategoryTools,
	"feature": core.CategoryTools,
	"emotion": core.CategoryModes,
	"quiz":    core.CategoryQuizzes,
}

// CategoryForType returns the default category for an extension type.
// Unknown types land in tools.
func CategoryForType(extType string) core.Category {
	if c, ok := typeCategories[extType]; ok {
		return c
	}
	return core.CategoryTools
}

// LoadManifest reads manifest.json from an extension directory.
// Returns nil when the file is missing or unreadable; a broken
// manifest never takes the process down.
func LoadManifest(dir string) *core.Manifest {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn("cannot read manifest in %s: %v", dir, err)
		}
		return nil
	}

	var m core.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		logging.Warn("invalid manifest in %s: %v", dir, err)
		return nil
	}
	return &m
}

// SaveManifest writes the manifest back to its extension directory.
func SaveManifest(dir string, m *core.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644)
}

// ApplyDefaults fills in the manifest defaults for a directory:
// id falls back to the folder name, type to "feature", category is
// inferred from type, and enabled defaults to true.
func ApplyDefaults(m *core.Manifest, dir string) {
	if m.ID == "" {
		m.ID = filepath.Base(dir)
	}
	if m.Name == "" {
		m.Name = m.ID
	}
	if m.Version == "" {
		m.Version = "1.0.0"
	}
	if m.Author == "" {
		m.Author = "unknown"
	}
	if m.Type == "" {
		m.Type = "feature"
	}
	if m.Category == "" || !core.IsValidCategory(m.Category) {
		m.Category = CategoryForType(m.Type)
	}
}

// IsEnabled resolves the manifest's optional enabled flag; absent
// means enabled.
func IsEnabled(m *core.Manifest) bool {
	return m.Enabled == nil || *m.Enabled
}
